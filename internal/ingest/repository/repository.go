// Package repository persists vehicle reference entities and aggregate
// metadata records. Natural-key uniqueness is enforced by the database, so
// find-or-create stays correct under concurrent writers and across processes.
package repository

import (
	"context"
	"errors"
	"fmt"

	"dealerhub_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opUpsertMake        = "ingest.repository.upsert_make"
	opUpdateMake        = "ingest.repository.update_make"
	opUpsertModel       = "ingest.repository.upsert_model"
	opUpdateModel       = "ingest.repository.update_model"
	opUpsertVariant     = "ingest.repository.upsert_variant"
	opUpdateVariant     = "ingest.repository.update_variant"
	opAttachVariant     = "ingest.repository.attach_variant_model"
	opUpsertBody        = "ingest.repository.upsert_body"
	opUpdateBody        = "ingest.repository.update_body"
	opUpsertVariantYear = "ingest.repository.upsert_variant_year"
	opFindMetadata      = "ingest.repository.find_metadata"
	opCreateMetadata    = "ingest.repository.create_metadata"
	opUpdateMetadata    = "ingest.repository.update_metadata"

	errRepoNotConfigured = "ingest repository not configured"

	pgUniqueViolation = "23505"

	// nilUUID is the sentinel standing in for absent optional refs in
	// uniqueness comparisons; matches the COALESCE default in the schema.
	nilUUID = "00000000-0000-0000-0000-000000000000"
)

// Repository is the pgx-backed Store implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a repository on the given pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) UpsertMake(ctx context.Context, displayName, displayValue string) (Make, bool, error) {
	if r == nil || r.pool == nil {
		return Make{}, false, apperr.Internal(errRepoNotConfigured).WithOp(opUpsertMake)
	}

	var m Make
	err := r.pool.QueryRow(ctx, `
		INSERT INTO makes (display_name, display_value)
		VALUES ($1, $2)
		ON CONFLICT (display_value) DO NOTHING
		RETURNING id, display_name, display_value, created_at, updated_at
	`, displayName, displayValue).Scan(&m.ID, &m.DisplayName, &m.DisplayValue, &m.CreatedAt, &m.UpdatedAt)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Make{}, false, apperr.Internal(fmt.Sprintf("upsert make failed: %v", err)).WithOp(opUpsertMake)
	}

	// Conflict: the row exists (reference entities are never deleted).
	err = r.pool.QueryRow(ctx, `
		SELECT id, display_name, display_value, created_at, updated_at
		FROM makes WHERE display_value = $1
	`, displayValue).Scan(&m.ID, &m.DisplayName, &m.DisplayValue, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Make{}, false, apperr.Internal(fmt.Sprintf("reload make failed: %v", err)).WithOp(opUpsertMake)
	}
	return m, false, nil
}

func (r *Repository) UpdateMakeDisplayName(ctx context.Context, id uuid.UUID, displayName string) (Make, error) {
	if r == nil || r.pool == nil {
		return Make{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdateMake)
	}

	var m Make
	err := r.pool.QueryRow(ctx, `
		UPDATE makes SET display_name = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, display_name, display_value, created_at, updated_at
	`, id, displayName).Scan(&m.ID, &m.DisplayName, &m.DisplayValue, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Make{}, apperr.NotFound("make not found").WithOp(opUpdateMake)
		}
		return Make{}, apperr.Internal(fmt.Sprintf("update make failed: %v", err)).WithOp(opUpdateMake)
	}
	return m, nil
}

func (r *Repository) UpsertModel(ctx context.Context, makeID uuid.UUID, displayName, displayValue string) (Model, bool, error) {
	if r == nil || r.pool == nil {
		return Model{}, false, apperr.Internal(errRepoNotConfigured).WithOp(opUpsertModel)
	}

	var m Model
	err := r.pool.QueryRow(ctx, `
		INSERT INTO models (display_name, display_value, make_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (make_id, display_value) DO NOTHING
		RETURNING id, display_name, display_value, make_id, created_at, updated_at
	`, displayName, displayValue, makeID).Scan(&m.ID, &m.DisplayName, &m.DisplayValue, &m.MakeID, &m.CreatedAt, &m.UpdatedAt)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Model{}, false, apperr.Internal(fmt.Sprintf("upsert model failed: %v", err)).WithOp(opUpsertModel)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT id, display_name, display_value, make_id, created_at, updated_at
		FROM models WHERE make_id = $1 AND display_value = $2
	`, makeID, displayValue).Scan(&m.ID, &m.DisplayName, &m.DisplayValue, &m.MakeID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Model{}, false, apperr.Internal(fmt.Sprintf("reload model failed: %v", err)).WithOp(opUpsertModel)
	}
	return m, false, nil
}

func (r *Repository) UpdateModelDisplayName(ctx context.Context, id uuid.UUID, displayName string) (Model, error) {
	if r == nil || r.pool == nil {
		return Model{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdateModel)
	}

	var m Model
	err := r.pool.QueryRow(ctx, `
		UPDATE models SET display_name = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, display_name, display_value, make_id, created_at, updated_at
	`, id, displayName).Scan(&m.ID, &m.DisplayName, &m.DisplayValue, &m.MakeID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Model{}, apperr.NotFound("model not found").WithOp(opUpdateModel)
		}
		return Model{}, apperr.Internal(fmt.Sprintf("update model failed: %v", err)).WithOp(opUpdateModel)
	}
	return m, nil
}

func (r *Repository) UpsertVariant(ctx context.Context, displayName, displayValue string) (Variant, bool, error) {
	if r == nil || r.pool == nil {
		return Variant{}, false, apperr.Internal(errRepoNotConfigured).WithOp(opUpsertVariant)
	}

	var v Variant
	err := r.pool.QueryRow(ctx, `
		INSERT INTO variants (display_name, display_value)
		VALUES ($1, $2)
		ON CONFLICT (display_value) DO NOTHING
		RETURNING id, display_name, display_value, created_at, updated_at
	`, displayName, displayValue).Scan(&v.ID, &v.DisplayName, &v.DisplayValue, &v.CreatedAt, &v.UpdatedAt)
	if err == nil {
		return v, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, false, apperr.Internal(fmt.Sprintf("upsert variant failed: %v", err)).WithOp(opUpsertVariant)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT id, display_name, display_value, created_at, updated_at
		FROM variants WHERE display_value = $1
	`, displayValue).Scan(&v.ID, &v.DisplayName, &v.DisplayValue, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Variant{}, false, apperr.Internal(fmt.Sprintf("reload variant failed: %v", err)).WithOp(opUpsertVariant)
	}
	return v, false, nil
}

func (r *Repository) UpdateVariantDisplayName(ctx context.Context, id uuid.UUID, displayName string) (Variant, error) {
	if r == nil || r.pool == nil {
		return Variant{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdateVariant)
	}

	var v Variant
	err := r.pool.QueryRow(ctx, `
		UPDATE variants SET display_name = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, display_name, display_value, created_at, updated_at
	`, id, displayName).Scan(&v.ID, &v.DisplayName, &v.DisplayValue, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variant{}, apperr.NotFound("variant not found").WithOp(opUpdateVariant)
		}
		return Variant{}, apperr.Internal(fmt.Sprintf("update variant failed: %v", err)).WithOp(opUpdateVariant)
	}
	return v, nil
}

func (r *Repository) AttachVariantModel(ctx context.Context, variantID, modelID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opAttachVariant)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO variant_models (variant_id, model_id)
		VALUES ($1, $2)
		ON CONFLICT (variant_id, model_id) DO NOTHING
	`, variantID, modelID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("attach variant model failed: %v", err)).WithOp(opAttachVariant)
	}
	return nil
}

func (r *Repository) UpsertBody(ctx context.Context, displayName, displayValue string) (Body, bool, error) {
	if r == nil || r.pool == nil {
		return Body{}, false, apperr.Internal(errRepoNotConfigured).WithOp(opUpsertBody)
	}

	var b Body
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bodies (display_name, display_value)
		VALUES ($1, $2)
		ON CONFLICT (display_value) DO NOTHING
		RETURNING id, display_name, display_value, created_at, updated_at
	`, displayName, displayValue).Scan(&b.ID, &b.DisplayName, &b.DisplayValue, &b.CreatedAt, &b.UpdatedAt)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Body{}, false, apperr.Internal(fmt.Sprintf("upsert body failed: %v", err)).WithOp(opUpsertBody)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT id, display_name, display_value, created_at, updated_at
		FROM bodies WHERE display_value = $1
	`, displayValue).Scan(&b.ID, &b.DisplayName, &b.DisplayValue, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Body{}, false, apperr.Internal(fmt.Sprintf("reload body failed: %v", err)).WithOp(opUpsertBody)
	}
	return b, false, nil
}

func (r *Repository) UpdateBodyDisplayName(ctx context.Context, id uuid.UUID, displayName string) (Body, error) {
	if r == nil || r.pool == nil {
		return Body{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdateBody)
	}

	var b Body
	err := r.pool.QueryRow(ctx, `
		UPDATE bodies SET display_name = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, display_name, display_value, created_at, updated_at
	`, id, displayName).Scan(&b.ID, &b.DisplayName, &b.DisplayValue, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Body{}, apperr.NotFound("body not found").WithOp(opUpdateBody)
		}
		return Body{}, apperr.Internal(fmt.Sprintf("update body failed: %v", err)).WithOp(opUpdateBody)
	}
	return b, nil
}

func (r *Repository) UpsertVariantYear(ctx context.Context, modelID uuid.UUID, variantID *uuid.UUID, year int, displayValue string) (VariantYear, bool, error) {
	if r == nil || r.pool == nil {
		return VariantYear{}, false, apperr.Internal(errRepoNotConfigured).WithOp(opUpsertVariantYear)
	}

	var vy VariantYear
	err := r.pool.QueryRow(ctx, `
		INSERT INTO variant_years (year, display_value, model_id, variant_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_id, COALESCE(variant_id, '`+nilUUID+`'::uuid), year) DO NOTHING
		RETURNING id, year, display_value, model_id, variant_id, created_at, updated_at
	`, year, displayValue, modelID, variantID).Scan(&vy.ID, &vy.Year, &vy.DisplayValue, &vy.ModelID, &vy.VariantID, &vy.CreatedAt, &vy.UpdatedAt)
	if err == nil {
		return vy, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return VariantYear{}, false, apperr.Internal(fmt.Sprintf("upsert variant year failed: %v", err)).WithOp(opUpsertVariantYear)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT id, year, display_value, model_id, variant_id, created_at, updated_at
		FROM variant_years
		WHERE model_id = $1
		  AND COALESCE(variant_id, '`+nilUUID+`'::uuid) = COALESCE($2, '`+nilUUID+`'::uuid)
		  AND year = $3
	`, modelID, variantID, year).Scan(&vy.ID, &vy.Year, &vy.DisplayValue, &vy.ModelID, &vy.VariantID, &vy.CreatedAt, &vy.UpdatedAt)
	if err != nil {
		return VariantYear{}, false, apperr.Internal(fmt.Sprintf("reload variant year failed: %v", err)).WithOp(opUpsertVariantYear)
	}
	return vy, false, nil
}

func (r *Repository) FindMetadataByTuple(ctx context.Context, tuple MetadataTuple) (*VehicleMetadata, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opFindMetadata)
	}

	var m VehicleMetadata
	err := r.pool.QueryRow(ctx, `
		SELECT id, make_id, model_id, variant_id, body_id, variant_year_id,
		       fuel_type, transmission, engine_capacity, power, torque, seating_capacity,
		       custom_fields, tags, source, batch_id, batch_number, tenant_id, created_by,
		       created_at, updated_at
		FROM vehicle_metadata
		WHERE make_id = $1 AND model_id = $2
		  AND COALESCE(variant_id, '`+nilUUID+`'::uuid) = $3
		  AND COALESCE(body_id, '`+nilUUID+`'::uuid) = $4
		  AND COALESCE(variant_year_id, '`+nilUUID+`'::uuid) = $5
	`, tuple.MakeID, tuple.ModelID, tuple.VariantID, tuple.BodyID, tuple.VariantYearID).Scan(
		&m.ID, &m.MakeID, &m.ModelID, &m.VariantID, &m.BodyID, &m.VariantYearID,
		&m.FuelType, &m.Transmission, &m.EngineCapacity, &m.Power, &m.Torque, &m.SeatingCapacity,
		&m.CustomFields, &m.Tags, &m.Source, &m.BatchID, &m.BatchNumber, &m.TenantID, &m.CreatedBy,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Internal(fmt.Sprintf("find metadata failed: %v", err)).WithOp(opFindMetadata)
	}
	return &m, nil
}

func (r *Repository) CreateMetadata(ctx context.Context, record VehicleMetadata) (VehicleMetadata, error) {
	if r == nil || r.pool == nil {
		return VehicleMetadata{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreateMetadata)
	}
	if record.CustomFields == nil {
		record.CustomFields = map[string]any{}
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}

	var m VehicleMetadata
	err := r.pool.QueryRow(ctx, `
		INSERT INTO vehicle_metadata
			(make_id, model_id, variant_id, body_id, variant_year_id,
			 fuel_type, transmission, engine_capacity, power, torque, seating_capacity,
			 custom_fields, tags, source, batch_id, batch_number, tenant_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, make_id, model_id, variant_id, body_id, variant_year_id,
		          fuel_type, transmission, engine_capacity, power, torque, seating_capacity,
		          custom_fields, tags, source, batch_id, batch_number, tenant_id, created_by,
		          created_at, updated_at
	`, record.MakeID, record.ModelID, record.VariantID, record.BodyID, record.VariantYearID,
		record.FuelType, record.Transmission, record.EngineCapacity, record.Power, record.Torque, record.SeatingCapacity,
		record.CustomFields, record.Tags, record.Source, record.BatchID, record.BatchNumber, record.TenantID, record.CreatedBy,
	).Scan(
		&m.ID, &m.MakeID, &m.ModelID, &m.VariantID, &m.BodyID, &m.VariantYearID,
		&m.FuelType, &m.Transmission, &m.EngineCapacity, &m.Power, &m.Torque, &m.SeatingCapacity,
		&m.CustomFields, &m.Tags, &m.Source, &m.BatchID, &m.BatchNumber, &m.TenantID, &m.CreatedBy,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return VehicleMetadata{}, apperr.Conflict("metadata tuple already exists").WithOp(opCreateMetadata)
		}
		return VehicleMetadata{}, apperr.Internal(fmt.Sprintf("create metadata failed: %v", err)).WithOp(opCreateMetadata)
	}
	return m, nil
}

func (r *Repository) UpdateMetadata(ctx context.Context, record VehicleMetadata) (VehicleMetadata, error) {
	if r == nil || r.pool == nil {
		return VehicleMetadata{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdateMetadata)
	}
	if record.CustomFields == nil {
		record.CustomFields = map[string]any{}
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}

	var m VehicleMetadata
	err := r.pool.QueryRow(ctx, `
		UPDATE vehicle_metadata SET
			fuel_type        = COALESCE($2, fuel_type),
			transmission     = COALESCE($3, transmission),
			engine_capacity  = COALESCE($4, engine_capacity),
			power            = COALESCE($5, power),
			torque           = COALESCE($6, torque),
			seating_capacity = COALESCE($7, seating_capacity),
			custom_fields    = custom_fields || $8,
			tags             = ARRAY(SELECT DISTINCT t FROM unnest(tags || $9) AS t ORDER BY t),
			source           = COALESCE($10, source),
			batch_id         = COALESCE($11, batch_id),
			batch_number     = COALESCE($12, batch_number),
			updated_at       = now()
		WHERE id = $1
		RETURNING id, make_id, model_id, variant_id, body_id, variant_year_id,
		          fuel_type, transmission, engine_capacity, power, torque, seating_capacity,
		          custom_fields, tags, source, batch_id, batch_number, tenant_id, created_by,
		          created_at, updated_at
	`, record.ID,
		record.FuelType, record.Transmission, record.EngineCapacity, record.Power, record.Torque, record.SeatingCapacity,
		record.CustomFields, record.Tags, record.Source, record.BatchID, record.BatchNumber,
	).Scan(
		&m.ID, &m.MakeID, &m.ModelID, &m.VariantID, &m.BodyID, &m.VariantYearID,
		&m.FuelType, &m.Transmission, &m.EngineCapacity, &m.Power, &m.Torque, &m.SeatingCapacity,
		&m.CustomFields, &m.Tags, &m.Source, &m.BatchID, &m.BatchNumber, &m.TenantID, &m.CreatedBy,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VehicleMetadata{}, apperr.NotFound("metadata record not found").WithOp(opUpdateMetadata)
		}
		return VehicleMetadata{}, apperr.Internal(fmt.Sprintf("update metadata failed: %v", err)).WithOp(opUpdateMetadata)
	}
	return m, nil
}
