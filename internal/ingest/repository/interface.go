package repository

import (
	"context"

	"github.com/google/uuid"
)

// Store is the reference-entity and metadata persistence boundary used by the
// ingest services. The Upsert methods are atomic insert-or-return-existing:
// the boolean result reports whether this call created the row. Concurrent
// creations of the same natural key resolve to the same row on every caller.
type Store interface {
	// UpsertMake finds or creates a make by slug.
	UpsertMake(ctx context.Context, displayName, displayValue string) (Make, bool, error)
	// UpdateMakeDisplayName merges a newly-seen display name into an existing make.
	UpdateMakeDisplayName(ctx context.Context, id uuid.UUID, displayName string) (Make, error)

	// UpsertModel finds or creates a model scoped to a make.
	UpsertModel(ctx context.Context, makeID uuid.UUID, displayName, displayValue string) (Model, bool, error)
	UpdateModelDisplayName(ctx context.Context, id uuid.UUID, displayName string) (Model, error)

	// UpsertVariant finds or creates a variant by slug.
	UpsertVariant(ctx context.Context, displayName, displayValue string) (Variant, bool, error)
	UpdateVariantDisplayName(ctx context.Context, id uuid.UUID, displayName string) (Variant, error)
	// AttachVariantModel adds the model to the variant's association set.
	// Idempotent; never removes existing associations.
	AttachVariantModel(ctx context.Context, variantID, modelID uuid.UUID) error

	// UpsertBody finds or creates a body style by slug.
	UpsertBody(ctx context.Context, displayName, displayValue string) (Body, bool, error)
	UpdateBodyDisplayName(ctx context.Context, id uuid.UUID, displayName string) (Body, error)

	// UpsertVariantYear finds or creates a year scoped to a model and
	// optional variant. A nil variantID counts as the fixed sentinel.
	UpsertVariantYear(ctx context.Context, modelID uuid.UUID, variantID *uuid.UUID, year int, displayValue string) (VariantYear, bool, error)

	// FindMetadataByTuple returns the record for the uniqueness tuple, or
	// (nil, nil) when absent.
	FindMetadataByTuple(ctx context.Context, tuple MetadataTuple) (*VehicleMetadata, error)
	// CreateMetadata inserts a new record. A concurrent insert of the same
	// tuple surfaces as an apperr.KindConflict error.
	CreateMetadata(ctx context.Context, record VehicleMetadata) (VehicleMetadata, error)
	// UpdateMetadata merges the candidate's attributes into the existing record.
	UpdateMetadata(ctx context.Context, record VehicleMetadata) (VehicleMetadata, error)
}
