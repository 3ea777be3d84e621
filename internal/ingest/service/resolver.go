package service

import (
	"context"
	"fmt"

	"dealerhub_backend/internal/ingest/repository"
	"dealerhub_backend/platform/apperr"
	"dealerhub_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Resolver performs idempotent find-or-create of reference entities. The
// store's upserts are atomic on the natural key, so two racing resolutions of
// the same key both land on the same row; the loser of the insert race gets
// the winner's record back instead of an error.
type Resolver struct {
	store repository.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store repository.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolution reports the entity and whether this call created it.
type Resolution[T any] struct {
	Entity  T
	Created bool
}

// ResolveMake finds or creates a make by display name.
func (r *Resolver) ResolveMake(ctx context.Context, displayName string, updateExisting bool) (Resolution[repository.Make], error) {
	name := sanitize.Text(displayName)
	if name == "" {
		return Resolution[repository.Make]{}, apperr.Validation("make name is required")
	}

	m, created, err := r.store.UpsertMake(ctx, name, Slug(name))
	if err != nil {
		return Resolution[repository.Make]{}, fmt.Errorf("resolve make %q: %w", name, err)
	}

	if !created && updateExisting && m.DisplayName != name {
		m, err = r.store.UpdateMakeDisplayName(ctx, m.ID, name)
		if err != nil {
			return Resolution[repository.Make]{}, fmt.Errorf("merge make %q: %w", name, err)
		}
	}

	return Resolution[repository.Make]{Entity: m, Created: created}, nil
}

// ResolveModel finds or creates a model scoped to the given make.
func (r *Resolver) ResolveModel(ctx context.Context, makeID uuid.UUID, displayName string, updateExisting bool) (Resolution[repository.Model], error) {
	name := sanitize.Text(displayName)
	if name == "" {
		return Resolution[repository.Model]{}, apperr.Validation("model name is required")
	}

	m, created, err := r.store.UpsertModel(ctx, makeID, name, Slug(name))
	if err != nil {
		return Resolution[repository.Model]{}, fmt.Errorf("resolve model %q: %w", name, err)
	}

	if !created && updateExisting && m.DisplayName != name {
		m, err = r.store.UpdateModelDisplayName(ctx, m.ID, name)
		if err != nil {
			return Resolution[repository.Model]{}, fmt.Errorf("merge model %q: %w", name, err)
		}
	}

	return Resolution[repository.Model]{Entity: m, Created: created}, nil
}

// ResolveVariant finds or creates a variant and accretes the model into its
// association set. Association is append-only; a variant shared by many
// models keeps every model it has ever been seen with.
func (r *Resolver) ResolveVariant(ctx context.Context, modelID uuid.UUID, displayName string, updateExisting bool) (Resolution[repository.Variant], error) {
	name := sanitize.Text(displayName)
	if name == "" {
		return Resolution[repository.Variant]{}, apperr.Validation("variant name is required")
	}

	v, created, err := r.store.UpsertVariant(ctx, name, Slug(name))
	if err != nil {
		return Resolution[repository.Variant]{}, fmt.Errorf("resolve variant %q: %w", name, err)
	}

	if !created && updateExisting && v.DisplayName != name {
		v, err = r.store.UpdateVariantDisplayName(ctx, v.ID, name)
		if err != nil {
			return Resolution[repository.Variant]{}, fmt.Errorf("merge variant %q: %w", name, err)
		}
	}

	if err := r.store.AttachVariantModel(ctx, v.ID, modelID); err != nil {
		return Resolution[repository.Variant]{}, fmt.Errorf("attach variant %q to model: %w", name, err)
	}

	return Resolution[repository.Variant]{Entity: v, Created: created}, nil
}

// ResolveBody finds or creates a body style.
func (r *Resolver) ResolveBody(ctx context.Context, displayName string, updateExisting bool) (Resolution[repository.Body], error) {
	name := sanitize.Text(displayName)
	if name == "" {
		return Resolution[repository.Body]{}, apperr.Validation("body name is required")
	}

	b, created, err := r.store.UpsertBody(ctx, name, Slug(name))
	if err != nil {
		return Resolution[repository.Body]{}, fmt.Errorf("resolve body %q: %w", name, err)
	}

	if !created && updateExisting && b.DisplayName != name {
		b, err = r.store.UpdateBodyDisplayName(ctx, b.ID, name)
		if err != nil {
			return Resolution[repository.Body]{}, fmt.Errorf("merge body %q: %w", name, err)
		}
	}

	return Resolution[repository.Body]{Entity: b, Created: created}, nil
}

// ResolveVariantYear finds or creates a production year scoped to the model
// and optional variant.
func (r *Resolver) ResolveVariantYear(ctx context.Context, modelID uuid.UUID, variantID *uuid.UUID, year int) (Resolution[repository.VariantYear], error) {
	if year <= 0 {
		return Resolution[repository.VariantYear]{}, apperr.Validation("year must be positive")
	}

	vy, created, err := r.store.UpsertVariantYear(ctx, modelID, variantID, year, fmt.Sprintf("%d", year))
	if err != nil {
		return Resolution[repository.VariantYear]{}, fmt.Errorf("resolve variant year %d: %w", year, err)
	}

	return Resolution[repository.VariantYear]{Entity: vy, Created: created}, nil
}
