package service

import (
	"context"
	"fmt"
	"strings"

	"dealerhub_backend/internal/ingest/repository"
	"dealerhub_backend/platform/apperr"
)

// MergeOutcome classifies what the merger did with a candidate record.
type MergeOutcome int

const (
	OutcomeCreated MergeOutcome = iota
	OutcomeUpdated
	OutcomeSkipped
)

// ResolvedRefs carries the resolved reference entities for one row.
type ResolvedRefs struct {
	Make        repository.Make
	Model       repository.Model
	Variant     *repository.Variant
	Body        *repository.Body
	VariantYear *repository.VariantYear
}

// Merger decides create/update/skip for metadata candidates against the store.
type Merger struct {
	store repository.Store
}

// NewMerger creates a merger over the given store.
func NewMerger(store repository.Store) *Merger {
	return &Merger{store: store}
}

// BuildTags derives the record's tag set from the resolved entities and
// scalar fields. Pure: identical inputs always yield identical tags, and
// empty components are filtered out.
func BuildTags(refs ResolvedRefs, fuelType, transmission string) []string {
	candidates := []string{
		refs.Make.DisplayName,
		refs.Model.DisplayName,
	}
	if refs.Variant != nil {
		candidates = append(candidates, refs.Variant.DisplayName)
	}
	if refs.Body != nil {
		candidates = append(candidates, refs.Body.DisplayName)
	}
	if refs.VariantYear != nil {
		candidates = append(candidates, fmt.Sprintf("%d", refs.VariantYear.Year))
	}
	candidates = append(candidates, fuelType, transmission)

	tags := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		tag := strings.ToLower(strings.TrimSpace(candidate))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// Merge looks the candidate up by its uniqueness tuple and creates, updates,
// or skips. A concurrent create of the same tuple by another operation is
// recovered by re-querying and applying the found-record path.
func (m *Merger) Merge(ctx context.Context, candidate repository.VehicleMetadata, updateExisting bool) (MergeOutcome, error) {
	existing, err := m.store.FindMetadataByTuple(ctx, candidate.Tuple())
	if err != nil {
		return OutcomeSkipped, err
	}

	if existing == nil {
		_, err := m.store.CreateMetadata(ctx, candidate)
		if err == nil {
			return OutcomeCreated, nil
		}
		if !apperr.Is(err, apperr.KindConflict) {
			return OutcomeSkipped, err
		}
		// Lost a cross-operation race; the tuple exists now.
		existing, err = m.store.FindMetadataByTuple(ctx, candidate.Tuple())
		if err != nil {
			return OutcomeSkipped, err
		}
		if existing == nil {
			return OutcomeSkipped, apperr.Internal("metadata tuple vanished after conflict")
		}
	}

	if !updateExisting {
		return OutcomeSkipped, nil
	}

	candidate.ID = existing.ID
	if _, err := m.store.UpdateMetadata(ctx, candidate); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeUpdated, nil
}
