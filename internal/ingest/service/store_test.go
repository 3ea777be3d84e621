package service

import (
	"context"
	"fmt"
	"sync"

	"dealerhub_backend/internal/ingest/repository"
	"dealerhub_backend/platform/apperr"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store whose upserts are atomic under a mutex,
// mirroring the database's insert-or-return-existing guarantee.
type fakeStore struct {
	mu sync.Mutex

	makes         map[string]repository.Make
	models        map[string]repository.Model
	variants      map[string]repository.Variant
	bodies        map[string]repository.Body
	years         map[string]repository.VariantYear
	variantModels map[string]struct{}
	metadata      map[repository.MetadataTuple]repository.VehicleMetadata

	// failVariantName makes UpsertVariant fail for one display name.
	failVariantName string
	// raceOnNextCreate makes the next CreateMetadata behave as if another
	// operation inserted the tuple first: the row appears and the call
	// reports a conflict.
	raceOnNextCreate bool

	makeCreates int
	attachCalls int
	updateCalls int
	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		makes:         make(map[string]repository.Make),
		models:        make(map[string]repository.Model),
		variants:      make(map[string]repository.Variant),
		bodies:        make(map[string]repository.Body),
		years:         make(map[string]repository.VariantYear),
		variantModels: make(map[string]struct{}),
		metadata:      make(map[repository.MetadataTuple]repository.VehicleMetadata),
	}
}

func (s *fakeStore) UpsertMake(_ context.Context, displayName, displayValue string) (repository.Make, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.makes[displayValue]; ok {
		return existing, false, nil
	}
	m := repository.Make{ID: uuid.New(), DisplayName: displayName, DisplayValue: displayValue}
	s.makes[displayValue] = m
	s.makeCreates++
	return m, true, nil
}

func (s *fakeStore) UpdateMakeDisplayName(_ context.Context, id uuid.UUID, displayName string) (repository.Make, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, m := range s.makes {
		if m.ID == id {
			m.DisplayName = displayName
			s.makes[key] = m
			return m, nil
		}
	}
	return repository.Make{}, apperr.NotFound("make not found")
}

func (s *fakeStore) UpsertModel(_ context.Context, makeID uuid.UUID, displayName, displayValue string) (repository.Model, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := makeID.String() + "/" + displayValue
	if existing, ok := s.models[key]; ok {
		return existing, false, nil
	}
	m := repository.Model{ID: uuid.New(), MakeID: makeID, DisplayName: displayName, DisplayValue: displayValue}
	s.models[key] = m
	return m, true, nil
}

func (s *fakeStore) UpdateModelDisplayName(_ context.Context, id uuid.UUID, displayName string) (repository.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, m := range s.models {
		if m.ID == id {
			m.DisplayName = displayName
			s.models[key] = m
			return m, nil
		}
	}
	return repository.Model{}, apperr.NotFound("model not found")
}

func (s *fakeStore) UpsertVariant(_ context.Context, displayName, displayValue string) (repository.Variant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failVariantName != "" && displayName == s.failVariantName {
		return repository.Variant{}, false, fmt.Errorf("store unavailable")
	}
	if existing, ok := s.variants[displayValue]; ok {
		return existing, false, nil
	}
	v := repository.Variant{ID: uuid.New(), DisplayName: displayName, DisplayValue: displayValue}
	s.variants[displayValue] = v
	return v, true, nil
}

func (s *fakeStore) UpdateVariantDisplayName(_ context.Context, id uuid.UUID, displayName string) (repository.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range s.variants {
		if v.ID == id {
			v.DisplayName = displayName
			s.variants[key] = v
			return v, nil
		}
	}
	return repository.Variant{}, apperr.NotFound("variant not found")
}

func (s *fakeStore) AttachVariantModel(_ context.Context, variantID, modelID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachCalls++
	s.variantModels[variantID.String()+"/"+modelID.String()] = struct{}{}
	return nil
}

func (s *fakeStore) UpsertBody(_ context.Context, displayName, displayValue string) (repository.Body, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.bodies[displayValue]; ok {
		return existing, false, nil
	}
	b := repository.Body{ID: uuid.New(), DisplayName: displayName, DisplayValue: displayValue}
	s.bodies[displayValue] = b
	return b, true, nil
}

func (s *fakeStore) UpdateBodyDisplayName(_ context.Context, id uuid.UUID, displayName string) (repository.Body, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.bodies {
		if b.ID == id {
			b.DisplayName = displayName
			s.bodies[key] = b
			return b, nil
		}
	}
	return repository.Body{}, apperr.NotFound("body not found")
}

func (s *fakeStore) UpsertVariantYear(_ context.Context, modelID uuid.UUID, variantID *uuid.UUID, year int, displayValue string) (repository.VariantYear, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	variantKey := "-"
	if variantID != nil {
		variantKey = variantID.String()
	}
	key := fmt.Sprintf("%s/%s/%d", modelID, variantKey, year)
	if existing, ok := s.years[key]; ok {
		return existing, false, nil
	}
	vy := repository.VariantYear{ID: uuid.New(), ModelID: modelID, VariantID: variantID, Year: year, DisplayValue: displayValue}
	s.years[key] = vy
	return vy, true, nil
}

func (s *fakeStore) FindMetadataByTuple(_ context.Context, tuple repository.MetadataTuple) (*repository.VehicleMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.metadata[tuple]; ok {
		out := existing
		return &out, nil
	}
	return nil, nil
}

func (s *fakeStore) CreateMetadata(_ context.Context, record repository.VehicleMetadata) (repository.VehicleMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	tuple := record.Tuple()
	if s.raceOnNextCreate {
		s.raceOnNextCreate = false
		racing := record
		racing.ID = uuid.New()
		s.metadata[tuple] = racing
		return repository.VehicleMetadata{}, apperr.Conflict("metadata tuple already exists")
	}
	if _, ok := s.metadata[tuple]; ok {
		return repository.VehicleMetadata{}, apperr.Conflict("metadata tuple already exists")
	}
	record.ID = uuid.New()
	s.metadata[tuple] = record
	return record, nil
}

func (s *fakeStore) UpdateMetadata(_ context.Context, record repository.VehicleMetadata) (repository.VehicleMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	for tuple, existing := range s.metadata {
		if existing.ID == record.ID {
			merged := record
			merged.CreatedAt = existing.CreatedAt
			s.metadata[tuple] = merged
			return merged, nil
		}
	}
	return repository.VehicleMetadata{}, apperr.NotFound("metadata not found")
}

func (s *fakeStore) metadataCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metadata)
}

func (s *fakeStore) metadataByTuple(tuple repository.MetadataTuple) (repository.VehicleMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metadata[tuple]
	return m, ok
}

var _ repository.Store = (*fakeStore)(nil)
