package service

import (
	"context"
	"reflect"
	"testing"

	"dealerhub_backend/internal/ingest/repository"

	"github.com/google/uuid"
)

func sampleRefs() ResolvedRefs {
	variant := repository.Variant{ID: uuid.New(), DisplayName: "GR Sport"}
	body := repository.Body{ID: uuid.New(), DisplayName: "Hatchback"}
	year := repository.VariantYear{ID: uuid.New(), Year: 2021}
	return ResolvedRefs{
		Make:        repository.Make{ID: uuid.New(), DisplayName: "Toyota"},
		Model:       repository.Model{ID: uuid.New(), DisplayName: "Yaris"},
		Variant:     &variant,
		Body:        &body,
		VariantYear: &year,
	}
}

func TestBuildTagsIsDeterministic(t *testing.T) {
	refs := sampleRefs()

	first := BuildTags(refs, "Petrol", "Manual")
	second := BuildTags(refs, "Petrol", "Manual")

	want := []string{"toyota", "yaris", "gr sport", "hatchback", "2021", "petrol", "manual"}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("tags = %v, want %v", first, want)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different tags: %v vs %v", first, second)
	}
}

func TestBuildTagsFiltersEmptyAndDuplicates(t *testing.T) {
	refs := ResolvedRefs{
		Make:  repository.Make{DisplayName: "Honda"},
		Model: repository.Model{DisplayName: "honda"},
	}

	tags := BuildTags(refs, "", "  ")

	if !reflect.DeepEqual(tags, []string{"honda"}) {
		t.Fatalf("tags = %v, want [honda]", tags)
	}
}

func metadataCandidate(refs ResolvedRefs) repository.VehicleMetadata {
	fuel := "Petrol"
	candidate := repository.VehicleMetadata{
		MakeID:   refs.Make.ID,
		ModelID:  refs.Model.ID,
		FuelType: &fuel,
		Tags:     BuildTags(refs, fuel, ""),
	}
	if refs.Variant != nil {
		candidate.VariantID = &refs.Variant.ID
	}
	if refs.Body != nil {
		candidate.BodyID = &refs.Body.ID
	}
	if refs.VariantYear != nil {
		candidate.VariantYearID = &refs.VariantYear.ID
	}
	return candidate
}

func TestMergeCreatesNewRecord(t *testing.T) {
	store := newFakeStore()
	merger := NewMerger(store)
	candidate := metadataCandidate(sampleRefs())

	outcome, err := merger.Merge(context.Background(), candidate, false)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %v, want created", outcome)
	}
	if store.metadataCount() != 1 {
		t.Fatalf("expected one stored record, got %d", store.metadataCount())
	}
}

func TestMergeSkipsExistingWithoutUpdateFlag(t *testing.T) {
	store := newFakeStore()
	merger := NewMerger(store)
	ctx := context.Background()
	candidate := metadataCandidate(sampleRefs())

	if _, err := merger.Merge(ctx, candidate, false); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}

	outcome, err := merger.Merge(ctx, candidate, false)
	if err != nil {
		t.Fatalf("second merge failed: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("outcome = %v, want skipped", outcome)
	}
	if store.updateCalls != 0 {
		t.Fatalf("skip must not touch the record, saw %d updates", store.updateCalls)
	}
}

func TestMergeUpdatesExistingWithUpdateFlag(t *testing.T) {
	store := newFakeStore()
	merger := NewMerger(store)
	ctx := context.Background()
	refs := sampleRefs()
	candidate := metadataCandidate(refs)

	if _, err := merger.Merge(ctx, candidate, false); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}

	diesel := "Diesel"
	candidate.FuelType = &diesel
	outcome, err := merger.Merge(ctx, candidate, true)
	if err != nil {
		t.Fatalf("update merge failed: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %v, want updated", outcome)
	}

	stored, ok := store.metadataByTuple(candidate.Tuple())
	if !ok {
		t.Fatalf("record disappeared after update")
	}
	if stored.FuelType == nil || *stored.FuelType != "Diesel" {
		t.Fatalf("fuel type not merged: %v", stored.FuelType)
	}
	if store.metadataCount() != 1 {
		t.Fatalf("update created an extra record")
	}
}

func TestMergeRecoversFromInsertRace(t *testing.T) {
	store := newFakeStore()
	merger := NewMerger(store)
	candidate := metadataCandidate(sampleRefs())

	store.raceOnNextCreate = true

	outcome, err := merger.Merge(context.Background(), candidate, false)
	if err != nil {
		t.Fatalf("merge should absorb the insert race: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("outcome = %v, want skipped after losing the race", outcome)
	}
	if store.metadataCount() != 1 {
		t.Fatalf("expected the racing record only, got %d", store.metadataCount())
	}
}

func TestMergeRecoversFromInsertRaceWithUpdate(t *testing.T) {
	store := newFakeStore()
	merger := NewMerger(store)
	candidate := metadataCandidate(sampleRefs())

	store.raceOnNextCreate = true

	outcome, err := merger.Merge(context.Background(), candidate, true)
	if err != nil {
		t.Fatalf("merge should absorb the insert race: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %v, want updated after losing the race", outcome)
	}
}
