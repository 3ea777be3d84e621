package service

import (
	"context"
	"sync/atomic"
	"testing"

	"dealerhub_backend/internal/ingest/coerce"
	"dealerhub_backend/internal/ingest/transport"
	"dealerhub_backend/platform/logger"
)

func testProcessor(store *fakeStore, progressEvery int) *Processor {
	return NewProcessor(NewResolver(store), NewMerger(store), logger.New("test"), progressEvery)
}

func basicConfig() OperationConfig {
	return OperationConfig{
		FieldMapping: transport.FieldMapping{
			Make:    "merk",
			Model:   "model",
			Variant: "uitvoering",
			Year:    "bouwjaar",
		},
		TotalBatches: 1,
	}
}

func TestProcessBatchDeduplicatesWithinBatch(t *testing.T) {
	store := newFakeStore()
	p := testProcessor(store, 100)

	rows := []map[string]any{
		{"merk": "Toyota", "model": "Corolla"},
		{"merk": "Toyota", "model": "Corolla"},
	}

	result := p.ProcessBatch(context.Background(), rows, basicConfig(), nil, nil)

	if result.Counts.Processed != 2 {
		t.Fatalf("processed = %d, want 2", result.Counts.Processed)
	}
	if result.Counts.Created != 1 || result.Counts.Skipped != 1 {
		t.Fatalf("created/skipped = %d/%d, want 1/1", result.Counts.Created, result.Counts.Skipped)
	}
	if result.Entities.Makes != 1 || result.Entities.Models != 1 {
		t.Fatalf("entities = %+v, want one make and one model", result.Entities)
	}
	if store.metadataCount() != 1 {
		t.Fatalf("stored records = %d, want 1", store.metadataCount())
	}
}

func TestProcessBatchSkipsRowsMissingRequiredFields(t *testing.T) {
	store := newFakeStore()
	p := testProcessor(store, 100)

	rows := []map[string]any{
		{"merk": "Toyota"},
		{"model": "Corolla"},
		{"merk": "  ", "model": "Corolla"},
	}

	result := p.ProcessBatch(context.Background(), rows, basicConfig(), nil, nil)

	if result.Counts.Skipped != 3 {
		t.Fatalf("skipped = %d, want 3", result.Counts.Skipped)
	}
	if store.makeCreates != 0 {
		t.Fatalf("skipped rows must not create entities, saw %d makes", store.makeCreates)
	}
}

func TestProcessBatchIsolatesRowErrors(t *testing.T) {
	store := newFakeStore()
	store.failVariantName = "Broken"
	p := testProcessor(store, 100)

	rows := []map[string]any{
		{"merk": "Toyota", "model": "Corolla", "uitvoering": "Comfort"},
		{"merk": "Toyota", "model": "Corolla", "uitvoering": "Broken"},
		{"merk": "Toyota", "model": "Corolla", "uitvoering": "Executive"},
	}

	result := p.ProcessBatch(context.Background(), rows, basicConfig(), nil, nil)

	if result.Counts.Processed != 3 {
		t.Fatalf("processed = %d, want 3", result.Counts.Processed)
	}
	if result.Counts.Errors != 1 {
		t.Fatalf("errors = %d, want 1", result.Counts.Errors)
	}
	if result.Counts.Created != 2 {
		t.Fatalf("created = %d, want 2", result.Counts.Created)
	}
	if len(result.Errors) != 1 || result.Errors[0].Row != 1 {
		t.Fatalf("row errors = %+v, want one error at row 1", result.Errors)
	}
}

func TestProcessBatchStopsBetweenRowsOnCancel(t *testing.T) {
	store := newFakeStore()
	p := testProcessor(store, 100)

	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"merk": "Make", "model": "Model"}
	}

	var polls atomic.Int32
	isCancelled := func() bool {
		return polls.Add(1) > 2
	}

	result := p.ProcessBatch(context.Background(), rows, basicConfig(), isCancelled, nil)

	if result.Counts.Processed != 2 {
		t.Fatalf("processed = %d, want 2 before cancellation", result.Counts.Processed)
	}
}

func TestProcessBatchEmitsProgressAtInterval(t *testing.T) {
	store := newFakeStore()
	p := testProcessor(store, 2)

	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"merk": "Make", "model": "Model"}
	}

	progress := make(chan ProgressUpdate, 8)
	updates := make([]ProgressUpdate, 0, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			updates = append(updates, update)
		}
	}()

	p.ProcessBatch(context.Background(), rows, basicConfig(), nil, progress)
	<-done

	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if updates[0].Counts.Processed != 2 || updates[1].Counts.Processed != 4 {
		t.Fatalf("update cadence wrong: %+v", updates)
	}
	if updates[1].Percent != 80 {
		t.Fatalf("percent = %v, want 80", updates[1].Percent)
	}
}

func TestProcessBatchCoercesCustomFields(t *testing.T) {
	store := newFakeStore()
	p := testProcessor(store, 100)

	cfg := basicConfig()
	cfg.FieldMapping.Custom = map[string]string{
		"towing_capacity": "Trekgewicht",
		"four_wd":         "4WD",
		"note":            "Opmerking",
	}
	cfg.TypeHints = map[string]coerce.Type{
		"Trekgewicht": coerce.TypeNumber,
		"4WD":         coerce.TypeBoolean,
	}
	source := "rdc-import"
	cfg.Options.Source = source
	cfg.BatchID = "batch-abc"
	cfg.BatchNumber = 3

	rows := []map[string]any{{
		"merk":        "Toyota",
		"model":       "Hilux",
		"Trekgewicht": "3500",
		"4WD":         "yes",
		"Opmerking":   "  dubbele cabine ",
	}}

	result := p.ProcessBatch(context.Background(), rows, cfg, nil, nil)
	if result.Counts.Created != 1 {
		t.Fatalf("created = %d, want 1 (errors: %+v)", result.Counts.Created, result.Errors)
	}

	var stored bool
	for _, m := range store.metadata {
		stored = true
		if m.CustomFields["towing_capacity"] != float64(3500) {
			t.Fatalf("towing_capacity = %v, want 3500", m.CustomFields["towing_capacity"])
		}
		if m.CustomFields["four_wd"] != true {
			t.Fatalf("four_wd = %v, want true", m.CustomFields["four_wd"])
		}
		if m.CustomFields["note"] != "dubbele cabine" {
			t.Fatalf("note = %v, want trimmed string", m.CustomFields["note"])
		}
		if m.Source == nil || *m.Source != source {
			t.Fatalf("source = %v, want %q", m.Source, source)
		}
		if m.BatchID == nil || *m.BatchID != "batch-abc" || m.BatchNumber == nil || *m.BatchNumber != 3 {
			t.Fatalf("batch provenance missing: %v %v", m.BatchID, m.BatchNumber)
		}
	}
	if !stored {
		t.Fatalf("no record stored")
	}
}

func TestProcessBatchResolvesYearScopedToVariant(t *testing.T) {
	store := newFakeStore()
	p := testProcessor(store, 100)

	rows := []map[string]any{
		{"merk": "VW", "model": "Golf", "uitvoering": "GTI", "bouwjaar": "2019"},
		{"merk": "VW", "model": "Golf", "uitvoering": "GTI", "bouwjaar": 2019.0},
	}

	result := p.ProcessBatch(context.Background(), rows, basicConfig(), nil, nil)

	if result.Entities.VariantYears != 1 {
		t.Fatalf("variant years = %d, want 1", result.Entities.VariantYears)
	}
	if result.Counts.Created != 1 || result.Counts.Skipped != 1 {
		t.Fatalf("created/skipped = %d/%d, want 1/1", result.Counts.Created, result.Counts.Skipped)
	}
}
