package service

import (
	"context"
	"fmt"

	"dealerhub_backend/internal/ingest/coerce"
	"dealerhub_backend/internal/ingest/repository"
	"dealerhub_backend/internal/ingest/transport"
	"dealerhub_backend/platform/logger"

	"github.com/google/uuid"
)

// ProgressUpdate is the message the processor yields while working through a
// batch. The progress emitter consumes these and forwards them to the owning
// connection; the processor itself never touches the transport.
type ProgressUpdate struct {
	Counts  transport.ResultCounts
	Percent float64
}

// BatchResult is the outcome of processing one batch.
type BatchResult struct {
	Counts   transport.ResultCounts
	Errors   []transport.RowError
	Entities transport.EntityCounts
}

// Processor drives the resolver and merger over one batch of rows. Rows are
// processed strictly sequentially: two rows in the same batch referencing the
// same new entity must not race each other into duplicate creation attempts.
type Processor struct {
	resolver      *Resolver
	merger        *Merger
	log           *logger.Logger
	progressEvery int
}

// NewProcessor creates a batch processor. progressEvery is the number of
// successfully processed rows between progress updates.
func NewProcessor(resolver *Resolver, merger *Merger, log *logger.Logger, progressEvery int) *Processor {
	if progressEvery < 1 {
		progressEvery = 10
	}
	return &Processor{
		resolver:      resolver,
		merger:        merger,
		log:           log,
		progressEvery: progressEvery,
	}
}

// ProcessBatch runs every row through resolution, coercion, and merging.
// A failing row is recorded and processing continues; only the surrounding
// machinery (corrupt config, dead store on every call) aborts a batch, and
// that is the caller's concern. Cancellation is polled between rows via
// isCancelled. When progress is non-nil it is closed before returning.
func (p *Processor) ProcessBatch(
	ctx context.Context,
	rows []map[string]any,
	cfg OperationConfig,
	isCancelled func() bool,
	progress chan<- ProgressUpdate,
) BatchResult {
	if progress != nil {
		defer close(progress)
	}

	var result BatchResult
	okSinceEmit := 0

	for i, row := range rows {
		if isCancelled != nil && isCancelled() {
			break
		}

		result.Counts.Processed++
		if err := p.processRow(ctx, row, cfg, &result); err != nil {
			result.Counts.Errors++
			result.Errors = append(result.Errors, transport.RowError{Row: i, Message: err.Error()})
			continue
		}

		okSinceEmit++
		if progress != nil && okSinceEmit >= p.progressEvery {
			okSinceEmit = 0
			progress <- ProgressUpdate{
				Counts:  result.Counts,
				Percent: percent(result.Counts.Processed, len(rows)),
			}
		}
	}

	return result
}

// processRow handles one row. Panics inside resolution or merging are
// converted to row errors so one pathological row cannot take down the batch.
func (p *Processor) processRow(ctx context.Context, row map[string]any, cfg OperationConfig, result *BatchResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("row panic: %v", r)
		}
	}()

	mapping := cfg.FieldMapping

	makeName := stringField(row, mapping.Make)
	modelName := stringField(row, mapping.Model)
	if makeName == "" || modelName == "" {
		// Required fields missing: counted, no entity side effects.
		result.Counts.Skipped++
		return nil
	}

	updateExisting := cfg.Options.UpdateExisting

	makeRes, err := p.resolver.ResolveMake(ctx, makeName, updateExisting)
	if err != nil {
		return err
	}
	if makeRes.Created {
		result.Entities.Makes++
	}

	modelRes, err := p.resolver.ResolveModel(ctx, makeRes.Entity.ID, modelName, updateExisting)
	if err != nil {
		return err
	}
	if modelRes.Created {
		result.Entities.Models++
	}

	refs := ResolvedRefs{Make: makeRes.Entity, Model: modelRes.Entity}

	if name := stringField(row, mapping.Variant); name != "" {
		variantRes, err := p.resolver.ResolveVariant(ctx, modelRes.Entity.ID, name, updateExisting)
		if err != nil {
			return err
		}
		if variantRes.Created {
			result.Entities.Variants++
		}
		refs.Variant = &variantRes.Entity
	}

	if name := stringField(row, mapping.Body); name != "" {
		bodyRes, err := p.resolver.ResolveBody(ctx, name, updateExisting)
		if err != nil {
			return err
		}
		if bodyRes.Created {
			result.Entities.Bodies++
		}
		refs.Body = &bodyRes.Entity
	}

	if mapping.Year != "" {
		if year, ok := coerce.Convert(row[mapping.Year], coerce.TypeInteger).(int); ok && year > 0 {
			var variantID *uuid.UUID
			if refs.Variant != nil {
				variantID = &refs.Variant.ID
			}
			yearRes, err := p.resolver.ResolveVariantYear(ctx, modelRes.Entity.ID, variantID, year)
			if err != nil {
				return err
			}
			if yearRes.Created {
				result.Entities.VariantYears++
			}
			refs.VariantYear = &yearRes.Entity
		}
	}

	candidate := buildCandidate(row, cfg, refs)

	outcome, err := p.merger.Merge(ctx, candidate, updateExisting)
	if err != nil {
		return err
	}
	switch outcome {
	case OutcomeCreated:
		result.Counts.Created++
	case OutcomeUpdated:
		result.Counts.Updated++
	case OutcomeSkipped:
		result.Counts.Skipped++
	}
	return nil
}

func buildCandidate(row map[string]any, cfg OperationConfig, refs ResolvedRefs) repository.VehicleMetadata {
	mapping := cfg.FieldMapping

	candidate := repository.VehicleMetadata{
		MakeID:  refs.Make.ID,
		ModelID: refs.Model.ID,
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

	fuelType := stringField(row, mapping.FuelType)
	transmission := stringField(row, mapping.Transmission)
	if fuelType != "" {
		candidate.FuelType = &fuelType
	}
	if transmission != "" {
		candidate.Transmission = &transmission
	}
	if v, ok := coerce.Convert(valueAt(row, mapping.EngineCapacity), coerce.TypeNumber).(float64); ok {
		candidate.EngineCapacity = &v
	}
	if v, ok := coerce.Convert(valueAt(row, mapping.Power), coerce.TypeNumber).(float64); ok {
		candidate.Power = &v
	}
	if v, ok := coerce.Convert(valueAt(row, mapping.Torque), coerce.TypeNumber).(float64); ok {
		candidate.Torque = &v
	}
	if v, ok := coerce.Convert(valueAt(row, mapping.SeatingCapacity), coerce.TypeInteger).(int); ok {
		candidate.SeatingCapacity = &v
	}

	if len(mapping.Custom) > 0 {
		custom := make(map[string]any, len(mapping.Custom))
		for target, column := range mapping.Custom {
			hint := cfg.TypeHints[column]
			if hint == "" {
				hint = coerce.TypeString
			}
			// Coercion failures degrade to nil and drop the field.
			if v := coerce.Convert(valueAt(row, column), hint); v != nil {
				custom[target] = v
			}
		}
		if len(custom) > 0 {
			candidate.CustomFields = custom
		}
	}

	candidate.Tags = BuildTags(refs, fuelType, transmission)

	if cfg.Options.Source != "" {
		source := cfg.Options.Source
		candidate.Source = &source
	}
	if cfg.BatchID != "" {
		batchID := cfg.BatchID
		batchNumber := cfg.BatchNumber
		candidate.BatchID = &batchID
		candidate.BatchNumber = &batchNumber
	}
	if cfg.TenantID != uuid.Nil {
		tenantID := cfg.TenantID
		candidate.TenantID = &tenantID
	}
	if cfg.CreatedBy != uuid.Nil {
		createdBy := cfg.CreatedBy
		candidate.CreatedBy = &createdBy
	}

	return candidate
}

func stringField(row map[string]any, column string) string {
	if column == "" {
		return ""
	}
	v, _ := coerce.Convert(row[column], coerce.TypeString).(string)
	return v
}

func valueAt(row map[string]any, column string) any {
	if column == "" {
		return nil
	}
	return row[column]
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
