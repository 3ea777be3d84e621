package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dealerhub_backend/internal/events"
	"dealerhub_backend/internal/ingest/coerce"
	"dealerhub_backend/internal/ingest/transport"
	"dealerhub_backend/platform/apperr"
	"dealerhub_backend/platform/config"
	"dealerhub_backend/platform/logger"
	"dealerhub_backend/platform/validator"

	"github.com/google/uuid"
)

const (
	opStartUpload = "ingest.coordinator.start_upload"
	opSubmitBatch = "ingest.coordinator.submit_batch"
	opCancel      = "ingest.coordinator.cancel"
	opStatus      = "ingest.coordinator.status"
)

// Session identifies the authenticated owner of a realtime connection.
type Session struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// Emitter delivers protocol events to the connection owning a session.
// Implemented by the session supervisor; injected so the coordinator never
// touches the websocket layer.
type Emitter interface {
	Emit(sessionID uuid.UUID, event string, payload any)
}

// CompletionRecord is the audit entry written once per finished operation.
type CompletionRecord struct {
	BatchID      string
	TenantID     uuid.UUID
	UserID       uuid.UUID
	TotalRows    int
	Created      int
	Updated      int
	Skipped      int
	Errors       int
	DurationMS   int64
	SourceFileID string
}

// CompletionRecorder receives the audit record of a completed operation.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, record CompletionRecord) error
}

// Coordinator owns per-session operation state: configuration, batch
// sequencing, cumulative results, and the status machine. State is an
// explicit session-scoped store; nothing lives in package globals.
type Coordinator struct {
	mu      sync.Mutex
	ops     map[uuid.UUID]*Operation // keyed by session id
	byBatch map[string]*Operation    // secondary index for status lookups

	processor *Processor
	emitter   Emitter
	audit     CompletionRecorder
	bus       events.Bus
	val       *validator.Validator
	log       *logger.Logger
	cfg       config.IngestConfig
}

// NewCoordinator creates the coordinator. audit and bus may be nil in tests.
func NewCoordinator(processor *Processor, emitter Emitter, audit CompletionRecorder, bus events.Bus, val *validator.Validator, log *logger.Logger, cfg config.IngestConfig) *Coordinator {
	return &Coordinator{
		ops:       make(map[uuid.UUID]*Operation),
		byBatch:   make(map[string]*Operation),
		processor: processor,
		emitter:   emitter,
		audit:     audit,
		bus:       bus,
		val:       val,
		log:       log,
		cfg:       cfg,
	}
}

// AttachEmitter wires the outbound event sink. The session supervisor needs
// the coordinator at construction time and vice versa; the module wires the
// emitter second, before any connection is served.
func (c *Coordinator) AttachEmitter(emitter Emitter) {
	c.emitter = emitter
}

// StartUpload validates the configuration and creates the operation in the
// initialized state. An invalid configuration creates no state at all.
func (c *Coordinator) StartUpload(ctx context.Context, sess Session, payload transport.UploadConfigPayload) error {
	if err := c.val.Struct(payload); err != nil {
		if payload.FieldMapping.Make == "" || payload.FieldMapping.Model == "" {
			return apperr.Validation("make and model field mappings are required").WithOp(opStartUpload)
		}
		if payload.TotalBatches < 1 {
			return apperr.Validation("totalBatches must be at least 1").WithOp(opStartUpload)
		}
		return apperr.Wrap(apperr.KindValidation, "invalid upload configuration", err).WithOp(opStartUpload)
	}
	hints := make(map[string]coerce.Type, len(payload.TypeHints))
	for column, hint := range payload.TypeHints {
		hints[column] = coerce.ParseType(hint)
	}

	op := &Operation{
		BatchID:   uuid.NewString(),
		SessionID: sess.ID,
		UserID:    sess.UserID,
		TenantID:  sess.TenantID,
		Config: OperationConfig{
			FieldMapping: payload.FieldMapping,
			TypeHints:    hints,
			Options:      payload.Options,
			TotalRecords: payload.TotalRecords,
			TotalBatches: payload.TotalBatches,
			TenantID:     sess.TenantID,
			CreatedBy:    sess.UserID,
		},
		Status:    StatusInitialized,
		StartedAt: time.Now(),
	}
	op.Config.BatchID = op.BatchID

	c.mu.Lock()
	if existing, ok := c.ops[sess.ID]; ok && !existing.Status.Terminal() {
		c.mu.Unlock()
		return apperr.Conflict("an upload is already in progress on this connection").WithOp(opStartUpload)
	}
	c.ops[sess.ID] = op
	c.byBatch[op.BatchID] = op
	c.mu.Unlock()

	c.log.UploadEvent("upload_started", op.BatchID, 0)
	c.emit(sess.ID, transport.EventUploadStarted, transport.UploadStartedPayload{
		BatchID:      op.BatchID,
		TotalRecords: payload.TotalRecords,
		TotalBatches: payload.TotalBatches,
	})
	return nil
}

// SubmitBatch validates sequencing, processes the rows, accumulates results,
// and emits the per-batch and cumulative progress events. Precondition
// failures reject the whole batch before any row is touched and leave both
// currentBatch and the store unchanged.
func (c *Coordinator) SubmitBatch(ctx context.Context, sessionID uuid.UUID, payload transport.UploadBatchPayload) error {
	if max := c.cfg.GetMaxBatchRows(); max > 0 && len(payload.Data) > max {
		return apperr.Validation(fmt.Sprintf("batch exceeds the %d row limit", max)).WithOp(opSubmitBatch)
	}

	c.mu.Lock()
	op, ok := c.ops[sessionID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("no upload operation for this connection").WithOp(opSubmitBatch)
	}
	if op.Status == StatusCancelled || op.CancelRequested() {
		c.mu.Unlock()
		return apperr.Conflict("upload has been cancelled").WithOp(opSubmitBatch)
	}
	if op.Status.Terminal() {
		c.mu.Unlock()
		return apperr.Conflict(fmt.Sprintf("upload already %s", op.Status)).WithOp(opSubmitBatch)
	}
	if payload.BatchNumber != op.CurrentBatch+1 {
		expected := op.CurrentBatch + 1
		c.mu.Unlock()
		return apperr.Conflict(fmt.Sprintf("batch out of sequence: got %d, expected %d", payload.BatchNumber, expected)).
			WithOp(opSubmitBatch).
			WithDetails(map[string]int{"expected": expected, "received": payload.BatchNumber})
	}

	// Accepted: sequence advances before processing completes.
	op.CurrentBatch = payload.BatchNumber
	op.Status = StatusProcessing
	op.inFlight = true
	c.mu.Unlock()

	c.log.UploadEvent("batch_accepted", op.BatchID, payload.BatchNumber)
	c.emit(sessionID, transport.EventBatchStart, transport.BatchStartPayload{
		BatchID:     op.BatchID,
		BatchNumber: payload.BatchNumber,
		Size:        len(payload.Data),
	})

	result, failure := c.runBatch(ctx, op, payload)

	c.mu.Lock()
	op.Totals.Processed += result.Counts.Processed
	op.Totals.Created += result.Counts.Created
	op.Totals.Updated += result.Counts.Updated
	op.Totals.Skipped += result.Counts.Skipped
	op.Totals.Errors += result.Counts.Errors
	op.Entities.Makes += result.Entities.Makes
	op.Entities.Models += result.Entities.Models
	op.Entities.Variants += result.Entities.Variants
	op.Entities.Bodies += result.Entities.Bodies
	op.Entities.VariantYears += result.Entities.VariantYears
	op.inFlight = false
	cancelled := op.CancelRequested()
	totals := op.Totals
	c.mu.Unlock()

	// The acknowledgment contract: every accepted batch gets exactly one
	// batch_complete, even when processing blew up or was cancelled midway.
	c.emit(sessionID, transport.EventBatchComplete, transport.BatchCompletePayload{
		BatchID:     op.BatchID,
		BatchNumber: payload.BatchNumber,
		Counts:      result.Counts,
		RowErrors:   result.Errors,
		Failed:      failure != nil,
	})

	if failure != nil {
		c.finish(ctx, op, StatusFailed, failure.Error())
		return nil
	}
	if cancelled {
		c.finish(ctx, op, StatusCancelled, "")
		return nil
	}

	c.emit(sessionID, transport.EventUploadProgress, transport.UploadProgressPayload{
		BatchID:          op.BatchID,
		Percent:          percent(payload.BatchNumber, op.Config.TotalBatches),
		Counts:           totals,
		CurrentBatch:     payload.BatchNumber,
		TotalBatches:     op.Config.TotalBatches,
		EstimatedSecLeft: float64(op.Config.TotalBatches-payload.BatchNumber) * c.cfg.GetBatchETAEstimate().Seconds(),
	})

	if payload.BatchNumber == op.Config.TotalBatches {
		c.finish(ctx, op, StatusCompleted, "")
	}
	return nil
}

// runBatch isolates the processing call so that a panic outside the per-row
// boundary (corrupt configuration, broken store wiring) degrades to a failed
// batch instead of killing the connection's read loop.
func (c *Coordinator) runBatch(ctx context.Context, op *Operation, payload transport.UploadBatchPayload) (result BatchResult, failure error) {
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Errorf("batch processing failed: %v", r)
			result.Counts.Processed = len(payload.Data)
			result.Counts.Errors = len(payload.Data)
		}
	}()

	progress := make(chan ProgressUpdate, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			c.emit(op.SessionID, transport.EventBatchProgress, transport.BatchProgressPayload{
				BatchID:     op.BatchID,
				BatchNumber: op.CurrentBatch,
				Counts:      update.Counts,
				Percent:     update.Percent,
			})
		}
	}()

	cfg := op.Config
	cfg.BatchNumber = payload.BatchNumber
	result = c.processor.ProcessBatch(ctx, payload.Data, cfg, op.CancelRequested, progress)
	<-done
	return result, nil
}

// Cancel requests cooperative cancellation. A batch already running finishes
// its in-flight row and stops; if nothing is running the operation
// transitions immediately.
func (c *Coordinator) Cancel(ctx context.Context, sessionID uuid.UUID, batchID string) error {
	c.mu.Lock()
	op, ok := c.ops[sessionID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("no upload operation for this connection").WithOp(opCancel)
	}
	if batchID != "" && batchID != op.BatchID {
		c.mu.Unlock()
		return apperr.BadRequest("batchId does not match the active upload").WithOp(opCancel)
	}
	if op.Status.Terminal() {
		c.mu.Unlock()
		return apperr.Conflict(fmt.Sprintf("upload already %s", op.Status)).WithOp(opCancel)
	}

	op.RequestCancel()
	idle := !op.inFlight
	c.mu.Unlock()

	if idle {
		// No batch in flight, whether before the first batch or between two;
		// emit the terminal event right away. A batch being processed notices
		// the flag and SubmitBatch finishes the operation instead.
		c.finish(ctx, op, StatusCancelled, "")
	}
	return nil
}

// StatusBySession answers get_upload_status for the session's operation.
func (c *Coordinator) StatusBySession(sessionID uuid.UUID) (transport.UploadStatusPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.ops[sessionID]
	if !ok {
		return transport.UploadStatusPayload{}, apperr.NotFound("no upload operation for this connection").WithOp(opStatus)
	}
	return op.Snapshot(), nil
}

// StatusByBatchID answers late status polling, including during the
// post-disconnect grace window. Scoped to the requesting user's tenant.
func (c *Coordinator) StatusByBatchID(batchID string, tenantID uuid.UUID) (transport.UploadStatusPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.byBatch[batchID]
	if !ok {
		return transport.UploadStatusPayload{}, apperr.Gone("upload state no longer available").WithOp(opStatus)
	}
	if op.TenantID != tenantID {
		return transport.UploadStatusPayload{}, apperr.Forbidden("upload belongs to another company").WithOp(opStatus)
	}
	return op.Snapshot(), nil
}

// HandleDisconnect parks a live operation as disconnected and schedules its
// eviction after the grace window, keeping late status queries answerable.
func (c *Coordinator) HandleDisconnect(sessionID uuid.UUID) {
	c.mu.Lock()
	op, ok := c.ops[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if !op.Status.Terminal() {
		op.Status = StatusDisconnected
		c.log.UploadEvent("upload_disconnected", op.BatchID, op.CurrentBatch)
	}
	c.mu.Unlock()

	grace := c.cfg.GetDisconnectGrace()
	time.AfterFunc(grace, func() {
		c.evict(sessionID, op.BatchID)
	})
}

func (c *Coordinator) evict(sessionID uuid.UUID, batchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if op, ok := c.ops[sessionID]; ok && op.BatchID == batchID {
		delete(c.ops, sessionID)
	}
	if op, ok := c.byBatch[batchID]; ok && op.BatchID == batchID {
		delete(c.byBatch, batchID)
		c.log.UploadEvent("upload_state_evicted", batchID, op.CurrentBatch)
	}
}

// finish applies a terminal transition and emits exactly one terminal event.
func (c *Coordinator) finish(ctx context.Context, op *Operation, status Status, reason string) {
	c.mu.Lock()
	if op.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	op.Status = status
	totals := op.Totals
	entities := op.Entities
	duration := time.Since(op.StartedAt)
	c.mu.Unlock()

	c.log.UploadEvent("upload_"+string(status), op.BatchID, op.CurrentBatch)

	switch status {
	case StatusCompleted:
		if c.audit != nil {
			record := CompletionRecord{
				BatchID:      op.BatchID,
				TenantID:     op.TenantID,
				UserID:       op.UserID,
				TotalRows:    totals.Processed,
				Created:      totals.Created,
				Updated:      totals.Updated,
				Skipped:      totals.Skipped,
				Errors:       totals.Errors,
				DurationMS:   duration.Milliseconds(),
				SourceFileID: op.Config.Options.SourceFileID,
			}
			if err := c.audit.RecordCompletion(ctx, record); err != nil {
				c.log.Error("completion audit record failed", "batch_id", op.BatchID, "error", err)
			}
		}
		if c.bus != nil {
			c.bus.Publish(ctx, events.UploadCompleted{
				BaseEvent:  events.NewBaseEvent(),
				BatchID:    op.BatchID,
				TenantID:   op.TenantID,
				UserID:     op.UserID,
				TotalRows:  totals.Processed,
				Created:    totals.Created,
				Updated:    totals.Updated,
				Skipped:    totals.Skipped,
				ErrorCount: totals.Errors,
				Duration:   duration,
			})
		}
		c.emit(op.SessionID, transport.EventUploadCompleted, transport.UploadCompletedPayload{
			BatchID:         op.BatchID,
			Counts:          totals,
			CreatedEntities: entities,
			DurationMS:      duration.Milliseconds(),
		})
	case StatusCancelled:
		if c.bus != nil {
			c.bus.Publish(ctx, events.UploadCancelled{
				BaseEvent: events.NewBaseEvent(),
				BatchID:   op.BatchID,
				TenantID:  op.TenantID,
				UserID:    op.UserID,
			})
		}
		c.emit(op.SessionID, transport.EventUploadCancelled, transport.UploadCancelledPayload{
			BatchID: op.BatchID,
			Counts:  totals,
		})
	case StatusFailed:
		if c.bus != nil {
			c.bus.Publish(ctx, events.UploadFailed{
				BaseEvent: events.NewBaseEvent(),
				BatchID:   op.BatchID,
				TenantID:  op.TenantID,
				UserID:    op.UserID,
				Reason:    reason,
			})
		}
		c.emit(op.SessionID, transport.EventUploadError, transport.UploadErrorPayload{
			BatchID: op.BatchID,
			Message: reason,
		})
	}

	// Terminal state stays queryable for the grace window, then gets
	// reclaimed even if the connection never drops.
	time.AfterFunc(c.cfg.GetDisconnectGrace(), func() {
		c.evict(op.SessionID, op.BatchID)
	})
}

func (c *Coordinator) emit(sessionID uuid.UUID, event string, payload any) {
	if c.emitter != nil {
		c.emitter.Emit(sessionID, event, payload)
	}
}
