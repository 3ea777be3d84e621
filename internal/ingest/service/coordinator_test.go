package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"dealerhub_backend/internal/ingest/transport"
	"dealerhub_backend/platform/apperr"
	"dealerhub_backend/platform/logger"
	"dealerhub_backend/platform/validator"

	"github.com/google/uuid"
)

type emittedEvent struct {
	SessionID uuid.UUID
	Event     string
	Payload   any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (e *fakeEmitter) Emit(sessionID uuid.UUID, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emittedEvent{SessionID: sessionID, Event: event, Payload: payload})
}

func (e *fakeEmitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Event
	}
	return out
}

func (e *fakeEmitter) count(event string) int {
	n := 0
	for _, name := range e.names() {
		if name == event {
			n++
		}
	}
	return n
}

func (e *fakeEmitter) last(event string) (emittedEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].Event == event {
			return e.events[i], true
		}
	}
	return emittedEvent{}, false
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []CompletionRecord
}

func (r *fakeRecorder) RecordCompletion(_ context.Context, record CompletionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

type testIngestConfig struct {
	grace   time.Duration
	eta     time.Duration
	every   int
	maxRows int
}

func (c testIngestConfig) GetProgressRowInterval() int       { return c.every }
func (c testIngestConfig) GetDisconnectGrace() time.Duration { return c.grace }
func (c testIngestConfig) GetBatchETAEstimate() time.Duration {
	return c.eta
}
func (c testIngestConfig) GetMaxBatchRows() int { return c.maxRows }

func newTestCoordinator(store *fakeStore, recorder *fakeRecorder, grace time.Duration) (*Coordinator, *fakeEmitter) {
	emitter := &fakeEmitter{}
	cfg := testIngestConfig{grace: grace, eta: 2 * time.Second, every: 100, maxRows: 1000}
	var audit CompletionRecorder
	if recorder != nil {
		audit = recorder
	}
	coordinator := NewCoordinator(testProcessor(store, 100), emitter, audit, nil, validator.New(), logger.New("test"), cfg)
	return coordinator, emitter
}

func startConfig(totalBatches, totalRecords int) transport.UploadConfigPayload {
	return transport.UploadConfigPayload{
		FieldMapping: transport.FieldMapping{Make: "merk", Model: "model"},
		TotalRecords: totalRecords,
		TotalBatches: totalBatches,
	}
}

func testSession() Session {
	return Session{ID: uuid.New(), UserID: uuid.New(), TenantID: uuid.New()}
}

func TestStartUploadRequiresMakeAndModelMapping(t *testing.T) {
	coordinator, _ := newTestCoordinator(newFakeStore(), nil, time.Minute)
	sess := testSession()

	payload := startConfig(1, 1)
	payload.FieldMapping.Model = ""

	err := coordinator.StartUpload(context.Background(), sess, payload)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := coordinator.StatusBySession(sess.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("invalid configuration must create no state, got %v", err)
	}
}

func TestStartUploadRejectsSecondActiveUpload(t *testing.T) {
	coordinator, _ := newTestCoordinator(newFakeStore(), nil, time.Minute)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(2, 4)); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := coordinator.StartUpload(ctx, sess, startConfig(1, 1)); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUploadLifecycleCompletes(t *testing.T) {
	store := newFakeStore()
	recorder := &fakeRecorder{}
	coordinator, emitter := newTestCoordinator(store, recorder, time.Minute)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(2, 2)); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	batches := []transport.UploadBatchPayload{
		{BatchNumber: 1, TotalBatches: 2, Data: []map[string]any{{"merk": "Toyota", "model": "Corolla"}}},
		{BatchNumber: 2, TotalBatches: 2, Data: []map[string]any{{"merk": "Toyota", "model": "Camry"}}},
	}
	for _, batch := range batches {
		if err := coordinator.SubmitBatch(ctx, sess.ID, batch); err != nil {
			t.Fatalf("batch %d failed: %v", batch.BatchNumber, err)
		}
	}

	if got := emitter.count(transport.EventBatchComplete); got != 2 {
		t.Fatalf("batch_complete emitted %d times, want 2", got)
	}
	if got := emitter.count(transport.EventUploadCompleted); got != 1 {
		t.Fatalf("upload_completed emitted %d times, want 1", got)
	}

	completed, ok := emitter.last(transport.EventUploadCompleted)
	if !ok {
		t.Fatalf("no upload_completed event")
	}
	payload := completed.Payload.(transport.UploadCompletedPayload)
	if payload.Counts.Processed != 2 || payload.Counts.Created != 2 {
		t.Fatalf("completed counts = %+v, want 2 processed 2 created", payload.Counts)
	}

	if len(recorder.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(recorder.records))
	}
	record := recorder.records[0]
	if record.TotalRows != 2 || record.Created != 2 || record.TenantID != sess.TenantID {
		t.Fatalf("audit record = %+v", record)
	}

	status, err := coordinator.StatusBySession(sess.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Status != string(StatusCompleted) {
		t.Fatalf("status = %s, want completed", status.Status)
	}
}

func TestBatchOutOfSequenceRejected(t *testing.T) {
	store := newFakeStore()
	coordinator, emitter := newTestCoordinator(store, nil, time.Minute)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(3, 3)); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	row := []map[string]any{{"merk": "Kia", "model": "Rio"}}

	if err := coordinator.SubmitBatch(ctx, sess.ID, transport.UploadBatchPayload{BatchNumber: 2, Data: row}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for skipped batch, got %v", err)
	}
	if err := coordinator.SubmitBatch(ctx, sess.ID, transport.UploadBatchPayload{BatchNumber: 1, Data: row}); err != nil {
		t.Fatalf("batch 1 failed: %v", err)
	}

	// A duplicate of an accepted batch is rejected whole: no rows touched,
	// no acknowledgment emitted.
	before := emitter.count(transport.EventBatchComplete)
	if err := coordinator.SubmitBatch(ctx, sess.ID, transport.UploadBatchPayload{BatchNumber: 1, Data: row}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for duplicate batch, got %v", err)
	}
	if after := emitter.count(transport.EventBatchComplete); after != before {
		t.Fatalf("duplicate batch produced an acknowledgment")
	}

	status, err := coordinator.StatusBySession(sess.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Counts.Processed != 1 {
		t.Fatalf("duplicate batch was processed: %+v", status.Counts)
	}
	if status.CurrentBatch != 1 {
		t.Fatalf("currentBatch = %d, want 1", status.CurrentBatch)
	}
}

func TestCancelBeforeProcessingEmitsTerminalEvent(t *testing.T) {
	coordinator, emitter := newTestCoordinator(newFakeStore(), nil, time.Minute)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(2, 2)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := coordinator.Cancel(ctx, sess.ID, ""); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if got := emitter.count(transport.EventUploadCancelled); got != 1 {
		t.Fatalf("upload_cancelled emitted %d times, want 1", got)
	}

	err := coordinator.SubmitBatch(ctx, sess.ID, transport.UploadBatchPayload{BatchNumber: 1, Data: []map[string]any{{"merk": "a", "model": "b"}}})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict after cancellation, got %v", err)
	}
}

func TestCancelBetweenBatchesEmitsTerminalEvent(t *testing.T) {
	coordinator, emitter := newTestCoordinator(newFakeStore(), nil, time.Minute)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(3, 3)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	row := []map[string]any{{"merk": "Toyota", "model": "Yaris"}}
	if err := coordinator.SubmitBatch(ctx, sess.ID, transport.UploadBatchPayload{BatchNumber: 1, Data: row}); err != nil {
		t.Fatalf("batch 1 failed: %v", err)
	}

	// Nothing is in flight between two batches; the cancel must transition
	// and emit the terminal event without waiting for another submission.
	if err := coordinator.Cancel(ctx, sess.ID, ""); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if got := emitter.count(transport.EventUploadCancelled); got != 1 {
		t.Fatalf("upload_cancelled emitted %d times, want 1", got)
	}
	status, err := coordinator.StatusBySession(sess.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Status != string(StatusCancelled) {
		t.Fatalf("status = %s, want cancelled", status.Status)
	}

	if err := coordinator.SubmitBatch(ctx, sess.ID, transport.UploadBatchPayload{BatchNumber: 2, Data: row}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict after cancellation, got %v", err)
	}
	if got := emitter.count(transport.EventUploadCancelled); got != 1 {
		t.Fatalf("second terminal event emitted")
	}
}

func TestTerminalStateEvictedAfterGrace(t *testing.T) {
	coordinator, _ := newTestCoordinator(newFakeStore(), nil, 20*time.Millisecond)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(1, 1)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	status, err := coordinator.StatusBySession(sess.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	batchID := status.BatchID

	row := []map[string]any{{"merk": "Toyota", "model": "Aygo"}}
	if err := coordinator.SubmitBatch(ctx, sess.ID, transport.UploadBatchPayload{BatchNumber: 1, Data: row}); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	// The connection stays up; the completed state must still be reclaimed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := coordinator.StatusByBatchID(batchID, sess.TenantID); apperr.Is(err, apperr.KindGone) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("completed state not evicted after grace window")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := coordinator.StatusBySession(sess.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected session state to be gone, got %v", err)
	}
}

func TestCancelRejectsMismatchedBatchID(t *testing.T) {
	coordinator, _ := newTestCoordinator(newFakeStore(), nil, time.Minute)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(1, 1)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := coordinator.Cancel(ctx, sess.ID, "not-the-batch"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestBatchExceedingRowLimitRejected(t *testing.T) {
	store := newFakeStore()
	emitter := &fakeEmitter{}
	cfg := testIngestConfig{grace: time.Minute, eta: time.Second, every: 100, maxRows: 2}
	coordinator := NewCoordinator(testProcessor(store, 100), emitter, nil, nil, validator.New(), logger.New("test"), cfg)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(1, 3)); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	rows := make([]map[string]any, 3)
	for i := range rows {
		rows[i] = map[string]any{"merk": "a", "model": "b"}
	}
	err := coordinator.SubmitBatch(ctx, sess.ID, transport.UploadBatchPayload{BatchNumber: 1, Data: rows})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDisconnectParksStateThenEvicts(t *testing.T) {
	coordinator, _ := newTestCoordinator(newFakeStore(), nil, 20*time.Millisecond)
	sess := testSession()
	ctx := context.Background()

	if err := coordinator.StartUpload(ctx, sess, startConfig(2, 2)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	status, err := coordinator.StatusBySession(sess.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	batchID := status.BatchID

	coordinator.HandleDisconnect(sess.ID)

	parked, err := coordinator.StatusByBatchID(batchID, sess.TenantID)
	if err != nil {
		t.Fatalf("status during grace window failed: %v", err)
	}
	if parked.Status != string(StatusDisconnected) {
		t.Fatalf("status = %s, want disconnected", parked.Status)
	}

	if _, err := coordinator.StatusByBatchID(batchID, uuid.New()); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for foreign tenant, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := coordinator.StatusByBatchID(batchID, sess.TenantID); apperr.Is(err, apperr.KindGone) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state not evicted after grace window")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
