package ingest

import (
	"errors"
	"testing"

	"dealerhub_backend/internal/ingest/transport"
	"dealerhub_backend/platform/apperr"
)

func TestRejectionPayloadCarriesErrorKind(t *testing.T) {
	err := apperr.Conflict("batch out of sequence: got 3, expected 2")

	payload := rejectionPayload("", "invalid payload", err)
	if payload.Code != "conflict" {
		t.Fatalf("code = %q, want conflict", payload.Code)
	}
	if payload.Message != "batch out of sequence: got 3, expected 2" {
		t.Fatalf("message = %q", payload.Message)
	}

	payload = rejectionPayload("", "invalid payload", apperr.Validation("totalBatches must be at least 1"))
	if payload.Code != "validation" {
		t.Fatalf("code = %q, want validation", payload.Code)
	}
}

func TestRejectionPayloadFallsBackForUntypedErrors(t *testing.T) {
	payload := rejectionPayload("", "invalid payload", errors.New("unexpected end of JSON input"))
	if payload.Code != "bad_request" {
		t.Fatalf("code = %q, want bad_request", payload.Code)
	}
	if payload.Message != "invalid payload" {
		t.Fatalf("message = %q, want the fallback", payload.Message)
	}
}

func TestSessionQueueRefusesWhenFullOrClosed(t *testing.T) {
	state := &sessionState{batches: make(chan transport.UploadBatchPayload, 1)}

	if !state.enqueue(transport.UploadBatchPayload{BatchNumber: 1}) {
		t.Fatalf("first batch must be accepted")
	}
	if state.enqueue(transport.UploadBatchPayload{BatchNumber: 2}) {
		t.Fatalf("a full queue must refuse the batch")
	}

	drained := <-state.batches
	if drained.BatchNumber != 1 {
		t.Fatalf("drained batch %d, want 1", drained.BatchNumber)
	}

	state.close()
	state.close() // idempotent
	if state.enqueue(transport.UploadBatchPayload{BatchNumber: 2}) {
		t.Fatalf("a closed session must refuse the batch")
	}
}
