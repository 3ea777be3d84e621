package scheduler

import (
	"context"
	"strings"
	"testing"

	"dealerhub_backend/internal/ingest/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

type testSchedulerConfig struct {
	url string
}

func (c testSchedulerConfig) GetRedisURL() string       { return c.url }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string { return "ingest-test" }
func (c testSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Fatalf("expected error without redis url")
	}
}

func TestRecordCompletionEnqueuesTask(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(testSchedulerConfig{url: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("client init failed: %v", err)
	}
	defer client.Close()

	record := service.CompletionRecord{
		BatchID:    uuid.NewString(),
		TenantID:   uuid.New(),
		UserID:     uuid.New(),
		TotalRows:  120,
		Created:    80,
		Updated:    30,
		Skipped:    10,
		DurationMS: 4200,
	}
	if err := client.RecordCompletion(context.Background(), record); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	var enqueued bool
	for _, key := range mr.Keys() {
		if strings.Contains(key, "ingest-test") {
			enqueued = true
			break
		}
	}
	if !enqueued {
		t.Fatalf("no task landed on the ingest-test queue, keys: %v", mr.Keys())
	}
}

func TestIngestAuditRecordTaskRoundTrip(t *testing.T) {
	payload := IngestAuditRecordPayload{
		BatchID:    "batch-1",
		TenantID:   uuid.NewString(),
		UserID:     uuid.NewString(),
		TotalRows:  10,
		Created:    7,
		Skipped:    3,
		DurationMS: 900,
	}

	task, err := NewIngestAuditRecordTask(payload)
	if err != nil {
		t.Fatalf("task build failed: %v", err)
	}
	if task.Type() != TaskIngestAuditRecord {
		t.Fatalf("task type = %s, want %s", task.Type(), TaskIngestAuditRecord)
	}

	parsed, err := ParseIngestAuditRecordPayload(task)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed != payload {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, payload)
	}
}
