package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskIngestAuditRecord = "ingest.audit.record"

type IngestAuditRecordPayload struct {
	BatchID      string `json:"batchId"`
	TenantID     string `json:"tenantId,omitempty"`
	UserID       string `json:"userId"`
	TotalRows    int    `json:"totalRows"`
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
	Skipped      int    `json:"skipped"`
	Errors       int    `json:"errors"`
	DurationMS   int64  `json:"durationMs"`
	SourceFileID string `json:"sourceFileId,omitempty"`
}

func NewIngestAuditRecordTask(payload IngestAuditRecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIngestAuditRecord, data), nil
}

func ParseIngestAuditRecordPayload(task *asynq.Task) (IngestAuditRecordPayload, error) {
	var payload IngestAuditRecordPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return IngestAuditRecordPayload{}, err
	}
	return payload, nil
}
