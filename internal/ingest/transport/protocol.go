// Package transport defines the wire types of the ingest module: the
// realtime upload protocol frames and the REST DTOs.
package transport

import "encoding/json"

// Inbound event names (client -> server).
const (
	EventStartUploadConfig = "start_bulk_upload_config"
	EventUploadBatch       = "upload_batch"
	EventCancelUpload      = "cancel_upload"
	EventGetUploadStatus   = "get_upload_status"
)

// Outbound event names (server -> client).
const (
	EventUploadStarted   = "upload_started"
	EventBatchStart      = "batch_start"
	EventBatchProgress   = "batch_progress"
	EventBatchComplete   = "batch_complete"
	EventUploadProgress  = "upload_progress"
	EventUploadCompleted = "upload_completed"
	EventUploadError     = "upload_error"
	EventUploadCancelled = "upload_cancelled"
	EventUploadStatus    = "upload_status"
	// EventUploadActivity is broadcast to every session of a company when one
	// of its users completes an upload.
	EventUploadActivity = "upload_activity"
	// EventUploadRejected reports a refused inbound frame. Unlike
	// upload_error it is not terminal; the operation, when one exists,
	// stays alive and the client may correct and resend.
	EventUploadRejected = "upload_rejected"
)

// Frame is the envelope for every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals a payload into an outbound frame. Marshal failures are
// programming errors in payload types and surface as an error frame upstream.
func NewFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// FieldMapping binds recognized target fields to input columns. Make and
// Model are mandatory; everything else is optional. Custom maps user-defined
// target fields to input columns.
type FieldMapping struct {
	Make            string            `json:"make" validate:"required"`
	Model           string            `json:"model" validate:"required"`
	Variant         string            `json:"variant"`
	Body            string            `json:"body"`
	Year            string            `json:"year"`
	FuelType        string            `json:"fuelType"`
	Transmission    string            `json:"transmission"`
	EngineCapacity  string            `json:"engineCapacity"`
	Power           string            `json:"power"`
	Torque          string            `json:"torque"`
	SeatingCapacity string            `json:"seatingCapacity"`
	Custom          map[string]string `json:"custom"`
}

// UploadOptions are the per-operation processing switches.
type UploadOptions struct {
	// UpdateExisting merges newly-seen attributes into pre-existing
	// reference entities and metadata records instead of skipping them.
	UpdateExisting bool `json:"updateExisting"`
	// Source labels the provenance of every record in this operation.
	Source string `json:"source"`
	// SourceFileID references the archived raw file from the preview step.
	SourceFileID string `json:"sourceFileId"`
}

// UploadConfigPayload starts an upload operation.
type UploadConfigPayload struct {
	FieldMapping FieldMapping      `json:"fieldMapping"`
	TypeHints    map[string]string `json:"typeHints"`
	Options      UploadOptions     `json:"options"`
	TotalRecords int               `json:"totalRecords" validate:"min=0"`
	TotalBatches int               `json:"totalBatches" validate:"min=1"`
}

// UploadBatchPayload submits one batch of rows.
type UploadBatchPayload struct {
	BatchNumber  int              `json:"batchNumber"`
	TotalBatches int              `json:"totalBatches"`
	Data         []map[string]any `json:"data"`
}

// CancelUploadPayload requests cooperative cancellation of an operation.
type CancelUploadPayload struct {
	BatchID string `json:"batchId"`
}

// RowError reports one failed row within a batch.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// EntityCounts reports how many reference entities an operation created.
type EntityCounts struct {
	Makes        int `json:"makes"`
	Models       int `json:"models"`
	Variants     int `json:"variants"`
	Bodies       int `json:"bodies"`
	VariantYears int `json:"variantYears"`
}

// ResultCounts is the created/updated/skipped accounting shared by batch and
// cumulative payloads.
type ResultCounts struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// UploadStartedPayload acknowledges a stored configuration.
type UploadStartedPayload struct {
	BatchID      string `json:"batchId"`
	TotalRecords int    `json:"totalRecords"`
	TotalBatches int    `json:"totalBatches"`
}

// BatchStartPayload announces that a batch was accepted for processing.
type BatchStartPayload struct {
	BatchID     string `json:"batchId"`
	BatchNumber int    `json:"batchNumber"`
	Size        int    `json:"size"`
}

// BatchProgressPayload streams within-batch progress.
type BatchProgressPayload struct {
	BatchID     string       `json:"batchId"`
	BatchNumber int          `json:"batchNumber"`
	Counts      ResultCounts `json:"counts"`
	Percent     float64      `json:"percent"`
}

// BatchCompletePayload acknowledges a finished batch, success or failure.
// Every submitted batch receives exactly one of these.
type BatchCompletePayload struct {
	BatchID     string       `json:"batchId"`
	BatchNumber int          `json:"batchNumber"`
	Counts      ResultCounts `json:"counts"`
	RowErrors   []RowError   `json:"rowErrors,omitempty"`
	Failed      bool         `json:"failed,omitempty"`
}

// UploadProgressPayload streams cumulative operation progress.
type UploadProgressPayload struct {
	BatchID          string       `json:"batchId"`
	Percent          float64      `json:"percent"`
	Counts           ResultCounts `json:"counts"`
	CurrentBatch     int          `json:"currentBatch"`
	TotalBatches     int          `json:"totalBatches"`
	EstimatedSecLeft float64      `json:"estimatedSecondsLeft"`
}

// UploadCompletedPayload is the success terminal event.
type UploadCompletedPayload struct {
	BatchID         string       `json:"batchId"`
	Counts          ResultCounts `json:"counts"`
	CreatedEntities EntityCounts `json:"createdEntities"`
	DurationMS      int64        `json:"durationMs"`
}

// UploadErrorPayload is the failure terminal event.
type UploadErrorPayload struct {
	BatchID string `json:"batchId,omitempty"`
	Message string `json:"message"`
}

// UploadRejectedPayload explains why an inbound frame was refused. Code
// categorizes the refusal (conflict for an out-of-sequence batch, validation
// for bad input) so a batch-driving client can tell "resend" from "give up".
type UploadRejectedPayload struct {
	BatchID string `json:"batchId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadCancelledPayload is the cancellation terminal event.
type UploadCancelledPayload struct {
	BatchID string       `json:"batchId"`
	Counts  ResultCounts `json:"counts"`
}

// UploadActivityPayload notifies a company about a teammate's finished upload.
type UploadActivityPayload struct {
	BatchID   string `json:"batchId"`
	UserID    string `json:"userId"`
	TotalRows int    `json:"totalRows"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
}

// UploadStatusPayload is the state snapshot answer to get_upload_status.
type UploadStatusPayload struct {
	BatchID      string       `json:"batchId,omitempty"`
	Status       string       `json:"status"`
	CurrentBatch int          `json:"currentBatch"`
	TotalBatches int          `json:"totalBatches"`
	TotalRecords int          `json:"totalRecords"`
	Counts       ResultCounts `json:"counts"`
}
