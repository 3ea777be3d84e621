package scheduler

import (
	"context"
	"fmt"

	"dealerhub_backend/internal/audit"
	"dealerhub_backend/platform/config"
	"dealerhub_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	audit  *audit.Repository
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		audit:  audit.New(pool),
		log:    log,
	}

	mux.HandleFunc(TaskIngestAuditRecord, w.handleIngestAuditRecord)

	return w, nil
}

func (w *Worker) handleIngestAuditRecord(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseIngestAuditRecordPayload(task)
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return err
	}

	entry := audit.Entry{
		BatchID:    payload.BatchID,
		UserID:     userID,
		TotalRows:  payload.TotalRows,
		Created:    payload.Created,
		Updated:    payload.Updated,
		Skipped:    payload.Skipped,
		Errors:     payload.Errors,
		DurationMS: payload.DurationMS,
	}
	if payload.TenantID != "" {
		tenantID, err := uuid.Parse(payload.TenantID)
		if err != nil {
			return err
		}
		entry.TenantID = &tenantID
	}
	if payload.SourceFileID != "" {
		entry.SourceFileID = &payload.SourceFileID
	}

	if err := w.audit.Insert(ctx, entry); err != nil {
		return err
	}

	w.log.Info("ingest audit entry recorded", "batch_id", payload.BatchID, "total_rows", payload.TotalRows)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
