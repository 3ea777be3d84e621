package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"dealerhub_backend/internal/ingest/service"
	"dealerhub_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// RecordCompletion enqueues the audit entry of a finished upload. It
// implements the coordinator's CompletionRecorder port; the worker does the
// actual database write.
func (c *Client) RecordCompletion(ctx context.Context, record service.CompletionRecord) error {
	if c == nil || c.client == nil {
		return nil
	}

	payload := IngestAuditRecordPayload{
		BatchID:      record.BatchID,
		UserID:       record.UserID.String(),
		TotalRows:    record.TotalRows,
		Created:      record.Created,
		Updated:      record.Updated,
		Skipped:      record.Skipped,
		Errors:       record.Errors,
		DurationMS:   record.DurationMS,
		SourceFileID: record.SourceFileID,
	}
	if record.TenantID != uuid.Nil {
		payload.TenantID = record.TenantID.String()
	}

	task, err := NewIngestAuditRecordTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(5))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}

var _ service.CompletionRecorder = (*Client)(nil)
