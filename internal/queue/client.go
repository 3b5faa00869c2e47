package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/crmgateway/internal/config"
	"github.com/nikhilbhutani/crmgateway/internal/models"
	"github.com/nikhilbhutani/crmgateway/internal/webhook"
)

// Client moves the gateway's bookkeeping writes onto asynq. It satisfies
// audit.Sink, auth.UsageRecorder and webhook.Deliverer.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
	}
}

// RedisOpt is shared by the client and the worker server.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Record(ctx context.Context, entry *models.AuditLogEntry) error {
	return c.enqueue(ctx, TypeAuditRecord, entry, asynq.Queue("low"), asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
}

func (c *Client) RecordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	return c.enqueue(ctx, TypeAPIKeyUsage, APIKeyUsagePayload{KeyID: keyID, At: at}, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
}

func (c *Client) Deliver(ctx context.Context, job webhook.Job) error {
	return c.enqueue(ctx, TypeWebhookDeliver, job, asynq.Queue("critical"), asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
