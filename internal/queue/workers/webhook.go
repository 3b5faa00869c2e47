package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/crmgateway/internal/webhook"
)

// WebhookWorker performs queued webhook deliveries. A failed delivery is
// returned to asynq, which retries it with backoff.
type WebhookWorker struct {
	deliverer webhook.Deliverer
}

func NewWebhookWorker(deliverer webhook.Deliverer) *WebhookWorker {
	return &WebhookWorker{deliverer: deliverer}
}

func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job webhook.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	slog.Info("delivering webhook", "webhook_id", job.WebhookID, "event", job.Event)
	return w.deliverer.Deliver(ctx, job)
}
