package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/crmgateway/internal/queue"
)

type usageRecorder interface {
	RecordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) error
}

// UsageWorker applies queued api key usage increments.
type UsageWorker struct {
	usage usageRecorder
}

func NewUsageWorker(usage usageRecorder) *UsageWorker {
	return &UsageWorker{usage: usage}
}

func (w *UsageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.APIKeyUsagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.KeyID == uuid.Nil {
		return fmt.Errorf("usage task without key id: %w", asynq.SkipRetry)
	}
	return w.usage.RecordUsage(ctx, payload.KeyID, payload.At)
}
