package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/crmgateway/internal/audit"
	"github.com/nikhilbhutani/crmgateway/internal/models"
)

// AuditWorker writes queued audit entries to the database.
type AuditWorker struct {
	sink audit.Sink
}

func NewAuditWorker(sink audit.Sink) *AuditWorker {
	return &AuditWorker{sink: sink}
}

func (w *AuditWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var entry models.AuditLogEntry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if err := w.sink.Record(ctx, &entry); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}
