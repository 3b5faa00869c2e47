package webhook

import (
	"context"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/crmgateway/internal/models"
	"github.com/nikhilbhutani/crmgateway/internal/store"
)

var subscriberColumns = []string{"id", "tenant_id", "name", "url", "events", "secret", "enabled", "created_at"}

const insertDeliverySQL = `INSERT INTO webhook_deliveries (webhook_id, event, payload, response_status, attempts, delivered_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// Store reads subscriptions (secrets included) and records delivery attempts.
type Store struct {
	db store.DBTX
}

func NewStore(db store.DBTX) *Store {
	return &Store{db: db}
}

// Subscribers returns the tenant's enabled webhooks listening for event.
func (s *Store) Subscribers(ctx context.Context, tenantID uuid.UUID, event string) ([]models.Webhook, error) {
	scope, err := store.NewScope(tenantID)
	if err != nil {
		return nil, err
	}
	q, err := scope.SelectQuery(store.Webhooks, subscriberColumns,
		sq.Eq{"enabled": true},
		sq.Expr("events @> ?", []string{event}),
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, errors.Wrap(err, "find matching webhooks")
	}
	hooks, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Webhook])
	if err != nil {
		return nil, errors.Wrap(err, "scan webhooks")
	}
	return hooks, nil
}

// RecordDelivery stores the outcome of one attempt. A zero status means the
// endpoint could not be reached.
func (s *Store) RecordDelivery(ctx context.Context, job Job, status int) {
	d := newDelivery(job, status, time.Now())
	if _, err := s.db.Exec(ctx, insertDeliverySQL, d.WebhookID, d.Event, []byte(d.Payload), d.ResponseStatus, d.Attempts, d.DeliveredAt); err != nil {
		slog.Error("failed to record webhook delivery", "error", err, "webhook_id", job.WebhookID)
	}
}

func newDelivery(job Job, status int, now time.Time) models.WebhookDelivery {
	d := models.WebhookDelivery{
		WebhookID:      job.WebhookID,
		Event:          job.Event,
		Payload:        job.Payload,
		ResponseStatus: status,
		Attempts:       1,
		CreatedAt:      now,
	}
	if Delivered(status) {
		d.DeliveredAt = &now
	}
	return d
}
