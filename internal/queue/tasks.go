package queue

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeAuditRecord    = "audit:record"
	TypeAPIKeyUsage    = "apikey:usage"
	TypeWebhookDeliver = "webhook:deliver"
)

// Audit entries travel as models.AuditLogEntry and webhook deliveries as
// webhook.Job; only usage needs its own payload.

type APIKeyUsagePayload struct {
	KeyID uuid.UUID `json:"key_id"`
	At    time.Time `json:"at"`
}
