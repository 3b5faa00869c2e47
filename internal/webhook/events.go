// Package webhook fans CRM mutations out to the endpoints tenants registered.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventContactCreated = "contact.created"
	EventContactUpdated = "contact.updated"
	EventContactDeleted = "contact.deleted"
	EventDealCreated    = "deal.created"
	EventDealUpdated    = "deal.updated"
	EventTaskCreated    = "task.created"
	EventTaskUpdated    = "task.updated"
	EventMessageSent    = "message.sent"
)

// Event is one mutation to announce.
type Event struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"event"`
	Data      any       `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is one signed delivery of an event to one endpoint.
type Job struct {
	WebhookID uuid.UUID       `json:"webhook_id"`
	URL       string          `json:"url"`
	Secret    string          `json:"secret"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}
