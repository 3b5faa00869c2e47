// Package messaging is the gateway's client for the outbound message-delivery
// subsystem. Delivery itself happens elsewhere.
package messaging

import (
	"context"

	"github.com/google/uuid"
)

type SendRequest struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	Phone          string    `json:"phone,omitempty"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	MediaURL       string    `json:"media_url,omitempty"`
}

type SendResult struct {
	MessageID string `json:"message_id"`
}

// Sender requests delivery of one outbound message. The error text of a
// failed send is meant to be shown to the API caller.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
