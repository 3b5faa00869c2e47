package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/nikhilbhutani/crmgateway/internal/auth"
	"github.com/nikhilbhutani/crmgateway/internal/messaging"
	"github.com/nikhilbhutani/crmgateway/internal/store"
	"github.com/nikhilbhutani/crmgateway/internal/webhook"
)

const subSend = "send"

// Messages serves POST /messages/send, which addresses a phone number rather
// than a conversation.
type Messages struct {
	repo   store.Repository
	sender messaging.Sender
	pub    Publisher
}

func NewMessages(repo store.Repository, sender messaging.Sender, pub Publisher) *Messages {
	return &Messages{repo: repo, sender: sender, pub: pub}
}

func (h *Messages) SubResources() []string {
	return []string{subSend}
}

type directSendBody struct {
	Phone       string `json:"phone"`
	Content     string `json:"content"`
	Name        string `json:"name"`
	MediaURL    string `json:"media_url"`
	MessageType string `json:"message_type"`
}

type directSendAck struct {
	Success             bool   `json:"success"`
	MessageID           string `json:"message_id"`
	ConversationID      string `json:"conversation_id"`
	ContactID           string `json:"contact_id"`
	CreatedConversation bool   `json:"created_conversation"`
}

// HandleSub finds or creates the conversation for a phone number, then sends.
// The steps are not transactional: a conversation created here stays even
// when the send fails.
func (h *Messages) HandleSub(ctx context.Context, req *Request) (*Response, error) {
	if req.Method != http.MethodPost {
		return nil, MethodNotAllowed(req.Method)
	}
	if err := authorize(req, auth.PermWrite, auth.ScopeMessages); err != nil {
		return nil, err
	}

	var body directSendBody
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	body.Phone = strings.TrimSpace(body.Phone)
	if body.Phone == "" {
		return nil, BadRequest("phone is required")
	}
	if strings.TrimSpace(body.Content) == "" && body.MediaURL == "" {
		return nil, BadRequest("content or media_url is required")
	}

	conv, createdConv, err := h.conversationFor(ctx, req, body.Phone, body.Name)
	if err != nil {
		return nil, err
	}
	convID := rowString(conv, "id")

	res, err := h.sender.Send(ctx, messaging.SendRequest{
		TenantID:       req.Scope.TenantID(),
		ConversationID: convID,
		Phone:          body.Phone,
		Content:        body.Content,
		MessageType:    body.MessageType,
		MediaURL:       body.MediaURL,
	})
	if err != nil {
		return nil, Internal(err.Error())
	}

	h.pub.Publish(req.Scope.TenantID(), webhook.EventMessageSent, map[string]any{
		"message_id":      res.MessageID,
		"conversation_id": convID,
	})
	return ok(directSendAck{
		Success:             true,
		MessageID:           res.MessageID,
		ConversationID:      convID,
		ContactID:           rowString(conv, "contact_id"),
		CreatedConversation: createdConv,
	}), nil
}

func (h *Messages) conversationFor(ctx context.Context, req *Request, phone, name string) (store.Row, bool, error) {
	byPhone := map[string]any{"phone": phone}

	conv, err := h.repo.FindOne(ctx, req.Scope, store.Conversations, byPhone)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, errors.Wrap(err, "find conversation")
	}

	contact, err := h.contactFor(ctx, req, phone, name)
	if err != nil {
		return nil, false, err
	}

	conv, err = h.repo.Create(ctx, req.Scope, store.Conversations, store.Row{
		"contact_id": rowString(contact, "id"),
		"phone":      phone,
	})
	if errors.Is(err, store.ErrConflict) {
		// A concurrent request created it first.
		conv, err = h.repo.FindOne(ctx, req.Scope, store.Conversations, byPhone)
		if err != nil {
			return nil, false, errors.Wrap(err, "re-read conversation")
		}
		return conv, false, nil
	}
	if err != nil {
		return nil, false, storeError(err, "conversation")
	}
	return conv, true, nil
}

// contactFor reuses the tenant's contact with this phone or creates one.
func (h *Messages) contactFor(ctx context.Context, req *Request, phone, name string) (store.Row, error) {
	byPhone := map[string]any{"phone": phone}

	contact, err := h.repo.FindOne(ctx, req.Scope, store.Contacts, byPhone)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, errors.Wrap(err, "find contact")
	}

	fields := store.Row{"phone": phone}
	if name = strings.TrimSpace(name); name != "" {
		fields["name"] = name
	}
	contact, err = h.repo.Create(ctx, req.Scope, store.Contacts, fields)
	if errors.Is(err, store.ErrConflict) {
		contact, err = h.repo.FindOne(ctx, req.Scope, store.Contacts, byPhone)
		if err != nil {
			return nil, errors.Wrap(err, "re-read contact")
		}
		return contact, nil
	}
	if err != nil {
		return nil, storeError(err, "contact")
	}
	h.pub.Publish(req.Scope.TenantID(), webhook.EventContactCreated, contact)
	return contact, nil
}
