package gateway

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/nikhilbhutani/crmgateway/internal/auth"
	"github.com/nikhilbhutani/crmgateway/internal/messaging"
	"github.com/nikhilbhutani/crmgateway/internal/store"
	"github.com/nikhilbhutani/crmgateway/internal/webhook"
)

const subMessages = "messages"

// Conversations serves /conversations and /conversations/{id}/messages.
type Conversations struct {
	c      collection
	sender messaging.Sender
}

func NewConversations(repo store.Repository, sender messaging.Sender, pub Publisher) *Conversations {
	return &Conversations{
		c: collection{
			noun:  "conversation",
			table: store.Conversations,
			scope: auth.ScopeConversations,
			repo:  repo,
			pub:   pub,
		},
		sender: sender,
	}
}

func (h *Conversations) List(ctx context.Context, req *Request) (*Response, error) {
	return h.c.list(ctx, req)
}

func (h *Conversations) Get(ctx context.Context, req *Request) (*Response, error) {
	return h.c.get(ctx, req)
}

func (h *Conversations) SubResources() []string {
	return []string{subMessages}
}

func (h *Conversations) HandleSub(ctx context.Context, req *Request) (*Response, error) {
	switch req.Method {
	case http.MethodGet:
		return h.history(ctx, req)
	case http.MethodPost:
		return h.send(ctx, req)
	}
	return nil, MethodNotAllowed(req.Method)
}

type historyMeta struct {
	Limit      int     `json:"limit"`
	Count      int     `json:"count"`
	NextBefore *string `json:"next_before"`
}

// history pages backwards through a conversation with the before cursor and
// returns the page oldest first.
func (h *Conversations) history(ctx context.Context, req *Request) (*Response, error) {
	if err := authorize(req, "", auth.ScopeConversations, auth.ScopeMessages); err != nil {
		return nil, err
	}

	var before *time.Time
	if raw := req.Query.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, BadRequest("before must be an RFC3339 timestamp")
		}
		before = &t
	}
	limit := min(positiveInt(req.Query.Get("limit"), defaultHistoryLimit), maxLimit)

	if _, err := h.c.repo.Get(ctx, req.Scope, store.Conversations, req.ID); err != nil {
		return nil, storeError(err, "conversation")
	}

	rows, err := h.c.repo.History(ctx, req.Scope, store.Messages, req.ID, before, limit)
	if err != nil {
		return nil, storeError(err, "conversation")
	}
	slices.Reverse(rows)
	if rows == nil {
		rows = []store.Row{}
	}

	meta := historyMeta{Limit: limit, Count: len(rows)}
	if len(rows) == limit {
		if t, ok := rows[0]["created_at"].(time.Time); ok {
			s := t.UTC().Format(time.RFC3339Nano)
			meta.NextBefore = &s
		}
	}
	return ok(struct {
		Data []store.Row `json:"data"`
		Meta historyMeta `json:"meta"`
	}{rows, meta}), nil
}

type sendMessageBody struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	MediaURL    string `json:"media_url"`
}

type sendAck struct {
	Success        bool   `json:"success"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

func (h *Conversations) send(ctx context.Context, req *Request) (*Response, error) {
	if err := authorize(req, auth.PermWrite, auth.ScopeConversations, auth.ScopeMessages); err != nil {
		return nil, err
	}

	var body sendMessageBody
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body.Content) == "" && body.MediaURL == "" {
		return nil, BadRequest("content or media_url is required")
	}

	conv, err := h.c.repo.Get(ctx, req.Scope, store.Conversations, req.ID)
	if err != nil {
		return nil, storeError(err, "conversation")
	}

	res, err := h.sender.Send(ctx, messaging.SendRequest{
		TenantID:       req.Scope.TenantID(),
		ConversationID: req.ID,
		Phone:          rowString(conv, "phone"),
		Content:        body.Content,
		MessageType:    body.MessageType,
		MediaURL:       body.MediaURL,
	})
	if err != nil {
		return nil, Internal(err.Error())
	}

	h.c.pub.Publish(req.Scope.TenantID(), webhook.EventMessageSent, map[string]any{
		"message_id":      res.MessageID,
		"conversation_id": req.ID,
	})
	return ok(sendAck{Success: true, MessageID: res.MessageID, ConversationID: req.ID}), nil
}

func rowString(r store.Row, key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
