package gateway

import (
	"context"

	"github.com/nikhilbhutani/crmgateway/internal/auth"
	"github.com/nikhilbhutani/crmgateway/internal/store"
	"github.com/nikhilbhutani/crmgateway/internal/webhook"
)

// Contacts serves /contacts.
type Contacts struct{ c collection }

func NewContacts(repo store.Repository, pub Publisher) *Contacts {
	return &Contacts{c: collection{
		noun:  "contact",
		table: store.Contacts,
		scope: auth.ScopeContacts,
		repo:  repo,
		pub:   pub,
		events: events{
			created: webhook.EventContactCreated,
			updated: webhook.EventContactUpdated,
			deleted: webhook.EventContactDeleted,
		},
	}}
}

func (h *Contacts) List(ctx context.Context, req *Request) (*Response, error) {
	return h.c.list(ctx, req)
}

func (h *Contacts) Get(ctx context.Context, req *Request) (*Response, error) {
	return h.c.get(ctx, req)
}

func (h *Contacts) Create(ctx context.Context, req *Request) (*Response, error) {
	return h.c.create(ctx, req)
}

func (h *Contacts) Replace(ctx context.Context, req *Request) (*Response, error) {
	return h.c.update(ctx, req)
}

func (h *Contacts) Delete(ctx context.Context, req *Request) (*Response, error) {
	return h.c.remove(ctx, req, req.ID)
}

// Deals serves /deals. PUT and PATCH both apply only the supplied fields.
type Deals struct{ c collection }

func NewDeals(repo store.Repository, pub Publisher) *Deals {
	return &Deals{c: collection{
		noun:  "deal",
		table: store.Deals,
		scope: auth.ScopeDeals,
		repo:  repo,
		pub:   pub,
		events: events{
			created: webhook.EventDealCreated,
			updated: webhook.EventDealUpdated,
		},
	}}
}

func (h *Deals) List(ctx context.Context, req *Request) (*Response, error) {
	return h.c.list(ctx, req)
}

func (h *Deals) Get(ctx context.Context, req *Request) (*Response, error) {
	return h.c.get(ctx, req)
}

func (h *Deals) Create(ctx context.Context, req *Request) (*Response, error) {
	return h.c.create(ctx, req)
}

func (h *Deals) Replace(ctx context.Context, req *Request) (*Response, error) {
	return h.c.update(ctx, req)
}

func (h *Deals) Patch(ctx context.Context, req *Request) (*Response, error) {
	return h.c.update(ctx, req)
}

// Tasks serves /tasks.
type Tasks struct{ c collection }

func NewTasks(repo store.Repository, pub Publisher) *Tasks {
	return &Tasks{c: collection{
		noun:  "task",
		table: store.Tasks,
		scope: auth.ScopeTasks,
		repo:  repo,
		pub:   pub,
		events: events{
			created: webhook.EventTaskCreated,
			updated: webhook.EventTaskUpdated,
		},
	}}
}

func (h *Tasks) List(ctx context.Context, req *Request) (*Response, error) {
	return h.c.list(ctx, req)
}

func (h *Tasks) Create(ctx context.Context, req *Request) (*Response, error) {
	return h.c.create(ctx, req)
}

func (h *Tasks) Replace(ctx context.Context, req *Request) (*Response, error) {
	return h.c.update(ctx, req)
}

// Webhooks serves /webhooks. Registration happens elsewhere; the gateway only
// lists and removes endpoints, and never returns their secrets.
type Webhooks struct{ c collection }

func NewWebhooks(repo store.Repository) *Webhooks {
	return &Webhooks{c: collection{
		noun:  "webhook",
		table: store.Webhooks,
		scope: auth.ScopeWebhooks,
		repo:  repo,
		pub:   noopPublisher{},
	}}
}

func (h *Webhooks) List(ctx context.Context, req *Request) (*Response, error) {
	return h.c.list(ctx, req)
}

func (h *Webhooks) Delete(ctx context.Context, req *Request) (*Response, error) {
	return h.c.remove(ctx, req, req.ID)
}

// DeleteCollection handles DELETE /webhooks?id=<id>.
func (h *Webhooks) DeleteCollection(ctx context.Context, req *Request) (*Response, error) {
	if err := authorize(req, auth.PermDelete, h.c.scope); err != nil {
		return nil, err
	}
	id := req.Query.Get("id")
	if id == "" {
		return nil, BadRequest("id query parameter is required")
	}
	return h.c.remove(ctx, req, id)
}
