package gateway

import (
	"context"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/crmgateway/internal/auth"
	"github.com/nikhilbhutani/crmgateway/internal/store"
)

// Publisher announces successful mutations.
type Publisher interface {
	Publish(tenantID uuid.UUID, event string, data any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(uuid.UUID, string, any) {}

// events names the webhook events a collection emits; empty means none.
type events struct {
	created, updated, deleted string
}

// collection implements the shared list/get/create/update/delete semantics
// over one tenant-scoped table. Resource types expose the subset they support.
type collection struct {
	noun   string
	table  store.Table
	scope  auth.Scope
	repo   store.Repository
	pub    Publisher
	events events
}

// authorize runs at every handler entry point, before the store is touched.
func authorize(req *Request, perm auth.Permission, scopes ...auth.Scope) error {
	if err := auth.Authorize(req.Auth, scopes, perm); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return Forbidden(err.Error())
		}
		return err
	}
	return nil
}

func (c *collection) list(ctx context.Context, req *Request) (*Response, error) {
	if err := authorize(req, "", c.scope); err != nil {
		return nil, err
	}

	page, limit := pageParams(req.Query)
	params := store.ListParams{
		Limit:   limit,
		Offset:  (page - 1) * limit,
		Search:  req.Query.Get("search"),
		Tag:     req.Query.Get("tag"),
		Filters: filterParams(req.Query, c.table.Filters),
	}
	rows, total, err := c.repo.List(ctx, req.Scope, c.table, params)
	if err != nil {
		return nil, storeError(err, c.noun)
	}
	if rows == nil {
		rows = []store.Row{}
	}
	return ok(listEnvelope{Data: rows, Meta: newPageMeta(page, limit, total)}), nil
}

func (c *collection) get(ctx context.Context, req *Request) (*Response, error) {
	if err := authorize(req, "", c.scope); err != nil {
		return nil, err
	}
	row, err := c.repo.Get(ctx, req.Scope, c.table, req.ID)
	if err != nil {
		return nil, storeError(err, c.noun)
	}
	return ok(dataEnvelope{Data: row}), nil
}

func (c *collection) create(ctx context.Context, req *Request) (*Response, error) {
	if err := authorize(req, auth.PermWrite, c.scope); err != nil {
		return nil, err
	}
	body, err := req.Object()
	if err != nil {
		return nil, err
	}
	fields, err := c.table.Input(body, true)
	if err != nil {
		return nil, BadRequest(err.Error())
	}

	row, err := c.repo.Create(ctx, req.Scope, c.table, fields)
	if err != nil {
		return nil, storeError(err, c.noun)
	}
	c.publish(req, c.events.created, row)
	return created(dataEnvelope{Data: row}), nil
}

func (c *collection) update(ctx context.Context, req *Request) (*Response, error) {
	if err := authorize(req, auth.PermWrite, c.scope); err != nil {
		return nil, err
	}
	body, err := req.Object()
	if err != nil {
		return nil, err
	}
	fields, err := c.table.Input(body, false)
	if err != nil {
		return nil, BadRequest(err.Error())
	}

	row, err := c.repo.Update(ctx, req.Scope, c.table, req.ID, fields)
	if err != nil {
		return nil, storeError(err, c.noun)
	}
	c.publish(req, c.events.updated, row)
	return ok(dataEnvelope{Data: row}), nil
}

func (c *collection) remove(ctx context.Context, req *Request, id string) (*Response, error) {
	if err := authorize(req, auth.PermDelete, c.scope); err != nil {
		return nil, err
	}
	if err := c.repo.Delete(ctx, req.Scope, c.table, id); err != nil {
		return nil, storeError(err, c.noun)
	}
	c.publish(req, c.events.deleted, map[string]any{"id": id})
	return ok(deleteAck{Success: true, ID: id}), nil
}

func (c *collection) publish(req *Request, event string, data any) {
	if event == "" {
		return
	}
	c.pub.Publish(req.Scope.TenantID(), event, data)
}

func filterParams(q url.Values, allowed []string) map[string]string {
	var out map[string]string
	for _, f := range allowed {
		if v := q.Get(f); v != "" {
			if out == nil {
				out = make(map[string]string)
			}
			out[f] = v
		}
	}
	return out
}
