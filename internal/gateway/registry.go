package gateway

import (
	"context"
	"net/http"
	"slices"
)

// Handlers implement only the capabilities their resource supports; a request
// for a missing capability is answered with 405.
type (
	Lister interface {
		List(ctx context.Context, req *Request) (*Response, error)
	}
	Getter interface {
		Get(ctx context.Context, req *Request) (*Response, error)
	}
	Creator interface {
		Create(ctx context.Context, req *Request) (*Response, error)
	}
	// Replacer handles PUT.
	Replacer interface {
		Replace(ctx context.Context, req *Request) (*Response, error)
	}
	// Patcher handles PATCH.
	Patcher interface {
		Patch(ctx context.Context, req *Request) (*Response, error)
	}
	Deleter interface {
		Delete(ctx context.Context, req *Request) (*Response, error)
	}
	// CollectionDeleter handles DELETE without an id in the path.
	CollectionDeleter interface {
		DeleteCollection(ctx context.Context, req *Request) (*Response, error)
	}
	SubResourcer interface {
		SubResources() []string
		HandleSub(ctx context.Context, req *Request) (*Response, error)
	}
)

type handlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Registry maps resource families to their handlers.
type Registry struct {
	handlers  map[string]any
	endpoints []string
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]any)}
}

// Register adds a handler under name; endpoints are listed to callers who hit
// an unknown route.
func (r *Registry) Register(name string, h any, endpoints ...string) {
	r.handlers[name] = h
	r.endpoints = append(r.endpoints, endpoints...)
}

func (r *Registry) Endpoints() []string {
	return slices.Clone(r.endpoints)
}

func (r *Registry) routeNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Message: "endpoint not found", Endpoints: r.Endpoints()}
}

// Dispatch resolves the handler method for req and runs it.
func (r *Registry) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	h, found := r.handlers[req.Resource]
	if !found {
		return nil, r.routeNotFound()
	}

	if req.Sub != "" {
		sr, ok := h.(SubResourcer)
		if !ok || !slices.Contains(sr.SubResources(), req.Sub) {
			return nil, r.routeNotFound()
		}
		return sr.HandleSub(ctx, req)
	}

	fn := capability(h, req.Method, req.ID != "")
	if fn == nil {
		return nil, MethodNotAllowed(req.Method)
	}
	return fn(ctx, req)
}

func capability(h any, method string, hasID bool) handlerFunc {
	if !hasID {
		switch method {
		case http.MethodGet:
			if c, ok := h.(Lister); ok {
				return c.List
			}
		case http.MethodPost:
			if c, ok := h.(Creator); ok {
				return c.Create
			}
		case http.MethodDelete:
			if c, ok := h.(CollectionDeleter); ok {
				return c.DeleteCollection
			}
		}
		return nil
	}

	switch method {
	case http.MethodGet:
		if c, ok := h.(Getter); ok {
			return c.Get
		}
	case http.MethodPut:
		if c, ok := h.(Replacer); ok {
			return c.Replace
		}
	case http.MethodPatch:
		if c, ok := h.(Patcher); ok {
			return c.Patch
		}
	case http.MethodDelete:
		if c, ok := h.(Deleter); ok {
			return c.Delete
		}
	}
	return nil
}
