package gateway

import (
	"bytes"
	"encoding/json"
	"net/url"
	"slices"
	"strings"

	"github.com/nikhilbhutani/crmgateway/internal/store"
	"github.com/nikhilbhutani/crmgateway/internal/tenant"
)

// reservedSubResources may appear where an id would, e.g. /messages/send.
var reservedSubResources = []string{"send"}

// Route is the structural part of a gateway path below the mount prefix.
type Route struct {
	Resource string
	ID       string
	Sub      string
}

// ParseRoute splits a path such as "contacts/{id}" or
// "conversations/{id}/messages". It reports false for empty paths, empty
// segments and paths deeper than three segments.
func ParseRoute(path string) (Route, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return Route{}, false
	}
	segs := strings.Split(path, "/")
	if len(segs) > 3 || slices.Contains(segs, "") {
		return Route{}, false
	}

	r := Route{Resource: segs[0]}
	if len(segs) >= 2 {
		if slices.Contains(reservedSubResources, segs[1]) {
			if len(segs) == 3 {
				return Route{}, false
			}
			r.Sub = segs[1]
		} else {
			r.ID = segs[1]
		}
	}
	if len(segs) == 3 {
		r.Sub = segs[2]
	}
	return r, true
}

// Request is one authenticated, rate-checked gateway call.
type Request struct {
	Method string
	Route
	Query url.Values
	Body  []byte
	Auth  *tenant.AuthContext
	Scope store.Scope
}

// Object decodes the body as a JSON object.
func (r *Request) Object() (map[string]any, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, BadRequest("request body is required")
	}
	var obj map[string]any
	if err := json.Unmarshal(r.Body, &obj); err != nil || obj == nil {
		return nil, BadRequest("request body must be a JSON object")
	}
	return obj, nil
}

// Decode decodes the body into v, rejecting unknown fields.
func (r *Request) Decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return BadRequest("invalid request body: " + err.Error())
	}
	return nil
}
