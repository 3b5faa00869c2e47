// Package gateway serves the tenant-scoped CRM API behind API key
// authentication: validation, rate limiting, routing, handler dispatch and
// audit logging for every request.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/nikhilbhutani/crmgateway/internal/auth"
	"github.com/nikhilbhutani/crmgateway/internal/models"
	"github.com/nikhilbhutani/crmgateway/internal/ratelimit"
	"github.com/nikhilbhutani/crmgateway/internal/store"
	"github.com/nikhilbhutani/crmgateway/internal/tenant"
)

// KeyValidator resolves a raw API key; see auth.Validator.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// AuditLogger receives exactly one entry per request; see audit.Logger.
type AuditLogger interface {
	Log(entry models.AuditLogEntry)
}

type Options struct {
	PathPrefix       string
	KeyHeader        string
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	DefaultRateLimit int
}

type Gateway struct {
	opts      Options
	validator KeyValidator
	limiter   ratelimit.Limiter
	registry  *Registry
	audit     AuditLogger
}

func New(opts Options, validator KeyValidator, limiter ratelimit.Limiter, registry *Registry, audit AuditLogger) *Gateway {
	if opts.KeyHeader == "" {
		opts.KeyHeader = "X-API-Key"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.DefaultRateLimit <= 0 {
		opts.DefaultRateLimit = 60
	}
	return &Gateway{
		opts:      opts,
		validator: validator,
		limiter:   limiter,
		registry:  registry,
		audit:     audit,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var ac *tenant.AuthContext
	resp, err := g.handle(w, r, &ac)

	var (
		status int
		errMsg *string
	)
	if err != nil {
		e := asError(err)
		status = e.Status
		errMsg = &e.Message
		writeError(w, e)
	} else {
		status = resp.Status
		writeJSON(w, resp.Status, resp.Body)
	}

	g.audit.Log(auditEntry(r, ac, status, errMsg, time.Since(start)))
}

// handle never panics; a panicking handler becomes a 500 so the request is
// still answered and audited.
func (g *Gateway) handle(w http.ResponseWriter, r *http.Request, acOut **tenant.AuthContext) (resp *Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in gateway handler", "panic", rec, "stack", string(debug.Stack()))
			resp, err = nil, Internal("internal server error")
		}
	}()

	ctx, cancel := context.WithTimeout(r.Context(), g.opts.RequestTimeout)
	defer cancel()

	key, err := g.validator.Validate(ctx, auth.ExtractKey(r, g.opts.KeyHeader))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return nil, Unauthenticated(err.Error())
		}
		return nil, err
	}
	ac := tenant.NewAuthContext(key)
	*acOut = ac

	if err := g.checkRate(ctx, w.Header(), ac); err != nil {
		return nil, err
	}

	route, found := ParseRoute(strings.TrimPrefix(r.URL.Path, g.opts.PathPrefix))
	if !found {
		return nil, g.registry.routeNotFound()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, BadRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, BadRequest("could not read request body")
	}

	scope, err := store.NewScope(ac.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "api key without tenant")
	}

	req := &Request{
		Method: r.Method,
		Route:  route,
		Query:  r.URL.Query(),
		Body:   body,
		Auth:   ac,
		Scope:  scope,
	}
	return g.registry.Dispatch(ctx, req)
}

// checkRate spends one unit of the credential's per-minute budget. A limiter
// backend failure lets the request through.
func (g *Gateway) checkRate(ctx context.Context, h http.Header, ac *tenant.AuthContext) error {
	if g.limiter == nil {
		return nil
	}
	limit := ac.RateLimitPerMinute
	if limit <= 0 {
		limit = g.opts.DefaultRateLimit
	}

	d, err := g.limiter.Allow(ctx, ac.CredentialID.String(), limit)
	if err != nil {
		slog.Warn("rate limiter unavailable", "error", err, "api_key_id", ac.CredentialID)
		return nil
	}
	ratelimit.SetHeaders(h, d, time.Now())
	if !d.Allowed {
		return TooManyRequests()
	}
	return nil
}

func auditEntry(r *http.Request, ac *tenant.AuthContext, status int, errMsg *string, elapsed time.Duration) models.AuditLogEntry {
	e := models.AuditLogEntry{
		Method:       r.Method,
		Path:         r.URL.Path,
		StatusCode:   status,
		ErrorMessage: errMsg,
		DurationMs:   max(elapsed.Milliseconds(), 0),
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
		CreatedAt:    time.Now().UTC(),
	}
	if q := r.URL.Query(); len(q) > 0 {
		e.QueryParams = q
	}
	if ac != nil {
		keyID, tenantID := ac.CredentialID, ac.TenantID
		e.APIKeyID = &keyID
		e.TenantID = &tenantID
	}
	return e
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
