package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/crmgateway/internal/api/handlers"
	"github.com/nikhilbhutani/crmgateway/internal/api/middleware"
)

type Router struct {
	mux       *chi.Mux
	gateway   http.Handler
	prefix    string
	keyHeader string
	health    *handlers.HealthHandler
}

// NewRouter mounts gateway under prefix. The gateway sees the full request
// path, prefix included. keyHeader is advertised to browsers in CORS replies.
func NewRouter(gateway http.Handler, prefix, keyHeader string, health *handlers.HealthHandler) *Router {
	return &Router{
		mux:       chi.NewRouter(),
		gateway:   gateway,
		prefix:    "/" + strings.Trim(prefix, "/"),
		keyHeader: keyHeader,
		health:    health,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}, rt.keyHeader))

	// Health endpoints (no auth)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)

	r.Handle(rt.prefix, rt.gateway)
	r.Handle(rt.prefix+"/*", rt.gateway)

	return r
}
