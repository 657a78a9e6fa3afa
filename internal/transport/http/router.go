// Package httptransport assembles the public HTTP surface from the
// per-module handlers.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ansregistry/internal/platform/middleware"
	"ansregistry/pkg/platform/httputil"
)

// ServiceName identifies this service in metadata and logs.
const ServiceName = "ans-registry"

// Version is overridable at build time with -ldflags.
var Version = "dev"

// Registrar is implemented by module handlers that attach routes.
type Registrar interface {
	Register(r chi.Router)
}

// Config carries everything the router needs beyond the handlers.
type Config struct {
	Logger        *slog.Logger
	CAFingerprint string
	Handlers      []Registrar
}

// NewRouter wires middleware, operational endpoints, and all module routes
// under /v1.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/v1/meta", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"service":        ServiceName,
			"version":        Version,
			"ca_fingerprint": cfg.CAFingerprint,
			"operations": []string{
				"POST /v1/agents",
				"POST /v1/agents/{agentID}/verify",
				"GET /v1/agents/{agentID}",
				"GET /v1/agents",
				"GET /v1/log/checkpoint",
			},
		})
	})

	r.Route("/v1", func(v1 chi.Router) {
		for _, h := range cfg.Handlers {
			h.Register(v1)
		}
	})

	return r
}
