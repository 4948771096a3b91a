// Package server implements the HTTP transport layer for the llamaxing
// gateway: a chi router exposing the five proxied endpoints under both a
// bare and a "/v1"-prefixed mount, with the auth/request-id/recovery/
// logging middleware chain wired around them (spec §6).
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"go.opentelemetry.io/otel/trace"

	llamaxing "github.com/johannestang/llamaxing/internal"
	"github.com/johannestang/llamaxing/internal/auth"
	"github.com/johannestang/llamaxing/internal/dispatch"
	"github.com/johannestang/llamaxing/internal/relay"
	"github.com/johannestang/llamaxing/internal/telemetry"
)

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth       auth.Handler
	Dispatcher *dispatch.Dispatcher
	Relay      *relay.Relay

	AppName        string        // reported as "proxied_by" in /models (spec §6)
	RequestTimeout time.Duration // app_requests_timeout (spec §6)

	Metrics        *telemetry.Metrics // nil = no Prometheus metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
	Tracer         trace.Tracer       // nil = no distributed tracing
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.securityHeaders)
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if deps.Tracer != nil {
		r.Use(tracingMiddleware(deps.Tracer))
	}

	r.Get("/healthz", s.handleHealthz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Client-facing API, mounted at both the bare path and under /v1 (spec
	// §6's "all accept both /… and /v1/…"); the 5 routes and the auth
	// middleware are identical under both prefixes.
	api := func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/chat/completions", s.handleEndpoint(llamaxing.EndpointChatCompletions))
		r.Post("/completions", s.handleEndpoint(llamaxing.EndpointCompletions))
		r.Post("/embeddings", s.handleEndpoint(llamaxing.EndpointEmbeddings))
		r.Post("/images/generations", s.handleEndpoint(llamaxing.EndpointImagesGeneration))
		r.Get("/models", s.handleListModels)
	}
	r.Group(api)
	r.Route("/v1", api)

	return r
}

type server struct {
	deps Deps
}
