package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/depotfs/depotfs/internal/api/handlers"
	apimiddleware "github.com/depotfs/depotfs/internal/api/middleware"
	"github.com/depotfs/depotfs/internal/logger"
)

// NewRouter builds the chi router over the wired dependencies.
//
// Middleware stack, in order: request id, real ip, request logging, panic
// recovery, a 30 second timeout, and request metrics. Everything under
// /v1 additionally runs delegate JWT authentication and proof-header
// extraction, except token refresh which authenticates by refresh token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(apimiddleware.Metrics(deps.HTTPMetrics))

	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	authHandler := handlers.NewAuthHandler(deps.JWT, deps.Delegates)
	delegateHandler := handlers.NewDelegateHandler(deps.JWT, deps.Delegates)
	nodeHandler := handlers.NewNodeHandler(deps.Nodes, deps.Gate, deps.Hook, deps.NodeLimit)
	fsHandler := handlers.NewFSHandler(deps.FS)
	depotHandler := handlers.NewDepotHandler(deps.Depots)
	claimHandler := handlers.NewClaimHandler(deps.Claims)
	ticketHandler := handlers.NewTicketHandler(deps.Tickets)

	r.Route("/v1", func(r chi.Router) {
		// Refresh authenticates by the presented refresh token itself.
		r.Post("/auth/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.JWTAuth(deps.JWT, deps.Delegates))
			r.Use(apimiddleware.ProofExtractor)

			r.Route("/delegates", func(r chi.Router) {
				r.Post("/", delegateHandler.Create)
				r.Get("/{id}", delegateHandler.Get)
				r.Delete("/{id}", delegateHandler.Revoke)
			})

			r.Route("/nodes", func(r chi.Router) {
				r.Get("/{key}", nodeHandler.Get)
				r.Put("/{key}", nodeHandler.Put)
			})

			r.Route("/fs", func(r chi.Router) {
				r.Get("/read", fsHandler.Read)
				r.Get("/stat", fsHandler.Stat)
				r.Get("/list", fsHandler.List)
				r.Post("/{op}", fsHandler.Mutate)
			})

			r.Route("/depots", func(r chi.Router) {
				r.Post("/", depotHandler.Create)
				r.Get("/", depotHandler.List)
				r.Get("/{id}", depotHandler.Get)
				r.Post("/{id}/commit", depotHandler.Commit)
				r.Patch("/{id}", depotHandler.Update)
				r.Delete("/{id}", depotHandler.Delete)
			})

			r.Post("/claims", claimHandler.Create)

			r.Route("/tickets", func(r chi.Router) {
				r.Post("/", ticketHandler.Create)
				r.Get("/", ticketHandler.List)
				r.Get("/{id}", ticketHandler.Get)
				r.Post("/{id}/submit", ticketHandler.Submit)
				r.Delete("/{id}", ticketHandler.Delete)
			})
		})
	})

	return r
}

// isHealthPath reports whether the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs request start at DEBUG and completion at INFO, with
// healthcheck traffic kept at DEBUG to avoid polluting logs under probes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
