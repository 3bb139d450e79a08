// Package api assembles the HTTP surface of DepotFS: the router over the
// handlers in internal/api and the server lifecycle around it.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/depotfs/depotfs/internal/api/auth"
	"github.com/depotfs/depotfs/internal/api/handlers"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/authz"
	"github.com/depotfs/depotfs/pkg/claim"
	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/depot"
	"github.com/depotfs/depotfs/pkg/fs"
	"github.com/depotfs/depotfs/pkg/metrics"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
	"github.com/depotfs/depotfs/pkg/ticket"
)

// Deps carries the wired core services the API serves.
type Deps struct {
	JWT       *auth.JWTService
	Delegates *delegate.Service
	FS        *fs.Service
	Depots    *depot.Registry
	Tickets   *ticket.Service
	Claims    *claim.Service
	Gate      *authz.Gate

	// Nodes is the verified node store backing raw node get/put.
	Nodes nodestore.Store

	// Hook receives bookkeeping callbacks for raw node puts.
	Hook fs.StoredHook

	// NodeLimit caps raw node PUT bodies. Zero means the CAS default.
	NodeLimit uint64

	// HealthChecks are the dependency probes behind /health/ready.
	HealthChecks map[string]handlers.HealthChecker

	// HTTPMetrics is the request observation sink; nil disables it.
	HTTPMetrics metrics.HTTPMetrics
}

// Server is the DepotFS API HTTP server. It is created stopped; Start
// blocks until the context is cancelled, then shuts down gracefully.
type Server struct {
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates the API server over the wired dependencies.
func NewServer(config APIConfig, deps Deps) (*Server, error) {
	if deps.JWT == nil {
		return nil, fmt.Errorf("api server requires a JWT service")
	}
	if deps.Delegates == nil {
		return nil, fmt.Errorf("api server requires a delegate service")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      NewRouter(deps),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{server: server, config: config}, nil
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// The cancelled ctx would abort the shutdown immediately; give
		// in-flight requests their own grace window.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured for.
func (s *Server) Port() int {
	return s.config.Port
}
