// Package gateway exposes the coordinator's HTTP surface: job
// dispatch, package intake/submit/fail, listing, report forwarding, and
// ruleset refresh, plus unauthenticated Prometheus metrics. It holds no
// business logic of its own — every handler is a thin adapter over
// internal/store, internal/reporter, and internal/rules.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/scanhub-io/coordinator/internal/auth"
	"github.com/scanhub-io/coordinator/internal/reporter"
	"github.com/scanhub-io/coordinator/internal/rules"
	"github.com/scanhub-io/coordinator/internal/store"
)

// Server is the coordinator's long-running HTTP daemon.
type Server struct {
	store          *store.Store
	reporter       *reporter.Client
	rulesProvider  *rules.Provider
	rulesRefresher *rules.Refresher
	jobTimeout     time.Duration
	port           int
	metrics        *Metrics
}

// Config bundles the dependencies Server needs to construct its router.
type Config struct {
	Store          *store.Store
	Reporter       *reporter.Client
	RulesProvider  *rules.Provider
	RulesRefresher *rules.Refresher
	JobTimeout     time.Duration
	Port           int
}

// New builds a Server. Call Start to begin serving.
func New(cfg Config) *Server {
	return &Server{
		store:          cfg.Store,
		reporter:       cfg.Reporter,
		rulesProvider:  cfg.RulesProvider,
		rulesRefresher: cfg.RulesRefresher,
		jobTimeout:     cfg.JobTimeout,
		port:           cfg.Port,
		metrics:        NewMetrics(),
	}
}

// Start binds the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (gw *Server) Start(ctx context.Context, verifier *auth.Verifier) error {
	addr := fmt.Sprintf(":%d", gw.port)
	srv := &http.Server{
		Addr:    addr,
		Handler: buildRouter(gw, verifier),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("coordinator: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
