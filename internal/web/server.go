// Package web serves the character session over a small JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hpungsan/hearth/internal/config"
	"github.com/hpungsan/hearth/internal/metrics"
	"github.com/hpungsan/hearth/internal/state"
)

// NewServer creates and configures the HTTP server for one character session.
// m may be nil, in which case /metrics is not mounted.
func NewServer(store *state.Store, m *metrics.Metrics, cfg *config.Config, version string, log *zap.Logger) *http.Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("web")

	h := &Handlers{
		store:    store,
		cfg:      cfg,
		renderer: NewRenderer(version, log),
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/character", http.StatusFound)
	})
	mux.HandleFunc("GET /character", h.HandleCharacter)
	mux.HandleFunc("POST /character/load", h.HandleLoad)
	mux.HandleFunc("POST /character/stat", h.HandleAdjustStat)
	mux.HandleFunc("POST /character/condition", h.HandleToggleCondition)
	mux.HandleFunc("POST /character/rest", h.HandleRest)
	mux.HandleFunc("POST /character/max-stat", h.HandleIncreaseMaxStat)
	mux.HandleFunc("GET /character/notes", h.HandleNotes)
	mux.HandleFunc("GET /encounter", h.HandleEncounter)
	mux.HandleFunc("POST /encounter/refresh", h.HandleRefreshEncounter)
	mux.HandleFunc("POST /encounter/initiative", h.HandleInitiative)
	mux.HandleFunc("PATCH /combatants/{id}", h.HandleUpdateCombatant)
	mux.HandleFunc("GET /catalog/items", h.HandleItems)
	mux.HandleFunc("GET /catalog/heroic-abilities", h.HandleHeroicAbilities)
	mux.HandleFunc("GET /status", h.HandleStatus)

	if m != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	// Wrap with security headers
	handler := securityHeaders(mux)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.WebBind, cfg.WebPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and shuts it down gracefully on SIGINT/SIGTERM or when ctx ends.
func Run(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("hearth API listening", zap.String("addr", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
