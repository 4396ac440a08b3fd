// Package server wires handlers and middleware into a chi router and runs the
// HTTP server with graceful shutdown.
//
// Dependencies are built by the caller (cmd/server or a test) and passed in
// through Deps, so the same router can be served for real or driven through
// httptest.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/pollquest/internal/handler"
	"github.com/sakif/pollquest/internal/metrics"
	"github.com/sakif/pollquest/internal/middleware"
)

const (
	shutdownTimeout = 30 * time.Second
	healthTimeout   = 2 * time.Second
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP-level settings.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Deps are the collaborators the routes dispatch to.
type Deps struct {
	Store    Pinger
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Accounts handler.Accounts
	Engine   handler.Engine
	Reports  handler.Reports
}

// Server is the HTTP front of the service.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	deps   Deps
}

// New builds the router. It does not start listening.
func New(cfg Config, logger *slog.Logger, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes registers middleware and routes.
//
//	POST /api/register                 → create account
//	POST /api/login                    → check credentials
//	POST /api/polls?user_id=           → create poll
//	GET  /api/polls                    → list active polls
//	GET  /api/polls/{id}               → one poll
//	POST /api/vote                     → cast a vote
//	GET  /api/leaderboard              → users by XP
//	GET  /api/users/{id}/profile       → public profile
//	GET  /api/users/{id}/achievements  → earned achievements
//	GET  /api/achievements             → achievement catalog
//	GET  /healthz                      → store reachability
//	GET  /metrics                      → Prometheus exposition
//
// Middleware order matters: the request id must exist before Logger reads
// it, and Recoverer sits inside Logger so a panic is still logged as a 500.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.deps.Metrics))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(s.config.CORSOrigins))

	authHandler := handler.NewAuthHandler(s.deps.Accounts, s.logger)
	pollHandler := handler.NewPollHandler(s.deps.Engine, s.deps.Reports, s.logger)
	userHandler := handler.NewUserHandler(s.deps.Reports, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)

		r.Post("/polls", pollHandler.HandleCreate)
		r.Get("/polls", pollHandler.HandleList)
		r.Get("/polls/{id}", pollHandler.HandleGetByID)
		r.Post("/vote", pollHandler.HandleVote)

		r.Get("/leaderboard", userHandler.HandleLeaderboard)
		r.Get("/users/{id}/profile", userHandler.HandleProfile)
		r.Get("/users/{id}/achievements", userHandler.HandleAchievements)
		r.Get("/achievements", userHandler.HandleCatalog)
	})

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to 30 seconds. Closing the store is left to the caller.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
