// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
// - Which account store backs the service (memory, SQLite or Postgres)
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → OpenStore → repository.AccountStore
//	                          ↘
//	PasswordService + TokenService + metrics.Recorder → AuthService → AuthHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/NewWithStore), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/xrauth/internal/auth"
	"github.com/sakif/xrauth/internal/config"
	"github.com/sakif/xrauth/internal/handler"
	"github.com/sakif/xrauth/internal/metrics"
	"github.com/sakif/xrauth/internal/middleware"
	"github.com/sakif/xrauth/internal/repository"
	"github.com/sakif/xrauth/internal/repository/memory"
	"github.com/sakif/xrauth/internal/repository/postgres"
	sqliteRepo "github.com/sakif/xrauth/internal/repository/sqlite"
	"github.com/sakif/xrauth/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the account store. When the server shuts down the store
// is closed (flushing SQLite's WAL, returning Postgres connections).
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	store    repository.AccountStore
	backend  config.Backend
	registry *prometheus.Registry
}

// New opens the configured store and builds a Server around it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, backend, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s, err := NewWithStore(cfg, logger, store, backend)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a Server on an already-open store. The Server takes
// ownership of store and closes it on shutdown.
//
// Each layer only receives what it needs:
// - Service gets the repository interface (not the concrete store)
// - Handler gets the service (not the repository)
func NewWithStore(cfg config.Config, logger *slog.Logger, store repository.AccountStore, backend config.Backend) (*Server, error) {
	passwords, err := auth.NewPasswordService(cfg.BcryptCost, cfg.HashConcurrency)
	if err != nil {
		return nil, fmt.Errorf("creating password service: %w", err)
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	// A private registry rather than prometheus.DefaultRegisterer, so tests
	// can build as many servers as they like.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    store,
		backend:  backend,
		registry: registry,
	}

	authService := service.NewAuthService(store, tokens, passwords, recorder, logger)
	s.setupRoutes(authService, tokens)

	return s, nil
}

// OpenStore opens the account store cfg.Backend selects.
//
// FALLBACK:
// When a database backend can't be opened the error is returned, unless
// cfg.FallbackToMemory is set: then a Warn is logged and the in-memory store
// is used instead. The returned Backend reports what's actually in use.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.AccountStore, config.Backend, error) {
	store, err := openBackend(ctx, cfg)
	if err == nil {
		if cfg.MockMode {
			logger.Warn("running in mock mode: accounts are kept in memory and lost on restart")
		}
		return store, cfg.Backend, nil
	}

	if !cfg.FallbackToMemory {
		return nil, "", fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	logger.Warn("account backend unavailable, falling back to in-memory store",
		slog.String("backend", string(cfg.Backend)),
		slog.String("error", err.Error()),
	)
	return memory.New(), config.BackendMemory, nil
}

func openBackend(ctx context.Context, cfg config.Config) (repository.AccountStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLiteLinked:
		db, err := sqliteRepo.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqliteRepo.NewLinkedStore(db), nil
	case config.BackendSQLite:
		db, err := sqliteRepo.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqliteRepo.NewFlatStore(db), nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Migrate applies the selected backend's migrations and returns the
// versions applied. The memory backend has no schema.
func Migrate(ctx context.Context, cfg config.Config) ([]int64, error) {
	switch cfg.Backend {
	case config.BackendSQLite, config.BackendSQLiteLinked:
		return sqliteRepo.MigratePath(ctx, cfg.SQLitePath)
	case config.BackendPostgres:
		return postgres.Migrate(ctx, cfg.DatabaseURL)
	case config.BackendMemory:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /signup   → create account, returns user + token
// POST   /signin   → email/password login, returns user + token
// GET    /me       → current user (Authorization: Bearer <jwt>)
// GET    /healthz  → store ping
// GET    /metrics  → Prometheus exposition
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (the logger reads it)
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
func (s *Server) setupRoutes(authService *service.AuthService, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	authHandler := handler.NewAuthHandler(authService, s.logger)
	healthHandler := handler.NewHealthHandler(authService, string(s.backend), s.logger)

	s.router.Post("/signup", authHandler.HandleSignUp)
	s.router.Post("/signin", authHandler.HandleSignIn)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/me", authHandler.HandleMe)
	})

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", metrics.Handler(s.registry))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return s.Run(ctx)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait up to ShutdownTimeout for in-flight requests to finish
// 3. Close the account store
//
// The store is closed on every return path, including a failed listen.
// In mock mode the accounts die with the process; the count is logged.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if mem, ok := s.store.(*memory.Store); ok {
			s.logger.Warn("discarding in-memory accounts", slog.Int("accounts", mem.Len()))
		}
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing account store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(s.config.Port)),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.Addr, err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("backend", string(s.backend)),
		)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		<-serverErrors
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
