// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go reads the environment into Config and hands it here. New() then
// assembles the whole graph in one place (the "composition root"):
//
//	sqlite.DB → AccountService + LinkService → handlers → routes
//	           ↘ TokenService / PasswordService / github.HTTPClient
//
// Nothing below this package reads the environment — services and handlers
// receive explicit values, which is what makes them testable without env
// mutation.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/github-link/internal/auth"
	"github.com/sakif/github-link/internal/github"
	"github.com/sakif/github-link/internal/handler"
	"github.com/sakif/github-link/internal/middleware"
	sqliteRepo "github.com/sakif/github-link/internal/repository/sqlite"
	"github.com/sakif/github-link/internal/service"
)

// Config holds server configuration.
// Using a struct for config (instead of individual parameters) makes it easy to:
// - Add new config options without changing function signatures
// - Pass config around as a single value
// - Load config from env vars in one place (main.go)
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string

	// GitHub OAuth app credentials. An empty client id means linking is
	// unconfigured: the server still starts, and the authorize route
	// answers 500 until the operator supplies credentials.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// Where the OAuth callback sends the browser afterwards. Fixed values
	// from config — never derived from request input.
	FrontendSuccessURL string
	FrontendErrorURL   string
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. When the server shuts down we
// must close it to flush pending writes and release the file lock; Start()
// handles that during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a new Server with the given config.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST /api/auth/register       → create account (JSON)
//	POST /api/auth/login          → log in, receive JWT (JSON)
//	GET  /api/me                  → current user (bearer auth)
//	GET  /api/github/auth         → 302 to GitHub (JWT via ?token=)
//	GET  /api/github/callback     → 302 to frontend (unauthenticated; state-validated)
//	GET  /api/github/status       → linkage status (bearer auth)
//	POST /api/github/disconnect   → sever linkage (bearer auth)
//	GET  /api/github/repositories → list repos (bearer auth)
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// === AUTH FOUNDATION ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	// === DEPENDENCY CHAIN ===
	// s.db (sqlite.DB) implements repository.UserRepository.
	// Services receive the interfaces; handlers receive the services.
	// The handler never touches the database, the service never touches HTTP.
	ghClient := github.NewClient(github.Config{
		ClientID:     s.config.GitHubClientID,
		ClientSecret: s.config.GitHubClientSecret,
		CallbackURL:  s.config.GitHubCallbackURL,
	})

	accountService := service.NewAccountService(s.db, tokens, passwords, s.logger)
	linkService := service.NewLinkService(s.db, ghClient, s.logger)

	accountHandler := handler.NewAccountHandler(accountService, s.logger)
	githubHandler := handler.NewGitHubHandler(
		linkService,
		s.config.FrontendSuccessURL,
		s.config.FrontendErrorURL,
		s.logger,
	)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", accountHandler.HandleRegister)
		r.Post("/auth/login", accountHandler.HandleLogin)

		r.With(auth.RequireAuth(tokens)).Get("/me", accountHandler.HandleMe)

		r.Route("/github", func(r chi.Router) {
			// The authorize route is reached by a browser navigation, so
			// the JWT travels as ?token= instead of a header.
			r.With(auth.RequireQueryAuth(tokens)).Get("/auth", githubHandler.HandleAuthorize)

			// The callback is GitHub's re-entry point: deliberately
			// unauthenticated, validated via the state parameter.
			r.Get("/callback", githubHandler.HandleCallback)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(tokens))
				r.Get("/status", githubHandler.HandleStatus)
				r.Post("/disconnect", githubHandler.HandleDisconnect)
				r.Get("/repositories", githubHandler.HandleRepositories)
			})
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	// Ensure the database is closed when the server stops.
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Bool("githubConfigured", s.config.GitHubClientID != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
