// Package main is the entry point for the github-link server.
//
// The main package is kept minimal — its job is to:
// 1. Read configuration from the environment
// 2. Create dependencies (logger, server)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server and below).
// Nothing outside this file touches the environment, which is what keeps
// the rest of the codebase deterministic under test.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sakif/github-link/internal/server"
)

func main() {
	// slog.New creates a structured logger. TextHandler outputs
	// human-readable lines; in production you'd likely switch to
	// JSONHandler and LevelInfo.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	// Default to "data/github-link.db"; DB_PATH overrides for deployments.
	dbPath := "data/github-link.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}

	// Ensure the data directory exists (like `mkdir -p`).
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// JWT_SECRET must be a long random string. Use:
	//   JWT_SECRET=$(openssl rand -hex 32)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	// GitHub OAuth app credentials. Register one at:
	// https://github.com/settings/developers → "OAuth Apps" → "New OAuth App"
	// If unset, the server starts but the linking routes answer 500 until
	// the operator supplies them.
	githubClientID := os.Getenv("GITHUB_CLIENT_ID")
	githubClientSecret := os.Getenv("GITHUB_CLIENT_SECRET")
	if githubClientID == "" {
		logger.Warn("GITHUB_CLIENT_ID not set — GitHub linking is disabled")
	}

	githubCallbackURL := os.Getenv("GITHUB_CALLBACK_URL")
	if githubCallbackURL == "" {
		githubCallbackURL = fmt.Sprintf("http://localhost:%d/api/github/callback", port)
	}

	// Where the callback sends the browser afterwards. These point at the
	// frontend app, which explains the outcome to the user.
	frontendSuccessURL := os.Getenv("FRONTEND_SUCCESS_URL")
	if frontendSuccessURL == "" {
		frontendSuccessURL = "http://localhost:3000/settings?github=connected"
	}
	frontendErrorURL := os.Getenv("FRONTEND_ERROR_URL")
	if frontendErrorURL == "" {
		frontendErrorURL = "http://localhost:3000/settings"
	}

	cfg := server.Config{
		Port:               port,
		DBPath:             dbPath,
		JWTSecret:          jwtSecret,
		GitHubClientID:     githubClientID,
		GitHubClientSecret: githubClientSecret,
		GitHubCallbackURL:  githubCallbackURL,
		FrontendSuccessURL: frontendSuccessURL,
		FrontendErrorURL:   frontendErrorURL,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
