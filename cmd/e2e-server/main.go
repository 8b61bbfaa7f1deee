// Package main provides a standalone HTTP server for E2E testing.
// It serves the same routes as cmd/server, with every upstream API replaced
// by an in-process mock, so the frontend can be exercised offline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-dashboard/e2e"
	"crypto-dashboard/e2e/mocks"
	"crypto-dashboard/internal/api"
	"crypto-dashboard/observability"
	"crypto-dashboard/repository"
)

func main() {
	// Initialize logger in development mode for tests
	observability.InitLogger(false)
	observability.InitMetrics()

	port := os.Getenv("E2E_SERVER_PORT")
	if port == "" {
		port = "9090"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockServer := mocks.NewMockServer()
	defer mockServer.Close()
	observability.Info("mock upstreams started", "url", mockServer.URL())

	cfg := e2e.NewConfig(mockServer)
	cfg.HTTP.Port = port

	// Postgres is optional; without it analyses are not persisted
	var repo *repository.Repository
	if databaseURL := os.Getenv("E2E_DATABASE_URL"); databaseURL != "" {
		var err error
		repo, err = repository.NewRepository(ctx, databaseURL)
		if err != nil {
			observability.Fatal("failed to connect to database", "error", err)
		}
		defer repo.Close()
		if err := repo.Migrate(ctx); err != nil {
			observability.Fatal("failed to migrate database", "error", err)
		}
		cfg.Database.URL = databaseURL
		observability.Info("connected to test database")
	}

	application, sched, err := e2e.Build(ctx, cfg, repo)
	if err != nil {
		observability.Fatal("failed to build application", "error", err)
	}
	defer sched.Stop()

	handler := api.NewHandler(application, cfg)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		observability.Info("starting E2E test server", "port", port, "url", fmt.Sprintf("http://localhost:%s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down E2E test server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("server forced to shutdown", "error", err)
	}

	application.Shutdown(shutdownCtx)
	observability.Info("E2E test server stopped")
}
