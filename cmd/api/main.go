package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/arteita/fretebot/cmd/mainconfig"
	"github.com/arteita/fretebot/internal/app/bootstrap"
	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/pkg/logging"
)

func main() {
	// Local runs keep credentials in .env; deployed environments inject them.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting fretebot API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
		"queue_backend", cfg.QueueBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, err := loadClients(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp(ctx, cfg, clients, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	if runInlineWorkers(cfg) {
		app.StartWorkers(ctx)
	} else {
		logger.Info("inline workers disabled; run cmd/worker to consume the queue")
	}
	app.StartMaintenance(ctx)

	srv := newServer(cfg, app.Handler)

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForApp(shutdownCtx, app, logger)
	if err := app.Close(); err != nil {
		logger.Warn("error releasing resources", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func loadClients(ctx context.Context, cfg *appconfig.Config) (bootstrap.Clients, error) {
	if !mainconfig.NeedsAWS(cfg) {
		return bootstrap.Clients{}, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return bootstrap.Clients{}, err
	}
	return mainconfig.BuildClients(awsCfg, cfg), nil
}

// runInlineWorkers is false only when a shared queue lets dedicated worker
// processes take the load.
func runInlineWorkers(cfg *appconfig.Config) bool {
	return cfg.InlineWorkers || cfg.QueueBackend != "sqs"
}

func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func waitForApp(ctx context.Context, app *bootstrap.App, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		app.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("background workers stopped")
	case <-ctx.Done():
		logger.Error("background worker shutdown timed out", "error", ctx.Err())
	}
}
