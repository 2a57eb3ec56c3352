package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arteita/fretebot/cmd/mainconfig"
	"github.com/arteita/fretebot/internal/app/bootstrap"
	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/pkg/logging"
)

// worker consumes the shared inbound queue so the API replicas only accept
// webhooks.
func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.QueueBackend != "sqs" {
		logger.Error("dedicated workers need QUEUE_BACKEND=sqs", "queue_backend", cfg.QueueBackend)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp(ctx, cfg, mainconfig.BuildClients(awsConfig, cfg), logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	app.StartWorkers(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down inbound worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		app.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("inbound worker stopped")
	case <-doneCtx.Done():
		logger.Error("inbound worker shutdown timed out", "error", doneCtx.Err())
	}
	if err := app.Close(); err != nil {
		logger.Warn("error releasing resources", "error", err)
	}
}
