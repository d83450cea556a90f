package main

import (
	"context"
	"errors"
	"os"
	"time"

	"vansales/internal/amqp"
	"vansales/internal/backend"
	"vansales/internal/cli"
	"vansales/internal/config"
	applog "vansales/internal/log"
	"vansales/internal/metrics"
	"vansales/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(applog.ComponentWorker)

	logger.Info("Starting vansales-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The mirror reads the primary store; the summary archive is not used here.
	cfg.MongoURI = ""
	be, err := backend.Open(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to open data backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer be.Close(context.Background())

	target, err := backend.OpenSheets(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirror := worker.NewMirror(be.Store, target, metrics.New())

	logger.Info("Performing startup sync check...")
	if err := mirror.SyncAll(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	go func() {
		if err := amqpClient.ConsumeRecordEvents(ctx, mirror.HandleRecordEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
		cancel()
	}()

	// Periodic full sync catches events lost while the broker was unreachable.
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := mirror.SyncAll(ctx); err != nil {
					logger.Error("Periodic sync failed", applog.FieldError, err)
				}
			}
		}
	}()

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.Shutdown, func(context.Context) { cancel() })
	select {
	case <-shutdownCtx.Done():
		<-done
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}
	logger.Info("Worker stopped")
}
