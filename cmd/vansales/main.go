package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"vansales/internal/amqp"
	"vansales/internal/auth"
	"vansales/internal/backend"
	"vansales/internal/cli"
	"vansales/internal/config"
	apphttp "vansales/internal/http"
	applog "vansales/internal/log"
	"vansales/internal/metrics"
	"vansales/internal/scheduler"
	"vansales/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	accounts, err := auth.ParseAccounts(cfg.PortalUsers)
	if err != nil {
		logger.Error("Invalid PORTAL_USERS", applog.FieldError, err)
		os.Exit(1)
	}

	ctx := context.Background()
	be, err := backend.Open(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to open data backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	caches, err := backend.OpenCaches(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to open caches", applog.FieldError, err)
		_ = be.Close(ctx)
		os.Exit(1)
	}

	m := metrics.New()

	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without record events", applog.FieldError, err)
		} else {
			publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	portal := services.NewPortal(services.Options{
		Store:      be.Store,
		Publisher:  publisher,
		Imports:    caches.Imports,
		Dashboards: caches.Dashboards,
		Metrics:    m,
		Location:   cfg.Location(),
		ImportTTL:  cfg.ImportTTL,
	})
	if err := portal.Load(ctx); err != nil {
		// The refresh job and /readyz recover once the store answers.
		logger.Error("Initial snapshot load failed", applog.FieldError, err)
	}

	sched := scheduler.New(cfg.Location(), portal, be.Archive, m)
	if err := sched.ScheduleSummary(cfg.SummaryCron); err != nil {
		logger.Error("Failed to schedule daily summary", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.DataBackend != config.BackendMemory {
		if err := sched.ScheduleRefresh(cfg.SyncInterval); err != nil {
			logger.Error("Failed to schedule snapshot refresh", applog.FieldError, err)
			os.Exit(1)
		}
	}
	sched.Start()

	srv := apphttp.NewServer(cfg.Addr(), apphttp.Deps{
		Portal:     portal,
		Auth:       auth.NewService(accounts),
		Tokens:     auth.NewTokens(cfg.SessionSecret, cfg.SessionTTL, caches.Revoked),
		Archive:    be.Archive,
		Metrics:    m,
		Logger:     logger.WithComponent(applog.ComponentHTTP),
		RateLimit:  cfg.RateLimit,
		Production: cfg.SecureCookies,
		Ready: func(ctx context.Context) error {
			return errors.Join(be.Ping(ctx), caches.Ping(ctx))
		},
	})
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.Shutdown, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		sched.Stop(ctx)
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", applog.FieldError, err)
			}
		}
		if err := caches.Close(); err != nil {
			logger.Error("Cache close error", applog.FieldError, err)
		}
		if err := be.Close(ctx); err != nil {
			logger.Error("Backend close error", applog.FieldError, err)
		}
	})

	logger.Info("Starting vansales server", "addr", cfg.Addr(), "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "addr", cfg.Addr())
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
