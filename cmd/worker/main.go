package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/crmgateway/internal/audit"
	"github.com/nikhilbhutani/crmgateway/internal/config"
	"github.com/nikhilbhutani/crmgateway/internal/database"
	"github.com/nikhilbhutani/crmgateway/internal/queue"
	"github.com/nikhilbhutani/crmgateway/internal/queue/workers"
	"github.com/nikhilbhutani/crmgateway/internal/store"
	"github.com/nikhilbhutani/crmgateway/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateWorker(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Async.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	auditWorker := workers.NewAuditWorker(audit.NewStore(db))
	usageWorker := workers.NewUsageWorker(store.NewAPIKeys(db))
	webhookWorker := workers.NewWebhookWorker(webhook.NewHTTPDeliverer(webhook.NewStore(db), cfg.Async.WorkTimeout))

	registry.Register(queue.TypeAuditRecord, auditWorker.ProcessTask)
	registry.Register(queue.TypeAPIKeyUsage, usageWorker.ProcessTask)
	registry.Register(queue.TypeWebhookDeliver, webhookWorker.ProcessTask)

	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
	slog.Info("starting worker", "concurrency", cfg.Async.WorkerConcurrency)

	<-ctx.Done()
	slog.Info("shutting down worker...")
	srv.Shutdown()
}
