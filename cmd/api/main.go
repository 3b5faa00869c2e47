package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/crmgateway/internal/api"
	"github.com/nikhilbhutani/crmgateway/internal/api/handlers"
	"github.com/nikhilbhutani/crmgateway/internal/audit"
	"github.com/nikhilbhutani/crmgateway/internal/auth"
	"github.com/nikhilbhutani/crmgateway/internal/config"
	"github.com/nikhilbhutani/crmgateway/internal/database"
	"github.com/nikhilbhutani/crmgateway/internal/gateway"
	"github.com/nikhilbhutani/crmgateway/internal/messaging"
	"github.com/nikhilbhutani/crmgateway/internal/queue"
	"github.com/nikhilbhutani/crmgateway/internal/ratelimit"
	"github.com/nikhilbhutani/crmgateway/internal/store"
	"github.com/nikhilbhutani/crmgateway/internal/webhook"
)

const webhookBuffer = 256

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
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

	if err := database.RunMigrations(ctx, db); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable", "error", err)
	}
	defer rdb.Close()

	keys := store.NewAPIKeys(db)
	webhooks := webhook.NewStore(db)

	var (
		auditSink audit.Sink
		usage     auth.UsageRecorder
		deliverer webhook.Deliverer
	)
	switch cfg.Async.Mode {
	case config.AsyncModeQueue:
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		auditSink, usage, deliverer = qc, qc, qc
	default:
		auditSink = audit.NewStore(db)
		usage = keys
		deliverer = webhook.NewHTTPDeliverer(webhooks, cfg.Async.WorkTimeout)
	}
	slog.Info("async bookkeeping", "mode", cfg.Async.Mode)

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		limiter = ratelimit.NewRedis(rdb)
	default:
		mem := ratelimit.NewMemory()
		go mem.Run(ctx)
		limiter = mem
	}

	validator := auth.NewValidator(keys, usage, cfg.Async.WorkTimeout)
	auditLogger := audit.NewLogger(auditSink, cfg.Async.WorkTimeout)
	dispatcher := webhook.NewDispatcher(webhooks, deliverer, cfg.Async.WorkTimeout, webhookBuffer)
	sender := messaging.NewHTTPSender(cfg.Messaging.BaseURL, cfg.Messaging.SigningSecret, cfg.Messaging.Timeout)

	gw := gateway.New(
		gateway.Options{
			PathPrefix:       cfg.Gateway.PathPrefix,
			KeyHeader:        cfg.Auth.APIKeyHeader,
			RequestTimeout:   cfg.Gateway.RequestTimeout,
			MaxBodyBytes:     cfg.Gateway.MaxBodyBytes,
			DefaultRateLimit: cfg.RateLimit.DefaultPerMinute,
		},
		validator,
		limiter,
		gateway.Routes(store.NewPostgres(db), sender, dispatcher),
		auditLogger,
	)

	health := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": db,
		"redis":    handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}, 2*time.Second)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(gw, cfg.Gateway.PathPrefix, cfg.Auth.APIKeyHeader, health).Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Gateway.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "prefix", cfg.Gateway.PathPrefix)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	// Requests are done; flush what they queued.
	dispatcher.Close()
	auditLogger.Close()
	validator.Close()
	slog.Info("server stopped")
}
