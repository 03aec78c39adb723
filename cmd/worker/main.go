package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/balanza-erp/balanza-erp/internal/app"
	"github.com/balanza-erp/balanza-erp/internal/audit"
	jobmetrics "github.com/balanza-erp/balanza-erp/internal/jobs"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/platform/cache"
	"github.com/balanza-erp/balanza-erp/internal/platform/db"
	"github.com/balanza-erp/balanza-erp/internal/shared"
	"github.com/balanza-erp/balanza-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	repo := ledger.NewRepository(pool, cfg.InitialBalance)
	auditService := audit.NewService(pool)
	seriesCache := ledger.NewRedisSeriesCache(redisClient, 10*time.Minute)
	idemStore := shared.NewIdempotencyStore(pool)
	service := ledger.NewService(repo, auditService, seriesCache, idemStore, logger)
	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.LedgerIntegrityHandler(service, metrics, logger)},
			{Type: jobs.TaskSeriesWarmup, Handler: jobs.SeriesWarmupHandler(service, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/30 * * * *", Task: jobs.NewSeriesWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
