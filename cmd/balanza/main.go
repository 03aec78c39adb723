package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/balanza-erp/balanza-erp/internal/app"
	"github.com/balanza-erp/balanza-erp/internal/audit"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/ledger/export"
	"github.com/balanza-erp/balanza-erp/internal/ledger/importer"
	"github.com/balanza-erp/balanza-erp/internal/observability"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()

	repo := ledger.NewRepository(pool, cfg.InitialBalance)
	auditService := audit.NewService(pool)
	seriesCache := ledger.NewRedisSeriesCache(redisClient, 10*time.Minute)
	idemStore := shared.NewIdempotencyStore(pool)
	service := ledger.NewService(repo, auditService, seriesCache, idemStore, logger).
		WithMetrics(metrics)

	if err := service.EnsureAnchor(ctx); err != nil {
		logger.Error("seed opening balance", slog.Any("error", err))
		os.Exit(1)
	}

	handler := ledger.NewHandler(logger, service, ledger.Catalogs{
		Suppliers:     cfg.Suppliers,
		Agencies:      cfg.Agencies,
		DocumentTypes: cfg.DocumentTypes,
	}, export.NewXLSXExporter(), importer.NewXLSXParser())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		LedgerHandler: handler,
		JobsHandler:   jobsHandler,
		Audit:         auditService,
		Pool:          pool,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
