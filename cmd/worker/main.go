package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/storewatch/storewatch/internal/app"
	"github.com/storewatch/storewatch/internal/gate"
	"github.com/storewatch/storewatch/internal/platform/cache"
	"github.com/storewatch/storewatch/internal/platform/db"
	"github.com/storewatch/storewatch/internal/tenant"
	"github.com/storewatch/storewatch/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
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

	usageCounter := gate.NewRedisUsageCounter(redisClient)
	recounter := jobs.NewUsageRecounter(pool, usageCounter, logger)

	contextCache := tenant.NewContextCache(cfg.ContextCacheTTL, cfg.ContextCacheSweep, logger)
	contextCache.Start(ctx)
	defer contextCache.Close()
	invalidator := jobs.NewTenantInvalidator(contextCache, logger)

	recountTask, err := jobs.NewUsageRecountTask(jobs.UsageRecountPayload{})
	if err != nil {
		logger.Error("build recount task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskUsageRecount, Handler: recounter.Handle},
			{Type: jobs.TaskTenantInvalidate, Handler: invalidator.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 1 * * *", Task: recountTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
