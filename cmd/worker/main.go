package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmlink/farmlink/internal/app"
	jobmetrics "github.com/farmlink/farmlink/internal/jobs"
	"github.com/farmlink/farmlink/internal/money"
	"github.com/farmlink/farmlink/internal/notify"
	"github.com/farmlink/farmlink/internal/platform/cache"
	"github.com/farmlink/farmlink/internal/platform/db"
	"github.com/farmlink/farmlink/internal/rbac"
	"github.com/farmlink/farmlink/internal/settlement"
	"github.com/farmlink/farmlink/internal/shared"
	"github.com/farmlink/farmlink/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil || redisClient == nil {
		logger.Error("worker requires redis", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	actors := rbac.NewService(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	settlementService := settlement.NewService(settlement.Dependencies{
		Repo:      settlement.NewRepository(pool, idempotency, cfg.DBTxMaxRetries),
		Actors:    actors,
		History:   shared.NewApprovalRecorder(pool, logger),
		Audit:     shared.NewAuditLogger(pool),
		Notifier:  notify.NewQueueSink(client),
		Locker:    shared.NewFarmerLocker(redisClient, cfg.FarmerLockTTL, cfg.FarmerLockWait),
		Formatter: money.NewFormatter(cfg.CurrencyLocale),
		Logger:    logger,
	})

	deliverer := notify.NewDeliverer(notify.NewPGStore(pool), actors, logger)
	integrityJob := jobs.NewLedgerIntegrityJob(settlementService, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotency, cfg.IdempotencyRetention, logger, metrics)

	integrityTask, err := jobs.NewLedgerIntegrityTask(0)
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(0)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: notify.TaskTypeDeliver, Handler: deliverer.Handle},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: integrityTask},
			{Spec: "30 3 * * *", Task: cleanupTask},
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
