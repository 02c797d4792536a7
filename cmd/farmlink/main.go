package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/farmlink/farmlink/cmd/farmlink/cli"
	"github.com/farmlink/farmlink/internal/app"
	"github.com/farmlink/farmlink/internal/ledger"
	"github.com/farmlink/farmlink/internal/money"
	"github.com/farmlink/farmlink/internal/notify"
	"github.com/farmlink/farmlink/internal/observability"
	"github.com/farmlink/farmlink/internal/platform/cache"
	"github.com/farmlink/farmlink/internal/platform/db"
	"github.com/farmlink/farmlink/internal/rbac"
	"github.com/farmlink/farmlink/internal/settlement"
	"github.com/farmlink/farmlink/internal/shared"
	"github.com/farmlink/farmlink/jobs"
)

const usage = `usage: farmlink <command>

commands:
  serve                         run the HTTP API (default)
  migrate up|down|version       manage the database schema
  backfill seed-debt [-apply]   derive seed_debt for legacy farmers
  jobs trigger <name>           enqueue ledger-integrity or idempotency-cleanup
  jobs stats                    print queue backlog
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	switch command {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			return 1
		}
		return 0
	case "migrate":
		return migrateCmd(cfg, logger, args)
	case "backfill":
		return backfillCmd(ctx, cfg, args)
	case "jobs":
		return jobsCmd(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	if redisClient == nil {
		logger.Warn("redis not configured, farmer locks and notifications disabled")
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	actors := rbac.NewService(pool)
	auditLogger := shared.NewAuditLogger(pool)
	locker := shared.NewFarmerLocker(redisClient, cfg.FarmerLockTTL, cfg.FarmerLockWait)

	var sink notify.Sink = notify.LogSink{Logger: logger}
	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		sink = notify.NewQueueSink(client)

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	settlementService := settlement.NewService(settlement.Dependencies{
		Repo:      settlement.NewRepository(pool, shared.NewIdempotencyStore(pool), cfg.DBTxMaxRetries),
		Actors:    actors,
		History:   shared.NewApprovalRecorder(pool, logger),
		Audit:     auditLogger,
		Notifier:  sink,
		Locker:    locker,
		Metrics:   metrics,
		Formatter: money.NewFormatter(cfg.CurrencyLocale),
		Logger:    logger,
	})
	ledgerService := ledger.NewService(ledger.NewRepository(pool, cfg.DBTxMaxRetries), actors, locker, auditLogger, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SettlementHandler: settlement.NewHandler(logger, settlementService),
		LedgerHandler:     ledger.NewHandler(logger, ledgerService),
		JobHandler:        jobHandler,
		RBACMiddleware:    rbac.Middleware{Logger: logger},
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func migrateCmd(cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) != 1 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	m, err := db.NewMigrator(cfg.PGDSN, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	defer func() { _ = m.Close() }()
	return cli.MigrateCommand(m, args[0], os.Stdout, os.Stderr)
}

func backfillCmd(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 || args[0] != "seed-debt" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("backfill seed-debt", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "persist the derived seed debt")
	jsonOut := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		return 1
	}
	defer pool.Close()
	return cli.SeedDebtCommand(ctx, ledger.NewRepository(pool, cfg.DBTxMaxRetries), cli.SeedDebtOptions{
		Apply:      *apply,
		JSONOutput: *jsonOut,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	})
}

func jobsCmd(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jc.Close() }()

	switch {
	case args[0] == "trigger" && len(args) == 2:
		info, err := jc.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case args[0] == "stats":
		stats, err := jc.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		for _, s := range stats {
			fmt.Fprintf(os.Stdout, "%s pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
		}
		return 0
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}
