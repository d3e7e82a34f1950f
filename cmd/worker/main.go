package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/coopfin/coopfin/internal/app"
	"github.com/coopfin/coopfin/internal/deposits"
	"github.com/coopfin/coopfin/internal/ledger/accounts"
	"github.com/coopfin/coopfin/internal/ledger/journal"
	"github.com/coopfin/coopfin/internal/ledger/statement"
	"github.com/coopfin/coopfin/internal/loans"
	"github.com/coopfin/coopfin/internal/platform/cache"
	"github.com/coopfin/coopfin/internal/platform/db"
	"github.com/coopfin/coopfin/internal/shared"
	"github.com/coopfin/coopfin/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	redisClient, err = cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, run claims disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	stmtCache := statement.NewCache(redisClient, cfg.StatementCacheTTL)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo)

	journalRepo := journal.NewRepository(pool)
	journalService := journal.NewService(journalRepo).WithCacheInvalidator(stmtCache)

	statementRepo := statement.NewRepository(pool)
	statementService := statement.NewService(statementRepo, accountsRepo).WithCache(stmtCache).WithMaxLines(cfg.StatementMaxLines)

	loansRepo := loans.NewRepository(pool)
	loansService := loans.NewService(loansRepo, journalService, loans.GLConfig{
		LoanReceivableCode: cfg.GLLoanReceivableCode,
		CashCode:           cfg.GLCashCode,
		InterestIncomeCode: cfg.GLInterestIncomeCode,
	})

	claims := shared.NewRunClaims(redisClient, cfg.InterestClaimTTL)
	depositsRepo := deposits.NewRepository(pool)
	depositsService := deposits.NewService(depositsRepo, journalService, accountsService, statementService, claims, deposits.GLConfig{
		CashCode: cfg.GLCashCode,
	})

	interestJob := jobs.NewInterestRunJob(depositsService, logger)
	overdueJob := jobs.NewLoanOverdueScanJob(loansService, logger)

	interestTask, err := jobs.NewInterestRunTask(jobs.InterestRunPayload{})
	if err != nil {
		logger.Error("build interest run task", slog.Any("error", err))
		os.Exit(1)
	}
	overdueTask, err := jobs.NewLoanOverdueScanTask(jobs.LoanOverdueScanPayload{})
	if err != nil {
		logger.Error("build overdue scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInterestRun, Handler: interestJob.Handle},
			{Type: jobs.TaskLoanOverdueScan, Handler: overdueJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.InterestRunCron, Task: interestTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 1 * * *", Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
