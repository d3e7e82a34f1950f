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
	"github.com/redis/go-redis/v9"

	"github.com/coopfin/coopfin/internal/app"
	"github.com/coopfin/coopfin/internal/deposits"
	"github.com/coopfin/coopfin/internal/ledger/accounts"
	"github.com/coopfin/coopfin/internal/ledger/journal"
	"github.com/coopfin/coopfin/internal/ledger/statement"
	"github.com/coopfin/coopfin/internal/loans"
	"github.com/coopfin/coopfin/internal/payroll"
	"github.com/coopfin/coopfin/internal/platform/cache"
	"github.com/coopfin/coopfin/internal/platform/db"
	"github.com/coopfin/coopfin/internal/shared"
	"github.com/coopfin/coopfin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Warn("redis unavailable, statement cache and run claims disabled", slog.Any("error", err))
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
	accountsHandler := accounts.NewHandler(logger, accountsService)

	journalRepo := journal.NewRepository(pool)
	journalService := journal.NewService(journalRepo).WithCacheInvalidator(stmtCache)
	journalHandler := journal.NewHandler(logger, journalService)

	statementRepo := statement.NewRepository(pool)
	statementService := statement.NewService(statementRepo, accountsRepo).WithCache(stmtCache).WithMaxLines(cfg.StatementMaxLines)
	statementHandler := statement.NewHandler(logger, statementService)

	loansRepo := loans.NewRepository(pool)
	loansService := loans.NewService(loansRepo, journalService, loans.GLConfig{
		LoanReceivableCode: cfg.GLLoanReceivableCode,
		CashCode:           cfg.GLCashCode,
		InterestIncomeCode: cfg.GLInterestIncomeCode,
	})
	loansHandler := loans.NewHandler(logger, loansService)

	claims := shared.NewRunClaims(redisClient, cfg.InterestClaimTTL)
	depositsRepo := deposits.NewRepository(pool)
	depositsService := deposits.NewService(depositsRepo, journalService, accountsService, statementService, claims, deposits.GLConfig{
		CashCode: cfg.GLCashCode,
	})
	depositsHandler := deposits.NewHandler(logger, depositsService)

	payrollRepo := payroll.NewRepository(pool)
	payrollService := payroll.NewService(payrollRepo, journalService, payroll.GLConfig{
		SalaryExpenseCode:    cfg.GLSalaryExpenseCode,
		DeductionPayableCode: cfg.GLDeductionPayableCode,
		CashCode:             cfg.GLCashCode,
	})
	payrollHandler := payroll.NewHandler(logger, payrollService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AccountsHandler:  accountsHandler,
		JournalHandler:   journalHandler,
		StatementHandler: statementHandler,
		LoansHandler:     loansHandler,
		DepositsHandler:  depositsHandler,
		PayrollHandler:   payrollHandler,
		JobHandler:       jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
