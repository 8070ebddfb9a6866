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

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/materials"
	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/payments"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/projects"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/reconciliation"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/transactions"
	"github.com/meridian-erp/meridian-erp/internal/users"
	"github.com/meridian-erp/meridian-erp/internal/yearend"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	runLocks := shared.NewRunLock(redisClient)
	notifier := notify.BestEffort{Notifier: notify.NewAsynqNotifier(asynqClient), Logger: logger}

	usersService := users.NewService(users.NewRepository(dbpool), logger)
	usersHandler := users.NewHandler(logger, usersService, cfg.TokenTTL)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	accountsService := accounts.NewService(accounts.NewRepository(dbpool))
	accountsHandler := accounts.NewHandler(logger, accountsService, rbacMiddleware)

	fiscalService := fiscal.NewService(fiscal.NewRepository(dbpool), auditLogger, logger)
	fiscalHandler := fiscal.NewHandler(logger, fiscalService, rbacMiddleware)

	txnService := transactions.NewService(
		transactions.NewRepository(dbpool),
		fiscalService,
		accountsService,
		auditLogger,
		notifier,
		logger,
		transactions.Config{AllowUnresolvedPeriod: cfg.AllowUnresolvedPeriod},
	)
	txnHandler := transactions.NewHandler(logger, txnService, rbacMiddleware)

	reconService := reconciliation.NewService(
		reconciliation.NewRepository(dbpool),
		runLocks,
		auditLogger,
		logger,
		cfg.Recon,
	)
	reconHandler := reconciliation.NewHandler(logger, reconService, rbacMiddleware)

	yearEndService := yearend.NewService(
		yearend.NewRepository(dbpool),
		fiscalService,
		accountsService,
		txnService,
		auditLogger,
		logger,
	)
	yearEndHandler := yearend.NewHandler(logger, yearEndService, rbacMiddleware)

	materialsService := materials.NewService(
		materials.NewRepository(dbpool),
		auditLogger,
		idempotencyStore,
		logger,
		materials.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
	)
	materialsHandler := materials.NewHandler(logger, materialsService, rbacMiddleware)

	projectsService := projects.NewService(projects.NewRepository(dbpool), auditLogger, logger)
	projectsHandler := projects.NewHandler(logger, projectsService, rbacMiddleware)

	paymentsService := payments.NewService(
		payments.NewRepository(dbpool),
		txnService,
		accountsService,
		auditLogger,
		logger,
	)
	paymentsHandler := payments.NewHandler(logger, paymentsService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		Tokens:                usersService,
		UsersHandler:          usersHandler,
		AccountsHandler:       accountsHandler,
		FiscalHandler:         fiscalHandler,
		TransactionsHandler:   txnHandler,
		ReconciliationHandler: reconHandler,
		YearEndHandler:        yearEndHandler,
		MaterialsHandler:      materialsHandler,
		ProjectsHandler:       projectsHandler,
		PaymentsHandler:       paymentsHandler,
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
