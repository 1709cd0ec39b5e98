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

	"github.com/agriledger/agriledger/internal/accounts"
	"github.com/agriledger/agriledger/internal/app"
	"github.com/agriledger/agriledger/internal/auth"
	"github.com/agriledger/agriledger/internal/documents"
	"github.com/agriledger/agriledger/internal/inventory"
	"github.com/agriledger/agriledger/internal/ledger"
	"github.com/agriledger/agriledger/internal/observability"
	"github.com/agriledger/agriledger/internal/periods"
	"github.com/agriledger/agriledger/internal/platform/cache"
	"github.com/agriledger/agriledger/internal/platform/db"
	"github.com/agriledger/agriledger/internal/shared"
	"github.com/agriledger/agriledger/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, account cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	authRepo := auth.NewRepository(pool)
	authenticator := auth.NewAuthenticator(authRepo)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, redisClient, logger)
	accountsHandler := accounts.NewHandler(accountsService)

	periodsRepo := periods.NewRepository(pool)
	periodsHandler := periods.NewHandler(periodsRepo)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, logger)
	postingEngine := ledger.NewEngine(accountsService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)
	valuationEngine := inventory.NewEngine()

	documentsRepo := documents.NewRepository(pool)
	documentsService := documents.NewService(documentsRepo, ledgerRepo, postingEngine, valuationEngine, auditLogger, logger)
	documentsService.WithMetrics(metrics)
	documentsHandler := documents.NewHandler(logger, documentsService)

	ledgerHandler := ledger.NewHandler(logger, ledgerService, documentsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Authenticator:    authenticator,
		DocumentsHandler: documentsHandler,
		LedgerHandler:    ledgerHandler,
		InventoryHandler: inventoryHandler,
		AccountsHandler:  accountsHandler,
		PeriodsHandler:   periodsHandler,
		JobsHandler:      jobsHandler,
		Pool:             pool,
		Metrics:          metrics,
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
