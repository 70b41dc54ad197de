package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/migration"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/orders"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	ledgerPool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect ledger store", slog.Any("error", err))
		os.Exit(1)
	}
	defer ledgerPool.Close()

	intakePool, err := db.New(ctx, cfg.IntakePGDSN, db.PoolOptions{MaxConns: cfg.IntakePGMaxConns})
	if err != nil {
		logger.Error("connect intake store", slog.Any("error", err))
		os.Exit(1)
	}
	defer intakePool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, lookups uncached", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()

	masterRepo := masterdata.NewRepository(ledgerPool)
	masterCache := masterdata.NewCache(redisClient, cfg.PriceCacheTTL)
	masterService := masterdata.NewService(masterRepo, masterCache, logger)
	masterHandler := masterdata.NewHandler(masterService, logger)

	probe := orders.NewCapabilityProbe(ledgerPool, logger, metrics)
	probe.Resolve(ctx)
	ordersRepo := orders.NewRepository(ledgerPool, probe, logger, metrics)
	ordersService := orders.NewService(ordersRepo, masterService, logger)
	ordersHandler := orders.NewHandler(ordersService, logger)

	intakeStore := migration.NewIntakeStore(intakePool)
	reconciler := migration.NewReconciler(intakeStore, ordersService, masterService, migration.Defaults{
		CustomerID:    cfg.MigrationDefaultCustomerID,
		SalespersonID: cfg.MigrationSalespersonID,
		ProductID:     cfg.MigrationDefaultProductID,
		WarehouseID:   cfg.MigrationWarehouseID,
		Currency:      cfg.MigrationCurrency,
	}, logger, metrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queueClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	fallbackParams := migration.MigrateParams{
		CompanyID: cfg.MigrationCompanyID,
		Series:    cfg.MigrationSeries,
		BranchID:  cfg.MigrationBranchID,
	}
	migrationHandler := migration.NewHandler(reconciler, queueClient, fallbackParams, logger)
	jobHandler := jobs.NewHandler(asynq.NewInspector(redisOpts), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		OrdersHandler:     ordersHandler,
		MasterDataHandler: masterHandler,
		MigrationHandler:  migrationHandler,
		JobHandler:        jobHandler,
		Pool:              ledgerPool,
		IntakePool:        intakePool,
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
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
