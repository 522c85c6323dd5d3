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

	"github.com/lotline/lotline/internal/app"
	"github.com/lotline/lotline/internal/invoicing"
	"github.com/lotline/lotline/internal/ledger"
	"github.com/lotline/lotline/internal/masterdata"
	"github.com/lotline/lotline/internal/observability"
	"github.com/lotline/lotline/internal/platform/cache"
	"github.com/lotline/lotline/internal/platform/db"
	"github.com/lotline/lotline/internal/projects"
	"github.com/lotline/lotline/internal/shared"
	"github.com/lotline/lotline/internal/stock"
	"github.com/lotline/lotline/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	masterRepo := masterdata.NewRepository(pool)
	masterService := masterdata.NewService(masterRepo)
	masterHandler := masterdata.NewHandler(logger, masterService)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger)
	stockHandler := stock.NewHandler(logger, stockService)

	ledgerRepo := ledger.NewRepository(pool)
	summaryCache := ledger.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	ledgerService := ledger.NewService(ledgerRepo, summaryCache, auditLogger, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	invoicingRepo := invoicing.NewRepository(pool)
	invoicingService := invoicing.NewService(invoicingRepo, stockService, ledgerService, auditLogger, idempotencyStore, logger)
	invoicingHandler := invoicing.NewHandler(logger, invoicingService)

	projectsRepo := projects.NewRepository(pool)
	projectsService := projects.NewService(projectsRepo, auditLogger)
	projectsHandler := projects.NewHandler(logger, projectsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		StockHandler:      stockHandler,
		InvoicingHandler:  invoicingHandler,
		ProjectsHandler:   projectsHandler,
		MasterDataHandler: masterHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
