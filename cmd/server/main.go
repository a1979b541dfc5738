// Package main is the entry point for the Folio portfolio tracking
// service. It wires configuration, databases, the market data client,
// module services, background jobs, and the HTTP API, then runs until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"folio/internal/clientdata"
	"folio/internal/clients/alphavantage"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/events"
	"folio/internal/modules/analytics"
	analyticshandlers "folio/internal/modules/analytics/handlers"
	"folio/internal/modules/charts"
	chartshandlers "folio/internal/modules/charts/handlers"
	"folio/internal/modules/market"
	markethandlers "folio/internal/modules/market/handlers"
	"folio/internal/modules/portfolio"
	portfoliohandlers "folio/internal/modules/portfolio/handlers"
	"folio/internal/modules/trading"
	tradinghandlers "folio/internal/modules/trading/handlers"
	"folio/internal/reliability"
	"folio/internal/scheduler"
	"folio/internal/server"
	"folio/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "folio: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting Folio")

	// Databases
	portfolioDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "portfolio.db"),
		Name: "portfolio",
	})
	if err != nil {
		return fmt.Errorf("failed to open portfolio database: %w", err)
	}
	defer portfolioDB.Close()

	if err := portfolioDB.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate portfolio database: %w", err)
	}

	clientDataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "clientdata.db"),
		Name:    "clientdata",
		Profile: database.ProfileCache,
	})
	if err != nil {
		return fmt.Errorf("failed to open clientdata database: %w", err)
	}
	defer clientDataDB.Close()

	if err := clientDataDB.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate clientdata database: %w", err)
	}

	databases := map[string]*database.DB{
		"portfolio":  portfolioDB,
		"clientdata": clientDataDB,
	}

	// Shared infrastructure
	bus := events.NewBus(log)
	breaker := reliability.NewCircuitBreaker("alphavantage", log)
	avClient := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
	cacheRepo := clientdata.NewRepository(clientDataDB.Conn())

	if cfg.AlphaVantageAPIKey == "" {
		log.Warn().Msg("No API key configured, serving stored data only")
	}

	// Module services
	marketService := market.NewService(avClient, cacheRepo, breaker, log)

	positionRepo := portfolio.NewPositionRepository(portfolioDB.Conn(), log)
	transactionRepo := trading.NewTransactionRepository(portfolioDB.Conn(), log)
	portfolioService := portfolio.NewPortfolioService(positionRepo, transactionRepo, log)
	tradingService := trading.NewService(portfolioDB.Conn(), positionRepo, transactionRepo, marketService, bus, log)
	analyticsService := analytics.NewService(positionRepo, transactionRepo, log)
	chartsService := charts.NewService(portfolioService, log)

	// Backups
	var backupService *reliability.BackupService
	if cfg.BackupEnabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup storage: %w", err)
		}
		backupService = reliability.NewBackupService(s3Client, databases, cfg.DataDir, cfg.Backup.Keep, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Backups enabled")
	}

	// Background jobs
	sched := scheduler.New(log)

	refreshJob := scheduler.NewPriceRefreshJob(tradingService, marketService, log)
	if err := sched.Add(fmt.Sprintf("@every %ds", cfg.RefreshInterval), refreshJob); err != nil {
		return fmt.Errorf("failed to schedule price refresh: %w", err)
	}

	cleanupJob := clientdata.NewCleanupJob(cacheRepo, log)
	if err := sched.Add("30 0 * * *", cleanupJob); err != nil {
		return fmt.Errorf("failed to schedule cache cleanup: %w", err)
	}

	maintenanceJob := reliability.NewMaintenanceJob(databases, backupService, cfg.DataDir, log)
	if err := sched.Add("0 3 * * *", maintenanceJob); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:           log,
		Cfg:           cfg,
		PortfolioDB:   portfolioDB,
		ClientDataDB:  clientDataDB,
		Bus:           bus,
		MarketService: marketService,
		Modules: []server.RouteRegistrar{
			portfoliohandlers.NewHandler(portfolioService, log),
			tradinghandlers.NewHandler(tradingService, log),
			markethandlers.NewHandler(marketService, log),
			analyticshandlers.NewHandler(analyticsService, log),
			chartshandlers.NewHandler(chartsService, log),
		},
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Wait for interrupt or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
