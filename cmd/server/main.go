// Package main is the entry point for the multi-tenant portfolio rebalancer.
// It wires the databases, repositories, market clients and the run
// orchestrator together, starts the HTTP API and the cron scheduler, and
// shuts everything down in order on SIGINT/SIGTERM.
//
// The application uses a 3-database architecture:
// - config.db: tenants and strategy configurations
// - runs.db: append-mostly run history and submitted-order audit trail
// - cache.db: ephemeral market data and signal reading cache
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/clientdata"
	"github.com/niq79/trading-bot-sub001/internal/clients/broker"
	"github.com/niq79/trading-bot-sub001/internal/clients/marketdata"
	"github.com/niq79/trading-bot-sub001/internal/clients/sentiment"
	"github.com/niq79/trading-bot-sub001/internal/config"
	"github.com/niq79/trading-bot-sub001/internal/database"
	"github.com/niq79/trading-bot-sub001/internal/events"
	"github.com/niq79/trading-bot-sub001/internal/modules/ranking"
	"github.com/niq79/trading-bot-sub001/internal/modules/rebalancing"
	"github.com/niq79/trading-bot-sub001/internal/modules/signals"
	"github.com/niq79/trading-bot-sub001/internal/modules/strategy"
	"github.com/niq79/trading-bot-sub001/internal/modules/targets"
	"github.com/niq79/trading-bot-sub001/internal/modules/tenants"
	"github.com/niq79/trading-bot-sub001/internal/orchestrator"
	"github.com/niq79/trading-bot-sub001/internal/reliability"
	"github.com/niq79/trading-bot-sub001/internal/runs"
	"github.com/niq79/trading-bot-sub001/internal/scheduler"
	"github.com/niq79/trading-bot-sub001/internal/server"
	"github.com/niq79/trading-bot-sub001/pkg/logger"
)

// Cron schedules for the background maintenance jobs. The rebalance sweep
// schedule comes from configuration; these housekeeping jobs do not need to be
// configurable.
const (
	cacheCleanupSchedule = "0 15 * * * *" // hourly, offset from the top of the hour
	runsPruneSchedule    = "0 30 3 * * *" // nightly, outside market hours
	backupSchedule       = "0 0 4 * * *"  // nightly, after the prune
)

func main() {
	// Load configuration first to get the log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting rebalancer")

	// Databases. Each gets the pragma profile matching its write pattern.
	configDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open config database")
	}
	defer configDB.Close()

	runsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "runs.db"),
		Profile: database.ProfileLedger,
		Name:    "runs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open runs database")
	}
	defer runsDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{configDB, runsDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to migrate database")
		}
	}

	// Repositories
	tenantRepo := tenants.NewRepository(configDB.Conn(), log)
	strategyRepo := strategy.NewRepository(configDB.Conn(), log)
	runRepo := runs.NewRepository(runsDB.Conn(), log)
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())

	// External clients. Broker clients are built per tenant by the factory;
	// market data and signal readings are shared across tenants and cached.
	brokerFactory := broker.NewFactory(cfg.BrokerLiveURL, cfg.BrokerPaperURL, log)
	marketData := marketdata.NewClient(cfg.MarketDataURL, cfg.MarketDataKeyID, cfg.MarketDataSecret, cfg.BarsTTL, cacheRepo, log)
	signalClient := sentiment.NewClient(cfg.SignalURL, cfg.SignalTTL, cacheRepo, log)

	bus := events.NewBus(log)

	orch := orchestrator.New(
		orchestrator.Config{Workers: cfg.Workers, RunTimeout: cfg.RunTimeout},
		tenantRepo,
		strategyRepo,
		runRepo,
		brokerFactory,
		marketData,
		signalClient,
		ranking.NewService(log),
		signals.NewService(cfg.SignalMaxAge, log),
		targets.NewService(log),
		rebalancing.NewService(log),
		bus,
		log,
	)

	// Cloud backups are optional; without credentials the service is nil and
	// the manual backup endpoint reports unavailable.
	var backupService *reliability.BackupService
	if cfg.Backup.Enabled {
		store, err := reliability.NewObjectStore(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage")
		}
		backupService = reliability.NewBackupService(
			store,
			[]*database.DB{configDB, runsDB, cacheDB},
			cfg.DataDir,
			cfg.Backup.Prefix,
			cfg.Backup.Keep,
			bus,
			log,
		)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Cloud backups enabled")
	} else {
		log.Info().Msg("Cloud backups disabled")
	}

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.SweepSchedule, scheduler.NewSweepJob(orch, log)); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("Invalid sweep schedule")
	}
	if err := sched.AddJob(cacheCleanupSchedule, scheduler.NewCacheCleanupJob(cacheRepo, cacheDB, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule cache cleanup")
	}
	retention := time.Duration(cfg.RunRetentionDays) * 24 * time.Hour
	if err := sched.AddJob(runsPruneSchedule, scheduler.NewRunsPruneJob(runRepo, retention, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule runs prune")
	}
	if backupService != nil {
		if err := sched.AddJob(backupSchedule, scheduler.NewBackupJob(backupService, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule backups")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:           log,
		Cfg:           cfg,
		ConfigDB:      configDB,
		RunsDB:        runsDB,
		CacheDB:       cacheDB,
		TenantRepo:    tenantRepo,
		StrategyRepo:  strategyRepo,
		RunRepo:       runRepo,
		Orchestrator:  orch,
		Bus:           bus,
		BackupService: backupService,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started")

	// Block until SIGINT or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop scheduling new work, then stop accepting requests, then wait for
	// in-flight runs so every result lands in the run history before the
	// databases close.
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	orch.Drain()

	log.Info().Msg("Shutdown complete")
}
