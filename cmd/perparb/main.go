package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/api"
	"github.com/quantfold/perparb/internal/config"
	"github.com/quantfold/perparb/internal/database"
	"github.com/quantfold/perparb/internal/engine"
	"github.com/quantfold/perparb/internal/services"
	"github.com/quantfold/perparb/internal/venues"
	"github.com/quantfold/perparb/internal/venues/binance"
	"github.com/quantfold/perparb/internal/venues/hyperliquid"
)

func main() {
	var scanOnly bool
	flag.BoolVar(&scanOnly, "scan", false, "run one scan cycle, print the report and exit")
	flag.BoolVar(&scanOnly, "s", false, "shorthand for --scan")
	flag.Parse()

	// Missing .env is fine; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, closeVenues, err := buildVenues(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize venues: %v", err)
	}
	defer closeVenues()

	aggregator := engine.NewAggregator(registry, engine.AggregatorConfig{
		Markets:      cfg.Engine.Markets,
		VenueTimeout: cfg.Engine.VenueTimeout(),
	}, logger)
	scanner := engine.NewScanner(engine.ScannerConfig{
		MaxPositionUSD: decimal.NewFromFloat(cfg.Engine.MaxPositionUsd),
	})
	gate := engine.NewRiskGate(engine.RiskGateConfig{
		MinFundingApyBps: decimal.NewFromFloat(cfg.Engine.MinFundingApy * 100),
		MaxPositionUSD:   decimal.NewFromFloat(cfg.Engine.MaxPositionUsd),
		MinPositionUSD:   decimal.NewFromFloat(cfg.Engine.MinPositionUsd),
	})

	if scanOnly {
		if err := runScan(ctx, cfg, registry, aggregator, scanner, gate, logger); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		return
	}

	runEngine(ctx, cfg, registry, aggregator, scanner, gate, logger)
}

// runScan executes one report-only pipeline pass against in-memory
// stores. No database, no orders, no state left behind.
func runScan(
	ctx context.Context,
	cfg *config.Config,
	registry *venues.Registry,
	aggregator *engine.Aggregator,
	scanner *engine.Scanner,
	gate *engine.RiskGate,
	logger *logrus.Logger,
) error {
	tracker := engine.NewPnLTracker(database.NewMemoryLedger(), logger)
	notifier := services.NewNotifier("", "", logger)
	manager := engine.NewPositionManager(registry, database.NewMemoryPositionStore(), tracker, notifier,
		managerConfig(cfg), logger)
	scheduler := engine.NewScheduler(aggregator, scanner, gate, manager, nil,
		engine.SchedulerConfig{CheckInterval: cfg.Engine.CheckInterval()}, logger)

	report, err := scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scan report: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

// runEngine wires the durable stores and runs the periodic cycle until
// a shutdown signal arrives.
func runEngine(
	ctx context.Context,
	cfg *config.Config,
	registry *venues.Registry,
	aggregator *engine.Aggregator,
	scanner *engine.Scanner,
	gate *engine.RiskGate,
	logger *logrus.Logger,
) {
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db.Pool); err != nil {
		log.Fatalf("Failed to apply database schema: %v", err)
	}

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	cache := database.NewSnapshotCache(redis.Client)
	tracker := engine.NewPnLTracker(database.NewLedgerRepository(db.Pool), logger)
	notifier := services.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	manager := engine.NewPositionManager(registry, database.NewPositionRepository(db.Pool), tracker, notifier,
		managerConfig(cfg), logger)

	if err := manager.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore positions: %v", err)
	}

	scheduler := engine.NewScheduler(aggregator, scanner, gate, manager, cache,
		engine.SchedulerConfig{CheckInterval: cfg.Engine.CheckInterval()}, logger)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	var monitor *services.PerformanceMonitor
	if cfg.Monitor.Enabled {
		monitor = services.NewPerformanceMonitor(
			time.Duration(cfg.Monitor.IntervalSeconds)*time.Second, logger)
		monitor.Start(ctx)
	}

	var server *http.Server
	if cfg.Server.Enabled {
		if cfg.Environment == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.Default()
		api.SetupRoutes(router, api.Deps{
			DB:      db,
			Redis:   redis,
			Cache:   cache,
			Manager: manager,
			Tracker: tracker,
			Logger:  logger,
		})
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: router,
		}
		go func() {
			logger.WithField("port", cfg.Server.Port).Info("Status API listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Status API stopped")
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	scheduler.Stop()
	if monitor != nil {
		monitor.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Status API forced shutdown")
		}
	}
	logger.Info("Shutdown complete")
}

func managerConfig(cfg *config.Config) engine.PositionManagerConfig {
	return engine.PositionManagerConfig{
		LegTimeout:          cfg.Engine.LegTimeout(),
		UnwindMaxAttempts:   cfg.Engine.UnwindMaxAttempts,
		ExitApyBps:          decimal.NewFromFloat(cfg.Engine.ExitApyThreshold * 100),
		MaxSlippageBps:      cfg.Engine.MaxSlippageBps,
		MaxHold:             time.Duration(cfg.Engine.MaxHoldHours) * time.Hour,
		SigningFailureLimit: 3,
	}
}

// buildVenues registers every enabled adapter. At least two venues are
// required; arbitrage across a single venue is meaningless.
func buildVenues(cfg *config.Config, logger *logrus.Logger) (*venues.Registry, func(), error) {
	registry := venues.NewRegistry()
	var closers []func()
	closeAll := func() {
		for _, closer := range closers {
			closer()
		}
	}

	if cfg.Venues.Binance.Enabled {
		adapter := binance.New(cfg.Venues.Binance.APIKey, cfg.Venues.Binance.APISecret, logger)
		if err := registry.Register(adapter); err != nil {
			return nil, closeAll, err
		}
	}

	if cfg.Venues.Hyperliquid.Enabled {
		var signer venues.Signer
		if cfg.Venues.Hyperliquid.Wallet != "" {
			loaded, err := hyperliquid.LoadSigner(cfg.Venues.Hyperliquid.Wallet)
			if err != nil {
				return nil, closeAll, fmt.Errorf("hyperliquid wallet: %w", err)
			}
			signer = loaded
		} else {
			logger.Warn("Hyperliquid running without a wallet, order submission disabled")
		}
		adapter := hyperliquid.New(hyperliquid.Config{
			BaseURL:   cfg.Venues.Hyperliquid.RPCURL,
			StreamURL: cfg.Venues.Hyperliquid.StreamURL,
			Timeout:   cfg.Engine.VenueTimeout(),
		}, signer, cfg.Engine.Markets, logger)
		closers = append(closers, adapter.Close)
		if err := registry.Register(adapter); err != nil {
			return nil, closeAll, err
		}
	}

	if len(registry.Names()) < 2 {
		return nil, closeAll, fmt.Errorf("at least two venues must be enabled, got %d", len(registry.Names()))
	}
	return registry, closeAll, nil
}
