package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"autotrader/internal/config"
	"autotrader/internal/core"
	"autotrader/internal/engine"
	"autotrader/internal/exchange"
	"autotrader/internal/exchange/binance"
	"autotrader/internal/mock"
	"autotrader/internal/risk"
	"autotrader/internal/server"
	"autotrader/internal/telemetry"
	"autotrader/internal/trading/alloc"
	"autotrader/internal/trading/book"
	"autotrader/internal/trading/exits"
	"autotrader/internal/trading/ledger"
	"autotrader/internal/trading/rank"
	"autotrader/internal/trading/tax"
	"autotrader/pkg/concurrency"
	"autotrader/pkg/logging"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/autotrader.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("autotrader version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Secrets come from the environment; a local .env is optional.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting autotrader",
		"version", version,
		"exchange", cfg.Exchange.Name,
		"base_asset", cfg.App.BaseAsset,
		"max_positions", cfg.Trading.MaxPositions,
	)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("autotrader exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("autotrader stopped")
}

func run(cfg *config.Config, logger core.ILogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		return err
	}

	stats, err := rank.LoadSymbolStats(cfg.App.SymbolStatsPath)
	if err != nil {
		return fmt.Errorf("failed to load symbol stats: %w", err)
	}

	store, err := engine.NewSQLiteStore(cfg.App.StatePath)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	tradeLog, err := ledger.New(cfg.App.TradeLogPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open trade log: %w", err)
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "rank",
		MaxWorkers:  cfg.Concurrency.RankPoolSize,
		MaxCapacity: cfg.Concurrency.RankPoolBuffer,
	}, logger)
	defer pool.Stop()

	positions := book.New()
	taxes := tax.NewEstimator(
		cfg.Tax.ShortTermRate,
		cfg.Tax.LongTermRate,
		time.Duration(cfg.Tax.LongTermHoldHours)*time.Hour,
	)
	policy := exits.NewRulePolicy(exits.RuleParams{
		TargetPnLPct:    decimal.NewFromFloat(cfg.Trading.TargetPnLPct),
		StopLossPct:     decimal.NewFromFloat(cfg.Trading.StopLossPct),
		TrailingStopPct: decimal.NewFromFloat(cfg.Trading.TrailingStopPct),
		MinProfitToArm:  decimal.NewFromFloat(cfg.Trading.MinProfitToArm),
		MaxHold:         time.Duration(cfg.Trading.MaxHoldSeconds) * time.Second,
	})
	evaluator := exits.NewEvaluator(gateway, positions, policy, taxes,
		cfg.Exchange.FeeRate, cfg.Trading.SkipNegativeNet, logger)

	ranker := rank.NewRanker(gateway, pool, stats, rank.Filters{
		QuoteAsset:      cfg.App.BaseAsset,
		Min24hChangePct: decimal.NewFromFloat(cfg.Trading.Min24hChangePct),
		MinQuoteVolume:  decimal.NewFromFloat(cfg.Trading.MinQuoteVolume),
		MinMarketCap:    cfg.Trading.MinMarketCap,
		MinVolatility:   cfg.Trading.MinVolatility,
		Limit:           cfg.Trading.CandidateLimit,
	}, logger)

	monitor := risk.NewMonitor(gateway, risk.MonitorConfig{
		Enabled:          cfg.RiskControl.Enabled,
		ReferenceSymbol:  cfg.RiskControl.ReferenceSymbol,
		LookbackInterval: cfg.RiskControl.LookbackInterval,
		MaxDropPct:       cfg.RiskControl.MaxDropPct,
		MaxSwingPct:      cfg.RiskControl.MaxSwingPct,
	}, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.NewMetrics(registry)

	eng := engine.New(engine.Config{
		QuoteAsset:        cfg.App.BaseAsset,
		TickInterval:      time.Duration(cfg.Trading.TickIntervalSeconds) * time.Second,
		ReconcileInterval: time.Duration(cfg.Trading.ReconcileIntervalSeconds) * time.Second,
		MaxPositions:      cfg.Trading.MaxPositions,
		CashReserve:       decimal.NewFromFloat(cfg.Trading.CashReserve),
		TaxReserveTrades:  cfg.Trading.TaxReserveTrades,
	}, engine.Deps{
		Gateway:    gateway,
		Book:       positions,
		Exits:      evaluator,
		Ranker:     ranker,
		Planner:    alloc.NewPlanner(logger),
		Taxes:      taxes,
		Monitor:    monitor,
		Reconciler: risk.NewReconciler(gateway, positions, cfg.App.BaseAsset, logger),
		Queue:      engine.NewActionQueue(logger),
		Store:      store,
		Ledger:     tradeLog,
		Metrics:    metrics,
		Logger:     logger,
	})

	if err := eng.Restore(ctx); err != nil {
		return err
	}

	hub := server.NewHub(logger)
	ctrl := server.NewServer(eng, hub, cfg.Server.AllowedOrigins, logger)
	eng.SetNotifier(ctrl.Broadcast)

	metricsServer := telemetry.NewServer(cfg.Server.MetricsPort, registry, logger)
	metricsServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Stop(shutdownCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return ctrl.Start(gctx, cfg.Server.Port)
	})
	g.Go(func() error {
		return eng.Run(gctx)
	})

	return g.Wait()
}

func buildGateway(cfg *config.Config, logger core.ILogger) (core.ExchangeGateway, error) {
	switch cfg.Exchange.Name {
	case "binance":
		raw := binance.NewGateway(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.BaseURL, logger)
		return exchange.NewResilient(raw, logger), nil
	case "mock":
		ex := mock.NewExchange(cfg.App.BaseAsset)
		ex.FeeRate = decimal.NewFromFloat(cfg.Exchange.FeeRate)
		ex.Balances[cfg.App.BaseAsset] = decimal.NewFromInt(10_000)
		logger.Warn("Running against the mock exchange, no real orders will be placed")
		return ex, nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", cfg.Exchange.Name)
	}
}
