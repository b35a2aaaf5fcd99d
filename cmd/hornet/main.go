package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/ai"
	"github.com/hornet-trading/hornet/internal/bot"
	"github.com/hornet-trading/hornet/internal/bus"
	"github.com/hornet-trading/hornet/internal/cache"
	"github.com/hornet-trading/hornet/internal/config"
	"github.com/hornet-trading/hornet/internal/evm"
	"github.com/hornet-trading/hornet/internal/gas"
	"github.com/hornet-trading/hornet/internal/mempool"
	"github.com/hornet-trading/hornet/internal/nonce"
	"github.com/hornet-trading/hornet/internal/observability"
	"github.com/hornet-trading/hornet/internal/risk"
	"github.com/hornet-trading/hornet/internal/store"
	"github.com/hornet-trading/hornet/internal/strategy"
	"github.com/hornet-trading/hornet/internal/tokens"
	"github.com/hornet-trading/hornet/internal/trade"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use the stub chain adapter (no real node)")
	flag.Parse()

	// 2. Load environment and configuration. A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("HORNET Snipe Core - Starting")
	log.Info().Msg("OBSERVE -> CLASSIFY -> SIMULATE -> EXECUTE")
	log.Info().Msg("=============================================")

	riskTol, err := strategy.ParseRiskTolerance(cfg.Bot.RiskTolerance)
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Bool("dry_run", cfg.General.DryRun).
		Bool("stub_mode", *stubMode).
		Str("chain", cfg.Chain.Active).
		Str("risk_tolerance", riskTol.String()).
		Bool("auto_trade", cfg.AI.AutoTradeEnabled).
		Float64("auto_trade_threshold", cfg.AI.AutoTradeThreshold).
		Msg("Configuration loaded")

	// 4. Resolve the chain, applying endpoint overrides.
	chainCfg, err := evm.PredefinedRegistry().Chain(cfg.Chain.Active)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown chain")
	}
	if ov, ok := cfg.Chains[cfg.Chain.Active]; ok {
		if ov.RPCURL != "" {
			chainCfg.RPCURL = ov.RPCURL
		}
		if ov.WSURL != "" {
			chainCfg.WSURL = ov.WSURL
		}
		if ov.PrivateRelayURL != "" {
			chainCfg.PrivateRelayURL = ov.PrivateRelayURL
		}
	}

	wallet := evm.Address(cfg.Trading.Wallet)

	// 5. Create the chain adapter.
	var adapter evm.ChainAdapter
	if *stubMode {
		stub := evm.NewStubAdapter(chainCfg)
		stub.SetBalance(wallet, decimal.NewFromInt(100))
		stub.SetGasPrice(decimal.NewFromInt(30))
		stub.SetBaseFee(decimal.NewFromInt(25))
		stub.SetAutoMine(true)
		adapter = stub
		log.Info().Msg("Chain adapter: STUB mode")
	} else {
		live := evm.NewLiveAdapter(chainCfg, evm.LiveConfig{
			Timeout:      10 * time.Second,
			RateLimitRPS: 20,
			Sender:       wallet,
		})
		adapter = live

		healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := adapter.BlockNumber(healthCtx); err != nil {
			log.Warn().Err(err).Str("endpoint", chainCfg.RPCURL).
				Msg("RPC health check failed (continuing, may be rate-limited)")
		} else {
			log.Info().Str("endpoint", chainCfg.RPCURL).Msg("Chain adapter: LIVE - connected")
		}
		healthCancel()
	}

	// 6. Persistence and caching tiers.
	var state store.Store
	analysisCache := cache.NewLocal(cache.LocalConfig{Capacity: cfg.Cache.Capacity})
	var riskCache cache.Cache = analysisCache
	if cfg.Redis.Enabled {
		state = store.NewRedis(store.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix + ":state:",
		})
		riskCache = cache.NewDistributed(cache.DistributedConfig{
			Addr:                cfg.Redis.Addr,
			Password:            cfg.Redis.Password,
			DB:                  cfg.Redis.DB,
			KeyPrefix:           cfg.Redis.KeyPrefix + ":cache:",
			InvalidationChannel: cfg.Redis.KeyPrefix + ":invalidate",
		}, analysisCache)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("State store: Redis")
	} else {
		state = store.NewMem()
		log.Info().Msg("State store: in-memory (positions lost on restart)")
	}

	// 7. Event bus.
	events := bus.New(256)
	defer events.Close()

	// 8. Mempool observation.
	poolCfg := mempool.DefaultConfig()
	poolCfg.MEVDetection = cfg.Mempool.MEVDetectionEnabled
	poolCfg.MinSandwichVictimUSD = decimal.NewFromFloat(cfg.Mempool.MinSandwichVictimUSD)
	poolCfg.LargeTxAlertUSD = decimal.NewFromFloat(cfg.Mempool.LargeTxAlertUSD)
	poolCfg.Window = time.Duration(cfg.Mempool.WindowSeconds) * time.Second
	pool := mempool.NewTracker(poolCfg, chainCfg, adapter, events)

	// 9. Gas optimizer.
	gasCfg := gas.DefaultConfig()
	gasCfg.MaxBoostPercent = cfg.Gas.MaxGasBoostPercent
	gasCfg.GasCapGwei = decimal.NewFromFloat(cfg.Gas.GasCapGwei)
	gasCfg.SampleInterval = time.Duration(cfg.Gas.SampleIntervalSeconds) * time.Second
	gasCfg.SampleWindow = cfg.Gas.SampleWindow
	gasOpt := gas.NewOptimizer(gasCfg, adapter)

	// 10. Safety analyzer and token view.
	analyzer := risk.NewAnalyzer(risk.DefaultConfig(), chainCfg, adapter, riskCache)

	viewCfg := tokens.DefaultConfig()
	viewCfg.Capacity = cfg.Cache.Capacity
	view := tokens.NewTracker(viewCfg, chainCfg, adapter, analyzer, pool, events)

	// 11. Execution stack.
	nonces := nonce.NewManager(nonce.DefaultConfig(), adapter)
	strat := strategy.NewOptimizer(strategy.DefaultConfig())

	tradeCfg := trade.DefaultConfig()
	tradeCfg.Wallet = wallet
	tradeCfg.DefaultSlippagePct = decimal.NewFromFloat(cfg.Trading.DefaultSlippage)
	tradeCfg.MaxPositionSizePct = decimal.NewFromFloat(cfg.Trading.MaxPositionSizePercent)
	tradeCfg.ReservePercent = decimal.NewFromFloat(cfg.Trading.ReservePercent)
	tradeCfg.MinFrontrunTargetUSD = decimal.NewFromFloat(cfg.Trading.MinFrontrunTargetUSD)
	tradeCfg.MaxAttempts = cfg.Trading.MaxAttempts
	tradeCfg.ReceiptTimeout = time.Duration(cfg.Trading.ReceiptTimeoutSeconds) * time.Second
	trades := trade.NewManager(tradeCfg, adapter, nonces, gasOpt, strat, view, pool, events, state)

	// 12. AI coordinator. The heuristic predictor stands in until an
	// external model is plugged.
	aiCfg := ai.DefaultConfig()
	aiCfg.AutoTradeEnabled = cfg.AI.AutoTradeEnabled && !cfg.General.DryRun
	aiCfg.AutoTradeThreshold = cfg.AI.AutoTradeThreshold
	aiCfg.DecisionTTL = time.Duration(cfg.AI.DecisionTTLSeconds) * time.Second
	coordinator := ai.NewCoordinator(aiCfg, ai.HeuristicPredictor{}, view, pool, gasOpt)

	// 13. The bot.
	botCfg := bot.DefaultConfig()
	botCfg.CycleInterval = time.Duration(cfg.Bot.CycleIntervalSeconds) * time.Second
	botCfg.WriterLockTimeout = time.Duration(cfg.Bot.LockTimeoutMs) * time.Millisecond
	botCfg.ReaderLockTimeout = time.Duration(cfg.Bot.LockTimeoutMs) * time.Millisecond / 2
	botCfg.RiskTolerance = riskTol
	botCfg.AutoTuningEnabled = cfg.Bot.AutoTuningEnabled
	botCfg.AutoBuyPct = decimal.NewFromFloat(cfg.Bot.AutoBuyPercent)
	snipeBot := bot.New(botCfg, bot.Deps{
		Adapter:    adapter,
		Events:     events,
		State:      state,
		Nonces:     nonces,
		GasOpt:     gasOpt,
		Pool:       pool,
		Analyzer:   analyzer,
		View:       view,
		Strat:      strat,
		Trades:     trades,
		AI:         coordinator,
		ViewConfig: viewCfg,
	})

	// 14. Setup context and signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 15. Observability: metrics, health checks, HTTP surface.
	metrics := observability.HornetMetrics()
	monitor := observability.NewHealthMonitor(30 * time.Second)
	monitor.Register("rpc", observability.ChainCheck(adapter.BlockNumber, 2*time.Second))
	monitor.Register("mempool", observability.StalenessCheck(pool.LastSuccess,
		poolCfg.DegradedAfter, 5*poolCfg.DegradedAfter))
	monitor.Register("tokens", observability.StalenessCheck(view.LastSuccess,
		botCfg.DeadlockThreshold, 5*botCfg.DeadlockThreshold))
	go monitor.Start(ctx)

	go logAlerts(ctx, monitor)
	go sampleMetrics(ctx, metrics, trades, view, pool, gasOpt)

	if cfg.Metrics.Enabled {
		seriesLabels := map[string]string{
			"chain":    cfg.Chain.Active,
			"instance": cfg.General.InstanceID,
		}
		go serveHTTP(ctx, cfg.Metrics.PrometheusPort, metrics, seriesLabels, monitor,
			snipeBot, trades, view, pool, events)
	}

	// 16. Run until shutdown. Run blocks and owns the mempool stream, the
	// gas sampler, the health task, and the trade cycle.
	log.Info().Msg("HORNET Snipe Core - Running")
	snipeBot.Run(ctx)

	// 17. Final stats.
	ts := trades.Stats()
	log.Info().
		Int64("buys", ts.Buys).
		Int64("sells", ts.Sells).
		Int64("sandwiches", ts.Sandwiches).
		Int64("refusals", ts.Refusals).
		Int("open_positions", ts.OpenPositions).
		Int("open_orders", ts.OpenOrders).
		Msg("HORNET Snipe Core - Final Statistics")
	log.Info().Msg("HORNET Snipe Core - Shutdown complete")
}

// sampleMetrics feeds subsystem snapshots into the metric registry.
func sampleMetrics(ctx context.Context, m *observability.Registry,
	trades *trade.Manager, view *tokens.Tracker, pool *mempool.Tracker, gasOpt *gas.Optimizer) {

	activeTrades := m.GetGauge("hornet_active_trades")
	trackedTokens := m.GetGauge("hornet_tracked_tokens")
	pendingSwaps := m.GetGauge("hornet_mempool_pending_swaps")
	gasPrice := m.GetGauge("hornet_gas_price_gwei")
	attempted := m.GetCounter("hornet_trades_attempted_total")
	sandwiches := m.GetCounter("hornet_sandwich_attempts_total")
	refusals := m.GetCounter("hornet_safety_refusals_total")

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts := trades.Stats()
			activeTrades.Set(float64(ts.OpenPositions))
			trackedTokens.Set(float64(view.Len()))
			pendingSwaps.Set(float64(pool.Stats().TrackedTokens))
			gp, _ := gasOpt.Percentile(50).Float64()
			gasPrice.Set(gp)

			// Counters track deltas against the last snapshot.
			bump(attempted, float64(ts.Buys+ts.Sells))
			bump(sandwiches, float64(ts.Sandwiches))
			bump(refusals, float64(ts.Refusals))
		}
	}
}

// bump raises a cumulative counter to the target total.
func bump(c *observability.Counter, total float64) {
	if d := total - c.Value(); d > 0 {
		c.Add(d)
	}
}

// logAlerts mirrors health transitions into the log stream.
func logAlerts(ctx context.Context, monitor *observability.HealthMonitor) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-monitor.Alerts():
			evt := log.Info()
			switch alert.Level {
			case observability.LevelCritical:
				evt = log.Error()
			case observability.LevelWarn:
				evt = log.Warn()
			}
			evt.Str("component", alert.Component).Msg("health: " + alert.Message)
		}
	}
}

// serveHTTP exposes metrics, health, and read-only stats.
func serveHTTP(ctx context.Context, port int, metrics *observability.Registry,
	seriesLabels map[string]string, monitor *observability.HealthMonitor,
	snipeBot *bot.Bot, trades *trade.Manager, view *tokens.Tracker,
	pool *mempool.Tracker, events *bus.Bus) {

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.NewPrometheusExporter(metrics).WithConstLabels(seriesLabels))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := monitor.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status == observability.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"bot":     snipeBot.Stats(),
			"trades":  trades.Stats(),
			"tokens":  view.Stats(),
			"mempool": pool.Stats(),
			"bus":     events.Stats(),
		})
	})

	mux.HandleFunc("/positions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(trades.Positions())
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("HTTP server started (metrics + health + stats)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("HTTP server error")
	}
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "hornet").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "hornet").
			Str("instance", general.InstanceID).Logger()
	}
}
