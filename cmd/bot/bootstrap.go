package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"quant-council/internal/agents"
	"quant-council/internal/archive"
	"quant-council/internal/deliberation"
	"quant-council/internal/deliberation/delibobs"
	"quant-council/internal/engine"
	"quant-council/internal/engine/engineobs"
	"quant-council/internal/execution"
	"quant-council/internal/interfaces"
	"quant-council/internal/logger"
	"quant-council/internal/marketdata"
	"quant-council/internal/marketdata/syncobs"
	"quant-council/internal/news"
	"quant-council/internal/risk"
	"quant-council/internal/store"
	"quant-council/internal/trace"
)

// initializeSystem initializes env, logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldArchives gzips old archive days if retention is configured
func compressOldArchives(ctx context.Context, st *archive.Store) {
	if v := os.Getenv("ARCHIVE_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := st.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old archives", "error", err)
		}
	}
}

// initializeSynchronizer builds the guarded bar source and the timeframe
// synchronizer with observability
func initializeSynchronizer(ctx context.Context, cfg *store.Config, lookback *marketdata.LookbackCache) interfaces.Synchronizer {
	var src interfaces.BarSource
	switch cfg.Data.Source {
	case "LIVE":
		// No live venue is wired in this build; the static source keeps the
		// pipeline exercisable end to end.
		logger.Warn(ctx, "LIVE data source not available in this build - using STATIC bars")
		src = marketdata.NewStaticSource()
	default:
		logger.Info(ctx, "Using STATIC deterministic bar data")
		src = marketdata.NewStaticSource()
	}

	guarded := marketdata.Guard(src, marketdata.GuardConfig{
		RPS:                 cfg.Data.RateLimit.RPS,
		Burst:               cfg.Data.RateLimit.Burst,
		ConsecutiveFailures: cfg.Data.Breaker.ConsecutiveFailures,
		OpenTimeout:         time.Duration(cfg.Data.Breaker.OpenSeconds) * time.Second,
	})

	return syncobs.Wrap(marketdata.NewSynchronizer(guarded, cfg, lookback))
}

// initializeAgents builds the analysis council in vote order
func initializeAgents(ctx context.Context, cfg *store.Config) []agents.Agent {
	var headlines agents.HeadlineScorer
	if cfg.News.Enabled {
		headlines = news.NewScorer(
			10*time.Second,
			time.Duration(cfg.News.CacheMinutes)*time.Minute,
			cfg.News.MaxHeadlines,
		)
		logger.Info(ctx, "Headline sentiment enabled", "max_headlines", cfg.News.MaxHeadlines)
	}

	return []agents.Agent{
		agents.NewTrendAgent(cfg.Layers.L1.TrendTimeframe),
		agents.NewOscillatorAgent(cfg.Layers.L3.SetupTimeframe),
		agents.NewVolumeAgent(cfg.Layers.L1.FuelTimeframe),
		agents.NewSentimentAgent(cfg.Layers.L4.TriggerTimeframe, headlines, cfg.News.Blend),
	}
}

// initializeDeliberator returns the external opinion provider with observability
func initializeDeliberator(ctx context.Context, cfg *store.Config) interfaces.Deliberator {
	var d interfaces.Deliberator

	switch cfg.Deliberation.Provider {
	case "OPENAI":
		d = deliberation.NewOpenAIDeliberator(cfg)
	default:
		d = deliberation.NewNoopDeliberator()
		logger.Warn(ctx, "No deliberation provider configured - using Noop (always no opinion)")
	}

	return delibobs.Wrap(d)
}

// initializeEngine assembles the decision pipeline with observability
func initializeEngine(ctx context.Context, cfg *store.Config, st *archive.Store) interfaces.Engine {
	lookback := marketdata.NewLookbackCache(cfg.Data.LookbackDepth)
	account := execution.NewPaperAccount(cfg.Account.Equity, cfg.Risk.DefaultLeverage)
	lossBook := risk.NewLossBook(cfg.Risk.LossPatternMinHits * 2)

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders are simulated")
	}

	eng := engine.New(cfg, engine.Deps{
		Synchronizer: initializeSynchronizer(ctx, cfg, lookback),
		Agents:       initializeAgents(ctx, cfg),
		Lookback:     lookback,
		Deliberator:  initializeDeliberator(ctx, cfg),
		Auditor:      risk.NewAuditor(cfg, account, lossBook),
		Executor:     execution.NewPaperExecutor(),
		Archiver:     st,
		Book:         account,
		Losses:       lossBook,
	})

	return engineobs.Wrap(eng)
}
