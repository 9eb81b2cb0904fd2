package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quant-council/internal/archive"
	"quant-council/internal/logger"
	"quant-council/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}

	st := archive.NewStore("")
	compressOldArchives(ctx, st)

	eng := initializeEngine(ctx, cfg, st)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(time.Duration(cfg.PollSeconds) * time.Second)
	defer tick.Stop()

	// Daily summary runs once per UTC day rollover.
	lastDay := time.Now().UTC().Format("2006-01-02")

	logger.Info(ctx, "Decision pipeline started",
		"mode", cfg.Mode,
		"universe", cfg.Universe,
		"poll_seconds", cfg.PollSeconds,
	)

	for {
		select {
		case <-tick.C:
			for _, sym := range cfg.Universe {
				res, err := eng.Cycle(ctx, sym)
				if err != nil {
					logger.ErrorWithErr(ctx, "Cycle error", err, "symbol", sym)
					continue
				}
				logger.Info(ctx, "Cycle result",
					"symbol", sym,
					"snapshot_id", res.SnapshotID,
					"action", res.Audit.FinalAction,
					"confidence", res.Audit.FinalConfidence,
					"vetoed", res.Audit.Vetoed,
				)
			}

			if day := time.Now().UTC().Format("2006-01-02"); day != lastDay {
				lastDay = day
				if p, err := st.SummarizeYesterday(); err == nil && p != "" {
					logger.Info(ctx, "Daily summary written", "path", p)
				}
			}
		case <-sigc:
			logger.Info(ctx, "Shutting down...")
			if p, err := st.SummarizeDay(time.Now().UTC()); err == nil && p != "" {
				logger.Info(ctx, "Daily summary written", "path", p)
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = trace.Shutdown(shutdownCtx)
			shutdownCancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
