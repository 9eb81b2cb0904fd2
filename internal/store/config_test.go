package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quant-council/internal/types"
)

const minimalYAML = `
mode: DRY_RUN
universe: [BTCUSDT]
data:
  timeframes:
    - interval: 5m
      bars: 60
    - interval: 1h
      bars: 60
  recency_tolerance_ms: 7200000
  skew_tolerance_ms: 3900000
  retry:
    max_attempts: 3
risk:
  max_exposure_pct: 50
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.PollSeconds != 60 {
		t.Errorf("poll_seconds default: got %d", cfg.PollSeconds)
	}
	if cfg.Data.Source != "STATIC" {
		t.Errorf("data.source default: got %q", cfg.Data.Source)
	}
	if cfg.Calibration.Mode != "linear" || cfg.Calibration.RangingPenalty != 0.6 {
		t.Errorf("calibration defaults: got %q / %.2f", cfg.Calibration.Mode, cfg.Calibration.RangingPenalty)
	}
	if cfg.VoteBlend.Margin+cfg.VoteBlend.Regime+cfg.VoteBlend.Position != 1.0 {
		t.Errorf("vote blend defaults should sum to 1, got %+v", cfg.VoteBlend)
	}
	if cfg.Risk.MaxLeverage != 5 || cfg.Risk.DefaultLeverage != 2 {
		t.Errorf("leverage defaults: got %d / %d", cfg.Risk.MaxLeverage, cfg.Risk.DefaultLeverage)
	}
	if cfg.Deliberation.Provider != "NOOP" {
		t.Errorf("deliberation provider default: got %q", cfg.Deliberation.Provider)
	}
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "mode: [unclosed")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"bad mode", func(c *Config) { c.Mode = "PAPER" }, "invalid mode"},
		{"empty universe", func(c *Config) { c.Universe = nil }, "universe"},
		{"no timeframes", func(c *Config) { c.Data.Timeframes = nil }, "timeframes"},
		{"zero bars", func(c *Config) { c.Data.Timeframes[0].Bars = 0 }, "bars"},
		{"zero skew", func(c *Config) { c.Data.SkewToleranceMS = 0 }, "skew_tolerance_ms"},
		{"bad calibration mode", func(c *Config) { c.Calibration.Mode = "sigmoid" }, "calibration.mode"},
		{"penalty above one", func(c *Config) { c.Calibration.RangingPenalty = 1.5 }, "ranging_penalty"},
		{"gamma below one", func(c *Config) { c.Calibration.Gamma = 0.5 }, "gamma"},
		{"confidence above one", func(c *Config) { c.Execution.MinConfidence = 1.5 }, "min_confidence"},
		{"default leverage above max", func(c *Config) { c.Risk.DefaultLeverage = 10 }, "default_leverage"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, minimalYAML))
			if err != nil {
				t.Fatalf("baseline must load: %v", err)
			}
			tc.mutate(cfg)

			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q should mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestHasTimeframe(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.HasTimeframe(types.TF5m) {
		t.Error("5m is configured and should be reported")
	}
	if cfg.HasTimeframe(types.TF15m) {
		t.Error("15m is not configured")
	}
}
