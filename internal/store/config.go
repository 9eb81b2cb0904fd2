package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quant-council/internal/types"
)

// TimeframeSpec names one timeframe the synchronizer must fetch and how many
// bars of it every snapshot carries.
type TimeframeSpec struct {
	Interval types.Timeframe `yaml:"interval"`
	Bars     int             `yaml:"bars"`
}

type Config struct {
	Mode        string   `yaml:"mode"` // DRY_RUN or LIVE
	Universe    []string `yaml:"universe"`
	PollSeconds int      `yaml:"poll_seconds"`

	Data struct {
		Source             string          `yaml:"source"` // STATIC or LIVE
		Timeframes         []TimeframeSpec `yaml:"timeframes"`
		FetchTimeoutMS     int             `yaml:"fetch_timeout_ms"`
		RecencyToleranceMS int64           `yaml:"recency_tolerance_ms"`
		SkewToleranceMS    int64           `yaml:"skew_tolerance_ms"`
		LookbackDepth      int             `yaml:"lookback_depth"`
		Retry              struct {
			MaxAttempts      int `yaml:"max_attempts"`
			InitialBackoffMS int `yaml:"initial_backoff_ms"`
			MaxBackoffMS     int `yaml:"max_backoff_ms"`
		} `yaml:"retry"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		Breaker struct {
			ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
			OpenSeconds         int    `yaml:"open_seconds"`
		} `yaml:"breaker"`
	} `yaml:"data"`

	// Vote weights per input. Degraded inputs are excluded and the remaining
	// weights renormalized, so these need not sum to 1.
	Weights struct {
		Trend        float64 `yaml:"trend"`
		Oscillator   float64 `yaml:"oscillator"`
		Volume       float64 `yaml:"volume"`
		Sentiment    float64 `yaml:"sentiment"`
		Deliberation float64 `yaml:"deliberation"`
	} `yaml:"weights"`

	Layers struct {
		L1 struct {
			TrendTimeframe  types.Timeframe `yaml:"trend_timeframe"`
			TrendThreshold  float64         `yaml:"trend_threshold"`
			FuelTimeframe   types.Timeframe `yaml:"fuel_timeframe"`
			FuelMinRelVol   float64         `yaml:"fuel_min_rel_vol"`
		} `yaml:"l1"`
		L2 struct {
			DisagreementThreshold float64 `yaml:"disagreement_threshold"`
		} `yaml:"l2"`
		L3 struct {
			SetupTimeframe      types.Timeframe `yaml:"setup_timeframe"`
			LongMaxPositionPct  float64         `yaml:"long_max_position_pct"`
			ShortMinPositionPct float64         `yaml:"short_min_position_pct"`
			MaxOverextension    float64         `yaml:"max_overextension"`
		} `yaml:"l3"`
		L4 struct {
			TriggerTimeframe types.Timeframe `yaml:"trigger_timeframe"`
			MinRelVol        float64         `yaml:"min_rel_vol"`
		} `yaml:"l4"`
	} `yaml:"layers"`

	// Blend of vote margin, regime strength and range position into the raw
	// confidence. The three shares should sum to 1.
	VoteBlend struct {
		Margin   float64 `yaml:"margin"`
		Regime   float64 `yaml:"regime"`
		Position float64 `yaml:"position"`
	} `yaml:"vote_blend"`

	Calibration struct {
		Mode           string  `yaml:"mode"` // linear or power
		RangingPenalty float64 `yaml:"ranging_penalty"`
		Gamma          float64 `yaml:"gamma"`
	} `yaml:"calibration"`

	Execution struct {
		MinConfidence float64 `yaml:"min_confidence"`
		SizeFraction  float64 `yaml:"size_fraction"`
	} `yaml:"execution"`

	Risk struct {
		MaxLeverage        int     `yaml:"max_leverage"`
		DefaultLeverage    int     `yaml:"default_leverage"`
		MaxExposurePct     float64 `yaml:"max_exposure_pct"`
		MinRiskReward      float64 `yaml:"min_risk_reward"`
		StopATRMult        float64 `yaml:"stop_atr_mult"`
		TakeProfitATRMult  float64 `yaml:"take_profit_atr_mult"`
		FallbackStopPct    float64 `yaml:"fallback_stop_pct"`
		LossPatternMinHits int     `yaml:"loss_pattern_min_hits"`
		LossPatternPenalty float64 `yaml:"loss_pattern_penalty"`
	} `yaml:"risk"`

	Deliberation struct {
		Provider    string  `yaml:"provider"` // OPENAI or NOOP
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		TimeoutMS   int     `yaml:"timeout_ms"`
		System      string  `yaml:"system"`
	} `yaml:"deliberation"`

	Account struct {
		Equity float64 `yaml:"equity"`
	} `yaml:"account"`

	News struct {
		Enabled      bool    `yaml:"enabled"`
		MaxHeadlines int     `yaml:"max_headlines"`
		CacheMinutes int     `yaml:"cache_minutes"`
		Blend        float64 `yaml:"blend"` // share of the sentiment score taken from headlines
	} `yaml:"news"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Universe) == 0 {
		return errors.New("universe cannot be empty")
	}
	if len(c.Data.Timeframes) == 0 {
		return errors.New("data.timeframes cannot be empty")
	}
	for _, tf := range c.Data.Timeframes {
		if tf.Bars <= 0 {
			return fmt.Errorf("data.timeframes[%s].bars must be positive", tf.Interval)
		}
	}
	if c.Data.SkewToleranceMS <= 0 {
		return errors.New("data.skew_tolerance_ms must be positive")
	}
	if c.Data.RecencyToleranceMS <= 0 {
		return errors.New("data.recency_tolerance_ms must be positive")
	}
	if c.Data.Retry.MaxAttempts <= 0 {
		return errors.New("data.retry.max_attempts must be positive")
	}
	if c.Calibration.Mode != "linear" && c.Calibration.Mode != "power" {
		return fmt.Errorf("calibration.mode must be 'linear' or 'power', got '%s'", c.Calibration.Mode)
	}
	if c.Calibration.RangingPenalty <= 0 || c.Calibration.RangingPenalty > 1 {
		return fmt.Errorf("calibration.ranging_penalty must be in (0,1], got %.2f", c.Calibration.RangingPenalty)
	}
	if c.Calibration.Gamma < 1 {
		return fmt.Errorf("calibration.gamma must be >= 1, got %.2f", c.Calibration.Gamma)
	}
	if c.Execution.MinConfidence < 0 || c.Execution.MinConfidence > 1 {
		return fmt.Errorf("execution.min_confidence must be in [0,1], got %.2f", c.Execution.MinConfidence)
	}
	if c.Risk.MaxExposurePct <= 0 || c.Risk.MaxExposurePct > 100 {
		return fmt.Errorf("risk.max_exposure_pct must be in (0,100], got %.2f", c.Risk.MaxExposurePct)
	}
	if c.Risk.DefaultLeverage > c.Risk.MaxLeverage {
		return fmt.Errorf("risk.default_leverage %d exceeds risk.max_leverage %d",
			c.Risk.DefaultLeverage, c.Risk.MaxLeverage)
	}
	return nil
}

// HasTimeframe reports whether tf is one of the configured fetch specs.
func (c *Config) HasTimeframe(tf types.Timeframe) bool {
	for _, spec := range c.Data.Timeframes {
		if spec.Interval == tf {
			return true
		}
	}
	return false
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.PollSeconds == 0 {
		c.PollSeconds = 60
	}
	if c.Data.Source == "" {
		c.Data.Source = "STATIC"
	}
	if c.Data.FetchTimeoutMS == 0 {
		c.Data.FetchTimeoutMS = 5000
	}
	if c.Data.LookbackDepth == 0 {
		c.Data.LookbackDepth = 64
	}
	if c.Data.Retry.InitialBackoffMS == 0 {
		c.Data.Retry.InitialBackoffMS = 250
	}
	if c.Data.Retry.MaxBackoffMS == 0 {
		c.Data.Retry.MaxBackoffMS = 4000
	}
	if c.Data.RateLimit.RPS == 0 {
		c.Data.RateLimit.RPS = 5
		c.Data.RateLimit.Burst = 10
	}
	if c.Data.Breaker.ConsecutiveFailures == 0 {
		c.Data.Breaker.ConsecutiveFailures = 3
	}
	if c.Data.Breaker.OpenSeconds == 0 {
		c.Data.Breaker.OpenSeconds = 30
	}
	if c.Calibration.Mode == "" {
		c.Calibration.Mode = "linear"
	}
	if c.Calibration.RangingPenalty == 0 {
		c.Calibration.RangingPenalty = 0.6
	}
	if c.Calibration.Gamma == 0 {
		c.Calibration.Gamma = 1.5
	}
	if c.VoteBlend.Margin == 0 && c.VoteBlend.Regime == 0 && c.VoteBlend.Position == 0 {
		c.VoteBlend.Margin = 0.6
		c.VoteBlend.Regime = 0.25
		c.VoteBlend.Position = 0.15
	}
	if c.Execution.SizeFraction == 0 {
		c.Execution.SizeFraction = 0.1
	}
	if c.Risk.DefaultLeverage == 0 {
		c.Risk.DefaultLeverage = 2
	}
	if c.Risk.MaxLeverage == 0 {
		c.Risk.MaxLeverage = 5
	}
	if c.Risk.FallbackStopPct == 0 {
		c.Risk.FallbackStopPct = 1.0
	}
	if c.Risk.LossPatternMinHits == 0 {
		c.Risk.LossPatternMinHits = 3
	}
	if c.Risk.LossPatternPenalty == 0 {
		c.Risk.LossPatternPenalty = 0.5
	}
	if c.Deliberation.Provider == "" {
		c.Deliberation.Provider = "NOOP"
	}
	if c.Deliberation.TimeoutMS == 0 {
		c.Deliberation.TimeoutMS = 8000
	}
	if c.Account.Equity == 0 {
		c.Account.Equity = 10000
	}
	if c.News.MaxHeadlines == 0 {
		c.News.MaxHeadlines = 12
	}
	if c.News.CacheMinutes == 0 {
		c.News.CacheMinutes = 30
	}
	if c.News.Blend == 0 {
		c.News.Blend = 0.4
	}
}
