package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quant-council/internal/logger"
	"quant-council/internal/marketdata"
	"quant-council/internal/ta"
	"quant-council/internal/types"
)

const SentimentAgentID = "sentiment"

// saturationFunding is the absolute funding rate at which crowding is treated
// as extreme (0.05% per interval).
const saturationFunding = 0.0005

// HeadlineScorer supplies an optional news-derived sentiment in [-1, +1]
// together with the number of headlines behind it.
type HeadlineScorer interface {
	Score(ctx context.Context, symbol string) (float64, int, error)
}

// SentimentAgent reads crowd positioning from the snapshot's derivatives
// fields: strongly positive funding means crowded longs and scores bearish
// (contrarian). When a headline scorer is wired, its score is blended in.
type SentimentAgent struct {
	tf        types.Timeframe
	headlines HeadlineScorer
	blend     float64
}

// NewSentimentAgent builds the agent. headlines may be nil; blend is the
// share of the final score taken from headlines when they are available.
func NewSentimentAgent(tf types.Timeframe, headlines HeadlineScorer, blend float64) *SentimentAgent {
	return &SentimentAgent{tf: tf, headlines: headlines, blend: ta.Clamp(blend, 0, 1)}
}

func (a *SentimentAgent) ID() string { return SentimentAgentID }

func (a *SentimentAgent) Compute(ctx context.Context, snap *types.MarketSnapshot, _ *marketdata.LookbackCache) (types.AgentScore, error) {
	if !snap.HasDerivs {
		return types.AgentScore{Timeframe: a.tf}, errors.New("no derivatives data in snapshot")
	}

	score := ta.Clamp(-snap.FundingRate/saturationFunding, -1, 1)
	note := fmt.Sprintf("funding=%.5f oi=%.0f", snap.FundingRate, snap.OpenInterest)

	if a.headlines != nil {
		news, n, err := a.headlines.Score(ctx, snap.Symbol)
		if err != nil || n == 0 {
			// Headlines are an enrichment; losing them never degrades the agent.
			if err != nil {
				logger.Debug(ctx, "Headline score unavailable", "symbol", snap.Symbol, "error", err)
			}
		} else {
			score = (1.0-a.blend)*score + a.blend*ta.Clamp(news, -1, 1)
			note += fmt.Sprintf(" headlines=%d news_score=%.2f", n, news)
		}
	}

	return types.AgentScore{
		AgentID:    a.ID(),
		Score:      score,
		Label:      sentimentLabel(score),
		Timeframe:  a.tf,
		ComputedAt: time.Now(),
		Note:       note,
	}, nil
}

func sentimentLabel(score float64) string {
	switch {
	case score >= 0.3:
		return "bullish_crowd_fade"
	case score <= -0.3:
		return "bearish_crowd_fade"
	default:
		return "balanced"
	}
}
