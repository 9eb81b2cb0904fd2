package news

import (
	"context"
	"strings"
	"time"

	"quant-council/internal/ta"
)

var bullishTerms = []string{
	"surge", "rally", "soar", "breakout", "record high", "all-time high",
	"adoption", "approval", "etf inflow", "bullish", "upgrade", "accumulat",
	"institutional", "buy the dip", "recovery",
}

var bearishTerms = []string{
	"crash", "plunge", "dump", "selloff", "sell-off", "liquidation",
	"hack", "exploit", "lawsuit", "ban", "crackdown", "bearish",
	"downgrade", "outflow", "fear", "capitulat",
}

// Scorer turns recent headlines into a sentiment score in [-1, +1] using a
// keyword lexicon. It satisfies the sentiment agent's HeadlineScorer.
type Scorer struct {
	feed  *Feed
	cache *headlineCache
	max   int
}

func NewScorer(timeout time.Duration, cacheTTL time.Duration, maxHeadlines int) *Scorer {
	return &Scorer{
		feed:  NewFeed(timeout),
		cache: newHeadlineCache(cacheTTL),
		max:   maxHeadlines,
	}
}

// Score fetches (or recalls) headlines for symbol and scores them. The count
// out lets callers shrink trust in thin samples.
func (s *Scorer) Score(ctx context.Context, symbol string) (float64, int, error) {
	headlines, ok := s.cache.get(symbol)
	if !ok {
		fetched, err := s.feed.Fetch(ctx, symbol, s.max)
		if err != nil {
			return 0, 0, err
		}
		s.cache.set(symbol, fetched)
		s.cache.cleanup()
		headlines = fetched
	}
	if len(headlines) == 0 {
		return 0, 0, nil
	}

	total := 0.0
	for _, h := range headlines {
		total += scoreTitle(h.Title)
	}
	return ta.Clamp(total/float64(len(headlines)), -1, 1), len(headlines), nil
}

func scoreTitle(title string) float64 {
	lower := strings.ToLower(title)
	score := 0.0
	for _, term := range bullishTerms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	for _, term := range bearishTerms {
		if strings.Contains(lower, term) {
			score--
		}
	}
	return ta.Clamp(score, -1, 1)
}
