package types

import "time"

// Timeframe is a chart interval identifier, e.g. "5m", "15m", "1h".
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
)

// Bar is one OHLCV candle. Ts is the bar close time in unix milliseconds.
type Bar struct {
	Ts                             int64
	Open, High, Low, Close, Volume float64
}

// MarketSnapshot bundles the bar series of every configured timeframe for one
// decision cycle. It is built once by the synchronizer and never mutated;
// every later stage references it by ID.
type MarketSnapshot struct {
	ID         int64
	Symbol     string
	CapturedAt time.Time
	Series     map[Timeframe][]Bar

	// Derivatives fields, populated when the source provides them.
	FundingRate  float64
	OpenInterest float64
	HasDerivs    bool
}

// Bars returns the series for tf, newest bar last. Callers must not mutate
// the returned slice.
func (s *MarketSnapshot) Bars(tf Timeframe) []Bar {
	return s.Series[tf]
}

// LastClose returns the most recent close on tf, or 0 when the series is empty.
func (s *MarketSnapshot) LastClose(tf Timeframe) float64 {
	bars := s.Series[tf]
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

// AgentScore is the bounded output of one analysis agent for one snapshot.
// Score is in [-1, +1]; positive leans long, negative leans short. A degraded
// score carries a neutral value and is excluded from vote weighting entirely.
type AgentScore struct {
	AgentID    string    `json:"agent_id"`
	Score      float64   `json:"score"`
	Label      string    `json:"label"`
	Timeframe  Timeframe `json:"timeframe"`
	ComputedAt time.Time `json:"computed_at"`
	Degraded   bool      `json:"degraded"`
	Note       string    `json:"note,omitempty"`
}

// QuantAnalysis aggregates every agent score produced for one snapshot.
type QuantAnalysis struct {
	SnapshotID int64        `json:"snapshot_id"`
	Symbol     string       `json:"symbol"`
	Scores     []AgentScore `json:"scores"`
}

// Score returns the score emitted by the named agent.
func (q QuantAnalysis) Score(agentID string) (AgentScore, bool) {
	for _, s := range q.Scores {
		if s.AgentID == agentID {
			return s, true
		}
	}
	return AgentScore{}, false
}

// DegradedCount reports how many agents fell back to a neutral score.
func (q QuantAnalysis) DegradedCount() int {
	n := 0
	for _, s := range q.Scores {
		if s.Degraded {
			n++
		}
	}
	return n
}

// Action is the directional outcome of a cycle.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionFlat  Action = "FLAT"
)

// Opposes reports whether two directional actions point opposite ways.
// FLAT opposes nothing.
func (a Action) Opposes(b Action) bool {
	return (a == ActionLong && b == ActionShort) || (a == ActionShort && b == ActionLong)
}

// RegimeState classifies the market as trending or ranging.
type RegimeState string

const (
	RegimeTrending RegimeState = "TRENDING"
	RegimeRanging  RegimeState = "RANGING"
)

// RegimeReading is the detector output: state plus strength in [0,1].
type RegimeReading struct {
	State    RegimeState `json:"state"`
	Strength float64     `json:"strength"`
}

// RangeReading locates the last price inside the recent high/low range.
// PositionPct is 0 at the range low and 100 at the range high.
type RangeReading struct {
	PositionPct float64 `json:"position_pct"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
}

// Layer identifies one stage of the four-stage directional gate.
type Layer string

const (
	LayerTrendFuel Layer = "L1_TREND_FUEL"
	LayerAIFilter  Layer = "L2_AI_FILTER"
	LayerSetup     Layer = "L3_SETUP"
	LayerTrigger   Layer = "L4_TRIGGER"
)

// Verdict is the tagged outcome a layer reports.
type Verdict string

const (
	VerdictPass      Verdict = "PASS"
	VerdictFail      Verdict = "FAIL"
	VerdictVeto      Verdict = "VETO"
	VerdictReady     Verdict = "READY"
	VerdictWait      Verdict = "WAIT"
	VerdictConfirmed Verdict = "CONFIRMED"
	VerdictWaiting   Verdict = "WAITING"
)

// Advances reports whether the pipeline continues past a layer with this verdict.
func (v Verdict) Advances() bool {
	switch v {
	case VerdictPass, VerdictReady, VerdictConfirmed:
		return true
	}
	return false
}

// LayerOutcome records the verdict of one evaluated layer.
type LayerOutcome struct {
	Layer   Layer   `json:"layer"`
	Verdict Verdict `json:"verdict"`
	Detail  string  `json:"detail,omitempty"`
}

// VoteResult is the decision core output for one snapshot. LayerTrace holds
// every evaluated layer in order; the decision is reconstructable from the
// trace and reasons alone.
type VoteResult struct {
	SnapshotID int64          `json:"snapshot_id"`
	Symbol     string         `json:"symbol"`
	Action     Action         `json:"action"`
	Confidence float64        `json:"confidence"`
	Reasons    []string       `json:"reasons"`
	Aligned    bool           `json:"aligned"`
	LayerTrace []LayerOutcome `json:"layer_trace"`
}

// Opinion is the normalized output of the external deliberation collaborator.
// NoOpinion marks a degraded call (timeout, malformed payload); a degraded
// opinion passes L2 and is excluded from vote weighting.
type Opinion struct {
	Direction  Action  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
	NoOpinion  bool    `json:"no_opinion,omitempty"`
}

// DeliberationContext is the compact market state handed to the deliberator.
type DeliberationContext struct {
	SnapshotID int64                  `json:"snapshot_id"`
	Symbol     string                 `json:"symbol"`
	Timeframes map[Timeframe]TFDigest `json:"timeframes"`
	Regime     RegimeReading          `json:"regime"`
	Scores     []AgentScore           `json:"scores"`
}

// TFDigest summarizes one timeframe for the deliberation prompt.
type TFDigest struct {
	Close   float64 `json:"close"`
	RSI     float64 `json:"rsi"`
	EMAFast float64 `json:"ema_fast"`
	EMASlow float64 `json:"ema_slow"`
	ATR     float64 `json:"atr"`
	RelVol  float64 `json:"rel_vol"`
}

// TradePlan carries the concrete order parameters the auditor checks.
type TradePlan struct {
	Symbol       string  `json:"symbol"`
	Action       Action  `json:"action"`
	Entry        float64 `json:"entry"`
	Stop         float64 `json:"stop"`
	TakeProfit   float64 `json:"take_profit"`
	SizeFraction float64 `json:"size_fraction"`
	Leverage     int     `json:"leverage"`
}

// AuditCorrection records one in-place fix the risk auditor applied.
type AuditCorrection struct {
	Check string  `json:"check"`
	Field string  `json:"field"`
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Note  string  `json:"note,omitempty"`
}

// AuditResult is the terminal, authoritative outcome of a cycle. A vetoed
// result always carries FinalAction == FLAT.
type AuditResult struct {
	SnapshotID      int64             `json:"snapshot_id"`
	Symbol          string            `json:"symbol"`
	FinalAction     Action            `json:"final_action"`
	FinalConfidence float64           `json:"final_confidence"`
	Corrections     []AuditCorrection `json:"corrections,omitempty"`
	Vetoed          bool              `json:"vetoed"`
	VetoReason      string            `json:"veto_reason,omitempty"`
	Plan            TradePlan         `json:"plan"`
}

// AccountState is the account collaborator view used by the exposure preview.
type AccountState struct {
	Equity        float64        `json:"equity"`
	Leverage      int            `json:"leverage"`
	OpenPositions []OpenPosition `json:"open_positions,omitempty"`
}

type OpenPosition struct {
	Symbol     string      `json:"symbol"`
	Side       Action      `json:"side"`
	Notional   float64     `json:"notional"`
	Entry      float64     `json:"entry,omitempty"`
	Stop       float64     `json:"stop,omitempty"`
	TakeProfit float64     `json:"take_profit,omitempty"`
	Regime     RegimeState `json:"regime,omitempty"`
}

// LossPattern flags a setup that has repeatedly stopped out.
type LossPattern struct {
	Symbol    string      `json:"symbol"`
	Direction Action      `json:"direction"`
	Regime    RegimeState `json:"regime"`
	Hits      int         `json:"hits"`
	Blocked   bool        `json:"blocked"`
}

// LossHistorySnapshot is the read-only view handed into the risk audit.
type LossHistorySnapshot struct {
	TakenAt  time.Time     `json:"taken_at"`
	Patterns []LossPattern `json:"patterns,omitempty"`
}

// Match finds the pattern for a (symbol, direction, regime) setup.
func (s LossHistorySnapshot) Match(symbol string, dir Action, regime RegimeState) (LossPattern, bool) {
	for _, p := range s.Patterns {
		if p.Symbol == symbol && p.Direction == dir && p.Regime == regime {
			return p, true
		}
	}
	return LossPattern{}, false
}

// OrderReceipt acknowledges a handoff to execution. Duplicate marks a resubmit
// for an already-seen snapshot id.
type OrderReceipt struct {
	OrderID     string    `json:"order_id"`
	SnapshotID  int64     `json:"snapshot_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	Duplicate   bool      `json:"duplicate,omitempty"`
}

// CycleRecord is the complete lineage of one cycle, archived atomically.
type CycleRecord struct {
	SnapshotID int64           `json:"snapshot_id"`
	Symbol     string          `json:"symbol"`
	CapturedAt time.Time       `json:"captured_at"`
	Snapshot   *MarketSnapshot `json:"snapshot"`
	Analysis   QuantAnalysis   `json:"analysis"`
	Regime     RegimeReading   `json:"regime"`
	Range      RangeReading    `json:"range"`
	Opinion    Opinion         `json:"opinion"`
	Vote       VoteResult      `json:"vote"`
	Audit      AuditResult     `json:"audit"`
	Receipt    *OrderReceipt   `json:"receipt,omitempty"`
	ExecError  string          `json:"exec_error,omitempty"`
}

// CycleResult is what the engine returns to its caller.
type CycleResult struct {
	SnapshotID int64         `json:"snapshot_id"`
	Symbol     string        `json:"symbol"`
	Vote       VoteResult    `json:"vote"`
	Audit      AuditResult   `json:"audit"`
	Receipt    *OrderReceipt `json:"receipt,omitempty"`
	ExecError  string        `json:"exec_error,omitempty"`
}
