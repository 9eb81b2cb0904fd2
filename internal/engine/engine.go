package engine

import (
	"context"
	"math"

	"quant-council/internal/agents"
	"quant-council/internal/decision"
	"quant-council/internal/interfaces"
	"quant-council/internal/logger"
	"quant-council/internal/marketdata"
	"quant-council/internal/regime"
	"quant-council/internal/risk"
	"quant-council/internal/store"
	"quant-council/internal/ta"
	"quant-council/internal/types"
)

// Engine runs one full decision cycle per symbol: synchronize, analyze,
// deliberate, decide, audit, hand off, archive. Each stage consumes only the
// snapshot and upstream outputs, so a cycle is reproducible from its record.
type Engine struct {
	cfg         *store.Config
	sync        interfaces.Synchronizer
	agentList   []agents.Agent
	lookback    *marketdata.LookbackCache
	detector    *regime.Detector
	position    *regime.PositionAnalyzer
	deliberator interfaces.Deliberator
	core        *decision.Core
	auditor     *risk.Auditor
	executor    interfaces.Executor
	archiver    interfaces.Archiver
	book        interfaces.PositionBook
	losses      interfaces.LossRecorder
}

var _ interfaces.Engine = (*Engine)(nil)

type Deps struct {
	Synchronizer interfaces.Synchronizer
	Agents       []agents.Agent
	Lookback     *marketdata.LookbackCache
	Deliberator  interfaces.Deliberator
	Auditor      *risk.Auditor
	Executor     interfaces.Executor
	Archiver     interfaces.Archiver

	// Book and Losses close the dry-run feedback loop; both may be nil.
	Book   interfaces.PositionBook
	Losses interfaces.LossRecorder
}

func New(cfg *store.Config, deps Deps) *Engine {
	return &Engine{
		cfg:         cfg,
		sync:        deps.Synchronizer,
		agentList:   deps.Agents,
		lookback:    deps.Lookback,
		detector:    regime.NewDetector(cfg.Layers.L1.TrendTimeframe),
		position:    regime.NewPositionAnalyzer(cfg.Layers.L3.SetupTimeframe),
		deliberator: deps.Deliberator,
		core:        decision.New(cfg),
		auditor:     deps.Auditor,
		executor:    deps.Executor,
		archiver:    deps.Archiver,
		book:        deps.Book,
		losses:      deps.Losses,
	}
}

// Cycle runs one decision cycle. The record is published atomically at the
// end: a cycle that cannot archive its full lineage contributes nothing.
func (e *Engine) Cycle(ctx context.Context, symbol string) (*types.CycleResult, error) {
	snap, err := e.sync.Snapshot(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Snapshot failed, skipping cycle", err, "symbol", symbol)
		return nil, err
	}
	logger.Debug(ctx, "Snapshot captured", "symbol", symbol, "snapshot_id", snap.ID)

	e.settle(ctx, snap)

	analysis := agents.RunAll(ctx, e.agentList, snap, e.lookback)

	reg, err := e.detector.Detect(snap)
	if err != nil {
		// Unreadable regime is treated as ranging with zero strength, which
		// only ever demotes confidence.
		logger.Warn(ctx, "Regime detection failed, assuming ranging",
			"symbol", symbol, "snapshot_id", snap.ID, "err", err)
		reg = types.RegimeReading{State: types.RegimeRanging, Strength: 0}
	}
	rng, err := e.position.Analyze(snap)
	if err != nil {
		logger.Warn(ctx, "Range position unreadable, assuming mid-range",
			"symbol", symbol, "snapshot_id", snap.ID, "err", err)
		rng = types.RangeReading{PositionPct: 50}
	}

	opinion, err := e.deliberator.Deliberate(ctx, e.deliberationContext(snap, reg, analysis))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn(ctx, "Deliberation degraded to no opinion",
			"symbol", symbol, "snapshot_id", snap.ID, "err", err)
		opinion = types.Opinion{NoOpinion: true, Rationale: "deliberation_error"}
	}

	vote := e.core.Decide(snap, analysis, reg, rng, opinion)
	logger.Decision(ctx, symbol, string(vote.Action), vote.Confidence,
		joinReasons(vote.Reasons), "snapshot_id", snap.ID, "aligned", vote.Aligned)

	plan := e.buildPlan(snap, vote)
	audit := e.auditor.Audit(ctx, vote, plan, reg)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var receipt *types.OrderReceipt
	execErr := ""
	if audit.FinalAction != types.ActionFlat {
		r, err := e.executor.Submit(ctx, audit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// The handoff failed but the decision still happened: the cycle
			// archives its lineage with the failure attached.
			logger.ErrorWithErr(ctx, "Execution handoff failed", err,
				"symbol", symbol, "snapshot_id", snap.ID)
			execErr = err.Error()
		} else {
			receipt = &r
			if e.book != nil && !r.Duplicate {
				e.book.Fill(audit.Plan, audit.FinalAction, reg.State)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := types.CycleRecord{
		SnapshotID: snap.ID,
		Symbol:     symbol,
		CapturedAt: snap.CapturedAt,
		Snapshot:   snap,
		Analysis:   analysis,
		Regime:     reg,
		Range:      rng,
		Opinion:    opinion,
		Vote:       vote,
		Audit:      audit,
		Receipt:    receipt,
		ExecError:  execErr,
	}
	if err := e.archiver.Persist(ctx, rec); err != nil {
		logger.ErrorWithErr(ctx, "Cycle publish failed", err,
			"symbol", symbol, "snapshot_id", snap.ID)
		return nil, err
	}

	return &types.CycleResult{
		SnapshotID: snap.ID,
		Symbol:     symbol,
		Vote:       vote,
		Audit:      audit,
		Receipt:    receipt,
		ExecError:  execErr,
	}, nil
}

// settle marks prior fills to the latest trigger-timeframe close before this
// cycle decides, feeding stop-outs and target hits into the loss book.
func (e *Engine) settle(ctx context.Context, snap *types.MarketSnapshot) {
	if e.book == nil {
		return
	}
	price := snap.LastClose(e.cfg.Layers.L4.TriggerTimeframe)
	if price == 0 {
		return
	}

	stopped, won := e.book.MarkPrice(snap.Symbol, price)
	for _, p := range stopped {
		logger.Risk(ctx, p.Symbol, "PAPER_STOP_OUT",
			"side", p.Side, "entry", p.Entry, "stop", p.Stop, "price", price)
		if e.losses != nil {
			e.losses.RecordLoss(p.Symbol, p.Side, p.Regime)
		}
	}
	for _, p := range won {
		logger.Info(ctx, "Paper position hit target",
			"symbol", p.Symbol, "side", p.Side, "entry", p.Entry,
			"take_profit", p.TakeProfit, "price", price)
		if e.losses != nil {
			e.losses.RecordWin(p.Symbol, p.Side, p.Regime)
		}
	}
}

// buildPlan derives concrete order parameters from the trigger-timeframe
// close and a setup-timeframe ATR stop distance. A FLAT vote carries no plan.
func (e *Engine) buildPlan(snap *types.MarketSnapshot, vote types.VoteResult) types.TradePlan {
	if vote.Action == types.ActionFlat {
		return types.TradePlan{Symbol: snap.Symbol, Action: types.ActionFlat}
	}

	entry := snap.LastClose(e.cfg.Layers.L4.TriggerTimeframe)
	dist := e.stopDistance(snap, entry)

	stop := entry - dist
	tp := entry + dist*e.cfg.Risk.TakeProfitATRMult/e.cfg.Risk.StopATRMult
	if vote.Action == types.ActionShort {
		stop = entry + dist
		tp = entry - dist*e.cfg.Risk.TakeProfitATRMult/e.cfg.Risk.StopATRMult
	}

	return types.TradePlan{
		Symbol:       snap.Symbol,
		Action:       vote.Action,
		Entry:        entry,
		Stop:         stop,
		TakeProfit:   tp,
		SizeFraction: e.cfg.Execution.SizeFraction,
		Leverage:     e.cfg.Risk.DefaultLeverage,
	}
}

func (e *Engine) stopDistance(snap *types.MarketSnapshot, entry float64) float64 {
	bars := snap.Bars(e.cfg.Layers.L3.SetupTimeframe)
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	atr := ta.ATR(highs, lows, closes, 14)
	if math.IsNaN(atr) || atr == 0 {
		return entry * e.cfg.Risk.FallbackStopPct / 100
	}
	return atr * e.cfg.Risk.StopATRMult
}

// deliberationContext compresses the snapshot into per-timeframe digests so
// the prompt stays small regardless of lookback depth.
func (e *Engine) deliberationContext(snap *types.MarketSnapshot, reg types.RegimeReading, analysis types.QuantAnalysis) types.DeliberationContext {
	digests := make(map[types.Timeframe]types.TFDigest, len(snap.Series))
	for tf, bars := range snap.Series {
		if len(bars) == 0 {
			continue
		}
		closes := make([]float64, len(bars))
		highs := make([]float64, len(bars))
		lows := make([]float64, len(bars))
		volumes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i], highs[i], lows[i], volumes[i] = b.Close, b.High, b.Low, b.Volume
		}
		digests[tf] = types.TFDigest{
			Close:   closes[len(closes)-1],
			RSI:     ta.RSI(closes, 14),
			EMAFast: ta.EMA(closes, 12),
			EMASlow: ta.EMA(closes, 26),
			ATR:     ta.ATR(highs, lows, closes, 14),
			RelVol:  ta.RelVolume(volumes, 20),
		}
	}
	return types.DeliberationContext{
		SnapshotID: snap.ID,
		Symbol:     snap.Symbol,
		Timeframes: digests,
		Regime:     reg,
		Scores:     analysis.Scores,
	}
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += " | " + r
	}
	return out
}
