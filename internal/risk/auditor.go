package risk

import (
	"context"
	"fmt"
	"math"

	"quant-council/internal/interfaces"
	"quant-council/internal/logger"
	"quant-council/internal/store"
	"quant-council/internal/trace"
	"quant-council/internal/types"
)

// Auditor is the independent risk check that runs after the vote. It corrects
// fixable plan defects in place, vetoes unfixable ones, and its output is
// authoritative: a veto always ends the cycle FLAT regardless of vote
// confidence.
type Auditor struct {
	cfg     *store.Config
	account interfaces.AccountSource
	losses  interfaces.LossHistory
}

func NewAuditor(cfg *store.Config, account interfaces.AccountSource, losses interfaces.LossHistory) *Auditor {
	return &Auditor{cfg: cfg, account: account, losses: losses}
}

// Audit runs every check in fixed order: stop placement, risk/reward,
// leverage, exposure, loss patterns. Veto reasons name the first check that
// fired; corrections accumulate across checks.
func (a *Auditor) Audit(ctx context.Context, vote types.VoteResult, plan types.TradePlan, regime types.RegimeReading) types.AuditResult {
	ctx, span := trace.StartSpan(ctx, "risk.Audit")
	defer span.End()

	res := types.AuditResult{
		SnapshotID:      vote.SnapshotID,
		Symbol:          vote.Symbol,
		FinalAction:     vote.Action,
		FinalConfidence: vote.Confidence,
		Plan:            plan,
	}

	// A FLAT vote carries nothing to audit.
	if vote.Action == types.ActionFlat {
		return res
	}

	a.checkStop(ctx, &res)
	a.checkRiskReward(ctx, &res)
	a.checkLeverage(ctx, &res)
	if res.Vetoed {
		return a.finalize(ctx, res)
	}

	if veto, reason := a.checkExposure(ctx, res.Plan); veto {
		return a.finalize(ctx, a.veto(res, "exposure", reason))
	}

	a.checkLossPattern(ctx, &res, regime)
	return a.finalize(ctx, res)
}

// checkStop enforces the stop on the losing side of entry: below entry for a
// long, above for a short. A wrong-side stop is mirrored across entry at the
// same distance; a stop exactly at entry gets the fallback percentage.
func (a *Auditor) checkStop(ctx context.Context, res *types.AuditResult) {
	plan := &res.Plan
	dist := math.Abs(plan.Stop - plan.Entry)
	if dist == 0 {
		dist = plan.Entry * a.cfg.Risk.FallbackStopPct / 100
	}

	want := plan.Entry - dist
	if plan.Action == types.ActionShort {
		want = plan.Entry + dist
	}
	if plan.Stop == want {
		return
	}

	res.Corrections = append(res.Corrections, types.AuditCorrection{
		Check: "stop_side",
		Field: "stop",
		From:  plan.Stop,
		To:    want,
		Note:  fmt.Sprintf("stop must sit on the losing side of a %s entry", plan.Action),
	})
	logger.Risk(ctx, plan.Symbol, "STOP_SIDE_CORRECTED",
		"action", plan.Action, "entry", plan.Entry, "from", plan.Stop, "to", want)
	plan.Stop = want
}

// checkRiskReward extends the take-profit until the reward covers the
// configured multiple of the stop distance.
func (a *Auditor) checkRiskReward(ctx context.Context, res *types.AuditResult) {
	minRR := a.cfg.Risk.MinRiskReward
	if minRR <= 0 {
		return
	}
	plan := &res.Plan
	riskDist := math.Abs(plan.Entry - plan.Stop)
	rewardDist := math.Abs(plan.TakeProfit - plan.Entry)
	if riskDist == 0 || rewardDist >= riskDist*minRR {
		return
	}

	want := plan.Entry + riskDist*minRR
	if plan.Action == types.ActionShort {
		want = plan.Entry - riskDist*minRR
	}
	res.Corrections = append(res.Corrections, types.AuditCorrection{
		Check: "risk_reward",
		Field: "take_profit",
		From:  plan.TakeProfit,
		To:    want,
		Note:  fmt.Sprintf("reward below %.1fx stop distance", minRR),
	})
	logger.Risk(ctx, plan.Symbol, "TAKE_PROFIT_EXTENDED",
		"from", plan.TakeProfit, "to", want, "min_rr", minRR)
	plan.TakeProfit = want
}

func (a *Auditor) checkLeverage(ctx context.Context, res *types.AuditResult) {
	plan := &res.Plan
	if plan.Leverage <= a.cfg.Risk.MaxLeverage {
		return
	}
	res.Corrections = append(res.Corrections, types.AuditCorrection{
		Check: "leverage",
		Field: "leverage",
		From:  float64(plan.Leverage),
		To:    float64(a.cfg.Risk.MaxLeverage),
	})
	logger.Risk(ctx, plan.Symbol, "LEVERAGE_CAPPED",
		"from", plan.Leverage, "to", a.cfg.Risk.MaxLeverage)
	plan.Leverage = a.cfg.Risk.MaxLeverage
}

// checkExposure previews the notional the plan would add against the account
// cap. Exposure breaches are not fixable in place: the position size came out
// of the vote and resizing it here would bypass the decision layer.
func (a *Auditor) checkExposure(ctx context.Context, plan types.TradePlan) (bool, string) {
	acct, err := a.account.AccountState(ctx)
	if err != nil {
		// Fail closed: without an account view the exposure cap is unverifiable.
		logger.ErrorWithErr(ctx, "Account state unavailable for exposure preview", err, "symbol", plan.Symbol)
		return true, "account state unavailable"
	}
	if acct.Equity <= 0 {
		return true, "account equity is zero"
	}

	open := 0.0
	for _, p := range acct.OpenPositions {
		open += p.Notional
	}
	adding := acct.Equity * plan.SizeFraction * float64(plan.Leverage)
	limit := acct.Equity * a.cfg.Risk.MaxExposurePct / 100

	if open+adding > limit {
		logger.Risk(ctx, plan.Symbol, "EXPOSURE_VETO",
			"open_notional", open, "adding", adding, "cap", limit, "equity", acct.Equity)
		return true, fmt.Sprintf("projected exposure %.2f exceeds cap %.2f", open+adding, limit)
	}
	return false, ""
}

// checkLossPattern demotes confidence when this (symbol, direction, regime)
// setup has repeatedly stopped out, and vetoes when the pattern is blocked.
func (a *Auditor) checkLossPattern(ctx context.Context, res *types.AuditResult, regime types.RegimeReading) {
	if a.losses == nil {
		return
	}
	pattern, ok := a.losses.Snapshot().Match(res.Symbol, res.FinalAction, regime.State)
	if !ok || pattern.Hits < a.cfg.Risk.LossPatternMinHits {
		return
	}
	if pattern.Blocked {
		*res = a.veto(*res, "loss_pattern",
			fmt.Sprintf("setup blocked after %d losses", pattern.Hits))
		return
	}

	demoted := res.FinalConfidence * a.cfg.Risk.LossPatternPenalty
	res.Corrections = append(res.Corrections, types.AuditCorrection{
		Check: "loss_pattern",
		Field: "confidence",
		From:  res.FinalConfidence,
		To:    demoted,
		Note:  fmt.Sprintf("%d prior losses on this setup", pattern.Hits),
	})
	logger.Risk(ctx, res.Symbol, "LOSS_PATTERN_DEMOTION",
		"hits", pattern.Hits, "from", res.FinalConfidence, "to", demoted)
	res.FinalConfidence = demoted

	if res.FinalConfidence < a.cfg.Execution.MinConfidence {
		*res = a.veto(*res, "loss_pattern",
			fmt.Sprintf("demoted confidence %.3f below execution floor", res.FinalConfidence))
	}
}

func (a *Auditor) veto(res types.AuditResult, check, reason string) types.AuditResult {
	res.Vetoed = true
	res.VetoReason = fmt.Sprintf("%s: %s", check, reason)
	res.FinalAction = types.ActionFlat
	return res
}

func (a *Auditor) finalize(ctx context.Context, res types.AuditResult) types.AuditResult {
	if res.Vetoed {
		logger.Risk(ctx, res.Symbol, "AUDIT_VETO", "reason", res.VetoReason)
	} else if len(res.Corrections) > 0 {
		logger.Info(ctx, "Risk audit applied corrections",
			"symbol", res.Symbol, "corrections", len(res.Corrections))
	}
	return res
}
