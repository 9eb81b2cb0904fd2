package risk

import (
	"context"
	"errors"
	"testing"

	"quant-council/internal/store"
	"quant-council/internal/types"
)

type fakeAccount struct {
	state types.AccountState
	err   error
}

func (f *fakeAccount) AccountState(ctx context.Context) (types.AccountState, error) {
	return f.state, f.err
}

func riskConfig() *store.Config {
	cfg := &store.Config{}
	cfg.Risk.MaxLeverage = 5
	cfg.Risk.DefaultLeverage = 2
	cfg.Risk.MaxExposurePct = 50
	cfg.Risk.MinRiskReward = 2.0
	cfg.Risk.FallbackStopPct = 1.0
	cfg.Risk.LossPatternMinHits = 3
	cfg.Risk.LossPatternPenalty = 0.5
	cfg.Execution.MinConfidence = 0.3
	return cfg
}

func longVote() types.VoteResult {
	return types.VoteResult{SnapshotID: 7, Symbol: "BTCUSDT", Action: types.ActionLong, Confidence: 0.7}
}

func longPlan() types.TradePlan {
	return types.TradePlan{
		Symbol:       "BTCUSDT",
		Action:       types.ActionLong,
		Entry:        100,
		Stop:         98,
		TakeProfit:   104,
		SizeFraction: 0.1,
		Leverage:     2,
	}
}

func healthyAccount() *fakeAccount {
	return &fakeAccount{state: types.AccountState{Equity: 10000}}
}

func trending() types.RegimeReading {
	return types.RegimeReading{State: types.RegimeTrending, Strength: 0.7}
}

func TestAuditCleanPlanPassesUntouched(t *testing.T) {
	a := NewAuditor(riskConfig(), healthyAccount(), NewLossBook(0))

	res := a.Audit(context.Background(), longVote(), longPlan(), trending())

	if res.Vetoed {
		t.Fatalf("clean plan vetoed: %s", res.VetoReason)
	}
	if len(res.Corrections) != 0 {
		t.Errorf("clean plan should need no corrections, got %+v", res.Corrections)
	}
	if res.FinalAction != types.ActionLong || res.FinalConfidence != 0.7 {
		t.Errorf("clean plan should pass through, got %s %.2f", res.FinalAction, res.FinalConfidence)
	}
}

func TestAuditMirrorsWrongSideStop(t *testing.T) {
	a := NewAuditor(riskConfig(), healthyAccount(), NewLossBook(0))
	plan := longPlan()
	plan.Stop = 102 // above a long entry

	res := a.Audit(context.Background(), longVote(), plan, trending())

	if res.Vetoed {
		t.Fatalf("fixable stop should not veto: %s", res.VetoReason)
	}
	if res.Plan.Stop != 98 {
		t.Errorf("expected stop mirrored to 98, got %.2f", res.Plan.Stop)
	}
	if len(res.Corrections) == 0 || res.Corrections[0].Check != "stop_side" {
		t.Errorf("expected a stop_side correction, got %+v", res.Corrections)
	}
}

func TestAuditShortStopMirroredAboveEntry(t *testing.T) {
	a := NewAuditor(riskConfig(), healthyAccount(), NewLossBook(0))
	vote := longVote()
	vote.Action = types.ActionShort
	plan := types.TradePlan{
		Symbol: "BTCUSDT", Action: types.ActionShort,
		Entry: 100, Stop: 97, TakeProfit: 94,
		SizeFraction: 0.1, Leverage: 2,
	}

	res := a.Audit(context.Background(), vote, plan, trending())

	if res.Plan.Stop != 103 {
		t.Errorf("short stop must sit above entry, got %.2f", res.Plan.Stop)
	}
}

func TestAuditStopAtEntryGetsFallbackDistance(t *testing.T) {
	a := NewAuditor(riskConfig(), healthyAccount(), NewLossBook(0))
	plan := longPlan()
	plan.Stop = 100

	res := a.Audit(context.Background(), longVote(), plan, trending())

	if res.Plan.Stop != 99 { // 1% fallback below entry
		t.Errorf("expected fallback stop 99, got %.2f", res.Plan.Stop)
	}
}

func TestAuditExtendsTakeProfitToMinRiskReward(t *testing.T) {
	a := NewAuditor(riskConfig(), healthyAccount(), NewLossBook(0))
	plan := longPlan()
	plan.TakeProfit = 101 // reward 1 vs risk 2

	res := a.Audit(context.Background(), longVote(), plan, trending())

	if res.Plan.TakeProfit != 104 {
		t.Errorf("expected take profit extended to 104, got %.2f", res.Plan.TakeProfit)
	}
}

func TestAuditCapsLeverage(t *testing.T) {
	a := NewAuditor(riskConfig(), healthyAccount(), NewLossBook(0))
	plan := longPlan()
	plan.Leverage = 20

	res := a.Audit(context.Background(), longVote(), plan, trending())

	if res.Plan.Leverage != 5 {
		t.Errorf("expected leverage capped at 5, got %d", res.Plan.Leverage)
	}
}

func TestAuditVetoesExposureBreach(t *testing.T) {
	acct := &fakeAccount{state: types.AccountState{
		Equity: 10000,
		OpenPositions: []types.OpenPosition{
			{Symbol: "ETHUSDT", Side: types.ActionLong, Notional: 4500},
		},
	}}
	a := NewAuditor(riskConfig(), acct, NewLossBook(0))

	// Adding 10000*0.1*2 = 2000 against a 5000 cap with 4500 already open.
	res := a.Audit(context.Background(), longVote(), longPlan(), trending())

	if !res.Vetoed {
		t.Fatal("expected exposure veto")
	}
	if res.FinalAction != types.ActionFlat {
		t.Errorf("veto must force FLAT, got %s", res.FinalAction)
	}
}

func TestAuditVetoesWhenAccountUnavailable(t *testing.T) {
	a := NewAuditor(riskConfig(), &fakeAccount{err: errors.New("broker down")}, NewLossBook(0))

	res := a.Audit(context.Background(), longVote(), longPlan(), trending())

	if !res.Vetoed || res.FinalAction != types.ActionFlat {
		t.Errorf("unverifiable exposure must fail closed, got %+v", res)
	}
}

func TestAuditLossPatternDemotesConfidence(t *testing.T) {
	book := NewLossBook(0)
	for i := 0; i < 3; i++ {
		book.RecordLoss("BTCUSDT", types.ActionLong, types.RegimeTrending)
	}
	a := NewAuditor(riskConfig(), healthyAccount(), book)

	res := a.Audit(context.Background(), longVote(), longPlan(), trending())

	if res.Vetoed {
		t.Fatalf("demotion above the floor should not veto: %s", res.VetoReason)
	}
	if res.FinalConfidence != 0.35 {
		t.Errorf("expected confidence demoted to 0.35, got %.3f", res.FinalConfidence)
	}
}

func TestAuditLossPatternDemotionBelowFloorVetoes(t *testing.T) {
	book := NewLossBook(0)
	for i := 0; i < 3; i++ {
		book.RecordLoss("BTCUSDT", types.ActionLong, types.RegimeTrending)
	}
	a := NewAuditor(riskConfig(), healthyAccount(), book)
	vote := longVote()
	vote.Confidence = 0.4 // demotes to 0.2, below the 0.3 floor

	res := a.Audit(context.Background(), vote, longPlan(), trending())

	if !res.Vetoed || res.FinalAction != types.ActionFlat {
		t.Errorf("demotion below floor must veto, got %+v", res)
	}
}

func TestAuditBlockedPatternVetoes(t *testing.T) {
	book := NewLossBook(3)
	for i := 0; i < 3; i++ {
		book.RecordLoss("BTCUSDT", types.ActionLong, types.RegimeTrending)
	}
	a := NewAuditor(riskConfig(), healthyAccount(), book)

	res := a.Audit(context.Background(), longVote(), longPlan(), trending())

	if !res.Vetoed {
		t.Fatal("blocked pattern must veto")
	}
}

func TestAuditFlatVotePassesThrough(t *testing.T) {
	a := NewAuditor(riskConfig(), &fakeAccount{err: errors.New("broker down")}, NewLossBook(0))
	vote := longVote()
	vote.Action = types.ActionFlat
	vote.Confidence = 0

	res := a.Audit(context.Background(), vote, types.TradePlan{}, trending())

	if res.Vetoed || res.FinalAction != types.ActionFlat || len(res.Corrections) != 0 {
		t.Errorf("FLAT vote must pass through untouched, got %+v", res)
	}
}

func TestLossBookWinClearsStreak(t *testing.T) {
	book := NewLossBook(3)
	book.RecordLoss("BTCUSDT", types.ActionLong, types.RegimeTrending)
	book.RecordLoss("BTCUSDT", types.ActionLong, types.RegimeTrending)
	book.RecordWin("BTCUSDT", types.ActionLong, types.RegimeTrending)

	if _, ok := book.Snapshot().Match("BTCUSDT", types.ActionLong, types.RegimeTrending); ok {
		t.Error("a win should clear the loss streak")
	}
}
