package decision

import (
	"reflect"
	"testing"
	"time"

	"quant-council/internal/agents"
	"quant-council/internal/store"
	"quant-council/internal/types"
)

func testConfig() *store.Config {
	cfg := &store.Config{}
	cfg.Weights.Trend = 0.35
	cfg.Weights.Oscillator = 0.20
	cfg.Weights.Volume = 0.15
	cfg.Weights.Sentiment = 0.10
	cfg.Weights.Deliberation = 0.20
	cfg.Layers.L1.TrendTimeframe = types.TF1h
	cfg.Layers.L1.TrendThreshold = 0.3
	cfg.Layers.L1.FuelTimeframe = types.TF15m
	cfg.Layers.L1.FuelMinRelVol = 1.2
	cfg.Layers.L2.DisagreementThreshold = 0.6
	cfg.Layers.L3.SetupTimeframe = types.TF15m
	cfg.Layers.L3.LongMaxPositionPct = 60
	cfg.Layers.L3.ShortMinPositionPct = 40
	cfg.Layers.L3.MaxOverextension = 0.8
	cfg.Layers.L4.TriggerTimeframe = types.TF5m
	cfg.Layers.L4.MinRelVol = 1.1
	cfg.VoteBlend.Margin = 0.6
	cfg.VoteBlend.Regime = 0.25
	cfg.VoteBlend.Position = 0.15
	cfg.Calibration.Mode = "linear"
	cfg.Calibration.RangingPenalty = 0.6
	cfg.Calibration.Gamma = 1.5
	cfg.Execution.MinConfidence = 0.3
	return cfg
}

// series builds n bars with flat volume except an elevated last bar, each bar
// closing in the given direction.
func series(n int, bullish bool) []types.Bar {
	bars := make([]types.Bar, n)
	price := 100.0
	for i := range bars {
		open := price
		close := open + 0.5
		if !bullish {
			close = open - 0.5
		}
		bars[i] = types.Bar{
			Ts:     int64(i+1) * 60_000,
			Open:   open,
			High:   close + 0.2,
			Low:    open - 0.2,
			Close:  close,
			Volume: 100,
		}
		price = close
	}
	bars[n-1].Volume = 200 // rvol 2.0 against the 100 average
	return bars
}

func testSnapshot(triggerBullish bool) *types.MarketSnapshot {
	return &types.MarketSnapshot{
		ID:         42,
		Symbol:     "BTCUSDT",
		CapturedAt: time.Unix(1_700_000_000, 0),
		Series: map[types.Timeframe][]types.Bar{
			types.TF5m:  series(30, triggerBullish),
			types.TF15m: series(30, true),
			types.TF1h:  series(30, true),
		},
	}
}

func testAnalysis(scores map[string]float64, degraded ...string) types.QuantAnalysis {
	isDegraded := func(id string) bool {
		for _, d := range degraded {
			if d == id {
				return true
			}
		}
		return false
	}
	qa := types.QuantAnalysis{SnapshotID: 42, Symbol: "BTCUSDT"}
	for _, id := range []string{agents.TrendAgentID, agents.OscillatorAgentID, agents.VolumeAgentID, agents.SentimentAgentID} {
		qa.Scores = append(qa.Scores, types.AgentScore{
			AgentID:  id,
			Score:    scores[id],
			Degraded: isDegraded(id),
		})
	}
	return qa
}

func bullishInputs() (types.QuantAnalysis, types.RegimeReading, types.RangeReading, types.Opinion) {
	analysis := testAnalysis(map[string]float64{
		agents.TrendAgentID:      0.8,
		agents.OscillatorAgentID: 0.2,
		agents.VolumeAgentID:     0.5,
		agents.SentimentAgentID:  0.1,
	})
	reg := types.RegimeReading{State: types.RegimeTrending, Strength: 0.8}
	rng := types.RangeReading{PositionPct: 30, High: 120, Low: 90}
	opinion := types.Opinion{Direction: types.ActionLong, Confidence: 0.7}
	return analysis, reg, rng, opinion
}

func TestDecideFullPassGoesLong(t *testing.T) {
	core := New(testConfig())
	analysis, reg, rng, opinion := bullishInputs()

	res := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if res.Action != types.ActionLong {
		t.Fatalf("expected LONG, got %s (reasons: %v)", res.Action, res.Reasons)
	}
	if res.Confidence < 0.3 {
		t.Errorf("confidence %.3f below execution floor", res.Confidence)
	}
	if !res.Aligned {
		t.Error("full pass should be aligned")
	}
	if len(res.LayerTrace) != 4 {
		t.Fatalf("expected 4 layer outcomes, got %d", len(res.LayerTrace))
	}
	wantVerdicts := []types.Verdict{types.VerdictPass, types.VerdictPass, types.VerdictReady, types.VerdictConfirmed}
	for i, want := range wantVerdicts {
		if res.LayerTrace[i].Verdict != want {
			t.Errorf("layer %d: expected %s, got %s (%s)", i+1, want, res.LayerTrace[i].Verdict, res.LayerTrace[i].Detail)
		}
	}
}

func TestDecideFullPassGoesShort(t *testing.T) {
	core := New(testConfig())
	analysis := testAnalysis(map[string]float64{
		agents.TrendAgentID:      -0.8,
		agents.OscillatorAgentID: -0.2,
		agents.VolumeAgentID:     -0.5,
		agents.SentimentAgentID:  -0.1,
	})
	reg := types.RegimeReading{State: types.RegimeTrending, Strength: 0.8}
	rng := types.RangeReading{PositionPct: 70, High: 120, Low: 90}
	opinion := types.Opinion{Direction: types.ActionShort, Confidence: 0.7}

	res := core.Decide(testSnapshot(false), analysis, reg, rng, opinion)

	if res.Action != types.ActionShort {
		t.Fatalf("expected SHORT, got %s (reasons: %v)", res.Action, res.Reasons)
	}
	if len(res.LayerTrace) != 4 || res.LayerTrace[3].Verdict != types.VerdictConfirmed {
		t.Fatalf("expected confirmed short trace, got %+v", res.LayerTrace)
	}
}

func TestDecideWeakTrendFailsAtL1(t *testing.T) {
	core := New(testConfig())
	analysis, reg, rng, opinion := bullishInputs()
	for i := range analysis.Scores {
		if analysis.Scores[i].AgentID == agents.TrendAgentID {
			analysis.Scores[i].Score = 0.1
		}
	}

	res := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if res.Action != types.ActionFlat {
		t.Fatalf("expected FLAT, got %s", res.Action)
	}
	if res.Aligned {
		t.Error("L1 failure must not mark the result aligned")
	}
	if len(res.LayerTrace) != 1 {
		t.Fatalf("expected evaluation to stop at L1, trace has %d entries", len(res.LayerTrace))
	}
	if res.LayerTrace[0].Verdict != types.VerdictFail {
		t.Errorf("expected L1 FAIL, got %s", res.LayerTrace[0].Verdict)
	}
}

func TestDecideDegradedTrendFailsAtL1(t *testing.T) {
	core := New(testConfig())
	analysis, reg, rng, opinion := bullishInputs()
	analysis = testAnalysis(map[string]float64{}, agents.TrendAgentID)

	res := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if res.Action != types.ActionFlat || len(res.LayerTrace) != 1 {
		t.Fatalf("degraded trend should fail closed at L1, got %s with %d layers", res.Action, len(res.LayerTrace))
	}
}

func TestDecideStrongOpposingOpinionVetoes(t *testing.T) {
	core := New(testConfig())
	analysis, reg, rng, _ := bullishInputs()
	opinion := types.Opinion{Direction: types.ActionShort, Confidence: 0.9}

	res := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if res.Action != types.ActionFlat {
		t.Fatalf("expected FLAT after veto, got %s", res.Action)
	}
	if len(res.LayerTrace) != 2 {
		t.Fatalf("expected evaluation to stop at L2, trace has %d entries", len(res.LayerTrace))
	}
	if res.LayerTrace[1].Verdict != types.VerdictVeto {
		t.Errorf("expected L2 VETO, got %s", res.LayerTrace[1].Verdict)
	}
}

func TestDecideWeakOpposingOpinionPasses(t *testing.T) {
	core := New(testConfig())
	analysis, reg, rng, _ := bullishInputs()
	opinion := types.Opinion{Direction: types.ActionShort, Confidence: 0.3}

	res := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if res.LayerTrace[1].Verdict != types.VerdictPass {
		t.Errorf("opinion below disagreement threshold should pass L2, got %s", res.LayerTrace[1].Verdict)
	}
}

func TestDecideNoOpinionPassesL2(t *testing.T) {
	core := New(testConfig())
	analysis, reg, rng, _ := bullishInputs()
	opinion := types.Opinion{NoOpinion: true}

	res := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if res.LayerTrace[1].Verdict != types.VerdictPass {
		t.Errorf("degraded opinion should pass L2, got %s", res.LayerTrace[1].Verdict)
	}
	if res.Action != types.ActionLong {
		t.Errorf("pipeline should proceed without an opinion, got %s", res.Action)
	}
}

func TestDecideExtendedPriceWaitsAtL3(t *testing.T) {
	core := New(testConfig())
	analysis, reg, _, opinion := bullishInputs()
	rng := types.RangeReading{PositionPct: 90, High: 120, Low: 90}

	res := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if res.Action != types.ActionFlat {
		t.Fatalf("expected FLAT, got %s", res.Action)
	}
	if len(res.LayerTrace) != 3 || res.LayerTrace[2].Verdict != types.VerdictWait {
		t.Fatalf("expected L3 WAIT, got trace %+v", res.LayerTrace)
	}
}

func TestDecideBearishTriggerBarWaitsAtL4(t *testing.T) {
	core := New(testConfig())
	analysis, reg, rng, opinion := bullishInputs()

	res := core.Decide(testSnapshot(false), analysis, reg, rng, opinion)

	if res.Action != types.ActionFlat {
		t.Fatalf("expected FLAT, got %s", res.Action)
	}
	if len(res.LayerTrace) != 4 || res.LayerTrace[3].Verdict != types.VerdictWaiting {
		t.Fatalf("expected L4 WAITING, got trace %+v", res.LayerTrace)
	}
}

func TestDecideRangingRegimeDemotesConfidence(t *testing.T) {
	core := New(testConfig())
	analysis, _, rng, opinion := bullishInputs()

	trending := core.Decide(testSnapshot(true), analysis,
		types.RegimeReading{State: types.RegimeTrending, Strength: 0.8}, rng, opinion)
	ranging := core.Decide(testSnapshot(true), analysis,
		types.RegimeReading{State: types.RegimeRanging, Strength: 0.8}, rng, opinion)

	if ranging.Confidence >= trending.Confidence {
		t.Errorf("ranging confidence %.3f should be below trending %.3f",
			ranging.Confidence, trending.Confidence)
	}
	if len(ranging.LayerTrace) != len(trending.LayerTrace) {
		t.Fatalf("regime must not change layer evaluation: %d vs %d layers",
			len(ranging.LayerTrace), len(trending.LayerTrace))
	}
	for i := range trending.LayerTrace {
		if ranging.LayerTrace[i].Verdict != trending.LayerTrace[i].Verdict {
			t.Errorf("layer %d verdict changed with regime: %s vs %s",
				i+1, trending.LayerTrace[i].Verdict, ranging.LayerTrace[i].Verdict)
		}
	}
}

func TestDecidePowerCalibration(t *testing.T) {
	cfg := testConfig()
	cfg.Calibration.Mode = "power"
	cfg.Calibration.Gamma = 2.0
	core := New(cfg)
	analysis, _, rng, opinion := bullishInputs()

	trending := core.Decide(testSnapshot(true), analysis,
		types.RegimeReading{State: types.RegimeTrending, Strength: 0.8}, rng, opinion)
	ranging := core.Decide(testSnapshot(true), analysis,
		types.RegimeReading{State: types.RegimeRanging, Strength: 0.8}, rng, opinion)

	if ranging.Confidence >= trending.Confidence {
		t.Errorf("power calibration should demote: %.3f vs %.3f", ranging.Confidence, trending.Confidence)
	}
}

func TestVoteTieGoesFlat(t *testing.T) {
	cfg := testConfig()
	cfg.Weights.Trend = 0.25
	cfg.Weights.Oscillator = 0.25
	cfg.Weights.Volume = 0.25
	cfg.Weights.Sentiment = 0.25
	cfg.Weights.Deliberation = 0
	core := New(cfg)
	analysis := testAnalysis(map[string]float64{
		agents.TrendAgentID:      0.4,
		agents.OscillatorAgentID: -0.4,
		agents.VolumeAgentID:     0,
		agents.SentimentAgentID:  0,
	})

	res := core.vote(types.VoteResult{SnapshotID: 42, Symbol: "BTCUSDT", Action: types.ActionFlat},
		analysis,
		types.RegimeReading{State: types.RegimeTrending, Strength: 0.5},
		types.RangeReading{PositionPct: 50},
		types.Opinion{NoOpinion: true})

	if res.Action != types.ActionFlat {
		t.Errorf("exact tie must resolve to FLAT, got %s", res.Action)
	}
}

func TestVoteExcludesDegradedAndRenormalizes(t *testing.T) {
	core := New(testConfig())
	scores := map[string]float64{
		agents.TrendAgentID:      0.8,
		agents.OscillatorAgentID: 0.2,
		agents.VolumeAgentID:     0.5,
		agents.SentimentAgentID:  -1.0,
	}
	reg := types.RegimeReading{State: types.RegimeTrending, Strength: 0.5}
	rng := types.RangeReading{PositionPct: 30}
	opinion := types.Opinion{NoOpinion: true}

	withSentiment := core.vote(types.VoteResult{Action: types.ActionFlat},
		testAnalysis(scores), reg, rng, opinion)
	degraded := core.vote(types.VoteResult{Action: types.ActionFlat},
		testAnalysis(scores, agents.SentimentAgentID), reg, rng, opinion)

	if degraded.Confidence <= withSentiment.Confidence {
		t.Errorf("excluding a strongly opposing degraded input should raise confidence: %.3f vs %.3f",
			degraded.Confidence, withSentiment.Confidence)
	}
	found := false
	for _, r := range degraded.Reasons {
		if r == "vote: sentiment excluded (degraded)" {
			found = true
		}
	}
	if !found {
		t.Error("expected an exclusion reason for the degraded sentiment input")
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	core := New(testConfig())
	analysis, reg, rng, opinion := bullishInputs()

	a := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)
	b := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical inputs produced different results:\n%+v\n%+v", a, b)
	}
}

func TestDecideConfidenceFloorStandsDown(t *testing.T) {
	cfg := testConfig()
	cfg.Execution.MinConfidence = 0.99
	core := New(cfg)
	analysis, reg, rng, opinion := bullishInputs()

	res := core.Decide(testSnapshot(true), analysis, reg, rng, opinion)

	if res.Action != types.ActionFlat {
		t.Errorf("confidence below floor must stand down, got %s", res.Action)
	}
	if res.Confidence == 0 {
		t.Error("stand-down result should still report the computed confidence")
	}
}
