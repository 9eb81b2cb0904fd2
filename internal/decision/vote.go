package decision

import (
	"fmt"
	"math"

	"quant-council/internal/agents"
	"quant-council/internal/ta"
	"quant-council/internal/types"
)

// voteInput is one weighted directional contribution. Score is signed:
// positive long, negative short.
type voteInput struct {
	id     string
	weight float64
	score  float64
}

// vote runs the deterministic weighted vote over non-degraded agents and the
// external opinion, then calibrates confidence for the detected regime.
// Degraded inputs are excluded entirely so the surviving weights renormalize
// over the active set.
func (c *Core) vote(res types.VoteResult, analysis types.QuantAnalysis, reg types.RegimeReading, rng types.RangeReading, opinion types.Opinion) types.VoteResult {
	w := c.cfg.Weights
	inputs := make([]voteInput, 0, 5)

	// Fixed ordering keeps the vote byte-for-byte reproducible.
	agentWeights := []struct {
		id     string
		weight float64
	}{
		{agents.TrendAgentID, w.Trend},
		{agents.OscillatorAgentID, w.Oscillator},
		{agents.VolumeAgentID, w.Volume},
		{agents.SentimentAgentID, w.Sentiment},
	}
	for _, aw := range agentWeights {
		score, ok := analysis.Score(aw.id)
		if !ok || score.Degraded {
			res.Reasons = append(res.Reasons, fmt.Sprintf("vote: %s excluded (degraded)", aw.id))
			continue
		}
		inputs = append(inputs, voteInput{id: aw.id, weight: aw.weight, score: score.Score})
	}
	if !opinion.NoOpinion && opinion.Direction != types.ActionFlat {
		signed := opinion.Confidence
		if opinion.Direction == types.ActionShort {
			signed = -signed
		}
		inputs = append(inputs, voteInput{id: "deliberation", weight: w.Deliberation, score: signed})
	}

	var totalW, longScore, shortScore float64
	for _, in := range inputs {
		totalW += in.weight
		if in.score > 0 {
			longScore += in.weight * in.score
		} else {
			shortScore += in.weight * -in.score
		}
	}
	if totalW <= 0 {
		res.Reasons = append(res.Reasons, "vote: no active inputs")
		return res
	}
	longScore /= totalW
	shortScore /= totalW

	if longScore == shortScore {
		res.Reasons = append(res.Reasons, fmt.Sprintf("vote: long %.3f ties short %.3f", longScore, shortScore))
		return res
	}

	action := types.ActionLong
	margin := longScore - shortScore
	posQuality := (100 - rng.PositionPct) / 100
	if shortScore > longScore {
		action = types.ActionShort
		margin = shortScore - longScore
		posQuality = rng.PositionPct / 100
	}

	trendStrength := 0.0
	if reg.State == types.RegimeTrending {
		trendStrength = reg.Strength
	}
	blend := c.cfg.VoteBlend
	conf := ta.Clamp(margin*blend.Margin+trendStrength*blend.Regime+posQuality*blend.Position, 0, 1)
	res.Reasons = append(res.Reasons,
		fmt.Sprintf("vote: long=%.3f short=%.3f margin=%.3f regime=%s/%.2f pos=%.0f%% conf=%.3f",
			longScore, shortScore, margin, reg.State, reg.Strength, rng.PositionPct, conf))

	if reg.State == types.RegimeRanging {
		before := conf
		conf = c.calibrateRanging(conf)
		res.Reasons = append(res.Reasons, fmt.Sprintf("vote: ranging regime demotes confidence %.3f -> %.3f", before, conf))
	}

	if conf < c.cfg.Execution.MinConfidence {
		res.Confidence = conf
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("vote: confidence %.3f below execution floor %.2f, standing down", conf, c.cfg.Execution.MinConfidence))
		return res
	}

	res.Action = action
	res.Confidence = conf
	return res
}

// calibrateRanging applies the configured monotone demotion. Both modes map
// [0,1] into [0,1] and never promote: linear scales down by a fixed factor,
// power bends the curve so weak confidence collapses faster than strong.
func (c *Core) calibrateRanging(conf float64) float64 {
	cal := c.cfg.Calibration
	switch cal.Mode {
	case "power":
		if conf <= 0 {
			return 0
		}
		return ta.Clamp(math.Pow(conf, cal.Gamma), 0, 1)
	default:
		return ta.Clamp(conf*cal.RangingPenalty, 0, 1)
	}
}
