package deliberation

import (
	"testing"

	"quant-council/internal/types"
)

func TestParseOpinionValid(t *testing.T) {
	op := ParseOpinion(`{"direction":"LONG","confidence":72,"rationale":"higher lows on 1h"}`)
	if op.NoOpinion {
		t.Fatal("valid payload should not degrade")
	}
	if op.Direction != types.ActionLong {
		t.Errorf("expected LONG, got %s", op.Direction)
	}
	if op.Confidence != 0.72 {
		t.Errorf("expected confidence 0.72, got %.2f", op.Confidence)
	}
}

func TestParseOpinionFencedJSON(t *testing.T) {
	op := ParseOpinion("```json\n{\"direction\":\"short\",\"confidence\":55,\"rationale\":\"r\"}\n```")
	if op.NoOpinion || op.Direction != types.ActionShort {
		t.Errorf("fenced payload should parse, got %+v", op)
	}
}

func TestParseOpinionMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          "I think the market goes up",
		"unknown direction": `{"direction":"UP","confidence":50}`,
		"confidence range":  `{"direction":"LONG","confidence":140}`,
	}
	for name, content := range cases {
		op := ParseOpinion(content)
		if !op.NoOpinion {
			t.Errorf("%s: expected degraded opinion, got %+v", name, op)
		}
	}
}

func TestParseOpinionFlat(t *testing.T) {
	op := ParseOpinion(`{"direction":"FLAT","confidence":0,"rationale":"chop"}`)
	if op.NoOpinion || op.Direction != types.ActionFlat {
		t.Errorf("FLAT is a valid direction, got %+v", op)
	}
}
