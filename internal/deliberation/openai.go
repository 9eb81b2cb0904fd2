package deliberation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"quant-council/internal/store"
	"quant-council/internal/trace"
	"quant-council/internal/types"
)

const defaultBaseURL = "https://api.openai.com/v1"

const responseSchema = `{"direction":"LONG|SHORT|FLAT","confidence":0-100,"rationale":"one sentence"}`

// OpenAIDeliberator asks an OpenAI-compatible chat endpoint for a directional
// opinion on the current market state. A malformed or unparseable reply is a
// degraded opinion, not a failure: the pipeline keeps running without it.
type OpenAIDeliberator struct {
	cfg    *store.Config
	client *http.Client
}

func NewOpenAIDeliberator(cfg *store.Config) *OpenAIDeliberator {
	return &OpenAIDeliberator{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Deliberation.TimeoutMS) * time.Millisecond},
	}
}

func (d *OpenAIDeliberator) Deliberate(ctx context.Context, dc types.DeliberationContext) (types.Opinion, error) {
	ctx, span := trace.StartSpan(ctx, "deliberation.openai")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return types.Opinion{}, errors.New("OPENAI_API_KEY missing")
	}

	state, _ := json.Marshal(dc)
	prompt := fmt.Sprintf("You will receive multi-timeframe market state as JSON. Respond ONLY with compact JSON matching the schema.\nSchema:%s\nState:%s", responseSchema, string(state))

	body := map[string]any{
		"model": d.cfg.Deliberation.Model,
		"messages": []map[string]string{
			{"role": "system", "content": d.cfg.Deliberation.System},
			{"role": "user", "content": prompt},
		},
		"temperature": d.cfg.Deliberation.Temperature,
		"max_tokens":  d.cfg.Deliberation.MaxTokens,
	}
	bb, _ := json.Marshal(body)

	base := d.cfg.Deliberation.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	req, _ := http.NewRequestWithContext(ctx, "POST", strings.TrimSuffix(base, "/")+"/chat/completions", bytes.NewReader(bb))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return types.Opinion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return types.Opinion{}, fmt.Errorf("deliberation http %d", resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return types.Opinion{}, err
	}
	if len(r.Choices) == 0 {
		return types.Opinion{}, errors.New("no choices")
	}

	return ParseOpinion(r.Choices[0].Message.Content), nil
}

// ParseOpinion normalizes the model reply into an Opinion. Anything that does
// not parse, names an unknown direction, or carries an out-of-range confidence
// degrades to NoOpinion.
func ParseOpinion(content string) types.Opinion {
	out := strings.TrimSpace(content)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	out = strings.TrimSpace(out)

	var raw struct {
		Direction  string  `json:"direction"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return types.Opinion{NoOpinion: true, Rationale: "invalid_json"}
	}

	dir := types.Action(strings.ToUpper(strings.TrimSpace(raw.Direction)))
	switch dir {
	case types.ActionLong, types.ActionShort, types.ActionFlat:
	default:
		return types.Opinion{NoOpinion: true, Rationale: "invalid_direction"}
	}
	if raw.Confidence < 0 || raw.Confidence > 100 {
		return types.Opinion{NoOpinion: true, Rationale: "invalid_confidence"}
	}

	return types.Opinion{
		Direction:  dir,
		Confidence: raw.Confidence / 100.0,
		Rationale:  strings.TrimSpace(raw.Rationale),
	}
}
