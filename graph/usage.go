package graph

import (
	"fmt"
	"sync"
)

// ModelPricing is the USD price per million tokens for one model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultPricing covers the models the bundled providers expose.
// Prices drift; override with SetPricing when accuracy matters.
var defaultPricing = map[string]ModelPricing{
	"gpt-4o":                     {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":                {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4-turbo":                {InputPerMillion: 10.00, OutputPerMillion: 30.00},
	"gpt-3.5-turbo":              {InputPerMillion: 0.50, OutputPerMillion: 1.50},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-opus-20240229":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-3-haiku-20240307":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"gemini-1.5-pro":             {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"gemini-1.5-flash":           {InputPerMillion: 0.075, OutputPerMillion: 0.30},
}

// ModelCall is one recorded model invocation.
type ModelCall struct {
	Model        string
	NodeID       string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// UsageTracker accumulates token usage and estimated spend for a run.
//
// Nodes that call a ChatModel record their usage here; the pipelines
// surface the totals after a run. Unknown models are tracked with a
// zero cost estimate.
type UsageTracker struct {
	mu      sync.Mutex
	runID   string
	pricing map[string]ModelPricing
	calls   []ModelCall
	input   int64
	output  int64
	total   float64
}

// NewUsageTracker creates a tracker for one run.
func NewUsageTracker(runID string) *UsageTracker {
	pricing := make(map[string]ModelPricing, len(defaultPricing))
	for k, v := range defaultPricing {
		pricing[k] = v
	}
	return &UsageTracker{runID: runID, pricing: pricing}
}

// SetPricing overrides or adds pricing for a model.
func (t *UsageTracker) SetPricing(model string, inputPerMillion, outputPerMillion float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing[model] = ModelPricing{InputPerMillion: inputPerMillion, OutputPerMillion: outputPerMillion}
}

// Record adds one model call to the tally and returns its estimated
// cost in USD.
func (t *UsageTracker) Record(model, nodeID string, inputTokens, outputTokens int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cost float64
	if p, ok := t.pricing[model]; ok {
		cost = float64(inputTokens)/1e6*p.InputPerMillion + float64(outputTokens)/1e6*p.OutputPerMillion
	}

	t.calls = append(t.calls, ModelCall{
		Model:        model,
		NodeID:       nodeID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
	})
	t.input += int64(inputTokens)
	t.output += int64(outputTokens)
	t.total += cost
	return cost
}

// TotalCost returns the estimated spend so far in USD.
func (t *UsageTracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Tokens returns the cumulative input and output token counts.
func (t *UsageTracker) Tokens() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input, t.output
}

// Calls returns a copy of the recorded call history.
func (t *UsageTracker) Calls() []ModelCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ModelCall, len(t.calls))
	copy(out, t.calls)
	return out
}

// CostByModel returns the estimated spend grouped by model name.
func (t *UsageTracker) CostByModel() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64)
	for _, c := range t.calls {
		out[c.Model] += c.CostUSD
	}
	return out
}

// String summarizes the tracker for logs.
func (t *UsageTracker) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("run %s: %d calls, %d in / %d out tokens, $%.4f",
		t.runID, len(t.calls), t.input, t.output, t.total)
}
