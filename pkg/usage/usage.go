package usage

import (
	"sync"
)

// DefaultModel is the model whose rates apply when a model has no entry of its own.
const DefaultModel = "claude-sonnet-4-5-20250929"

// Rates holds the dollar price per million tokens for one model.
type Rates struct {
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// PriceTable maps model ids to rates. The "default" key, when present,
// overrides DefaultModel as the fallback entry.
type PriceTable map[string]Rates

// DefaultPrices returns the built-in price table.
func DefaultPrices() PriceTable {
	return PriceTable{
		"claude-sonnet-4-5-20250929": {InputPerMillion: 3, OutputPerMillion: 15},
		"claude-sonnet-3-5":          {InputPerMillion: 3, OutputPerMillion: 15},
		"claude-sonnet-4-20250514":   {InputPerMillion: 3, OutputPerMillion: 15},
		"claude-opus-4":              {InputPerMillion: 15, OutputPerMillion: 75},
		"claude-opus-4-20250514":     {InputPerMillion: 15, OutputPerMillion: 75},
		"mock-1":                     {InputPerMillion: 3, OutputPerMillion: 15},
	}
}

// RatesFor returns the rates for model, falling back to the "default" entry
// and then to DefaultModel.
func (p PriceTable) RatesFor(model string) Rates {
	if p == nil {
		return DefaultPrices()[DefaultModel]
	}
	if r, ok := p[model]; ok {
		return r
	}
	if r, ok := p["default"]; ok {
		return r
	}
	if r, ok := p[DefaultModel]; ok {
		return r
	}
	return DefaultPrices()[DefaultModel]
}

// Cost computes the dollar cost of a single call.
func (p PriceTable) Cost(promptTokens, completionTokens int, model string) float64 {
	r := p.RatesFor(model)
	return float64(clamp(promptTokens))/1e6*r.InputPerMillion +
		float64(clamp(completionTokens))/1e6*r.OutputPerMillion
}

// Summary is a point-in-time view of accumulated usage.
type Summary struct {
	PromptTokens     int64   `json:"total_prompt_tokens"`
	CompletionTokens int64   `json:"total_completion_tokens"`
	Cost             float64 `json:"total_cost"`
	Calls            int64   `json:"total_calls"`
}

// TotalTokens returns prompt plus completion tokens.
func (s Summary) TotalTokens() int64 {
	return s.PromptTokens + s.CompletionTokens
}

// Tracker accumulates token and cost totals across concurrent callers.
type Tracker struct {
	mu     sync.Mutex
	prices PriceTable
	totals Summary
}

// NewTracker creates a tracker. A nil table uses DefaultPrices.
func NewTracker(prices PriceTable) *Tracker {
	if len(prices) == 0 {
		prices = DefaultPrices()
	}
	return &Tracker{prices: prices}
}

// Prices returns the tracker's price table.
func (t *Tracker) Prices() PriceTable {
	return t.prices
}

// Record adds one call to the totals and returns its cost.
// Negative token counts are treated as zero.
func (t *Tracker) Record(promptTokens, completionTokens int, model string) float64 {
	cost := t.prices.Cost(promptTokens, completionTokens, model)

	t.mu.Lock()
	t.totals.PromptTokens += int64(clamp(promptTokens))
	t.totals.CompletionTokens += int64(clamp(completionTokens))
	t.totals.Cost += cost
	t.totals.Calls++
	t.mu.Unlock()

	return cost
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// Reset zeroes the totals.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.totals = Summary{}
	t.mu.Unlock()
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
