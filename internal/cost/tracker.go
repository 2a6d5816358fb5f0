package cost

import "strings"

// Usage holds token counts from a backend response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ModelPricing holds per-token pricing for a model (in USD per token).
type ModelPricing struct {
	InputPerToken  float64
	OutputPerToken float64
}

// defaultPricing provides fallback pricing for common Gemini models.
var defaultPricing = map[string]ModelPricing{
	"gemini-2.5-pro":        {InputPerToken: 1.25 / 1_000_000, OutputPerToken: 10.0 / 1_000_000},
	"gemini-2.5-flash":      {InputPerToken: 0.30 / 1_000_000, OutputPerToken: 2.50 / 1_000_000},
	"gemini-2.5-flash-lite": {InputPerToken: 0.10 / 1_000_000, OutputPerToken: 0.40 / 1_000_000},
	"gemini-2.0-flash":      {InputPerToken: 0.10 / 1_000_000, OutputPerToken: 0.40 / 1_000_000},
}

// Table resolves a model's pricing, consulting overrides first.
type Table struct {
	Overrides map[string]ModelPricing
}

// PerMillion converts USD-per-million-token prices.
func PerMillion(input, output float64) ModelPricing {
	return ModelPricing{InputPerToken: input / 1_000_000, OutputPerToken: output / 1_000_000}
}

func (t *Table) lookup(model string) (ModelPricing, bool) {
	model = strings.TrimPrefix(model, "models/")
	if t != nil {
		if p, ok := t.Overrides[model]; ok {
			return p, true
		}
	}
	p, ok := defaultPricing[model]
	return p, ok
}

// FromUsage calculates cost from token usage and model pricing. Unknown
// models cost 0.
func (t *Table) FromUsage(model string, usage Usage) float64 {
	pricing, ok := t.lookup(model)
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)*pricing.InputPerToken +
		float64(usage.CompletionTokens)*pricing.OutputPerToken
}

// Known reports whether the model has pricing.
func (t *Table) Known(model string) bool {
	_, ok := t.lookup(model)
	return ok
}

// FromUsage prices usage with the built-in table.
func FromUsage(model string, usage Usage) float64 {
	var t *Table
	return t.FromUsage(model, usage)
}
