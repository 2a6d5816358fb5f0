package cost

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestFromUsageKnownModel(t *testing.T) {
	got := FromUsage("gemini-2.5-pro", Usage{PromptTokens: 1_000_000, CompletionTokens: 100_000})
	if !almostEqual(got, 1.25+1.0) {
		t.Errorf("FromUsage = %f, want 2.25", got)
	}
}

func TestFromUsageModelsPrefix(t *testing.T) {
	a := FromUsage("models/gemini-2.5-flash", Usage{PromptTokens: 1000})
	b := FromUsage("gemini-2.5-flash", Usage{PromptTokens: 1000})
	if a != b || a == 0 {
		t.Errorf("models/ prefix should be ignored: %f vs %f", a, b)
	}
}

func TestFromUsageUnknownModel(t *testing.T) {
	if got := FromUsage("local/llama", Usage{PromptTokens: 10, CompletionTokens: 10}); got != 0 {
		t.Errorf("unknown model should cost 0, got %f", got)
	}
}

func TestTableOverrides(t *testing.T) {
	tbl := &Table{Overrides: map[string]ModelPricing{
		"local/llama":    PerMillion(1, 2),
		"gemini-2.5-pro": PerMillion(0, 0),
	}}
	if got := tbl.FromUsage("local/llama", Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}); !almostEqual(got, 3) {
		t.Errorf("override cost = %f, want 3", got)
	}
	if got := tbl.FromUsage("gemini-2.5-pro", Usage{PromptTokens: 1000}); got != 0 {
		t.Errorf("override should win over defaults, got %f", got)
	}
	if !tbl.Known("gemini-2.0-flash") {
		t.Error("defaults should still be visible through a table")
	}
}
