package llm

import (
	"math"
	"testing"
)

func TestGetPricing(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantIn  float64
		wantOut float64
	}{
		{"exact sonnet match", "claude-sonnet-4-5", 3.00, 15.00},
		{"versioned sonnet", "claude-sonnet-4-5-20250929", 3.00, 15.00},
		{"opus", "claude-opus-4-5", 5.00, 25.00},
		{"haiku", "claude-haiku-4-5", 1.00, 5.00},
		{"legacy 3.5 haiku", "claude-3-5-haiku-20241022", 0.80, 4.00},
		{"unknown model falls back to sonnet", "claude-unknown-model", 3.00, 15.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := getPricing(tt.model)
			if p.inputPerMillion != tt.wantIn {
				t.Errorf("inputPerMillion = %v, want %v", p.inputPerMillion, tt.wantIn)
			}
			if p.outputPerMillion != tt.wantOut {
				t.Errorf("outputPerMillion = %v, want %v", p.outputPerMillion, tt.wantOut)
			}
		})
	}
}

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		usage    TokenUsage
		wantCost float64
	}{
		{
			name:     "1M tokens sonnet",
			model:    "claude-sonnet-4-5",
			usage:    TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000},
			wantCost: 3.00 + 15.00,
		},
		{
			name:     "10K tokens haiku",
			model:    "claude-haiku-4-5",
			usage:    TokenUsage{InputTokens: 10_000, OutputTokens: 5_000},
			wantCost: 0.010 + 0.025,
		},
		{
			name:     "cache read and write discount/premium",
			model:    "claude-sonnet-4-5",
			usage:    TokenUsage{CacheReadInputTokens: 1_000_000, CacheCreationInputTokens: 1_000_000},
			wantCost: 3.00*0.1 + 3.00*1.25,
		},
		{
			name:     "zero tokens",
			model:    "claude-sonnet-4-5",
			usage:    TokenUsage{},
			wantCost: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCost(tt.model, tt.usage)
			if math.Abs(got-tt.wantCost) > 0.0001 {
				t.Errorf("CalculateCost() = %v, want %v", got, tt.wantCost)
			}
		})
	}
}

func TestTokenUsageAdd(t *testing.T) {
	u := TokenUsage{InputTokens: 1, OutputTokens: 2}
	u.Add(TokenUsage{InputTokens: 10, OutputTokens: 20, CacheReadInputTokens: 5})
	if u.InputTokens != 11 || u.OutputTokens != 22 || u.CacheReadInputTokens != 5 {
		t.Fatalf("unexpected accumulated usage: %+v", u)
	}
}
