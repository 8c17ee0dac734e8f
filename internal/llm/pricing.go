package llm

import "strings"

// modelPricing holds per-million-token USD rates for one model family.
// Grounded on detent's heal/loop/pricing.go, unchanged in shape.
type modelPricing struct {
	inputPerMillion  float64
	outputPerMillion float64
}

var modelPrefixes = []struct {
	prefix  string
	pricing modelPricing
}{
	{"claude-opus-4-5", modelPricing{inputPerMillion: 5.00, outputPerMillion: 25.00}},
	{"claude-sonnet-4-5", modelPricing{inputPerMillion: 3.00, outputPerMillion: 15.00}},
	{"claude-haiku-4-5", modelPricing{inputPerMillion: 1.00, outputPerMillion: 5.00}},
	{"claude-opus-4-1", modelPricing{inputPerMillion: 15.00, outputPerMillion: 75.00}},
	{"claude-opus-4", modelPricing{inputPerMillion: 15.00, outputPerMillion: 75.00}},
	{"claude-sonnet-4", modelPricing{inputPerMillion: 3.00, outputPerMillion: 15.00}},
	{"claude-3-7-sonnet", modelPricing{inputPerMillion: 3.00, outputPerMillion: 15.00}},
	{"claude-3-5-sonnet", modelPricing{inputPerMillion: 3.00, outputPerMillion: 15.00}},
	{"claude-3-5-haiku", modelPricing{inputPerMillion: 0.80, outputPerMillion: 4.00}},
	{"claude-3-opus", modelPricing{inputPerMillion: 15.00, outputPerMillion: 75.00}},
	{"claude-3-haiku", modelPricing{inputPerMillion: 0.25, outputPerMillion: 1.25}},
}

var defaultPricing = modelPricing{inputPerMillion: 3.00, outputPerMillion: 15.00}

// TokenUsage accumulates token counts for cost calculation across a job.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Add accumulates u2 into u.
func (u *TokenUsage) Add(u2 TokenUsage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
	u.CacheCreationInputTokens += u2.CacheCreationInputTokens
	u.CacheReadInputTokens += u2.CacheReadInputTokens
}

// CalculateCost computes the USD cost of usage for model, including the
// standard cache discount (read = 0.1x input rate, write = 1.25x input
// rate) Anthropic applies to prompt caching.
func CalculateCost(model string, usage TokenUsage) float64 {
	p := getPricing(model)

	inputCost := float64(usage.InputTokens) / 1_000_000 * p.inputPerMillion
	cacheReadCost := float64(usage.CacheReadInputTokens) / 1_000_000 * p.inputPerMillion * 0.1
	cacheWriteCost := float64(usage.CacheCreationInputTokens) / 1_000_000 * p.inputPerMillion * 1.25
	outputCost := float64(usage.OutputTokens) / 1_000_000 * p.outputPerMillion

	return inputCost + cacheReadCost + cacheWriteCost + outputCost
}

func getPricing(model string) modelPricing {
	for _, mp := range modelPrefixes {
		if strings.HasPrefix(model, mp.prefix) {
			return mp.pricing
		}
	}
	return defaultPricing
}
