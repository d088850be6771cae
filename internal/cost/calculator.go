package cost

import (
	"strings"

	"github.com/sells-group/statement-cli/internal/config"
	"github.com/sells-group/statement-cli/internal/model"
)

// Rates holds per-provider, per-model token pricing.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig builds rates from the pricing section, falling back to
// DefaultRates for providers with no configured models.
func FromConfig(c config.PricingConfig) Rates {
	rates := DefaultRates()
	if len(c.Anthropic) > 0 {
		rates.Anthropic = convert(c.Anthropic)
	}
	if len(c.OpenAI) > 0 {
		rates.OpenAI = convert(c.OpenAI)
	}
	if len(c.Gemini) > 0 {
		rates.Gemini = convert(c.Gemini)
	}
	return rates
}

func convert(in map[string]config.ModelPricing) map[string]ModelRate {
	out := make(map[string]ModelRate, len(in))
	for name, p := range in {
		out[strings.ToLower(name)] = ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return out
}

// Rate looks up the pricing for a provider and model. Model names are
// matched case-insensitively.
func (c *Calculator) Rate(provider, modelName string) (ModelRate, bool) {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "openai":
		table = c.rates.OpenAI
	case "gemini":
		table = c.rates.Gemini
	}
	rate, ok := table[strings.ToLower(modelName)]
	return rate, ok
}

// Tokens computes the USD cost of one call. Unknown models cost 0.
func (c *Calculator) Tokens(provider, modelName string, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := c.Rate(provider, modelName)
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Usage fills in the Cost of u for the given provider and model.
func (c *Calculator) Usage(provider, modelName string, u model.TokenUsage) model.TokenUsage {
	u.Cost = c.Tokens(provider, modelName, u.InputTokens, u.OutputTokens, u.CacheCreationTokens, u.CacheReadTokens)
	return u
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o":      {Input: 2.50, Output: 10.00, CacheReadMul: 0.5},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60, CacheReadMul: 0.5},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50, CacheReadMul: 0.25},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00, CacheReadMul: 0.25},
		},
	}
}
