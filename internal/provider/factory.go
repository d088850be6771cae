package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/config"
	"github.com/sells-group/statement-cli/internal/cost"
	"github.com/sells-group/statement-cli/internal/resilience"
	"github.com/sells-group/statement-cli/pkg/anthropic"
	"github.com/sells-group/statement-cli/pkg/openai"
)

// Options holds request settings shared by every backend.
type Options struct {
	Calculator  *cost.Calculator
	MaxTokens   int
	Temperature float64
}

// New builds the provider named in cfg.Provider.Name and wraps it with the
// configured rate limit, circuit breaker and retry policy.
func New(ctx context.Context, cfg *config.Config, calc *cost.Calculator) (Provider, error) {
	opts := Options{
		Calculator:  calc,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
	}

	var base Provider
	switch cfg.Provider.Name {
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("provider: anthropic.key is required")
		}
		base = NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, opts)
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, eris.New("provider: openai.key is required")
		}
		client := openai.NewClient(cfg.OpenAI.Key,
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithModel(cfg.OpenAI.Model),
		)
		base = NewOpenAI(client, cfg.OpenAI.Model, opts)
	case "gemini":
		if cfg.Gemini.Key == "" {
			return nil, eris.New("provider: gemini.key is required")
		}
		p, err := NewGemini(ctx, cfg.Gemini.Key, cfg.Gemini.Model, opts)
		if err != nil {
			return nil, err
		}
		base = p
	default:
		return nil, eris.Errorf("provider: unknown provider %q", cfg.Provider.Name)
	}

	zap.L().Info("provider: initialized",
		zap.String("provider", base.Name()),
		zap.String("model", base.Model()),
	)

	return NewResilient(base, ResilientConfig{
		Retry:             resilience.RetryFromConfig(cfg.Retry),
		Circuit:           resilience.CircuitFromConfig(cfg.Circuit),
		RequestsPerSecond: cfg.Rate.RequestsPerSecond,
		Burst:             cfg.Rate.Burst,
	}), nil
}
