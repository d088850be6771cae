package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/pkg/anthropic"
)

type anthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropic returns a Provider backed by Claude vision.
func NewAnthropic(client anthropic.Client, modelName string, opts Options) Provider {
	return newLLMProvider("anthropic", modelName, &anthropicBackend{client: client, model: modelName},
		opts.Calculator, opts.MaxTokens, opts.Temperature)
}

func (b *anthropicBackend) complete(ctx context.Context, req visionRequest) (string, model.TokenUsage, error) {
	temp := req.Temperature
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      anthropic.CachedSystem(req.System),
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: req.Prompt,
			Images: []anthropic.Image{{
				MediaType: mediaType(req.Page),
				Data:      req.Page.Base64(),
			}},
		}},
	})
	if err != nil {
		return "", model.TokenUsage{}, err
	}
	resp.Usage.LogUsage(b.model, req.Operation, req.Page.PageNum)

	usage := model.TokenUsage{
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
	}
	text := resp.Text()
	if text == "" {
		return "", usage, eris.Errorf("anthropic: empty response (stop reason %q)", resp.StopReason)
	}
	return text, usage, nil
}

func mediaType(p model.PageImage) string {
	if p.MediaType == "" {
		return "image/png"
	}
	return p.MediaType
}
