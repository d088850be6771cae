package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/pkg/openai"
)

type openAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAI returns a Provider backed by OpenAI chat completions with image input.
func NewOpenAI(client openai.Client, modelName string, opts Options) Provider {
	return newLLMProvider("openai", modelName, &openAIBackend{client: client, model: modelName},
		opts.Calculator, opts.MaxTokens, opts.Temperature)
}

func (b *openAIBackend) complete(ctx context.Context, req visionRequest) (string, model.TokenUsage, error) {
	temp := req.Temperature
	resp, err := b.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: &temp,
		MaxTokens:   req.MaxTokens,
		JSONObject:  true,
		Messages: []openai.Message{
			openai.SystemMessage(req.System),
			openai.UserImageMessage(req.Prompt, req.Page.DataURL()),
		},
	})
	if err != nil {
		return "", model.TokenUsage{}, err
	}

	cached := resp.Usage.CachedTokens
	usage := model.TokenUsage{
		InputTokens:     resp.Usage.PromptTokens - cached,
		OutputTokens:    resp.Usage.CompletionTokens,
		CacheReadTokens: cached,
	}
	text := resp.Text()
	if text == "" {
		return "", usage, eris.Errorf("openai: empty response (finish reason %q)", resp.Choices[0].FinishReason)
	}
	return text, usage, nil
}
