package provider

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/resilience"
)

// geminiModels is the subset of *genai.Models used here.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type geminiBackend struct {
	models geminiModels
	model  string
}

// NewGemini returns a Provider backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, modelName string, opts Options) (Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return newGemini(client.Models, modelName, opts), nil
}

func newGemini(models geminiModels, modelName string, opts Options) Provider {
	return newLLMProvider("gemini", modelName, &geminiBackend{models: models, model: modelName},
		opts.Calculator, opts.MaxTokens, opts.Temperature)
}

func (b *geminiBackend) complete(ctx context.Context, req visionRequest) (string, model.TokenUsage, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens:  int32(req.MaxTokens),
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		},
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Page.Data, mediaType(req.Page)),
		genai.NewPartFromText(req.Prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := b.models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return "", model.TokenUsage{}, classifyGeminiError(eris.Wrap(err, "gemini: generate content"))
	}

	var usage model.TokenUsage
	if md := resp.UsageMetadata; md != nil {
		usage = model.TokenUsage{
			InputTokens:     int(md.PromptTokenCount - md.CachedContentTokenCount),
			OutputTokens:    int(md.CandidatesTokenCount),
			CacheReadTokens: int(md.CachedContentTokenCount),
		}
	}
	text := resp.Text()
	if text == "" {
		return "", usage, eris.New("gemini: empty response")
	}
	return text, usage, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTP(err, apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return resilience.ClassifyHTTP(err, apiErrPtr.Code)
	}
	return err
}
