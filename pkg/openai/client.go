// Package openai wraps go-openai chat completions with image input.
package openai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	sdk "github.com/sashabaranov/go-openai"

	"github.com/sells-group/statement-cli/internal/resilience"
)

const defaultModel = "gpt-4o"

// Client performs chat completions against the OpenAI API.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// ChatCompletionRequest is our own request type for ChatCompletion.
type ChatCompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	JSONObject  bool // ask the model for a single JSON object
}

// Message is a single conversational message. Image URLs (usually data:
// URLs) follow the text content.
type Message struct {
	Role      string // "system", "user" or "assistant"
	Content   string
	ImageURLs []string
}

// SystemMessage builds a plain text system message.
func SystemMessage(text string) Message {
	return Message{Role: sdk.ChatMessageRoleSystem, Content: text}
}

// UserImageMessage builds a user message with the prompt followed by one
// image per URL.
func UserImageMessage(prompt string, imageURLs ...string) Message {
	return Message{Role: sdk.ChatMessageRoleUser, Content: prompt, ImageURLs: imageURLs}
}

// ChatCompletionResponse is our own response type from ChatCompletion.
type ChatCompletionResponse struct {
	ID      string
	Model   string
	Choices []Choice
	Usage   Usage
}

// Text returns the content of the first choice.
func (r *ChatCompletionResponse) Text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Choices[0].Content)
}

// Choice is a single completion choice.
type Choice struct {
	Index        int
	Content      string
	FinishReason string
}

// Usage reports token consumption. PromptTokens includes CachedTokens.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

// Option configures the client.
type Option func(*clientConfig)

type clientConfig struct {
	base  sdk.ClientConfig
	model string
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		if url != "" {
			c.base.BaseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *clientConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) {
		c.base.HTTPClient = hc
	}
}

// sdkClient implements Client using go-openai.
type sdkClient struct {
	client *sdk.Client
	model  string
}

// NewClient creates an OpenAI client backed by go-openai. The SDK does not
// retry; callers wrap the client with resilience.Do.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := clientConfig{base: sdk.DefaultConfig(apiKey), model: defaultModel}
	cfg.base.HTTPClient = &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &sdkClient{client: sdk.NewClientWithConfig(cfg.base), model: cfg.model}
}

func (c *sdkClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	params := sdk.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            toSDKMessages(req.Messages),
		MaxCompletionTokens: req.MaxTokens,
	}
	if params.Model == "" {
		params.Model = c.model
	}
	if req.Temperature != nil {
		// A zero float32 is dropped by omitempty and the API falls back to 1.
		params.Temperature = float32(math.Max(*req.Temperature, math.SmallestNonzeroFloat32))
	}
	if req.JSONObject {
		params.ResponseFormat = &sdk.ChatCompletionResponseFormat{Type: sdk.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return nil, classifyError(eris.Wrap(err, "openai: create chat completion"))
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: no choices in response")
	}

	return fromSDKResponse(resp), nil
}

// classifyError marks rate limit and 5xx responses as transient.
func classifyError(err error) error {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTP(err, apiErr.HTTPStatusCode)
	}
	var reqErr *sdk.RequestError
	if errors.As(err, &reqErr) {
		return resilience.ClassifyHTTP(err, reqErr.HTTPStatusCode)
	}
	return err
}

// --- SDK type conversion helpers ---

func toSDKMessages(msgs []Message) []sdk.ChatCompletionMessage {
	out := make([]sdk.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		if len(m.ImageURLs) == 0 {
			out[i] = sdk.ChatCompletionMessage{Role: m.Role, Content: m.Content}
			continue
		}
		parts := make([]sdk.ChatMessagePart, 0, len(m.ImageURLs)+1)
		if m.Content != "" {
			parts = append(parts, sdk.ChatMessagePart{Type: sdk.ChatMessagePartTypeText, Text: m.Content})
		}
		for _, u := range m.ImageURLs {
			parts = append(parts, sdk.ChatMessagePart{
				Type:     sdk.ChatMessagePartTypeImageURL,
				ImageURL: &sdk.ChatMessageImageURL{URL: u, Detail: sdk.ImageURLDetailHigh},
			})
		}
		out[i] = sdk.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
	}
	return out
}

func fromSDKResponse(resp sdk.ChatCompletionResponse) *ChatCompletionResponse {
	choices := make([]Choice, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		choices = append(choices, Choice{
			Index:        ch.Index,
			Content:      ch.Message.Content,
			FinishReason: string(ch.FinishReason),
		})
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if resp.Usage.PromptTokensDetails != nil {
		usage.CachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	return &ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: choices,
		Usage:   usage,
	}
}
