// Package openrouter serves llm.Request through OpenRouter's OpenAI-compatible
// chat completions API. It backs both arms of the model experiment.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"sales-agent/internal/domain"
	"sales-agent/internal/llm"
)

const (
	baseURL            = "https://openrouter.ai/api/v1"
	defaultTemperature = 0.2
	defaultMaxTokens   = 600
	defaultReferer     = "http://localhost:5001"
	defaultTitle       = "Marketplace Chatbot"
)

type Config struct {
	APIKey      string
	BaseURL     string // optional, useful for testing against a mock server
	Referer     string
	Title       string
	Temperature float64
	MaxTokens   int64
	MaxRetries  *int
}

type Client struct {
	client      openaisdk.Client
	temperature float64
	maxTokens   int64
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openrouter: api key must not be empty")
	}
	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	referer := cfg.Referer
	if referer == "" {
		referer = defaultReferer
	}
	title := cfg.Title
	if title == "" {
		title = defaultTitle
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
		option.WithHeader("HTTP-Referer", referer),
		option.WithHeader("X-Title", title),
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}

	c := &Client{
		client:      openaisdk.NewClient(opts...),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	if c.temperature <= 0 {
		c.temperature = defaultTemperature
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	return c, nil
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("openrouter: model must not be empty")
	}
	resp, err := c.client.Chat.Completions.New(ctx, c.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("openrouter: chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("openrouter: no choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openrouter: empty response")
	}
	return text, nil
}

func (c *Client) buildParams(req llm.Request) openaisdk.ChatCompletionNewParams {
	return openaisdk.ChatCompletionNewParams{
		Model:               shared.ChatModel(req.Model),
		Messages:            convertMessages(req.Prompt(), req.History),
		Temperature:         param.NewOpt(c.temperature),
		MaxCompletionTokens: param.NewOpt(c.maxTokens),
	}
}

func convertMessages(system string, history []domain.ChatMessage) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if system != "" {
		out = append(out, openaisdk.SystemMessage(system))
	}
	for _, m := range history {
		if m.Role == domain.RoleAssistant {
			out = append(out, openaisdk.AssistantMessage(m.Content))
			continue
		}
		out = append(out, openaisdk.UserMessage(m.Content))
	}
	return out
}
