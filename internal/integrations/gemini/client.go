// Package gemini serves llm.Request through the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"sales-agent/internal/domain"
	"sales-agent/internal/llm"
)

const (
	defaultTemperature     = 0.65
	defaultMaxOutputTokens = 500
)

// modelsAPI is the part of *genai.Models the client calls.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey          string
	BaseURL         string // optional, for tests against a local server
	Temperature     float32
	MaxOutputTokens int32
}

type Client struct {
	models          modelsAPI
	temperature     float32
	maxOutputTokens int32
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWithModels(client.Models, cfg)
}

func newWithModels(models modelsAPI, cfg Config) (*Client, error) {
	if models == nil {
		return nil, errors.New("gemini: models api must not be nil")
	}
	c := &Client{
		models:          models,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
	}
	if c.temperature <= 0 {
		c.temperature = defaultTemperature
	}
	if c.maxOutputTokens <= 0 {
		c.maxOutputTokens = defaultMaxOutputTokens
	}
	return c, nil
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	resp, err := c.models.GenerateContent(ctx, req.Model, buildContents(req.History), c.buildConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func (c *Client) buildConfig(req llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxOutputTokens,
	}
	if prompt := req.Prompt(); prompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: prompt}},
		}
	}
	return cfg
}

func buildContents(history []domain.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
