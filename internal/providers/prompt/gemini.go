package prompt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"creativeflow/internal/domain"
)

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

const (
	geminiDefaultTimeout = 120 * time.Second
	defaultGeminiModel   = "gemini-2.5-flash"
)

func NewGeminiGenerator(ctx context.Context, opts GeminiOptions) (*GeminiGenerator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: geminiDefaultTimeout}
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiGenerator{
		client: client,
		model:  coalesce(opts.Model, defaultGeminiModel),
	}, nil
}

// Model returns the configured model name.
func (g *GeminiGenerator) Model() string { return g.model }

func (g *GeminiGenerator) GenerateText(ctx context.Context, req Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Instruction), config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini generate: %w", domain.ErrProviderFailure, err)
	}
	return &Response{
		Text:     strings.TrimSpace(resp.Text()),
		Provider: geminiProviderName,
		Model:    g.model,
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
