package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"creativeflow/internal/domain"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	OnWarning    func(reason, detail string)
}

type OpenAIGenerator struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
}

const openAIDefaultTimeout = 120 * time.Second

const defaultOpenAIModel = "gpt-5-mini"

var openAIModelCanonical = map[string]string{
	"gpt-5-mini":   "gpt-5-mini",
	"gpt-5":        "gpt-5",
	"gpt-4.1-mini": "gpt-4.1-mini",
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4o":       "gpt-4o",
}

var openAIModelAliases = map[string]string{
	"gpt5-mini":              "gpt-5-mini",
	"gpt5mini":               "gpt-5-mini",
	"gpt-5-mini-2025-08-07":  "gpt-5-mini",
	"gpt4.1-mini":            "gpt-4.1-mini",
	"gpt-41-mini":            "gpt-4.1-mini",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt-5-thinking":         "gpt-5",
	"gpt5-thinking":          "gpt-5",
}

type openAIChatRequest struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	Temperature         float64         `json:"temperature,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	modelInput := strings.TrimSpace(opts.Model)
	normalizedModel, normalizationReason := normalizeOpenAIModel(modelInput)
	if normalizationReason != "" && opts.OnWarning != nil {
		detail := fmt.Sprintf("requested=%s resolved=%s", coalesce(modelInput, defaultOpenAIModel), normalizedModel)
		opts.OnWarning("model_"+normalizationReason, detail)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIGenerator{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        normalizedModel,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
	}, nil
}

// Model returns the resolved model name.
func (o *OpenAIGenerator) Model() string { return o.model }

func (o *OpenAIGenerator) GenerateText(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openAIMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: system})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Instruction})
	payload := openAIChatRequest{
		Model:               o.model,
		Messages:            messages,
		Temperature:         req.Temperature,
		MaxCompletionTokens: req.MaxOutputTokens,
		ResponseFormat:      &openAIFormat{Type: "json_object"},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("openai encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("openai build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: openai request: %w", domain.ErrProviderFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, statusError(openAIProviderName, resp.StatusCode, resp.Body)
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: openai decode response: %w", domain.ErrProviderFailure, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", domain.ErrProviderFailure)
	}
	return &Response{
		Text:     strings.TrimSpace(out.Choices[0].Message.Content),
		Provider: openAIProviderName,
		Model:    o.model,
	}, nil
}

var _ Generator = (*OpenAIGenerator)(nil)

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		if canonical, ok := openAIModelCanonical[alias]; ok {
			return canonical, "alias"
		}
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}
