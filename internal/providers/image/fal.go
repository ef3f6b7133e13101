package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"creativeflow/internal/domain"
)

const (
	falDefaultBaseURL = "https://fal.run"
	falDefaultModel   = "fal-ai/nano-banana-pro"
	falDefaultTimeout = 180 * time.Second
	falErrorBodyLimit = 512
)

type FalOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Fal calls a fal.ai hosted image model synchronously.
type Fal struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type falRequest struct {
	Prompt       string `json:"prompt"`
	AspectRatio  string `json:"aspect_ratio"`
	NumImages    int    `json:"num_images"`
	OutputFormat string `json:"output_format"`
}

type falResponse struct {
	Images []struct {
		URL         string `json:"url"`
		FileName    string `json:"file_name"`
		ContentType string `json:"content_type"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
	} `json:"images"`
	Description string `json:"description"`
}

func NewFal(opts FalOptions) (*Fal, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("fal api key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = falDefaultBaseURL
	}
	model := strings.Trim(strings.TrimSpace(opts.Model), "/")
	if model == "" {
		model = falDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: falDefaultTimeout}
	}
	return &Fal{apiKey: key, baseURL: base, model: model, client: client}, nil
}

func (f *Fal) GenerateImage(ctx context.Context, req Request) (*domain.ImageResult, error) {
	req, err := Validate(req)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(falRequest{
		Prompt:       req.Prompt,
		AspectRatio:  req.AspectRatio,
		NumImages:    1,
		OutputFormat: "png",
	}); err != nil {
		return nil, fmt.Errorf("fal encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s", f.baseURL, f.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("fal build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+f.apiKey)
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: fal request: %w", domain.ErrProviderFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, falErrorBodyLimit))
		return nil, fmt.Errorf("%w: fal status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out falResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: fal decode response: %w", domain.ErrProviderFailure, err)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("%w: fal returned no images", domain.ErrProviderFailure)
	}
	result := &domain.ImageResult{Description: out.Description}
	for _, img := range out.Images {
		result.Images = append(result.Images, domain.GeneratedImage{
			URL:         img.URL,
			FileName:    img.FileName,
			ContentType: img.ContentType,
			Width:       img.Width,
			Height:      img.Height,
		})
	}
	return result, nil
}

var _ Generator = (*Fal)(nil)
