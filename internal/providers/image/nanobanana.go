package image

import (
	"context"
	"fmt"
	"strings"
	"time"

	"creativeflow/internal/domain"
)

const defaultSyntheticDelay = 1500 * time.Millisecond

// NanoBanana returns deterministic placeholder images for local runs and tests.
type NanoBanana struct {
	baseURL string
	delay   time.Duration
}

type NanoBananaOptions struct {
	BaseURL string
	// Delay simulates backend latency; negative disables it.
	Delay time.Duration
}

func NewNanoBanana(opts NanoBananaOptions) *NanoBanana {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://cdn.example.com/nanobanana"
	}
	delay := opts.Delay
	if delay == 0 {
		delay = defaultSyntheticDelay
	}
	if delay < 0 {
		delay = 0
	}
	return &NanoBanana{baseURL: base, delay: delay}
}

func (n *NanoBanana) GenerateImage(ctx context.Context, req Request) (*domain.ImageResult, error) {
	req, err := Validate(req)
	if err != nil {
		return nil, err
	}
	width, height := dimensions(req.AspectRatio)
	result := &domain.ImageResult{
		Images: []domain.GeneratedImage{{
			URL:         fmt.Sprintf("%s/%s/1.png", n.baseURL, req.RequestID),
			FileName:    "1.png",
			ContentType: "image/png",
			Width:       width,
			Height:      height,
		}},
		Description: "synthetic placeholder",
	}
	if n.delay == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return result, nil
	}
	timer := time.NewTimer(n.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dimensions maps a ratio onto a 1024px long edge.
func dimensions(ratio string) (int, int) {
	var w, h int
	if _, err := fmt.Sscanf(ratio, "%d:%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return 1024, 1024
	}
	if w >= h {
		return 1024, 1024 * h / w
	}
	return 1024 * w / h, 1024
}

var _ Generator = (*NanoBanana)(nil)
