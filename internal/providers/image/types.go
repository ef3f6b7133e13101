package image

import (
	"context"
	"fmt"
	"strings"

	"creativeflow/internal/domain"
	"creativeflow/internal/domain/jsoncfg"
)

// MinPromptLength is the shortest trimmed prompt the backend accepts.
const MinPromptLength = 8

// Request describes one image generation call.
type Request struct {
	Prompt      string
	AspectRatio string
	RequestID   string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	GenerateImage(ctx context.Context, req Request) (*domain.ImageResult, error)
}

// Validate trims the request, defaults the aspect ratio and rejects inputs
// the backend would refuse.
func Validate(req Request) (Request, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.AspectRatio = strings.TrimSpace(req.AspectRatio)
	if len([]rune(req.Prompt)) < MinPromptLength {
		return req, fmt.Errorf("%w: prompt must be at least %d characters", domain.ErrPromptTooShort, MinPromptLength)
	}
	if req.AspectRatio == "" {
		req.AspectRatio = jsoncfg.DefaultAspectRatio
	}
	if !jsoncfg.IsAllowedAspectRatio(req.AspectRatio) {
		return req, fmt.Errorf("%w: %q, allowed ratios: %s", domain.ErrInvalidAspectRatio, req.AspectRatio, strings.Join(jsoncfg.AspectRatios(), ", "))
	}
	return req, nil
}
