package prompt

import (
	"context"
)

// Purpose tells a generator what kind of document the instruction asks for.
type Purpose string

const (
	PurposeEnhanceBrief   Purpose = "enhance_brief"
	PurposeCreativePrompt Purpose = "creative_prompt"
)

// Request is a single text-generation call.
type Request struct {
	Purpose         Purpose
	System          string
	Instruction     string
	MaxOutputTokens int
	Temperature     float64
}

// Response carries the raw model text. Parsing is left to the caller.
type Response struct {
	Text     string
	Provider string
	Model    string
}

// Generator is implemented by every text-generation backend.
type Generator interface {
	GenerateText(ctx context.Context, req Request) (*Response, error)
}
