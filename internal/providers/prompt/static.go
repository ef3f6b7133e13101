package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// BriefMarker precedes the raw brief text in enhancement instructions.
const BriefMarker = "User brief:"

// StaticGenerator returns deterministic, complete documents so the pipeline
// runs end to end without a model key.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (s *StaticGenerator) GenerateText(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc map[string]any
	switch req.Purpose {
	case PurposeEnhanceBrief:
		doc = staticBrief(briefFromInstruction(req.Instruction))
	default:
		doc = staticCreativePrompt(req.System)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("static encode: %w", err)
	}
	return &Response{Text: string(raw), Provider: staticProviderName, Model: staticProviderName}, nil
}

func briefFromInstruction(instruction string) string {
	idx := strings.LastIndex(instruction, BriefMarker)
	if idx < 0 {
		return strings.TrimSpace(instruction)
	}
	return strings.TrimSpace(instruction[idx+len(BriefMarker):])
}

func staticBrief(brief string) map[string]any {
	name := brief
	if line, _, ok := strings.Cut(brief, "\n"); ok {
		name = line
	}
	if runes := []rune(name); len(runes) > 60 {
		name = string(runes[:60])
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Featured product"
	}
	title := cases.Title(language.English).String(name)
	return map[string]any{
		"brief_type": "product",
		"product": map[string]any{
			"name":        title,
			"category":    "general",
			"description": coalesce(brief, title),
		},
		"goal":            map[string]any{"primary": "conversion", "kpi": "click-through rate"},
		"target_audience": map[string]any{"who": "online shoppers", "pain_points": "limited time to compare options"},
		"usp":             title + " delivers clear everyday value",
		"offer":           map[string]any{},
		"placements": []any{
			map[string]any{"platform": "Instagram Feed", "aspect_ratio": "4:5"},
			map[string]any{"platform": "Instagram Story/Reel", "aspect_ratio": "9:16"},
		},
		"visual_direction": map[string]any{"mood": "clean and bright", "palette": "brand neutrals with one accent"},
		"must_haves":       []any{"product clearly visible"},
		"must_avoid":       []any{"readable text", "logos", "watermarks"},
		"cta_intent":       "Shop now",
		"references":       []any{},
		"assumptions":      []any{"No brand guidelines supplied; neutral palette assumed"},
		"questions":        []any{},
	}
}

func staticCreativePrompt(persona string) map[string]any {
	style := "clean commercial photography"
	if strings.TrimSpace(persona) != "" {
		style = "commercial photography following the persona priorities"
	}
	return map[string]any{
		"product": map[string]any{"description": "the product from the brief", "placement": "hero, centered"},
		"composition": map[string]any{
			"aspect_ratio": "4:5",
			"framing":      "medium close-up with generous negative space",
		},
		"scene":    map[string]any{"setting": "minimal studio tabletop", "props": "none"},
		"lighting": map[string]any{"setup": "softbox key with gentle fill", "mood": "bright"},
		"camera":   map[string]any{"lens": "85mm", "angle": "eye level"},
		"style":    map[string]any{"look": style, "color_grade": "natural"},
		"subject":  nil,
		"rules":    []any{"no readable text", "no logos", "no watermarks"},
	}
}

var _ Generator = (*StaticGenerator)(nil)
