package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"creativeflow/internal/domain"
	"creativeflow/internal/persona"
	"creativeflow/internal/providers/image"
	"creativeflow/internal/providers/prompt"
)

// scriptedText delegates to fn and records every request.
type scriptedText struct {
	mu    sync.Mutex
	calls []prompt.Request
	fn    func(req prompt.Request, call int) (*prompt.Response, error)
}

func (s *scriptedText) GenerateText(ctx context.Context, req prompt.Request) (*prompt.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	n := len(s.calls)
	s.mu.Unlock()
	return s.fn(req, n)
}

func (s *scriptedText) requests() []prompt.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]prompt.Request(nil), s.calls...)
}

func textResponse(text string) *prompt.Response {
	return &prompt.Response{Text: text, Provider: "test", Model: "test"}
}

// staticText answers every request with the offline generator.
func staticText() *scriptedText {
	static := prompt.NewStaticGenerator()
	return &scriptedText{fn: func(req prompt.Request, _ int) (*prompt.Response, error) {
		return static.GenerateText(context.Background(), req)
	}}
}

type imageFunc func(ctx context.Context, req image.Request) (*domain.ImageResult, error)

func (f imageFunc) GenerateImage(ctx context.Context, req image.Request) (*domain.ImageResult, error) {
	return f(ctx, req)
}

func okImages() imageFunc {
	return func(ctx context.Context, req image.Request) (*domain.ImageResult, error) {
		if _, err := image.Validate(req); err != nil {
			return nil, err
		}
		return &domain.ImageResult{Images: []domain.GeneratedImage{{URL: "https://img.test/" + req.RequestID + ".png"}}}, nil
	}
}

// recordingSleep collects requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testPersona(id string) persona.Persona {
	return persona.Persona{ID: id, Name: id, Instructions: "persona:" + id}
}

// personaOf reports which test persona a request was issued for.
func personaOf(req prompt.Request) string {
	first, _, _ := strings.Cut(req.System, "\n")
	return strings.TrimPrefix(first, "persona:")
}

const completeBriefJSON = `{
  "brief_type": "product",
  "product": {"name": "Cold Brew", "category": "beverage"},
  "goal": {"primary": "trial"},
  "target_audience": {"who": "commuters"},
  "usp": "Smooth in 12 hours",
  "visual_direction": {"mood": "fresh"},
  "cta_intent": "purchase",
  "questions": ["Which flavor leads?"]
}`

const completePromptJSON = `{
  "product": {"description": "cold brew bottle"},
  "composition": {"aspect_ratio": "4:5", "framing": "close-up"},
  "scene": {"setting": "kitchen counter"},
  "lighting": {"setup": "morning window light"},
  "camera": {"lens": "50mm"},
  "style": {"look": "fresh editorial"},
  "subject": null,
  "rules": ["no text"]
}`
