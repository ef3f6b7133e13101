package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"creativeflow/internal/domain"
	"creativeflow/internal/jsonutil"
	"creativeflow/internal/providers/prompt"
	"creativeflow/internal/retry"
)

const (
	defaultEnhanceAttempts     = 3
	defaultEnhanceOutputTokens = 4000
)

// EnhanceRequest is the input of one enhancement run.
type EnhanceRequest struct {
	ExecutionID string
	BriefText   string
	// Feedback holds every rejection note collected so far, oldest first.
	Feedback []string
	// Clarifications are the reviewer's answers to the brief's questions.
	Clarifications string
}

type EnhancerOptions struct {
	TextGen         prompt.Generator
	MaxAttempts     int
	BaseDelay       time.Duration
	Sleep           retry.SleepFunc
	MaxOutputTokens int
	Logger          zerolog.Logger
}

// Enhancer turns a raw brief into a complete EnhancedBrief.
type Enhancer struct {
	textgen         prompt.Generator
	maxAttempts     int
	baseDelay       time.Duration
	sleep           retry.SleepFunc
	maxOutputTokens int
	logger          zerolog.Logger
}

func NewEnhancer(opts EnhancerOptions) *Enhancer {
	e := &Enhancer{
		textgen:         opts.TextGen,
		maxAttempts:     opts.MaxAttempts,
		baseDelay:       opts.BaseDelay,
		sleep:           opts.Sleep,
		maxOutputTokens: opts.MaxOutputTokens,
		logger:          opts.Logger,
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = defaultEnhanceAttempts
	}
	if e.maxOutputTokens <= 0 {
		e.maxOutputTokens = defaultEnhanceOutputTokens
	}
	return e
}

// Enhance retries until every critical field is populated. Exhaustion yields
// an error wrapping domain.ErrEnhancementFailed.
func (e *Enhancer) Enhance(ctx context.Context, req EnhanceRequest) (*domain.EnhancedBrief, error) {
	if strings.TrimSpace(req.BriefText) == "" {
		return nil, fmt.Errorf("%w: brief is empty", domain.ErrInvalidInput)
	}
	logger := e.logger.With().Str("execution_id", req.ExecutionID).Str("stage", "enhance").Logger()
	instruction := buildEnhancePrompt(req.BriefText, req.Feedback, req.Clarifications)

	var lastEmpty []string
	op := func(ctx context.Context, attempt int) (*domain.EnhancedBrief, error) {
		resp, err := e.textgen.GenerateText(ctx, prompt.Request{
			Purpose:         prompt.PurposeEnhanceBrief,
			Instruction:     instruction,
			MaxOutputTokens: e.maxOutputTokens,
		})
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(resp.Text) == "" {
			return nil, domain.NewMalformedOutputError("no text output received from brief enhancer", "")
		}
		obj, err := jsonutil.ExtractObject(resp.Text)
		if err != nil {
			return nil, err
		}
		brief := domain.DecodeEnhancedBrief(obj)
		if brief.BriefType == "" {
			brief.BriefType = domain.BriefTypeProduct
		}
		logger.Debug().Int("attempt", attempt).Str("provider", resp.Provider).Msg("brief enhancer responded")
		return &brief, nil
	}
	accept := func(b *domain.EnhancedBrief) bool {
		lastEmpty = b.CriticalFieldsEmpty()
		return len(lastEmpty) == 0
	}

	res, err := retry.Do(ctx, retry.Policy{
		Name:        "enhance-brief",
		MaxAttempts: e.maxAttempts,
		BaseDelay:   e.baseDelay,
		Sleep:       e.sleep,
		Logger:      logger,
	}, op, accept)
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, fmt.Errorf("%w: failed to enhance brief after %d attempt(s): %w", domain.ErrEnhancementFailed, exhausted.Attempts, exhausted.Last)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEnhancementFailed, err)
	}
	if !res.Accepted {
		return nil, fmt.Errorf("%w: %w: critical fields still empty after %d attempt(s): %s",
			domain.ErrEnhancementFailed, domain.ErrIncompleteResult, res.Attempts, strings.Join(lastEmpty, ", "))
	}

	brief := res.Value
	brief.ApplyDefaults()
	logger.Info().Int("attempts", res.Attempts).Msg("brief enhanced")
	return brief, nil
}
