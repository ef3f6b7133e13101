package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"creativeflow/internal/domain"
	"creativeflow/internal/domain/jsoncfg"
	"creativeflow/internal/jsonutil"
	"creativeflow/internal/persona"
	"creativeflow/internal/providers/image"
	"creativeflow/internal/providers/prompt"
	"creativeflow/internal/retry"
)

const (
	defaultPersonaAttempts     = 2
	defaultPersonaOutputTokens = 3000
)

// FanOutJob is the input shared by every persona branch of one execution.
type FanOutJob struct {
	ExecutionID     string
	Brief           *domain.EnhancedBrief
	Clarifications  string
	AspectRatioHint string
	Personas        []persona.Persona
}

type FanOutOptions struct {
	TextGen         prompt.Generator
	Images          image.Generator
	MaxAttempts     int
	BaseDelay       time.Duration
	Sleep           retry.SleepFunc
	MaxOutputTokens int
	// MaxParallel bounds concurrent branches. Zero runs every persona at once.
	MaxParallel int
	Logger      zerolog.Logger
}

// FanOut runs one branch per persona concurrently. A branch never fails the
// whole run; its outcome is carried in its BranchResult.
type FanOut struct {
	textgen         prompt.Generator
	images          image.Generator
	maxAttempts     int
	baseDelay       time.Duration
	sleep           retry.SleepFunc
	maxOutputTokens int
	maxParallel     int
	logger          zerolog.Logger
}

func NewFanOut(opts FanOutOptions) *FanOut {
	f := &FanOut{
		textgen:         opts.TextGen,
		images:          opts.Images,
		maxAttempts:     opts.MaxAttempts,
		baseDelay:       opts.BaseDelay,
		sleep:           opts.Sleep,
		maxOutputTokens: opts.MaxOutputTokens,
		maxParallel:     opts.MaxParallel,
		logger:          opts.Logger,
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = defaultPersonaAttempts
	}
	if f.maxOutputTokens <= 0 {
		f.maxOutputTokens = defaultPersonaOutputTokens
	}
	return f
}

// Run returns one result per persona in the order the personas were given.
func (f *FanOut) Run(ctx context.Context, job FanOutJob) []domain.BranchResult {
	results := make([]domain.BranchResult, len(job.Personas))
	if len(job.Personas) == 0 {
		return results
	}
	shared := buildPersonaPrompt(job.Brief, job.Clarifications)

	var g errgroup.Group
	if f.maxParallel > 0 {
		g.SetLimit(f.maxParallel)
	}
	for i, p := range job.Personas {
		g.Go(func() error {
			// Each branch owns its slot only.
			results[i] = f.runBranch(ctx, job, p, shared)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *FanOut) runBranch(ctx context.Context, job FanOutJob, p persona.Persona, shared string) (out domain.BranchResult) {
	out.PersonaID = p.ID
	logger := f.logger.With().Str("execution_id", job.ExecutionID).Str("persona_id", p.ID).Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("persona branch panicked: %v", r)
			logger.Error().Str("panic", fmt.Sprint(r)).Msg("persona branch panicked")
			if out.Prompt != nil {
				out.Image = nil
				out.ImageError = msg
				return
			}
			out.Error = msg
		}
	}()

	creative, err := f.generatePrompt(ctx, logger, p, shared)
	if err != nil {
		out.Error = err.Error()
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("persona branch failed")
		return out
	}
	out.Prompt = creative
	out.AspectRatio = jsoncfg.ResolveAspectRatio(job.AspectRatioHint, creative)

	img, err := f.images.GenerateImage(ctx, image.Request{
		Prompt:      image.BuildPrompt(*creative),
		AspectRatio: out.AspectRatio,
		RequestID:   job.ExecutionID + "/" + p.ID,
	})
	if err != nil {
		out.ImageError = err.Error()
		logger.Warn().Err(err).Str("aspect_ratio", out.AspectRatio).Msg("image generation failed, keeping prompt")
		return out
	}
	out.Image = img
	logger.Info().Str("aspect_ratio", out.AspectRatio).Int("images", len(img.Images)).
		Dur("elapsed", time.Since(start)).Msg("persona branch completed")
	return out
}

// generatePrompt asks the persona for a creative prompt, retrying when the
// answer is unusable or leaves too many sections empty. After the last
// attempt a parseable but sparse prompt is still used.
func (f *FanOut) generatePrompt(ctx context.Context, logger zerolog.Logger, p persona.Persona, shared string) (*domain.CreativePrompt, error) {
	var lastEmpty []string
	op := func(ctx context.Context, attempt int) (*domain.CreativePrompt, error) {
		instruction := shared
		if attempt > 1 {
			instruction += correctionNote(lastEmpty)
		}
		resp, err := f.textgen.GenerateText(ctx, prompt.Request{
			Purpose:         prompt.PurposeCreativePrompt,
			System:          p.SystemPrompt(),
			Instruction:     instruction,
			MaxOutputTokens: f.maxOutputTokens,
		})
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(resp.Text) == "" {
			return nil, domain.NewMalformedOutputError("no text output received from persona", "")
		}
		obj, err := jsonutil.ExtractObject(resp.Text)
		if err != nil {
			return nil, err
		}
		creative := domain.DecodeCreativePrompt(obj)
		return &creative, nil
	}
	accept := func(c *domain.CreativePrompt) bool {
		lastEmpty = c.EmptyFields()
		return !c.TooManyEmpty()
	}

	res, err := retry.Do(ctx, retry.Policy{
		Name:        "persona-" + p.ID,
		MaxAttempts: f.maxAttempts,
		BaseDelay:   f.baseDelay,
		Sleep:       f.sleep,
		Logger:      logger,
	}, op, accept)
	if err != nil && !res.HasValue {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, fmt.Errorf("%w: persona %s: %w", domain.ErrBranchFailed, p.ID, exhausted.Last)
		}
		return nil, fmt.Errorf("%w: persona %s: %w", domain.ErrBranchFailed, p.ID, err)
	}
	if !res.Accepted {
		logger.Warn().Strs("empty_fields", lastEmpty).Msg("using sparse prompt after final attempt")
	}
	return res.Value, nil
}
