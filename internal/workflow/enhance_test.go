package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creativeflow/internal/domain"
	"creativeflow/internal/providers/prompt"
)

func TestEnhanceRetriesUntilCriticalFieldsPresent(t *testing.T) {
	text := &scriptedText{fn: func(req prompt.Request, call int) (*prompt.Response, error) {
		switch call {
		case 1:
			return textResponse("sorry, I cannot help"), nil
		case 2:
			return textResponse("```json\n{\"brief_type\":\"product\",\"usp\":\"\"}\n```"), nil
		default:
			return textResponse(completeBriefJSON), nil
		}
	}}
	sleeper := &recordingSleep{}
	e := NewEnhancer(EnhancerOptions{TextGen: text, BaseDelay: time.Second, Sleep: sleeper.Sleep, Logger: zerolog.Nop()})

	brief, err := e.Enhance(context.Background(), EnhanceRequest{ExecutionID: "x", BriefText: "cold brew for commuters"})
	require.NoError(t, err)
	assert.Equal(t, "Smooth in 12 hours", brief.USP)
	assert.NotNil(t, brief.MustHaves, "defaults fill missing sequences")
	assert.NotNil(t, brief.Offer)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Len(t, text.requests(), 3)
}

func TestEnhanceExhaustedReportsEmptyFields(t *testing.T) {
	text := &scriptedText{fn: func(req prompt.Request, call int) (*prompt.Response, error) {
		return textResponse(`{"brief_type":"product","product":{},"usp":"x"}`), nil
	}}
	e := NewEnhancer(EnhancerOptions{TextGen: text, Sleep: noSleep, Logger: zerolog.Nop()})

	_, err := e.Enhance(context.Background(), EnhanceRequest{BriefText: "brief"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEnhancementFailed)
	assert.ErrorIs(t, err, domain.ErrIncompleteResult)
	assert.Contains(t, err.Error(), "product")
	assert.Contains(t, err.Error(), "goal")
	assert.Len(t, text.requests(), 3)
}

func TestEnhanceExhaustedOnProviderErrors(t *testing.T) {
	boom := errors.New("upstream 503")
	text := &scriptedText{fn: func(req prompt.Request, call int) (*prompt.Response, error) {
		return nil, boom
	}}
	e := NewEnhancer(EnhancerOptions{TextGen: text, MaxAttempts: 2, Sleep: noSleep, Logger: zerolog.Nop()})

	_, err := e.Enhance(context.Background(), EnhanceRequest{BriefText: "brief"})
	assert.ErrorIs(t, err, domain.ErrEnhancementFailed)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, text.requests(), 2)
}

func TestEnhanceMalformedOutputOnLastAttempt(t *testing.T) {
	text := &scriptedText{fn: func(req prompt.Request, call int) (*prompt.Response, error) {
		return textResponse("no json here"), nil
	}}
	e := NewEnhancer(EnhancerOptions{TextGen: text, MaxAttempts: 1, Logger: zerolog.Nop()})

	_, err := e.Enhance(context.Background(), EnhanceRequest{BriefText: "brief"})
	assert.ErrorIs(t, err, domain.ErrEnhancementFailed)
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)
}

func TestEnhanceIncludesFeedbackAndBrief(t *testing.T) {
	text := &scriptedText{fn: func(req prompt.Request, call int) (*prompt.Response, error) {
		return textResponse(completeBriefJSON), nil
	}}
	e := NewEnhancer(EnhancerOptions{TextGen: text, Logger: zerolog.Nop()})

	_, err := e.Enhance(context.Background(), EnhanceRequest{
		BriefText:      "cold brew",
		Feedback:       []string{"make it warmer", "  ", "mention oat milk"},
		Clarifications: "vanilla flavor first",
	})
	require.NoError(t, err)
	req := text.requests()[0]
	assert.Equal(t, prompt.PurposeEnhanceBrief, req.Purpose)
	assert.Equal(t, defaultEnhanceOutputTokens, req.MaxOutputTokens)
	assert.Contains(t, req.Instruction, "1. make it warmer")
	assert.Contains(t, req.Instruction, "2. mention oat milk")
	assert.Contains(t, req.Instruction, "answered the open questions:\nvanilla flavor first")
	assert.Contains(t, req.Instruction, prompt.BriefMarker+"\ncold brew")
}

func TestEnhanceRejectsBlankBrief(t *testing.T) {
	e := NewEnhancer(EnhancerOptions{TextGen: staticText(), Logger: zerolog.Nop()})
	_, err := e.Enhance(context.Background(), EnhanceRequest{BriefText: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
