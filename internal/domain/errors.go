package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrProviderFailure      = errors.New("provider failure")
	ErrMalformedOutput      = errors.New("malformed model output")
	ErrIncompleteResult     = errors.New("incomplete result")
	ErrEnhancementFailed    = errors.New("brief enhancement failed")
	ErrBranchFailed         = errors.New("persona branch failed")
	ErrAllPersonasFailed    = errors.New("all personas failed")
	ErrInvalidAspectRatio   = errors.New("invalid aspect ratio")
	ErrPromptTooShort       = errors.New("prompt too short")
	ErrWorkflowStateExpired = errors.New("workflow state expired")
	ErrNoPendingSuspension  = errors.New("execution is not awaiting a resume")
	ErrRejectLimitReached   = errors.New("reject limit reached")
	ErrVersionConflict      = errors.New("version conflict")
	ErrNoWork               = errors.New("no queued execution")
)

// MalformedOutputError records why a model response could not be parsed
// together with a bounded snippet of the raw text.
type MalformedOutputError struct {
	Reason  string
	Snippet string
}

const maxSnippetLen = 500

// NewMalformedOutputError truncates raw to a diagnostic snippet.
func NewMalformedOutputError(reason, raw string) *MalformedOutputError {
	snippet := raw
	if len(snippet) > maxSnippetLen {
		cut := maxSnippetLen
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return &MalformedOutputError{Reason: reason, Snippet: snippet}
}

func (e *MalformedOutputError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("malformed model output: %s", e.Reason)
	}
	return fmt.Sprintf("malformed model output: %s (raw: %q)", e.Reason, e.Snippet)
}

func (e *MalformedOutputError) Unwrap() error { return ErrMalformedOutput }

// AllPersonasFailedError is returned by aggregation when no branch produced a prompt.
type AllPersonasFailedError struct {
	First string
}

func (e *AllPersonasFailedError) Error() string {
	if e.First == "" {
		return "All personas failed."
	}
	return "All personas failed. First error: " + e.First
}

func (e *AllPersonasFailedError) Unwrap() error { return ErrAllPersonasFailed }
