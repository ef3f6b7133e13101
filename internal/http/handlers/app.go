package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"creativeflow/internal/domain"
	"creativeflow/internal/middleware"
	"creativeflow/internal/persona"
)

// Pipeline is the part of the workflow driver the HTTP surface drives.
type Pipeline interface {
	Start(ctx context.Context, in domain.PipelineInput) (*domain.Execution, error)
	Submit(ctx context.Context, in domain.PipelineInput) (*domain.Execution, error)
	Resume(ctx context.Context, id string, payload domain.ResumePayload) (*domain.Execution, error)
	SubmitResume(ctx context.Context, id string, payload domain.ResumePayload) (*domain.Execution, error)
	Status(ctx context.Context, id string) (*domain.Execution, error)
}

// PersonaLister exposes the active persona set.
type PersonaLister interface {
	Active() []persona.Persona
}

type App struct {
	Pipeline Pipeline
	Personas PersonaLister
	// Async hands work to the worker instead of running it in the request.
	Async  bool
	Logger zerolog.Logger
}

func NewApp(pipeline Pipeline, personas PersonaLister, async bool, logger zerolog.Logger) *App {
	return &App{Pipeline: pipeline, Personas: personas, Async: async, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error         errorBody `json:"error"`
	ShouldRestart bool      `json:"should_restart,omitempty"`
}

func (a *App) fail(w http.ResponseWriter, r *http.Request, status int, code, msg string, args ...any) {
	p := printer(middleware.LocaleFromContext(r.Context()))
	a.json(w, status, errorResponse{
		Error:         errorBody{Code: code, Message: p.Sprintf(msg, args...)},
		ShouldRestart: status == http.StatusGone,
	})
}

// writeError maps workflow errors onto HTTP statuses.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch {
	case errors.Is(err, domain.ErrWorkflowStateExpired):
		a.fail(w, r, http.StatusGone, domain.FailureStateExpired, msgStateExpired)
	case errors.Is(err, domain.ErrNoPendingSuspension):
		a.fail(w, r, http.StatusConflict, "NO_PENDING_SUSPENSION", msgNoPendingSuspension)
	case errors.Is(err, domain.ErrNotFound):
		a.fail(w, r, http.StatusNotFound, "NOT_FOUND", msgNotFound, id)
	case errors.Is(err, domain.ErrInvalidInput):
		a.fail(w, r, http.StatusBadRequest, "INVALID_INPUT", msgInvalidInput, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("execution_id", id).Msg("pipeline request failed")
		a.fail(w, r, http.StatusInternalServerError, domain.FailureInternal, msgInternal)
	}
}
