package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"creativeflow/internal/domain"
	"creativeflow/internal/middleware"
)

type executeRequest struct {
	Brief           string   `json:"brief"`
	AspectRatioHint string   `json:"aspect_ratio_hint"`
	Personas        []string `json:"personas"`
}

type resumeRequest struct {
	ExecutionID string `json:"execution_id"`
	Approved    bool   `json:"approved"`
	Feedback    string `json:"feedback"`
	AnswersText string `json:"answers_text"`
}

type failureView struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type executionResponse struct {
	ExecutionID    string                 `json:"execution_id"`
	Status         domain.ExecutionStatus `json:"status"`
	Message        string                 `json:"message,omitempty"`
	SuspendPayload *domain.SuspendPayload `json:"suspend_payload,omitempty"`
	Result         *domain.FinalResult    `json:"result,omitempty"`
	Failure        *failureView           `json:"failure,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
}

func (a *App) view(r *http.Request, exec *domain.Execution) executionResponse {
	p := printer(middleware.LocaleFromContext(r.Context()))
	out := executionResponse{
		ExecutionID:    exec.ID,
		Status:         exec.Status,
		SuspendPayload: exec.Suspend,
		Result:         exec.Result,
		CreatedAt:      exec.CreatedAt,
		UpdatedAt:      exec.UpdatedAt,
		ExpiresAt:      exec.ExpiresAt,
	}
	switch {
	case exec.Suspend != nil && exec.Suspend.Reason == domain.SuspendReasonNeedsClarification:
		out.Message = p.Sprintf(msgNeedsClarification)
	case exec.Suspend != nil:
		out.Message = p.Sprintf(msgAwaitingApproval)
	case exec.Result != nil && len(exec.Result.Errors) > 0:
		out.Message = p.Sprintf(msgCompletedWithErrors, len(exec.Result.Errors))
	}
	if exec.Failure != nil {
		out.Failure = &failureView{
			Code:    exec.Failure.Code,
			Reason:  exec.Failure.Reason,
			Message: p.Sprintf(failureMessage(exec.Failure.Code)),
		}
	}
	return out
}

func failureMessage(code string) string {
	switch code {
	case domain.FailureEnhancementFailed:
		return msgEnhancementFailed
	case domain.FailureAllPersonasFailed:
		return msgAllPersonasFailed
	case domain.FailureRejectLimitReached:
		return msgRejectLimitReached
	case domain.FailureStateExpired:
		return msgStateExpired
	default:
		return msgInterrupted
	}
}

// Execute starts a pipeline run. Synchronously it answers once the run
// suspends for review; in async mode it answers 202 with the queued run.
func (a *App) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, r, http.StatusBadRequest, "INVALID_JSON", msgInvalidJSON)
		return
	}
	if strings.TrimSpace(req.Brief) == "" {
		a.fail(w, r, http.StatusBadRequest, "INVALID_INPUT", msgBriefRequired)
		return
	}
	in := domain.PipelineInput{
		BriefText:       req.Brief,
		AspectRatioHint: req.AspectRatioHint,
		Personas:        req.Personas,
		Locale:          middleware.LocaleFromContext(r.Context()),
	}

	if a.Async {
		exec, err := a.Pipeline.Submit(r.Context(), in)
		if err != nil {
			a.writeError(w, r, "", err)
			return
		}
		a.json(w, http.StatusAccepted, a.view(r, exec))
		return
	}

	// The run outlives a disconnected client so its state is never left half written.
	exec, err := a.Pipeline.Start(context.WithoutCancel(r.Context()), in)
	if err != nil {
		a.writeError(w, r, "", err)
		return
	}
	a.json(w, http.StatusOK, a.view(r, exec))
}

// Resume applies approval, rejection feedback or clarification answers.
func (a *App) Resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, r, http.StatusBadRequest, "INVALID_JSON", msgInvalidJSON)
		return
	}
	id := strings.TrimSpace(req.ExecutionID)
	if id == "" {
		a.fail(w, r, http.StatusBadRequest, "INVALID_INPUT", msgExecutionIDRequired)
		return
	}
	payload := domain.ResumePayload{Approved: req.Approved, Feedback: req.Feedback, AnswersText: req.AnswersText}

	if a.Async {
		exec, err := a.Pipeline.SubmitResume(r.Context(), id, payload)
		if err != nil {
			a.writeError(w, r, id, err)
			return
		}
		a.json(w, http.StatusAccepted, a.view(r, exec))
		return
	}

	exec, err := a.Pipeline.Resume(context.WithoutCancel(r.Context()), id, payload)
	if err != nil {
		a.writeError(w, r, id, err)
		return
	}
	a.json(w, http.StatusOK, a.view(r, exec))
}

// Status reports the persisted state of a run, by query or path parameter.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "execution_id"))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("execution_id"))
	}
	if id == "" {
		a.fail(w, r, http.StatusBadRequest, "INVALID_INPUT", msgExecutionIDRequired)
		return
	}
	exec, err := a.Pipeline.Status(r.Context(), id)
	if err != nil {
		a.writeError(w, r, id, err)
		return
	}
	a.json(w, http.StatusOK, a.view(r, exec))
}

type personaView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Focus string `json:"focus,omitempty"`
}

func (a *App) ListPersonas(w http.ResponseWriter, r *http.Request) {
	active := a.Personas.Active()
	out := make([]personaView, 0, len(active))
	for _, p := range active {
		out = append(out, personaView{ID: p.ID, Name: p.Name, Focus: p.Focus})
	}
	a.json(w, http.StatusOK, map[string]any{"personas": out})
}
