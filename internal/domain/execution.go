package domain

import "time"

// ExecutionStatus enumerates pipeline lifecycle states.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSuspended ExecutionStatus = "suspended"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// SuspendReason explains what the reviewer is asked to do.
type SuspendReason string

const (
	SuspendReasonAwaitingApproval   SuspendReason = "awaiting_approval"
	SuspendReasonNeedsClarification SuspendReason = "needs_clarification"
)

// Failure codes recorded on failed executions.
const (
	FailureEnhancementFailed  = "ENHANCEMENT_FAILED"
	FailureAllPersonasFailed  = "ALL_PERSONAS_FAILED"
	FailureRejectLimitReached = "REJECT_LIMIT_REACHED"
	FailureStateExpired       = "WORKFLOW_STATE_EXPIRED"
	FailureInternal           = "INTERNAL"
)

// PipelineInput is what a caller submits to start an execution.
type PipelineInput struct {
	BriefText       string   `json:"brief"`
	AspectRatioHint string   `json:"aspect_ratio_hint,omitempty"`
	Personas        []string `json:"personas,omitempty"`
	Locale          string   `json:"locale,omitempty"`
}

// StageData accumulates intermediate outputs across suspensions.
type StageData struct {
	EnhancedBrief    *EnhancedBrief `json:"enhanced_brief,omitempty"`
	Clarifications   string         `json:"clarifications,omitempty"`
	Feedback         []string       `json:"feedback,omitempty"`
	RejectCycles     int            `json:"reject_cycles"`
	PersonaSelection []string       `json:"persona_selection"`
	// Recoveries counts how often an abandoned run was put back in the queue.
	Recoveries int `json:"recoveries,omitempty"`
}

// SuspendPayload is shown to the reviewer while the execution waits.
type SuspendPayload struct {
	Reason        SuspendReason  `json:"reason"`
	EnhancedBrief *EnhancedBrief `json:"enhanced_brief"`
	Questions     []string       `json:"questions"`
	SuspendedAt   time.Time      `json:"suspended_at"`
}

// ResumePayload is the reviewer's answer to a suspension.
type ResumePayload struct {
	Approved    bool   `json:"approved"`
	Feedback    string `json:"feedback,omitempty"`
	AnswersText string `json:"answers_text,omitempty"`
}

// Failure describes why an execution ended in the failed state.
type Failure struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Execution is the persisted envelope of one pipeline run.
type Execution struct {
	ID            string          `json:"id"`
	Status        ExecutionStatus `json:"status"`
	Input         PipelineInput   `json:"input"`
	StageData     StageData       `json:"stage_data"`
	Suspend       *SuspendPayload `json:"suspend_payload,omitempty"`
	PendingResume *ResumePayload  `json:"pending_resume,omitempty"`
	Result        *FinalResult    `json:"result,omitempty"`
	Failure       *Failure        `json:"failure,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	// LeaseUntil is set while running. A running execution past its lease
	// was abandoned by a crashed or stopped process.
	LeaseUntil  *time.Time `json:"lease_until,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Expired reports whether a suspension has outlived its deadline.
func (e *Execution) Expired(now time.Time) bool {
	return e.Status == ExecutionStatusSuspended && e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Abandoned reports whether a running execution has outlived its lease.
func (e *Execution) Abandoned(now time.Time) bool {
	return e.Status == ExecutionStatusRunning && e.LeaseUntil != nil && !now.Before(*e.LeaseUntil)
}

// Overdue reports whether the execution needs the sweeper's attention.
func (e *Execution) Overdue(now time.Time) bool {
	return e.Expired(now) || e.Abandoned(now)
}

// Deadline is the instant after which the execution is overdue: the
// suspension deadline while suspended, the lease while running.
func (e *Execution) Deadline() *time.Time {
	switch e.Status {
	case ExecutionStatusSuspended:
		return e.ExpiresAt
	case ExecutionStatusRunning:
		return e.LeaseUntil
	default:
		return nil
	}
}

// GeneratedImage is one image returned by the image backend.
type GeneratedImage struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// ImageResult is the image backend response for one prompt.
type ImageResult struct {
	Images      []GeneratedImage `json:"images"`
	Description string           `json:"description,omitempty"`
}

// BranchOutcome classifies a persona branch.
type BranchOutcome string

const (
	BranchSuccess BranchOutcome = "success"
	BranchPartial BranchOutcome = "partial"
	BranchFailed  BranchOutcome = "failed"
)

// BranchResult is what one persona branch produced.
type BranchResult struct {
	PersonaID   string          `json:"persona_id"`
	Prompt      *CreativePrompt `json:"prompt,omitempty"`
	AspectRatio string          `json:"aspect_ratio,omitempty"`
	Image       *ImageResult    `json:"image,omitempty"`
	ImageError  string          `json:"image_error,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Outcome derives the branch classification from the populated fields.
func (b BranchResult) Outcome() BranchOutcome {
	switch {
	case b.Prompt == nil:
		return BranchFailed
	case b.Image == nil:
		return BranchPartial
	default:
		return BranchSuccess
	}
}

// PersonaPrompt pairs a persona with its prompt.
type PersonaPrompt struct {
	PersonaID string          `json:"persona_id"`
	Prompt    *CreativePrompt `json:"prompt"`
}

// PersonaImage pairs a persona with its generated image.
type PersonaImage struct {
	PersonaID   string       `json:"persona_id"`
	AspectRatio string       `json:"aspect_ratio,omitempty"`
	Image       *ImageResult `json:"image"`
}

// BranchError records one failed branch or failed image call.
type BranchError struct {
	PersonaID string `json:"persona_id"`
	Error     string `json:"error"`
}

// FinalResult is the aggregated output of a completed execution.
type FinalResult struct {
	EnhancedBrief  *EnhancedBrief  `json:"enhanced_brief"`
	Clarifications string          `json:"clarifications,omitempty"`
	Prompts        []PersonaPrompt `json:"prompts"`
	Images         []PersonaImage  `json:"images"`
	Errors         []BranchError   `json:"errors"`
}
