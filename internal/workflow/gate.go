package workflow

import (
	"strings"
	"time"

	"creativeflow/internal/domain"
)

// Decision is what the gate does with a resume payload.
type Decision int

const (
	// DecisionProceed continues to the persona fan-out.
	DecisionProceed Decision = iota
	// DecisionReenhance reruns enhancement with the accumulated feedback.
	DecisionReenhance
	// DecisionRejectLimit fails the execution because too many drafts were rejected.
	DecisionRejectLimit
)

func (d Decision) String() string {
	switch d {
	case DecisionProceed:
		return "proceed"
	case DecisionReenhance:
		return "reenhance"
	case DecisionRejectLimit:
		return "reject_limit"
	default:
		return "unknown"
	}
}

// Gate suspends an execution after enhancement and interprets the resume.
type Gate struct {
	// ClarifyOnQuestions suspends with needs_clarification when the brief
	// carries questions and no answers have been given yet.
	ClarifyOnQuestions bool
	// MaxRejectCycles fails the execution once exceeded. Zero means unlimited.
	MaxRejectCycles int
}

// Suspend builds the payload shown to the reviewer.
func (g Gate) Suspend(exec *domain.Execution, brief *domain.EnhancedBrief, now time.Time) *domain.SuspendPayload {
	reason := domain.SuspendReasonAwaitingApproval
	if g.ClarifyOnQuestions && len(brief.Questions) > 0 && strings.TrimSpace(exec.StageData.Clarifications) == "" {
		reason = domain.SuspendReasonNeedsClarification
	}
	questions := append([]string{}, brief.Questions...)
	return &domain.SuspendPayload{
		Reason:        reason,
		EnhancedBrief: brief.Clone(),
		Questions:     questions,
		SuspendedAt:   now,
	}
}

// Decide records the resume on the execution's stage data and returns the
// next step. Answers alone count as approval. Answers sent together with an
// explicit rejection and feedback are kept as clarifications for the next
// enhancement instead.
func (g Gate) Decide(exec *domain.Execution, resume domain.ResumePayload) Decision {
	answers := strings.TrimSpace(resume.AnswersText)
	feedback := strings.TrimSpace(resume.Feedback)
	if answers != "" {
		exec.StageData.Clarifications = answers
	}
	if resume.Approved || (answers != "" && feedback == "") {
		return DecisionProceed
	}
	if feedback != "" {
		exec.StageData.Feedback = append(exec.StageData.Feedback, feedback)
	}
	exec.StageData.RejectCycles++
	if g.MaxRejectCycles > 0 && exec.StageData.RejectCycles > g.MaxRejectCycles {
		return DecisionRejectLimit
	}
	return DecisionReenhance
}
