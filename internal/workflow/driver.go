// Package workflow runs the creative pipeline: brief enhancement, the
// approval gate, the persona fan-out and aggregation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"creativeflow/internal/domain"
	"creativeflow/internal/persona"
)

// BriefEnhancer produces a complete brief from raw text.
type BriefEnhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*domain.EnhancedBrief, error)
}

// BranchRunner runs the persona fan-out.
type BranchRunner interface {
	Run(ctx context.Context, job FanOutJob) []domain.BranchResult
}

// PersonaSelector resolves persona ids against the active catalog.
type PersonaSelector interface {
	Select(requested []string) []persona.Persona
}

type DriverOptions struct {
	Store    domain.ExecutionRepository
	Archive  domain.ExecutionArchive
	Enhancer BriefEnhancer
	FanOut   BranchRunner
	Personas PersonaSelector
	Gate     Gate
	// SuspendTTL bounds how long a suspension waits for a resume. Zero waits forever.
	SuspendTTL time.Duration
	// RunLease bounds how long one process may hold an execution in running
	// before it is treated as abandoned. Zero uses defaultRunLease.
	RunLease time.Duration
	// RequeueAbandoned puts abandoned runs back in the queue for the worker
	// instead of failing them. Only useful when a worker is draining the queue.
	RequeueAbandoned  bool
	DefaultAspectHint string
	Clock             func() time.Time
	Logger            zerolog.Logger
}

// Driver owns execution state transitions. Pipeline failures are recorded on
// the returned execution; errors are reserved for calls that could not be
// served at all.
type Driver struct {
	store       domain.ExecutionRepository
	archive     domain.ExecutionArchive
	enhancer    BriefEnhancer
	fanout      BranchRunner
	personas    PersonaSelector
	gate        Gate
	suspendTTL  time.Duration
	runLease    time.Duration
	requeue     bool
	defaultHint string
	clock       func() time.Time
	logger      zerolog.Logger
	inflight    singleflight.Group
}

func NewDriver(opts DriverOptions) *Driver {
	d := &Driver{
		store:       opts.Store,
		archive:     opts.Archive,
		enhancer:    opts.Enhancer,
		fanout:      opts.FanOut,
		personas:    opts.Personas,
		gate:        opts.Gate,
		suspendTTL:  opts.SuspendTTL,
		runLease:    opts.RunLease,
		requeue:     opts.RequeueAbandoned,
		defaultHint: strings.TrimSpace(opts.DefaultAspectHint),
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.runLease <= 0 {
		d.runLease = defaultRunLease
	}
	return d
}

const (
	defaultRunLease = 30 * time.Minute
	maxRecoveries   = 2
)

func (d *Driver) leaseFrom(now time.Time) *time.Time {
	lease := now.Add(d.runLease)
	return &lease
}

func (d *Driver) now() time.Time {
	return d.clock().UTC()
}

// Start creates an execution and runs enhancement up to the first suspension.
func (d *Driver) Start(ctx context.Context, in domain.PipelineInput) (*domain.Execution, error) {
	exec, err := d.newExecution(in, domain.ExecutionStatusRunning)
	if err != nil {
		return nil, err
	}
	if err := d.store.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	d.logger.Info().Str("execution_id", exec.ID).Strs("personas", exec.StageData.PersonaSelection).Msg("execution started")
	return d.runEnhancement(ctx, exec)
}

// Submit persists a queued execution for the worker and returns immediately.
func (d *Driver) Submit(ctx context.Context, in domain.PipelineInput) (*domain.Execution, error) {
	exec, err := d.newExecution(in, domain.ExecutionStatusQueued)
	if err != nil {
		return nil, err
	}
	if err := d.store.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	d.logger.Info().Str("execution_id", exec.ID).Msg("execution queued")
	return exec, nil
}

func (d *Driver) newExecution(in domain.PipelineInput, status domain.ExecutionStatus) (*domain.Execution, error) {
	in.BriefText = strings.TrimSpace(in.BriefText)
	in.AspectRatioHint = strings.TrimSpace(in.AspectRatioHint)
	if in.BriefText == "" {
		return nil, fmt.Errorf("%w: brief is required", domain.ErrInvalidInput)
	}
	selected := d.personas.Select(in.Personas)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: none of the requested personas is active", domain.ErrInvalidInput)
	}
	ids := make([]string, len(selected))
	for i, p := range selected {
		ids[i] = p.ID
	}
	now := d.now()
	exec := &domain.Execution{
		ID:     uuid.NewString(),
		Status: status,
		Input:  in,
		StageData: domain.StageData{
			PersonaSelection: ids,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == domain.ExecutionStatusRunning {
		exec.LeaseUntil = d.leaseFrom(now)
	}
	return exec, nil
}

// Resume applies a reviewer decision to a suspended execution and runs it to
// the next suspension or to a terminal state. Identical concurrent resumes of
// one execution share a single run; any other concurrent resume loses the
// version check and gets domain.ErrNoPendingSuspension.
func (d *Driver) Resume(ctx context.Context, id string, payload domain.ResumePayload) (*domain.Execution, error) {
	key := id + "|" + resumeFingerprint(payload)
	v, err, shared := d.inflight.Do(key, func() (any, error) {
		exec, err := d.takeSuspended(ctx, id, payload, domain.ExecutionStatusRunning)
		if err != nil {
			return nil, err
		}
		return d.applyResume(ctx, exec)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		d.logger.Debug().Str("execution_id", id).Msg("duplicate resume joined in-flight run")
	}
	return v.(*domain.Execution), nil
}

// SubmitResume records the decision and leaves the rest to the worker.
func (d *Driver) SubmitResume(ctx context.Context, id string, payload domain.ResumePayload) (*domain.Execution, error) {
	return d.takeSuspended(ctx, id, payload, domain.ExecutionStatusQueued)
}

func resumeFingerprint(p domain.ResumePayload) string {
	return fmt.Sprintf("%t|%q|%q", p.Approved, p.Feedback, p.AnswersText)
}

// takeSuspended moves a suspended execution to next with the resume pending.
func (d *Driver) takeSuspended(ctx context.Context, id string, payload domain.ResumePayload, next domain.ExecutionStatus) (*domain.Execution, error) {
	exec, err := d.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: no execution %s is waiting, start a new run", domain.ErrWorkflowStateExpired, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}

	now := d.now()
	if exec.Overdue(now) {
		settled, err := d.settle(ctx, exec, now)
		if err != nil {
			return nil, err
		}
		exec = settled
	}
	if exec.Status == domain.ExecutionStatusFailed && exec.Failure != nil && exec.Failure.Code == domain.FailureStateExpired {
		return nil, fmt.Errorf("%w: %s, start a new run", domain.ErrWorkflowStateExpired, exec.Failure.Reason)
	}
	if exec.Status != domain.ExecutionStatusSuspended || exec.Suspend == nil {
		return nil, fmt.Errorf("%w: execution %s is %s", domain.ErrNoPendingSuspension, id, exec.Status)
	}

	expected := exec.Version
	exec.Suspend = nil
	exec.ExpiresAt = nil
	exec.PendingResume = &payload
	exec.Status = next
	exec.LeaseUntil = nil
	if next == domain.ExecutionStatusRunning {
		exec.LeaseUntil = d.leaseFrom(now)
	}
	exec.UpdatedAt = now
	if err := d.store.Save(ctx, exec, expected); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: execution %s was resumed concurrently", domain.ErrNoPendingSuspension, id)
		}
		return nil, fmt.Errorf("save execution: %w", err)
	}
	d.logger.Info().Str("execution_id", id).Bool("approved", payload.Approved).Str("status", string(next)).Msg("resume accepted")
	return exec, nil
}

// ClaimQueued hands the oldest queued execution to the caller under a fresh
// run lease.
func (d *Driver) ClaimQueued(ctx context.Context) (*domain.Execution, error) {
	return d.store.ClaimQueued(ctx, *d.leaseFrom(d.now()))
}

// Advance runs the pending work of an execution the worker has claimed.
func (d *Driver) Advance(ctx context.Context, exec *domain.Execution) (*domain.Execution, error) {
	if exec.Status != domain.ExecutionStatusRunning {
		return nil, fmt.Errorf("advance execution %s: status is %s", exec.ID, exec.Status)
	}
	switch {
	case exec.PendingResume != nil:
		return d.applyResume(ctx, exec)
	case exec.StageData.EnhancedBrief == nil:
		return d.runEnhancement(ctx, exec)
	default:
		return d.fail(ctx, exec, domain.FailureInternal, "claimed execution has no pending work")
	}
}

func (d *Driver) applyResume(ctx context.Context, exec *domain.Execution) (*domain.Execution, error) {
	payload := *exec.PendingResume
	exec.PendingResume = nil

	decision := d.gate.Decide(exec, payload)
	d.logger.Info().Str("execution_id", exec.ID).Str("decision", decision.String()).
		Int("reject_cycles", exec.StageData.RejectCycles).Msg("gate decided")
	switch decision {
	case DecisionProceed:
		return d.runFanOut(ctx, exec)
	case DecisionReenhance:
		return d.runEnhancement(ctx, exec)
	default:
		reason := fmt.Sprintf("%v: %d draft(s) rejected, limit is %d", domain.ErrRejectLimitReached, exec.StageData.RejectCycles, d.gate.MaxRejectCycles)
		return d.fail(ctx, exec, domain.FailureRejectLimitReached, reason)
	}
}

func (d *Driver) runEnhancement(ctx context.Context, exec *domain.Execution) (*domain.Execution, error) {
	brief, err := d.enhancer.Enhance(ctx, EnhanceRequest{
		ExecutionID:    exec.ID,
		BriefText:      exec.Input.BriefText,
		Feedback:       exec.StageData.Feedback,
		Clarifications: exec.StageData.Clarifications,
	})
	if err != nil {
		return d.fail(ctx, exec, domain.FailureEnhancementFailed, err.Error())
	}

	now := d.now()
	exec.StageData.EnhancedBrief = brief
	exec.Suspend = d.gate.Suspend(exec, brief, now)
	exec.Status = domain.ExecutionStatusSuspended
	if d.suspendTTL > 0 {
		expires := now.Add(d.suspendTTL)
		exec.ExpiresAt = &expires
	}
	if err := d.save(ctx, exec); err != nil {
		return nil, err
	}
	d.logger.Info().Str("execution_id", exec.ID).Str("reason", string(exec.Suspend.Reason)).
		Int("questions", len(exec.Suspend.Questions)).Msg("execution suspended")
	return exec, nil
}

func (d *Driver) runFanOut(ctx context.Context, exec *domain.Execution) (*domain.Execution, error) {
	brief := exec.StageData.EnhancedBrief
	if brief == nil {
		return d.fail(ctx, exec, domain.FailureInternal, "approved execution has no enhanced brief")
	}
	personas := d.personas.Select(exec.StageData.PersonaSelection)
	if len(personas) == 0 {
		return d.fail(ctx, exec, domain.FailureInternal, "none of the selected personas is active anymore")
	}
	hint := exec.Input.AspectRatioHint
	if hint == "" {
		hint = d.defaultHint
	}

	start := time.Now()
	results := d.fanout.Run(ctx, FanOutJob{
		ExecutionID:     exec.ID,
		Brief:           brief,
		Clarifications:  exec.StageData.Clarifications,
		AspectRatioHint: hint,
		Personas:        personas,
	})
	result, err := Aggregate(brief, exec.StageData.Clarifications, results)
	if err != nil {
		return d.fail(ctx, exec, domain.FailureAllPersonasFailed, err.Error())
	}

	now := d.now()
	exec.Result = result
	exec.Status = domain.ExecutionStatusCompleted
	exec.CompletedAt = &now
	if err := d.save(ctx, exec); err != nil {
		return nil, err
	}
	d.logger.Info().Str("execution_id", exec.ID).Int("prompts", len(result.Prompts)).Int("images", len(result.Images)).
		Int("errors", len(result.Errors)).Dur("elapsed", time.Since(start)).Msg("execution completed")
	d.archiveTerminal(ctx, exec)
	return exec, nil
}

func (d *Driver) fail(ctx context.Context, exec *domain.Execution, code, reason string) (*domain.Execution, error) {
	now := d.now()
	exec.Status = domain.ExecutionStatusFailed
	exec.Failure = &domain.Failure{Code: code, Reason: reason}
	exec.Suspend = nil
	exec.PendingResume = nil
	exec.ExpiresAt = nil
	exec.CompletedAt = &now
	if err := d.save(ctx, exec); err != nil {
		return nil, err
	}
	d.logger.Error().Str("execution_id", exec.ID).Str("code", code).Str("reason", reason).Msg("execution failed")
	d.archiveTerminal(ctx, exec)
	return exec, nil
}

// save persists exec against the version it was loaded with. The write is
// detached from ctx so a finished stage is not lost to a cancelled caller.
func (d *Driver) save(ctx context.Context, exec *domain.Execution) error {
	exec.UpdatedAt = d.now()
	if exec.Status != domain.ExecutionStatusRunning {
		exec.LeaseUntil = nil
	}
	if err := d.store.Save(context.WithoutCancel(ctx), exec, exec.Version); err != nil {
		return fmt.Errorf("save execution %s: %w", exec.ID, err)
	}
	return nil
}

func (d *Driver) archiveTerminal(ctx context.Context, exec *domain.Execution) {
	if d.archive == nil {
		return
	}
	if err := d.archive.Put(context.WithoutCancel(ctx), exec); err != nil {
		d.logger.Warn().Err(err).Str("execution_id", exec.ID).Msg("archive write failed")
	}
}

// Status reads the persisted state, falling back to the archive. An overdue
// execution is settled first, so a lapsed suspension is never reported as
// still awaiting a resume.
func (d *Driver) Status(ctx context.Context, id string) (*domain.Execution, error) {
	exec, err := d.store.Get(ctx, id)
	if err == nil {
		if now := d.now(); exec.Overdue(now) {
			return d.settle(ctx, exec, now)
		}
		return exec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if d.archive != nil {
		archived, aerr := d.archive.Get(ctx, id)
		if aerr == nil {
			return archived, nil
		}
		if !errors.Is(aerr, domain.ErrNotFound) {
			return nil, fmt.Errorf("load archived execution: %w", aerr)
		}
	}
	return nil, fmt.Errorf("%w: execution %s", domain.ErrNotFound, id)
}

const sweepBatch = 100

// SweepOverdue fails every suspension whose deadline is before now and
// recovers every running execution whose lease lapsed. It returns how many
// executions it settled.
func (d *Driver) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	count := 0
	for {
		batch, err := d.store.ListOverdue(ctx, now, sweepBatch)
		if err != nil {
			return count, fmt.Errorf("list overdue executions: %w", err)
		}
		settled := 0
		for _, exec := range batch {
			if !exec.Overdue(now) {
				continue
			}
			if _, err := d.settle(ctx, exec, now); err != nil {
				return count, err
			}
			settled++
		}
		count += settled
		if len(batch) < sweepBatch || settled == 0 {
			return count, nil
		}
	}
}

// settle resolves an overdue execution and returns its current state. When
// another process changed it first, the stored state is returned instead.
func (d *Driver) settle(ctx context.Context, exec *domain.Execution, now time.Time) (*domain.Execution, error) {
	var (
		out *domain.Execution
		err error
	)
	switch {
	case exec.Expired(now):
		reason := fmt.Sprintf("suspension expired at %s without a resume", exec.ExpiresAt.Format(time.RFC3339))
		out, err = d.fail(ctx, exec, domain.FailureStateExpired, reason)
	case exec.Abandoned(now):
		out, err = d.recoverAbandoned(ctx, exec)
	default:
		return exec, nil
	}
	if errors.Is(err, domain.ErrVersionConflict) {
		current, gerr := d.store.Get(ctx, exec.ID)
		if gerr != nil {
			return nil, fmt.Errorf("reload execution %s: %w", exec.ID, gerr)
		}
		return current, nil
	}
	return out, err
}

// recoverAbandoned requeues a run whose process went away, or fails it with
// WORKFLOW_STATE_EXPIRED when requeueing is off or already retried too often.
// Only runs with work the worker can redo (a pending resume or a missing
// brief) are requeued.
func (d *Driver) recoverAbandoned(ctx context.Context, exec *domain.Execution) (*domain.Execution, error) {
	lapsed := exec.LeaseUntil.Format(time.RFC3339)
	redoable := exec.PendingResume != nil || exec.StageData.EnhancedBrief == nil
	if d.requeue && redoable && exec.StageData.Recoveries < maxRecoveries {
		exec.Status = domain.ExecutionStatusQueued
		exec.StageData.Recoveries++
		if err := d.save(ctx, exec); err != nil {
			return nil, err
		}
		d.logger.Warn().Str("execution_id", exec.ID).Str("lease_until", lapsed).
			Int("recoveries", exec.StageData.Recoveries).Msg("abandoned execution requeued")
		return exec, nil
	}
	reason := fmt.Sprintf("execution was abandoned while running, lease lapsed at %s", lapsed)
	return d.fail(ctx, exec, domain.FailureStateExpired, reason)
}
