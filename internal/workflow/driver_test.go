package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creativeflow/internal/adapter/repo"
	"creativeflow/internal/domain"
	"creativeflow/internal/persona"
	"creativeflow/internal/providers/image"
	"creativeflow/internal/providers/prompt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryArchive struct {
	mu    sync.Mutex
	items map[string]*domain.Execution
}

func (a *memoryArchive) Put(ctx context.Context, exec *domain.Execution) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.items == nil {
		a.items = map[string]*domain.Execution{}
	}
	cp := *exec
	a.items[exec.ID] = &cp
	return nil
}

func (a *memoryArchive) Get(ctx context.Context, id string) (*domain.Execution, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.items[id]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

type driverFixture struct {
	driver  *Driver
	store   *repo.ExecutionRepositoryMemory
	archive *memoryArchive
	clock   *testClock
	text    *scriptedText
}

type fixtureOptions struct {
	gate       Gate
	suspendTTL time.Duration
	runLease   time.Duration
	requeue    bool
	text       *scriptedText
	images     image.Generator
}

func newDriverFixture(t *testing.T, opts fixtureOptions) *driverFixture {
	t.Helper()
	registry, err := persona.NewRegistry(nil, zerolog.Nop())
	require.NoError(t, err)
	if opts.text == nil {
		opts.text = staticText()
	}
	if opts.images == nil {
		opts.images = okImages()
	}
	f := &driverFixture{
		store:   repo.NewExecutionRepositoryMemory(),
		archive: &memoryArchive{},
		clock:   &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		text:    opts.text,
	}
	f.driver = NewDriver(DriverOptions{
		Store:            f.store,
		Archive:          f.archive,
		Enhancer:         NewEnhancer(EnhancerOptions{TextGen: opts.text, Sleep: noSleep, Logger: zerolog.Nop()}),
		FanOut:           NewFanOut(FanOutOptions{TextGen: opts.text, Images: opts.images, Sleep: noSleep, Logger: zerolog.Nop()}),
		Personas:         registry,
		Gate:             opts.gate,
		SuspendTTL:       opts.suspendTTL,
		RunLease:         opts.runLease,
		RequeueAbandoned: opts.requeue,
		Clock:            f.clock.Now,
		Logger:           zerolog.Nop(),
	})
	return f
}

func TestDriverStartSuspendsForApproval(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	exec, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew coffee for commuters"})
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusSuspended, exec.Status)
	require.NotNil(t, exec.Suspend)
	assert.Equal(t, domain.SuspendReasonAwaitingApproval, exec.Suspend.Reason)
	assert.NotNil(t, exec.Suspend.EnhancedBrief)
	assert.Equal(t, []string{"creative-generator-performance", "creative-generator-artdirector"}, exec.StageData.PersonaSelection)
	assert.Nil(t, exec.ExpiresAt)

	stored, err := f.driver.Status(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuspended, stored.Status)
}

func TestDriverStartValidatesInput(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	_, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "x", Personas: []string{"ghost"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDriverApproveCompletes(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	done, err := f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Len(t, done.Result.Prompts, 2)
	assert.Len(t, done.Result.Images, 2)
	assert.Empty(t, done.Result.Errors)
	assert.Nil(t, done.Suspend)
	assert.Nil(t, done.PendingResume)

	archived, err := f.archive.Get(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, archived.Status)
}

func TestDriverRejectReenhancesWithFeedback(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	again, err := f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Approved: false, Feedback: "more playful"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuspended, again.Status)
	assert.Equal(t, 1, again.StageData.RejectCycles)
	assert.Equal(t, []string{"more playful"}, again.StageData.Feedback)

	var last prompt.Request
	for _, r := range f.text.requests() {
		if r.Purpose == prompt.PurposeEnhanceBrief {
			last = r
		}
	}
	assert.Contains(t, last.Instruction, "1. more playful")
}

func TestDriverRejectThenApproveCompletesWithRevisedBrief(t *testing.T) {
	usps := []string{"Smooth in 12 hours", "Brewed cold, never bitter"}
	text := &scriptedText{}
	enhanceCalls := 0
	text.fn = func(req prompt.Request, _ int) (*prompt.Response, error) {
		if req.Purpose == prompt.PurposeEnhanceBrief {
			usp := usps[min(enhanceCalls, len(usps)-1)]
			enhanceCalls++
			return textResponse(fmt.Sprintf(`{"brief_type": "product", "product": {"name": "Cold Brew"}, "goal": {"primary": "trial"}, "target_audience": {"who": "commuters"}, "usp": %q, "visual_direction": {"mood": "fresh"}, "cta_intent": "purchase"}`, usp)), nil
		}
		return textResponse(completePromptJSON), nil
	}
	f := newDriverFixture(t, fixtureOptions{text: text})
	ctx := context.Background()

	first, err := f.driver.Start(ctx, domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionStatusSuspended, first.Status)
	assert.Equal(t, usps[0], first.Suspend.EnhancedBrief.USP)

	second, err := f.driver.Resume(ctx, first.ID, domain.ResumePayload{Feedback: "less technical"})
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionStatusSuspended, second.Status)
	assert.Equal(t, domain.SuspendReasonAwaitingApproval, second.Suspend.Reason)
	assert.Equal(t, usps[1], second.Suspend.EnhancedBrief.USP)
	assert.Equal(t, usps[1], second.StageData.EnhancedBrief.USP)
	assert.Equal(t, 1, second.StageData.RejectCycles)

	done, err := f.driver.Resume(ctx, first.ID, domain.ResumePayload{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Len(t, done.Result.Prompts, 2)
	assert.Len(t, done.Result.Images, 2)
	assert.Equal(t, 2, enhanceCalls)

	personaCalls := 0
	for _, r := range text.requests() {
		if r.Purpose == prompt.PurposeCreativePrompt {
			personaCalls++
			assert.Contains(t, r.Instruction, usps[1])
			assert.NotContains(t, r.Instruction, usps[0])
		}
	}
	assert.Equal(t, 2, personaCalls)
}

func TestDriverRejectLimit(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{gate: Gate{MaxRejectCycles: 1}})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	_, err = f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Feedback: "no"})
	require.NoError(t, err)
	failed, err := f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Feedback: "still no"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, domain.FailureRejectLimitReached, failed.Failure.Code)
}

func TestDriverResumeUnknownIsExpired(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	_, err := f.driver.Resume(context.Background(), "does-not-exist", domain.ResumePayload{Approved: true})
	assert.ErrorIs(t, err, domain.ErrWorkflowStateExpired)
}

func TestDriverResumeTwiceHasNoPendingSuspension(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)
	_, err = f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Approved: true})
	require.NoError(t, err)

	_, err = f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Approved: true})
	assert.ErrorIs(t, err, domain.ErrNoPendingSuspension)
}

func TestDriverConcurrentResumesOneWins(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	payloads := []domain.ResumePayload{{Approved: true}, {Approved: true, Feedback: "ship it"}, {AnswersText: "vanilla"}}
	var wg sync.WaitGroup
	errs := make([]error, len(payloads))
	for i, p := range payloads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.driver.Resume(context.Background(), started.ID, p)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrNoPendingSuspension)
	}
	assert.Equal(t, 1, wins)
}

func TestDriverClarificationAnswersFlowIntoPrompts(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{
		gate: Gate{ClarifyOnQuestions: true},
		text: &scriptedText{fn: func(req prompt.Request, _ int) (*prompt.Response, error) {
			if req.Purpose == prompt.PurposeEnhanceBrief {
				return textResponse(completeBriefJSON), nil
			}
			return textResponse(completePromptJSON), nil
		}},
	})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)
	assert.Equal(t, domain.SuspendReasonNeedsClarification, started.Suspend.Reason)
	assert.Equal(t, []string{"Which flavor leads?"}, started.Suspend.Questions)

	done, err := f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{AnswersText: "Vanilla oat leads"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, done.Status)
	assert.Equal(t, "Vanilla oat leads", done.Result.Clarifications)
	for _, r := range f.text.requests() {
		if r.Purpose == prompt.PurposeCreativePrompt {
			assert.Contains(t, r.Instruction, "Vanilla oat leads")
		}
	}
}

func TestDriverAllPersonasFailed(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{text: &scriptedText{fn: func(req prompt.Request, _ int) (*prompt.Response, error) {
		if req.Purpose == prompt.PurposeEnhanceBrief {
			return textResponse(completeBriefJSON), nil
		}
		return nil, errors.New("persona backend down")
	}}})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	failed, err := f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, domain.FailureAllPersonasFailed, failed.Failure.Code)
	assert.Contains(t, failed.Failure.Reason, "All personas failed. First error:")
	assert.Contains(t, failed.Failure.Reason, "persona backend down")
}

func TestDriverEnhancementFailure(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{text: &scriptedText{fn: func(req prompt.Request, _ int) (*prompt.Response, error) {
		return textResponse("{}"), nil
	}}})
	exec, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Equal(t, domain.FailureEnhancementFailed, exec.Failure.Code)
}

func TestDriverSuspensionExpires(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{suspendTTL: time.Hour})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)
	require.NotNil(t, started.ExpiresAt)

	n, err := f.driver.SweepOverdue(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(2 * time.Hour)
	n, err = f.driver.SweepOverdue(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := f.driver.Status(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
	assert.Equal(t, domain.FailureStateExpired, status.Failure.Code)

	_, err = f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Approved: true})
	assert.ErrorIs(t, err, domain.ErrWorkflowStateExpired)
}

func TestDriverResumeAfterDeadlineExpiresLazily(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{suspendTTL: time.Minute})
	started, err := f.driver.Start(context.Background(), domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.driver.Resume(context.Background(), started.ID, domain.ResumePayload{Approved: true})
	assert.ErrorIs(t, err, domain.ErrWorkflowStateExpired)

	status, err := f.driver.Status(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
}

func TestDriverStatusAfterDeadlineExpiresLazily(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{suspendTTL: time.Minute})
	ctx := context.Background()
	started, err := f.driver.Start(ctx, domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	before, err := f.driver.Status(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuspended, before.Status)

	f.clock.Advance(time.Hour)
	status, err := f.driver.Status(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
	require.NotNil(t, status.Failure)
	assert.Equal(t, domain.FailureStateExpired, status.Failure.Code)
	assert.Nil(t, status.Suspend)
	assert.Nil(t, status.ExpiresAt)

	stored, err := f.store.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, stored.Status, "status read should persist the expiry")
	archived, err := f.archive.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, archived.Status)

	_, err = f.driver.Resume(ctx, started.ID, domain.ResumePayload{Approved: true})
	assert.ErrorIs(t, err, domain.ErrWorkflowStateExpired)
}

func TestDriverAbandonedRunFailsAsExpired(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{runLease: 10 * time.Minute})
	ctx := context.Background()
	queued, err := f.driver.Submit(ctx, domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	// The claiming worker dies before advancing.
	claimed, err := f.driver.ClaimQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed.LeaseUntil)
	assert.True(t, claimed.LeaseUntil.Equal(f.clock.Now().Add(10*time.Minute)))

	running, err := f.driver.Status(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusRunning, running.Status)

	f.clock.Advance(11 * time.Minute)
	_, err = f.driver.Resume(ctx, queued.ID, domain.ResumePayload{Approved: true})
	assert.ErrorIs(t, err, domain.ErrWorkflowStateExpired)

	status, err := f.driver.Status(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
	assert.Equal(t, domain.FailureStateExpired, status.Failure.Code)
	assert.Contains(t, status.Failure.Reason, "abandoned while running")
	assert.Nil(t, status.LeaseUntil)
}

func TestDriverSweepFailsAbandonedResume(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{runLease: time.Minute})
	ctx := context.Background()
	started, err := f.driver.Start(ctx, domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	// A sync resume moved the run to running and the process crashed mid fan-out.
	exec, err := f.store.Get(ctx, started.ID)
	require.NoError(t, err)
	lease := f.clock.Now().Add(time.Minute)
	exec.Status = domain.ExecutionStatusRunning
	exec.Suspend = nil
	exec.PendingResume = &domain.ResumePayload{Approved: true}
	exec.LeaseUntil = &lease
	require.NoError(t, f.store.Save(ctx, exec, exec.Version))

	n, err := f.driver.SweepOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "a live lease is left alone")

	f.clock.Advance(2 * time.Minute)
	n, err = f.driver.SweepOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := f.driver.Status(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
	assert.Equal(t, domain.FailureStateExpired, status.Failure.Code)
}

func TestDriverRequeuesAbandonedRun(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{runLease: time.Minute, requeue: true})
	ctx := context.Background()
	queued, err := f.driver.Submit(ctx, domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)
	_, err = f.driver.ClaimQueued(ctx)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	n, err := f.driver.SweepOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	requeued, err := f.driver.Status(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusQueued, requeued.Status)
	assert.Equal(t, 1, requeued.StageData.Recoveries)
	assert.Nil(t, requeued.LeaseUntil)

	claimed, err := f.driver.ClaimQueued(ctx)
	require.NoError(t, err)
	suspended, err := f.driver.Advance(ctx, claimed)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuspended, suspended.Status)
	assert.Nil(t, suspended.LeaseUntil)
}

func TestDriverAbandonedRunRecoveryIsBounded(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{runLease: time.Minute, requeue: true})
	ctx := context.Background()
	queued, err := f.driver.Submit(ctx, domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)

	for i := 0; i <= maxRecoveries; i++ {
		_, err := f.driver.ClaimQueued(ctx)
		require.NoError(t, err, "claim %d", i)
		f.clock.Advance(2 * time.Minute)
		_, err = f.driver.SweepOverdue(ctx, f.clock.Now())
		require.NoError(t, err)
	}

	status, err := f.driver.Status(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
	assert.Equal(t, domain.FailureStateExpired, status.Failure.Code)
	assert.Equal(t, maxRecoveries, status.StageData.Recoveries)

	_, err = f.driver.ClaimQueued(ctx)
	assert.ErrorIs(t, err, domain.ErrNoWork)
}

func TestDriverAsyncSubmitAndAdvance(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	ctx := context.Background()

	queued, err := f.driver.Submit(ctx, domain.PipelineInput{BriefText: "Cold brew"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusQueued, queued.Status)

	claimed, err := f.driver.ClaimQueued(ctx)
	require.NoError(t, err)
	suspended, err := f.driver.Advance(ctx, claimed)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuspended, suspended.Status)

	pending, err := f.driver.SubmitResume(ctx, queued.ID, domain.ResumePayload{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusQueued, pending.Status)
	assert.NotNil(t, pending.PendingResume)
	assert.Nil(t, pending.Suspend)

	claimed, err = f.driver.ClaimQueued(ctx)
	require.NoError(t, err)
	done, err := f.driver.Advance(ctx, claimed)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, done.Status)

	_, err = f.driver.ClaimQueued(ctx)
	assert.ErrorIs(t, err, domain.ErrNoWork)
}

func TestDriverStatusFallsBackToArchive(t *testing.T) {
	f := newDriverFixture(t, fixtureOptions{})
	archived := &domain.Execution{ID: "old-run", Status: domain.ExecutionStatusCompleted}
	require.NoError(t, f.archive.Put(context.Background(), archived))

	got, err := f.driver.Status(context.Background(), "old-run")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, got.Status)

	_, err = f.driver.Status(context.Background(), "never")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
