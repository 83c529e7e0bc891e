package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/foreman/metrics"
	"github.com/GoCodeAlone/foreman/plan"
	"github.com/GoCodeAlone/foreman/provider"
	"github.com/GoCodeAlone/foreman/runner"
)

// loopFailureLimit aborts the plan after this many consecutive loop-level
// failures.
const loopFailureLimit = 3

// Deps are the external collaborators the executor drives a plan against.
type Deps struct {
	Store    *plan.Store
	Provider provider.Provider
	Build    runner.BuildRunner
	Tests    runner.TestRunner
	Prober   runner.Prober
}

// Executor runs one plan at a time: task scheduling, gate validation,
// timeouts, and recovery dispatch. Construct instances with NewExecutor;
// there are no package-level singletons.
type Executor struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps

	state        State
	current      *plan.Plan
	events       *stream
	actions      *ActionRegistry
	strategies   map[TriggerKind]RecoveryStrategy
	lastRecovery map[TriggerKind]time.Time

	cancel       context.CancelFunc
	done         chan struct{}
	resumeCh     chan struct{}
	watchdogStop chan struct{}
	healthStop   chan struct{}

	logger *slog.Logger
}

// NewExecutor creates an idle executor with default recovery strategies and
// actions installed.
func NewExecutor(deps Deps, cfg Config, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = def.WatchdogInterval
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = def.WorkDir
	}

	closed := make(chan struct{})
	close(closed)

	reg := NewActionRegistry()
	RegisterDefaultActions(reg, logger)

	return &Executor{
		cfg:  cfg,
		deps: deps,
		state: State{
			Status:    StatusIdle,
			IsHealthy: true,
			Config:    cfg,
		},
		events:       newStream(logger),
		actions:      reg,
		strategies:   DefaultStrategies(),
		lastRecovery: make(map[TriggerKind]time.Time),
		done:         closed,
		logger:       logger,
	}
}

// Actions returns the recovery action registry so callers can substitute
// real repair logic for the built-in placeholders.
func (e *Executor) Actions() *ActionRegistry { return e.actions }

// SetStrategy installs or replaces the recovery strategy for its trigger.
func (e *Executor) SetStrategy(s RecoveryStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Trigger] = s
}

// State returns a defensive-copy snapshot of the executor state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Subscribe registers a lifecycle-event listener and returns an unsubscribe
// handle.
func (e *Executor) Subscribe(fn Listener) (unsubscribe func()) {
	return e.events.subscribe(fn)
}

// Events returns the most recent limit lifecycle events, oldest first.
func (e *Executor) Events(limit int) []Event {
	return e.events.recent(limit)
}

// Done returns a channel closed when the current run finishes (completion,
// failure, or stop). Task-level errors never surface here.
func (e *Executor) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// StartPlan begins executing the given plan. It fails if a plan is already
// running on this instance. The loop runs in its own goroutine; use Done,
// State, or Subscribe to observe the outcome.
func (e *Executor) StartPlan(ctx context.Context, planID string) error {
	p, err := e.deps.Store.Get(planID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.state.Status == StatusRunning || e.state.Status == StatusPaused {
		e.mu.Unlock()
		return fmt.Errorf("executor busy: plan %s is %s", e.state.PlanID, e.state.Status)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.current = p
	e.state.Status = StatusRunning
	e.state.PlanID = p.ID
	e.state.TaskID = ""
	e.state.IsHealthy = true
	e.state.ConsecutiveFailures = 0
	e.state.LastActivity = time.Now().UTC()
	e.startTimersLocked(loopCtx)
	e.mu.Unlock()

	p.Status = plan.StatusActive
	if err := e.deps.Store.Update(p); err != nil {
		e.logger.Warn("mark plan active", slog.Any("err", err))
	}

	e.recordActivity("plan started: " + p.Title)
	e.events.emit(Event{Type: EventPlanStarted, PlanID: p.ID, Message: p.Title})

	go e.loop(loopCtx, p, cancel, done)
	return nil
}

// Pause suspends the loop. The in-flight task is not aborted; the pause is
// observed at the top of the next iteration.
func (e *Executor) Pause() error {
	e.mu.Lock()
	if e.state.Status != StatusRunning {
		e.mu.Unlock()
		return fmt.Errorf("cannot pause: executor is %s", e.state.Status)
	}
	e.state.Status = StatusPaused
	e.resumeCh = make(chan struct{})
	e.stopTimersLocked()
	planID := e.state.PlanID
	e.mu.Unlock()

	if p, err := e.deps.Store.Get(planID); err == nil {
		p.Status = plan.StatusPaused
		_ = e.deps.Store.Update(p)
	}

	e.recordActivity("plan paused")
	e.events.emit(Event{Type: EventPlanPaused, PlanID: planID})
	return nil
}

// Resume continues a paused run. It requires a prior Pause.
func (e *Executor) Resume() error {
	e.mu.Lock()
	if e.state.Status != StatusPaused {
		e.mu.Unlock()
		return fmt.Errorf("cannot resume: executor is %s", e.state.Status)
	}
	e.state.Status = StatusRunning
	e.state.LastActivity = time.Now().UTC()
	ch := e.resumeCh
	e.resumeCh = nil
	// Timers are recreated against the loop's context via the stored cancel
	// scope; the loop context is still alive while paused.
	e.startTimersLocked(e.loopContext())
	planID := e.state.PlanID
	e.mu.Unlock()

	if p, err := e.deps.Store.Get(planID); err == nil {
		p.Status = plan.StatusActive
		_ = e.deps.Store.Update(p)
	}

	if ch != nil {
		close(ch)
	}
	e.recordActivity("plan resumed")
	e.events.emit(Event{Type: EventPlanResumed, PlanID: planID})
	return nil
}

// Stop hard-stops the run: cancels the loop, clears all owned timers, and
// resets status to idle.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.state.Status == StatusIdle {
		e.mu.Unlock()
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.stopTimersLocked()
	if e.resumeCh != nil {
		close(e.resumeCh)
		e.resumeCh = nil
	}
	planID := e.state.PlanID
	e.state.Status = StatusIdle
	e.state.PlanID = ""
	e.state.TaskID = ""
	e.current = nil
	e.mu.Unlock()

	e.recordActivity("plan stopped")
	e.events.emit(Event{Type: EventPlanStopped, PlanID: planID})
}

// TriggerRecovery invokes the recovery pipeline out of band, bypassing the
// cooldown window.
func (e *Executor) TriggerRecovery(ctx context.Context, reason string) {
	e.runRecovery(ctx, TriggerManual, reason, true)
}

// loop drives iterations until the plan completes, aborts, or is stopped.
// cancel and done belong to this run; teardown releases exactly them so a
// follow-up run started from a terminal event is never torn down by accident.
func (e *Executor) loop(ctx context.Context, p *plan.Plan, cancel context.CancelFunc, done chan struct{}) {
	defer e.teardown(cancel, done)

	strikes := 0
	for {
		if !e.waitIfPaused(ctx) {
			return
		}

		if p.CurrentIteration >= p.MaxIterations {
			e.failPlan(p, ReasonMaxIterations)
			return
		}

		complete, err := e.runIteration(ctx, p)
		if complete {
			e.completePlan(p)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			strikes++
			e.logger.Error("iteration failed",
				slog.Int("strike", strikes),
				slog.Any("err", err),
			)
			e.mu.Lock()
			e.state.ConsecutiveFailures++
			metrics.ConsecutiveFailures.Set(float64(e.state.ConsecutiveFailures))
			autoRecover := e.cfg.AutoRecovery
			e.mu.Unlock()

			if strikes >= loopFailureLimit {
				e.failPlan(p, ReasonConsecutiveFailures)
				return
			}
			if autoRecover {
				e.runRecovery(ctx, TriggerRuntimeError, err.Error(), false)
			}
		} else {
			strikes = 0
		}

		if e.cfg.IterationDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.IterationDelay):
			}
		}
	}
}

// waitIfPaused blocks while paused. It returns false if the run was
// cancelled while waiting.
func (e *Executor) waitIfPaused(ctx context.Context) bool {
	for {
		e.mu.Lock()
		if e.state.Status != StatusPaused {
			e.mu.Unlock()
			return ctx.Err() == nil
		}
		ch := e.resumeCh
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-ch:
		}
	}
}

// runIteration performs one loop pass. complete reports that no eligible
// task remains; err reports a loop-level failure (counted toward the strike
// limit), never a gate failure.
func (e *Executor) runIteration(ctx context.Context, p *plan.Plan) (complete bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()

	task := e.selectNextTask(p)
	if task == nil {
		return true, nil
	}

	iter := &plan.Iteration{
		Number:    p.CurrentIteration + 1,
		Status:    plan.IterationRunning,
		StartedAt: time.Now().UTC(),
	}
	p.CurrentIteration = iter.Number
	p.Iterations = append(p.Iterations, iter)
	metrics.Iterations.Inc()
	e.events.emit(Event{
		Type:    EventIterationStarted,
		PlanID:  p.ID,
		Payload: map[string]any{"iteration": iter.Number},
	})

	iter.AttemptedTasks = append(iter.AttemptedTasks, task.ID)
	now := time.Now().UTC()
	task.Status = plan.TaskInProgress
	task.Attempts++
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	e.setCurrentTask(task.ID)
	e.recordActivity(fmt.Sprintf("task started: %s (attempt %d/%d)", task.Title, task.Attempts, task.MaxAttempts))
	e.events.emit(Event{Type: EventTaskStarted, PlanID: p.ID, TaskID: task.ID, Message: task.Title})
	if err := e.deps.Store.Update(p); err != nil {
		return false, fmt.Errorf("persist task start: %w", err)
	}

	if execErr := e.executeTask(ctx, p, task); execErr != nil {
		if ctx.Err() != nil && !timedOut(execErr) {
			return false, nil
		}
		e.handleTaskFailure(ctx, p, iter, task, execErr)
		return false, nil
	}

	task.Status = plan.TaskTesting
	_ = e.deps.Store.Update(p)

	if e.cfg.TestGate {
		if gateErr := e.runTestGate(ctx, p, iter); gateErr != nil {
			e.handleTaskFailure(ctx, p, iter, task, gateErr)
			return false, nil
		}
	}
	if e.cfg.BuildGate {
		if gateErr := e.runBuildGate(ctx, p, iter); gateErr != nil {
			e.handleTaskFailure(ctx, p, iter, task, gateErr)
			return false, nil
		}
	}

	done := time.Now().UTC()
	task.Status = plan.TaskCompleted
	task.CompletedAt = &done
	iter.CompletedTasks = append(iter.CompletedTasks, task.ID)
	iter.Status = plan.IterationCompleted
	iter.CompletedAt = &done
	e.setCurrentTask("")

	e.mu.Lock()
	e.state.ConsecutiveFailures = 0
	metrics.ConsecutiveFailures.Set(0)
	e.mu.Unlock()

	if err := e.deps.Store.Update(p); err != nil {
		return false, fmt.Errorf("persist task completion: %w", err)
	}
	metrics.TasksCompleted.Inc()
	e.recordActivity("task completed: " + task.Title)
	e.events.emit(Event{Type: EventTaskCompleted, PlanID: p.ID, TaskID: task.ID, Message: task.Title})
	return false, nil
}

// selectNextTask picks the first pending task whose dependencies are all
// completed, else the first retryable failed task, demoted back to pending.
// BlockedBy is recomputed on each evaluation, never accumulated. Tie-break
// is declaration order; priority is reporting metadata only.
func (e *Executor) selectNextTask(p *plan.Plan) *plan.Task {
	for _, t := range p.Tasks {
		if t.Status != plan.TaskPending {
			continue
		}
		t.BlockedBy = p.BlockedBy(t)
		if len(t.BlockedBy) == 0 {
			return t
		}
	}
	if !e.cfg.AutoRecovery {
		return nil
	}
	for _, t := range p.Tasks {
		if t.Status != plan.TaskFailed || t.Attempts >= t.MaxAttempts {
			continue
		}
		t.BlockedBy = p.BlockedBy(t)
		if len(t.BlockedBy) == 0 {
			t.Status = plan.TaskPending
			return t
		}
	}
	return nil
}

// executeTask asks the code-generation provider to implement the task, then
// validates that every planned file now exists. Both run under the per-task
// wall-clock budget.
func (e *Executor) executeTask(ctx context.Context, p *plan.Plan, task *plan.Task) error {
	taskCtx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	defer cancel()

	req := provider.Request{
		System: "You are an autonomous software developer implementing one task of a development plan.",
		Prompt: buildPrompt(p, task),
	}
	if _, err := e.deps.Provider.Generate(taskCtx, req); err != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &TimeoutError{TaskID: task.ID, Timeout: e.cfg.TaskTimeout}
		}
		return fmt.Errorf("generate: %w", err)
	}

	var missing []string
	for _, f := range task.PlannedFiles {
		exists, err := e.deps.Prober.Exists(taskCtx, f)
		if err != nil {
			if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return &TimeoutError{TaskID: task.ID, Timeout: e.cfg.TaskTimeout}
			}
			return fmt.Errorf("probe %s: %w", f, err)
		}
		if !exists {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{TaskID: task.ID, Missing: missing}
	}
	return nil
}

// runTestGate runs the test suite and records the result on the iteration.
func (e *Executor) runTestGate(ctx context.Context, p *plan.Plan, iter *plan.Iteration) error {
	res, err := e.deps.Tests.RunTests(ctx, e.cfg.WorkDir)
	if err != nil {
		return &GateError{Kind: GateTest, Detail: err.Error()}
	}
	iter.TestResult = &plan.GateResult{
		Success:  res.Success,
		Duration: res.Duration,
		Passed:   res.Passed,
		Failed:   res.Failed,
		Skipped:  res.Skipped,
		Errors:   res.Errors,
	}
	e.events.emit(Event{
		Type:    EventTestCompleted,
		PlanID:  p.ID,
		Payload: map[string]any{"success": res.Success, "failed": res.Failed},
	})
	if !res.Success {
		return &GateError{Kind: GateTest, Detail: firstOf(res.Errors)}
	}
	return nil
}

// runBuildGate runs the build and records the result on the iteration.
func (e *Executor) runBuildGate(ctx context.Context, p *plan.Plan, iter *plan.Iteration) error {
	res, err := e.deps.Build.RunBuild(ctx, e.cfg.WorkDir)
	if err != nil {
		return &GateError{Kind: GateBuild, Detail: err.Error()}
	}
	iter.BuildResult = &plan.GateResult{
		Success:  res.Success,
		Duration: res.Duration,
		Errors:   res.Errors,
		Warnings: res.Warnings,
	}
	e.events.emit(Event{
		Type:    EventBuildCompleted,
		PlanID:  p.ID,
		Payload: map[string]any{"success": res.Success},
	})
	if !res.Success {
		return &GateError{Kind: GateBuild, Detail: firstOf(res.Errors)}
	}
	return nil
}

// handleTaskFailure records the error, increments the failure streak, and
// either arranges a retry (dispatching recovery) or fails the task
// permanently.
func (e *Executor) handleTaskFailure(ctx context.Context, p *plan.Plan, iter *plan.Iteration, task *plan.Task, cause error) {
	kind, trigger := classify(cause)

	task.Errors = append(task.Errors, &plan.TaskError{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Message:   cause.Error(),
	})
	task.Status = plan.TaskFailed
	now := time.Now().UTC()
	iter.FailedTasks = append(iter.FailedTasks, task.ID)
	iter.Status = plan.IterationFailed
	iter.CompletedAt = &now
	e.setCurrentTask("")

	e.mu.Lock()
	e.state.ConsecutiveFailures++
	metrics.ConsecutiveFailures.Set(float64(e.state.ConsecutiveFailures))
	autoRecover := e.cfg.AutoRecovery
	e.mu.Unlock()

	metrics.TasksFailed.WithLabelValues(string(kind)).Inc()
	retryable := autoRecover && task.Attempts < task.MaxAttempts

	e.recordActivity(fmt.Sprintf("task failed: %s (%s, attempt %d/%d, retryable=%t)",
		task.Title, kind, task.Attempts, task.MaxAttempts, retryable))
	e.events.emit(Event{
		Type:    EventTaskFailed,
		PlanID:  p.ID,
		TaskID:  task.ID,
		Message: cause.Error(),
		Payload: map[string]any{"kind": string(kind), "retryable": retryable},
	})
	if err := e.deps.Store.Update(p); err != nil {
		e.logger.Warn("persist task failure", slog.Any("err", err))
	}

	if retryable {
		iter.RecoveryActions = append(iter.RecoveryActions, string(trigger))
		// Every retryable failure gets a pipeline run. The cooldown window
		// only throttles the periodic sources (watchdog, health ticks).
		e.runRecovery(ctx, trigger, cause.Error(), true)
	}
}

// classify maps a task error to its recorded kind and recovery trigger.
func classify(err error) (plan.ErrorKind, TriggerKind) {
	var gate *GateError
	if errors.As(err, &gate) {
		if gate.Kind == GateBuild {
			return plan.ErrBuild, TriggerBuildFailure
		}
		return plan.ErrTest, TriggerTestFailure
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return plan.ErrTimeout, TriggerTimeout
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return plan.ErrValidation, TriggerRuntimeError
	}
	return plan.ErrRuntime, TriggerRuntimeError
}

// completePlan marks the plan completed and returns the executor to idle.
func (e *Executor) completePlan(p *plan.Plan) {
	p.Status = plan.StatusCompleted
	if err := e.deps.Store.Update(p); err != nil {
		e.logger.Warn("persist plan completion", slog.Any("err", err))
	}

	e.mu.Lock()
	e.state.Status = StatusIdle
	e.state.TaskID = ""
	e.mu.Unlock()

	e.recordActivity("plan completed: " + p.Title)
	e.events.emit(Event{Type: EventPlanCompleted, PlanID: p.ID, Message: p.Title})
}

// failPlan marks the plan failed with a recorded reason.
func (e *Executor) failPlan(p *plan.Plan, reason string) {
	p.Status = plan.StatusFailed
	if err := e.deps.Store.Update(p); err != nil {
		e.logger.Warn("persist plan failure", slog.Any("err", err))
	}

	e.mu.Lock()
	e.state.Status = StatusError
	e.state.TaskID = ""
	e.mu.Unlock()

	terr := &PlanTerminalError{PlanID: p.ID, Reason: reason}
	e.recordActivity(terr.Error())
	e.events.emit(Event{Type: EventPlanFailed, PlanID: p.ID, Message: reason})
}

// teardown runs when the loop goroutine exits for any reason. Listeners on
// the terminal events run synchronously on the loop goroutine and may start a
// new run before the deferred teardown fires; executor-level fields are only
// cleared while this run still owns them. The run's own context and done
// channel are always released.
func (e *Executor) teardown(cancel context.CancelFunc, done chan struct{}) {
	cancel()

	e.mu.Lock()
	if e.done == done {
		e.stopTimersLocked()
		e.cancel = nil
		if e.state.Status == StatusRunning || e.state.Status == StatusPaused {
			e.state.Status = StatusIdle
		}
		e.current = nil
	}
	e.mu.Unlock()

	close(done)
}

// setCurrentTask records which task is in flight and touches the activity
// clock.
func (e *Executor) setCurrentTask(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.TaskID = id
	e.state.LastActivity = time.Now().UTC()
}

// recordActivity appends to the bounded activity log.
func (e *Executor) recordActivity(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.LastActivity = time.Now().UTC()
	e.state.Activity = append(e.state.Activity, ActivityEntry{
		Timestamp: e.state.LastActivity,
		Message:   msg,
	})
	if len(e.state.Activity) > maxActivityEntries {
		e.state.Activity = e.state.Activity[len(e.state.Activity)-maxActivityEntries:]
	}
}

func (e *Executor) metricsRecovery(kind TriggerKind) {
	metrics.RecoveryRuns.WithLabelValues(string(kind)).Inc()
}

// startTimersLocked launches the watchdog and health tickers. Caller holds
// the mutex.
func (e *Executor) startTimersLocked(ctx context.Context) {
	e.watchdogStop = make(chan struct{})
	e.healthStop = make(chan struct{})
	go e.watchdogLoop(ctx, e.watchdogStop)
	go e.healthLoop(ctx, e.healthStop)
}

// stopTimersLocked clears both tickers so neither fires after pause or stop.
// Caller holds the mutex.
func (e *Executor) stopTimersLocked() {
	if e.watchdogStop != nil {
		close(e.watchdogStop)
		e.watchdogStop = nil
	}
	if e.healthStop != nil {
		close(e.healthStop)
		e.healthStop = nil
	}
}

// watchdogLoop fires recovery when the executor has been inactive for more
// than twice the watchdog interval.
func (e *Executor) watchdogLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			inactive := time.Since(e.state.LastActivity)
			autoRecover := e.cfg.AutoRecovery
			e.mu.Unlock()
			if inactive > 2*e.cfg.WatchdogInterval && autoRecover {
				e.runRecovery(ctx, TriggerWatchdog,
					fmt.Sprintf("no activity for %s", inactive.Round(time.Second)), false)
			}
		}
	}
}

// healthLoop refreshes the health flag and emits a health_check event every
// tick. An unhealthy tick dispatches the health-check recovery pipeline,
// throttled by its cooldown window like the watchdog.
func (e *Executor) healthLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			e.state.IsHealthy = e.state.ConsecutiveFailures < 3
			healthy := e.state.IsHealthy
			failures := e.state.ConsecutiveFailures
			planID := e.state.PlanID
			autoRecover := e.cfg.AutoRecovery
			e.mu.Unlock()
			e.events.emit(Event{
				Type:   EventHealthCheck,
				PlanID: planID,
				Payload: map[string]any{
					"healthy":              healthy,
					"consecutive_failures": failures,
				},
			})
			if !healthy && autoRecover {
				e.runRecovery(ctx, TriggerHealthCheck,
					fmt.Sprintf("%d consecutive failures", failures), false)
			}
		}
	}
}

// loopContext returns a context tied to the current run for timer restarts.
func (e *Executor) loopContext() context.Context {
	// Timers only need cancellation on stop; their stop channels handle
	// pause. The background context suffices between resume and stop.
	return context.Background()
}

// buildPrompt renders the plan/task context sent to the generator.
func buildPrompt(p *plan.Plan, task *plan.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s\n\nTask: %s\n", p.Title, task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if len(task.PlannedFiles) > 0 {
		b.WriteString("\nCreate or update the following files:\n")
		for _, f := range task.PlannedFiles {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	return b.String()
}

// firstOf returns the first element of errs, or an empty string.
func firstOf(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0]
}

// timedOut reports whether err is a task timeout.
func timedOut(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}
