package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TriggerKind names the condition that invoked the recovery pipeline.
type TriggerKind string

const (
	TriggerBuildFailure TriggerKind = "build_failure"
	TriggerTestFailure  TriggerKind = "test_failure"
	TriggerRuntimeError TriggerKind = "runtime_error"
	TriggerTimeout      TriggerKind = "timeout"
	TriggerManual       TriggerKind = "manual"
	TriggerWatchdog     TriggerKind = "watchdog"
	TriggerHealthCheck  TriggerKind = "health_check"
)

// RecoveryStrategy binds a trigger kind to an ordered list of remedial
// actions. Actions run strictly in order with Cooldown sleeps between them.
type RecoveryStrategy struct {
	Trigger     TriggerKind   `json:"trigger"`
	Actions     []string      `json:"actions"`
	MaxAttempts int           `json:"max_attempts"`
	Cooldown    time.Duration `json:"cooldown"`
}

// ActionContext carries the state a recovery action may act on.
type ActionContext struct {
	PlanID  string
	TaskID  string
	Trigger TriggerKind
	Reason  string
	WorkDir string
}

// Action is a pluggable remedial step. Implementations are best-effort: a
// successful Execute does not guarantee the underlying problem is fixed.
type Action interface {
	Name() string
	Execute(ctx context.Context, actx ActionContext) error
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc struct {
	ActionName string
	Fn         func(ctx context.Context, actx ActionContext) error
}

func (a ActionFunc) Name() string { return a.ActionName }

func (a ActionFunc) Execute(ctx context.Context, actx ActionContext) error {
	return a.Fn(ctx, actx)
}

// ActionRegistry manages named recovery actions.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewActionRegistry creates an empty ActionRegistry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]Action)}
}

// Register adds an action to the registry.
// Returns an error if an action with the same name is already registered.
func (r *ActionRegistry) Register(a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[a.Name()]; exists {
		return fmt.Errorf("action %q already registered", a.Name())
	}
	r.actions[a.Name()] = a
	return nil
}

// Get returns an action by name.
func (r *ActionRegistry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// List returns the names of all registered actions.
func (r *ActionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	return names
}

// DefaultStrategies returns the built-in trigger-to-actions bindings.
func DefaultStrategies() map[TriggerKind]RecoveryStrategy {
	return map[TriggerKind]RecoveryStrategy{
		TriggerBuildFailure: {
			Trigger:     TriggerBuildFailure,
			Actions:     []string{"analyze_errors", "fix_imports"},
			MaxAttempts: 3,
			Cooldown:    5 * time.Second,
		},
		TriggerTestFailure: {
			Trigger:     TriggerTestFailure,
			Actions:     []string{"analyze_errors"},
			MaxAttempts: 3,
			Cooldown:    5 * time.Second,
		},
		TriggerRuntimeError: {
			Trigger:     TriggerRuntimeError,
			Actions:     []string{"analyze_errors", "clear_workspace_cache"},
			MaxAttempts: 3,
			Cooldown:    10 * time.Second,
		},
		TriggerTimeout: {
			Trigger:     TriggerTimeout,
			Actions:     []string{"clear_workspace_cache"},
			MaxAttempts: 2,
			Cooldown:    10 * time.Second,
		},
		TriggerManual: {
			Trigger:     TriggerManual,
			Actions:     []string{"analyze_errors", "fix_imports", "clear_workspace_cache"},
			MaxAttempts: 5,
			Cooldown:    2 * time.Second,
		},
		TriggerWatchdog: {
			Trigger:     TriggerWatchdog,
			Actions:     []string{"analyze_errors"},
			MaxAttempts: 3,
			Cooldown:    30 * time.Second,
		},
		TriggerHealthCheck: {
			Trigger:     TriggerHealthCheck,
			Actions:     []string{"analyze_errors"},
			MaxAttempts: 3,
			Cooldown:    30 * time.Second,
		},
	}
}

// RegisterDefaultActions installs the built-in best-effort actions. Real
// repair logic can replace any of them without touching pipeline sequencing.
func RegisterDefaultActions(reg *ActionRegistry, logger *slog.Logger) {
	defaults := []Action{
		ActionFunc{
			ActionName: "analyze_errors",
			Fn: func(_ context.Context, actx ActionContext) error {
				logger.Info("recovery: analyzing errors",
					slog.String("plan", actx.PlanID),
					slog.String("task", actx.TaskID),
					slog.String("reason", actx.Reason),
				)
				return nil
			},
		},
		ActionFunc{
			ActionName: "fix_imports",
			Fn: func(_ context.Context, actx ActionContext) error {
				logger.Info("recovery: normalizing imports",
					slog.String("plan", actx.PlanID),
					slog.String("workdir", actx.WorkDir),
				)
				return nil
			},
		},
		ActionFunc{
			ActionName: "clear_workspace_cache",
			Fn: func(_ context.Context, actx ActionContext) error {
				logger.Info("recovery: clearing workspace caches",
					slog.String("workdir", actx.WorkDir),
				)
				return nil
			},
		},
	}
	for _, a := range defaults {
		// Ignore duplicates so callers can pre-register replacements.
		_ = reg.Register(a)
	}
}

// runRecovery executes the pipeline for the given trigger kind. A kind with
// no configured strategy is a logged no-op. When bypassCooldown is false the
// per-kind cooldown window is honored; manual invocations and retry
// dispatches from task failures bypass it.
func (e *Executor) runRecovery(ctx context.Context, kind TriggerKind, reason string, bypassCooldown bool) {
	e.mu.Lock()
	strat, ok := e.strategies[kind]
	if !ok {
		e.mu.Unlock()
		e.logger.Info("no recovery strategy configured", slog.String("trigger", string(kind)))
		return
	}
	if !bypassCooldown {
		if last, seen := e.lastRecovery[kind]; seen && time.Since(last) < strat.Cooldown {
			e.mu.Unlock()
			e.logger.Debug("recovery within cooldown window, skipping",
				slog.String("trigger", string(kind)))
			return
		}
	}
	e.lastRecovery[kind] = time.Now()
	actx := ActionContext{
		PlanID:  e.state.PlanID,
		TaskID:  e.state.TaskID,
		Trigger: kind,
		Reason:  reason,
		WorkDir: e.cfg.WorkDir,
	}
	e.mu.Unlock()

	e.recordActivity(fmt.Sprintf("recovery started (trigger=%s): %s", kind, reason))
	e.events.emit(Event{
		Type:    EventRecoveryStarted,
		PlanID:  actx.PlanID,
		TaskID:  actx.TaskID,
		Message: reason,
		Payload: map[string]any{"trigger": string(kind)},
	})
	e.metricsRecovery(kind)

	for i, name := range strat.Actions {
		action, ok := e.actions.Get(name)
		if !ok {
			e.failRecovery(actx, &RecoveryError{Action: name, Err: fmt.Errorf("action not registered")})
			return
		}
		if err := action.Execute(ctx, actx); err != nil {
			e.failRecovery(actx, &RecoveryError{Action: name, Err: err})
			return
		}
		if i < len(strat.Actions)-1 && strat.Cooldown > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(strat.Cooldown):
			}
		}
	}

	e.mu.Lock()
	e.state.ConsecutiveFailures = 0
	e.mu.Unlock()

	e.recordActivity(fmt.Sprintf("recovery completed (trigger=%s)", kind))
	e.events.emit(Event{
		Type:    EventRecoveryCompleted,
		PlanID:  actx.PlanID,
		TaskID:  actx.TaskID,
		Payload: map[string]any{"trigger": string(kind)},
	})
}

// failRecovery records a failed pipeline run. The error is reported, never
// re-thrown into the iteration loop.
func (e *Executor) failRecovery(actx ActionContext, rerr *RecoveryError) {
	e.logger.Error("recovery action failed",
		slog.String("trigger", string(actx.Trigger)),
		slog.String("action", rerr.Action),
		slog.Any("err", rerr.Err),
	)
	e.recordActivity("recovery failed: " + rerr.Error())
	e.events.emit(Event{
		Type:    EventRecoveryFailed,
		PlanID:  actx.PlanID,
		TaskID:  actx.TaskID,
		Message: rerr.Error(),
		Payload: map[string]any{"trigger": string(actx.Trigger)},
	})
}
