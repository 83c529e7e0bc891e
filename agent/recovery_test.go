package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoCodeAlone/foreman/plan"
)

func newRecoveryExecutor(t *testing.T) (*Executor, *eventRecorder) {
	t.Helper()
	e := NewExecutor(testDeps(plan.NewStore(), nil, nil, nil), testConfig(), testLogger())
	rec := &eventRecorder{}
	e.Subscribe(rec.record)
	return e, rec
}

func TestRunRecovery_NoStrategyIsNoOp(t *testing.T) {
	e, rec := newRecoveryExecutor(t)
	delete(e.strategies, TriggerManual)

	e.TriggerRecovery(context.Background(), "nothing configured")

	if got := rec.count(EventRecoveryStarted); got != 0 {
		t.Errorf("recovery_started events = %d, want 0", got)
	}
	if got := rec.count(EventRecoveryFailed); got != 0 {
		t.Errorf("recovery_failed events = %d, want 0", got)
	}
}

func TestRunRecovery_CooldownHonored(t *testing.T) {
	e, rec := newRecoveryExecutor(t)
	e.SetStrategy(RecoveryStrategy{
		Trigger:  TriggerBuildFailure,
		Actions:  []string{"analyze_errors"},
		Cooldown: time.Hour,
	})

	e.runRecovery(context.Background(), TriggerBuildFailure, "first", false)
	e.runRecovery(context.Background(), TriggerBuildFailure, "second", false)

	if got := rec.count(EventRecoveryStarted); got != 1 {
		t.Errorf("recovery_started events = %d, want 1 (second run inside cooldown)", got)
	}
}

func TestTriggerRecovery_BypassesCooldown(t *testing.T) {
	e, rec := newRecoveryExecutor(t)
	e.SetStrategy(RecoveryStrategy{
		Trigger:  TriggerManual,
		Actions:  []string{"analyze_errors"},
		Cooldown: time.Hour,
	})

	e.TriggerRecovery(context.Background(), "first")
	e.TriggerRecovery(context.Background(), "second")

	if got := rec.count(EventRecoveryStarted); got != 2 {
		t.Errorf("recovery_started events = %d, want 2 (manual bypasses cooldown)", got)
	}
	if got := rec.count(EventRecoveryCompleted); got != 2 {
		t.Errorf("recovery_completed events = %d, want 2", got)
	}
}

func TestRunRecovery_ActionsRunInOrder(t *testing.T) {
	e, rec := newRecoveryExecutor(t)

	var order []string
	for _, name := range []string{"step_one", "step_two"} {
		name := name
		if err := e.Actions().Register(ActionFunc{
			ActionName: name,
			Fn: func(_ context.Context, _ ActionContext) error {
				order = append(order, name)
				return nil
			},
		}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	e.SetStrategy(RecoveryStrategy{
		Trigger: TriggerManual,
		Actions: []string{"step_one", "step_two"},
	})

	e.TriggerRecovery(context.Background(), "ordered")

	if len(order) != 2 || order[0] != "step_one" || order[1] != "step_two" {
		t.Errorf("action order = %v, want [step_one step_two]", order)
	}
	if got := rec.count(EventRecoveryCompleted); got != 1 {
		t.Errorf("recovery_completed events = %d, want 1", got)
	}
}

func TestRunRecovery_FailingActionStopsPipeline(t *testing.T) {
	e, rec := newRecoveryExecutor(t)

	ran := false
	if err := e.Actions().Register(ActionFunc{
		ActionName: "explode",
		Fn: func(_ context.Context, _ ActionContext) error {
			return errors.New("boom")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := e.Actions().Register(ActionFunc{
		ActionName: "after",
		Fn: func(_ context.Context, _ ActionContext) error {
			ran = true
			return nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e.SetStrategy(RecoveryStrategy{
		Trigger: TriggerManual,
		Actions: []string{"explode", "after"},
	})

	e.TriggerRecovery(context.Background(), "doomed")

	if ran {
		t.Error("action after a failing one still ran")
	}
	if got := rec.count(EventRecoveryFailed); got != 1 {
		t.Errorf("recovery_failed events = %d, want 1", got)
	}
	if got := rec.count(EventRecoveryCompleted); got != 0 {
		t.Errorf("recovery_completed events = %d, want 0", got)
	}
}

func TestRunRecovery_UnregisteredActionFails(t *testing.T) {
	e, rec := newRecoveryExecutor(t)
	e.SetStrategy(RecoveryStrategy{
		Trigger: TriggerManual,
		Actions: []string{"no_such_action"},
	})

	e.TriggerRecovery(context.Background(), "dangling")

	if got := rec.count(EventRecoveryFailed); got != 1 {
		t.Errorf("recovery_failed events = %d, want 1", got)
	}
}

func TestActionRegistry_RejectsDuplicates(t *testing.T) {
	reg := NewActionRegistry()
	a := ActionFunc{ActionName: "dup", Fn: func(_ context.Context, _ ActionContext) error { return nil }}
	if err := reg.Register(a); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := reg.Register(a); err == nil {
		t.Fatal("duplicate Register succeeded, want error")
	}
	if _, ok := reg.Get("dup"); !ok {
		t.Error("Get(dup) = false, want registered action")
	}
}

func TestRunRecovery_ResetsConsecutiveFailures(t *testing.T) {
	e, _ := newRecoveryExecutor(t)
	zeroCooldown(e, TriggerManual)
	e.mu.Lock()
	e.state.ConsecutiveFailures = 4
	e.mu.Unlock()

	e.TriggerRecovery(context.Background(), "reset please")

	if st := e.State(); st.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 after successful recovery", st.ConsecutiveFailures)
	}
}
