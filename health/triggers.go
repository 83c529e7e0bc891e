package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ActionType is what a trigger does when it fires.
type ActionType string

const (
	ActionRestart  ActionType = "restart"
	ActionRecover  ActionType = "recover"
	ActionPause    ActionType = "pause"
	ActionNotify   ActionType = "notify"
	ActionEscalate ActionType = "escalate"
)

// Condition types.
const (
	CondStatus            = "status"
	CondErrorRate         = "error_rate"
	CondInactivity        = "inactivity"
	CondBuildFailures     = "consecutive_build_failures"
	CondExcessiveFailures = "excessive_failures"
)

// Condition describes when a trigger fires. Threshold and Duration are
// interpreted per condition type.
type Condition struct {
	Type      string        `json:"type"`
	Status    Aggregate     `json:"status,omitempty"`
	Threshold int           `json:"threshold,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Trigger is one standing rule evaluated against monitor state.
type Trigger struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Condition     Condition     `json:"condition"`
	Action        ActionType    `json:"action"`
	Enabled       bool          `json:"enabled"`
	Cooldown      time.Duration `json:"cooldown"`
	LastTriggered time.Time     `json:"last_triggered,omitempty"`
	TriggerCount  int           `json:"trigger_count"`
}

// defaultTriggers is the set installed on every new monitor.
func defaultTriggers() []*Trigger {
	return []*Trigger{
		{
			ID:        uuid.NewString(),
			Name:      "critical-status",
			Condition: Condition{Type: CondStatus, Status: Critical},
			Action:    ActionRestart,
			Enabled:   true,
			Cooldown:  60 * time.Second,
		},
		{
			ID:        uuid.NewString(),
			Name:      "high-error-rate",
			Condition: Condition{Type: CondErrorRate, Threshold: 20},
			Action:    ActionRecover,
			Enabled:   true,
			Cooldown:  30 * time.Second,
		},
		{
			ID:        uuid.NewString(),
			Name:      "inactivity-exceeded",
			Condition: Condition{Type: CondInactivity, Duration: 2 * time.Minute},
			Action:    ActionRestart,
			Enabled:   true,
			Cooldown:  120 * time.Second,
		},
		{
			ID:        uuid.NewString(),
			Name:      "consecutive-build-failures",
			Condition: Condition{Type: CondBuildFailures, Threshold: 3},
			Action:    ActionRecover,
			Enabled:   true,
			Cooldown:  45 * time.Second,
		},
		{
			ID:        uuid.NewString(),
			Name:      "excessive-failures",
			Condition: Condition{Type: CondExcessiveFailures, Threshold: 10},
			Action:    ActionPause,
			Enabled:   true,
			Cooldown:  300 * time.Second,
		},
	}
}

// Triggers returns a snapshot of the registered triggers.
func (m *Monitor) Triggers() []Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trigger, 0, len(m.triggers))
	for _, t := range m.triggers {
		out = append(out, *t)
	}
	return out
}

// AddTrigger registers a trigger and assigns it an ID.
func (m *Monitor) AddTrigger(t Trigger) (Trigger, error) {
	if t.Name == "" {
		return Trigger{}, fmt.Errorf("trigger name is required")
	}
	if t.Condition.Type == "" {
		return Trigger{}, fmt.Errorf("trigger condition type is required")
	}
	switch t.Action {
	case ActionRestart, ActionRecover, ActionPause, ActionNotify, ActionEscalate:
	default:
		return Trigger{}, fmt.Errorf("unknown trigger action %q", t.Action)
	}
	t.ID = uuid.NewString()
	t.TriggerCount = 0
	t.LastTriggered = time.Time{}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	m.triggers = append(m.triggers, &cp)
	return t, nil
}

// RemoveTrigger deletes a trigger by ID.
func (m *Monitor) RemoveTrigger(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.triggers {
		if t.ID == id {
			m.triggers = append(m.triggers[:i], m.triggers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("trigger %s not found", id)
}

// EnableTrigger turns a trigger back on.
func (m *Monitor) EnableTrigger(id string) error {
	return m.setEnabled(id, true)
}

// DisableTrigger turns a trigger off without removing it.
func (m *Monitor) DisableTrigger(id string) error {
	return m.setEnabled(id, false)
}

func (m *Monitor) setEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.triggers {
		if t.ID == id {
			t.Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("trigger %s not found", id)
}

func (m *Monitor) triggerLoop(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.evaluateTriggers(time.Now().UTC())
		}
	}
}

// evaluateTriggers fires every enabled trigger whose condition holds and
// whose cooldown has elapsed. Actions run outside the monitor lock.
func (m *Monitor) evaluateTriggers(now time.Time) {
	st := m.agent.State()

	m.mu.Lock()
	overall := m.status.Overall
	errCount := m.recentErrors(now)
	consecFails := m.consecFails

	var fired []*Trigger
	for _, t := range m.triggers {
		if !t.Enabled {
			continue
		}
		if !t.LastTriggered.IsZero() && now.Sub(t.LastTriggered) < t.Cooldown {
			continue
		}
		hit := false
		switch t.Condition.Type {
		case CondStatus:
			hit = overall == t.Condition.Status
		case CondErrorRate:
			hit = errCount > t.Condition.Threshold
		case CondInactivity:
			hit = !st.LastActivity.IsZero() && now.Sub(st.LastActivity) > t.Condition.Duration
		case CondBuildFailures:
			hit = m.consecutiveBuildFailures(st.PlanID) >= t.Condition.Threshold
		case CondExcessiveFailures:
			hit = m.totalTaskErrors(st.PlanID) >= t.Condition.Threshold ||
				consecFails >= t.Condition.Threshold
		}
		if hit {
			t.LastTriggered = now
			t.TriggerCount++
			fired = append(fired, t)
		}
	}
	snapshot := make([]Trigger, len(fired))
	for i, t := range fired {
		snapshot[i] = *t
	}
	m.mu.Unlock()

	for _, t := range snapshot {
		m.runAction(t, st.PlanID != "")
	}
}

// runAction executes one fired trigger's action against the executor.
func (m *Monitor) runAction(t Trigger, planAttached bool) {
	m.logger.Warn("health trigger fired",
		slog.String("trigger", t.Name),
		slog.String("action", string(t.Action)))

	switch t.Action {
	case ActionRestart:
		if !planAttached {
			return
		}
		if err := m.agent.Pause(); err != nil {
			m.logger.Error("trigger pause failed", slog.String("trigger", t.Name), slog.String("error", err.Error()))
			return
		}
		time.AfterFunc(restartDelay, func() {
			if err := m.agent.Resume(); err != nil {
				m.logger.Error("trigger resume failed", slog.String("trigger", t.Name), slog.String("error", err.Error()))
			}
		})
	case ActionRecover:
		m.agent.TriggerRecovery(context.Background(), "health trigger: "+t.Name)
	case ActionPause:
		if err := m.agent.Pause(); err != nil {
			m.logger.Error("trigger pause failed", slog.String("trigger", t.Name), slog.String("error", err.Error()))
		}
	case ActionNotify:
		m.logger.Info("health notification", slog.String("trigger", t.Name))
	case ActionEscalate:
		m.logger.Error("health escalation", slog.String("trigger", t.Name))
	}
}
