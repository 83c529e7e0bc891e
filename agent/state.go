// Package agent implements the executor: the control-loop state machine that
// drives a development plan through execute, validate, and recover phases.
package agent

import "time"

// Status represents the executor's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
)

// Config controls executor behavior. Zero values are replaced by defaults
// in NewExecutor.
type Config struct {
	TaskTimeout      time.Duration `json:"task_timeout" yaml:"task_timeout"`
	IterationDelay   time.Duration `json:"iteration_delay" yaml:"iteration_delay"`
	WatchdogInterval time.Duration `json:"watchdog_interval" yaml:"watchdog_interval"`
	HealthInterval   time.Duration `json:"health_interval" yaml:"health_interval"`
	TestGate         bool          `json:"test_gate" yaml:"test_gate"`
	BuildGate        bool          `json:"build_gate" yaml:"build_gate"`
	AutoRecovery     bool          `json:"auto_recovery" yaml:"auto_recovery"`
	WorkDir          string        `json:"work_dir" yaml:"work_dir"`
}

// DefaultConfig returns the baseline executor configuration.
func DefaultConfig() Config {
	return Config{
		TaskTimeout:      5 * time.Minute,
		IterationDelay:   2 * time.Second,
		WatchdogInterval: 30 * time.Second,
		HealthInterval:   15 * time.Second,
		TestGate:         true,
		BuildGate:        true,
		AutoRecovery:     true,
		WorkDir:          ".",
	}
}

// ActivityEntry is one line of the bounded activity log.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

const maxActivityEntries = 1000

// State is the executor's ephemeral state. Snapshots returned by
// Executor.State are defensive copies.
type State struct {
	Status              Status          `json:"status"`
	PlanID              string          `json:"plan_id,omitempty"`
	TaskID              string          `json:"task_id,omitempty"`
	IsHealthy           bool            `json:"is_healthy"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastActivity        time.Time       `json:"last_activity"`
	Activity            []ActivityEntry `json:"activity,omitempty"`
	Config              Config          `json:"config"`
}

// clone returns a deep copy safe to hand to callers.
func (s State) clone() State {
	out := s
	out.Activity = append([]ActivityEntry(nil), s.Activity...)
	return out
}
