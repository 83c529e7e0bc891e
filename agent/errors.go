package agent

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports that task output is missing expected files.
type ValidationError struct {
	TaskID  string
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %s output validation failed: missing %s",
		e.TaskID, strings.Join(e.Missing, ", "))
}

// GateKind identifies which gate failed.
type GateKind string

const (
	GateBuild GateKind = "build"
	GateTest  GateKind = "test"
)

// GateError reports a failed build or test gate. Retryable.
type GateError struct {
	Kind   GateKind
	Detail string
}

func (e *GateError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s gate failed", e.Kind)
	}
	return fmt.Sprintf("%s gate failed: %s", e.Kind, e.Detail)
}

// TimeoutError reports that a task exceeded its wall-clock budget. Retryable.
type TimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.TaskID, e.Timeout)
}

// RecoveryError reports that a recovery action failed. It is recorded but
// never re-thrown into the iteration loop.
type RecoveryError struct {
	Action string
	Err    error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recovery action %s: %v", e.Action, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

// Terminal plan-abort reasons.
const (
	ReasonMaxIterations       = "max iterations exceeded"
	ReasonConsecutiveFailures = "consecutive failure limit reached"
)

// PlanTerminalError reports an unrecoverable plan outcome.
type PlanTerminalError struct {
	PlanID string
	Reason string
}

func (e *PlanTerminalError) Error() string {
	return fmt.Sprintf("plan %s aborted: %s", e.PlanID, e.Reason)
}
