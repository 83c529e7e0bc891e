// Package plan defines the development plan model: plans, tasks, architecture
// specs, iterations, and the in-memory store that owns them.
package plan

import "time"

// Status represents the lifecycle state of a plan.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskTesting    TaskStatus = "testing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	// TaskBlocked is derived from unsatisfied dependencies. It is never the
	// authoritative stored status of a task.
	TaskBlocked TaskStatus = "blocked"
)

// Priority determines reporting order. Scheduling itself is declaration-order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ErrorKind classifies a recorded task error.
type ErrorKind string

const (
	ErrBuild      ErrorKind = "build"
	ErrTest       ErrorKind = "test"
	ErrRuntime    ErrorKind = "runtime"
	ErrValidation ErrorKind = "validation"
	ErrTimeout    ErrorKind = "timeout"
)

// Plan is a unit of work tracking progress toward a target architecture.
type Plan struct {
	ID                      string           `json:"id"`
	ProjectID               string           `json:"project_id,omitempty"`
	Title                   string           `json:"title"`
	Status                  Status           `json:"status"`
	Tasks                   []*Task          `json:"tasks"`
	Architecture            ArchitectureSpec `json:"architecture"`
	ImplementedArchitecture ArchitectureSpec `json:"implemented_architecture"`
	Progress                Progress         `json:"progress"`
	Iterations              []*Iteration     `json:"iterations,omitempty"`
	CurrentIteration        int              `json:"current_iteration"`
	MaxIterations           int              `json:"max_iterations"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

// Progress counts tasks by outcome. It is always recomputed from Tasks,
// never incremented in place.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Blocked   int `json:"blocked"`
}

// Task is an atomic unit of planned work with file-level targets.
type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Type         string       `json:"type,omitempty"` // component, api, page, hook, utility, file
	Status       TaskStatus   `json:"status"`
	Priority     Priority     `json:"priority"`
	Complexity   int          `json:"complexity,omitempty"` // 1..5
	PlannedFiles []string     `json:"planned_files,omitempty"`
	Attempts     int          `json:"attempts"`
	MaxAttempts  int          `json:"max_attempts"`
	Errors       []*TaskError `json:"errors,omitempty"`
	DependsOn    []string     `json:"depends_on,omitempty"`
	BlockedBy    []string     `json:"blocked_by,omitempty"` // derived, recomputed
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// TaskError records a single failure observed while executing a task.
type TaskError struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Resolved  bool      `json:"resolved"`
}

// ArchitectureSpec declares the intended shape of the target system.
type ArchitectureSpec struct {
	Components []ArchItem `json:"components,omitempty"`
	APIs       []ArchItem `json:"apis,omitempty"`
	Files      []ArchItem `json:"files,omitempty"`
}

// ArchItem is one planned component, API endpoint, or file.
type ArchItem struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"` // component, api, page, hook, utility, service, model, file
	Path        string `json:"path"`
	Implemented bool   `json:"implemented"`
	Verified    bool   `json:"verified"`
	Tested      bool   `json:"tested"`
}

// Total returns the number of items across all three categories.
func (a ArchitectureSpec) Total() int {
	return len(a.Components) + len(a.APIs) + len(a.Files)
}

// IterationStatus represents the outcome of a single loop pass.
type IterationStatus string

const (
	IterationRunning   IterationStatus = "running"
	IterationCompleted IterationStatus = "completed"
	IterationFailed    IterationStatus = "failed"
)

// Iteration is one pass of the execution loop.
type Iteration struct {
	Number          int             `json:"number"`
	Status          IterationStatus `json:"status"`
	AttemptedTasks  []string        `json:"attempted_tasks,omitempty"`
	CompletedTasks  []string        `json:"completed_tasks,omitempty"`
	FailedTasks     []string        `json:"failed_tasks,omitempty"`
	BuildResult     *GateResult     `json:"build_result,omitempty"`
	TestResult      *GateResult     `json:"test_result,omitempty"`
	RecoveryActions []string        `json:"recovery_actions,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// GateResult is the recorded outcome of a build or test gate.
type GateResult struct {
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration_ms"`
	Passed   int           `json:"passed,omitempty"`
	Failed   int           `json:"failed,omitempty"`
	Skipped  int           `json:"skipped,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Clone returns a deep copy of the plan. The store hands out and retains
// clones so readers never observe in-place mutation by the execution loop.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Tasks = make([]*Task, len(p.Tasks))
	for i, t := range p.Tasks {
		c.Tasks[i] = t.Clone()
	}
	c.Architecture = p.Architecture.clone()
	c.ImplementedArchitecture = p.ImplementedArchitecture.clone()
	if p.Iterations != nil {
		c.Iterations = make([]*Iteration, len(p.Iterations))
		for i, it := range p.Iterations {
			c.Iterations[i] = it.clone()
		}
	}
	return &c
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.PlannedFiles = append([]string(nil), t.PlannedFiles...)
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.BlockedBy = append([]string(nil), t.BlockedBy...)
	if t.Errors != nil {
		c.Errors = make([]*TaskError, len(t.Errors))
		for i, e := range t.Errors {
			ec := *e
			c.Errors[i] = &ec
		}
	}
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return &c
}

func (a ArchitectureSpec) clone() ArchitectureSpec {
	return ArchitectureSpec{
		Components: append([]ArchItem(nil), a.Components...),
		APIs:       append([]ArchItem(nil), a.APIs...),
		Files:      append([]ArchItem(nil), a.Files...),
	}
}

func (it *Iteration) clone() *Iteration {
	c := *it
	c.AttemptedTasks = append([]string(nil), it.AttemptedTasks...)
	c.CompletedTasks = append([]string(nil), it.CompletedTasks...)
	c.FailedTasks = append([]string(nil), it.FailedTasks...)
	c.RecoveryActions = append([]string(nil), it.RecoveryActions...)
	c.BuildResult = it.BuildResult.clone()
	c.TestResult = it.TestResult.clone()
	c.CompletedAt = cloneTime(it.CompletedAt)
	return &c
}

func (g *GateResult) clone() *GateResult {
	if g == nil {
		return nil
	}
	c := *g
	c.Errors = append([]string(nil), g.Errors...)
	c.Warnings = append([]string(nil), g.Warnings...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Task returns the task with the given ID, or nil.
func (p *Plan) Task(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// BlockedBy returns the IDs of unmet dependencies for t: every DependsOn
// entry whose task is not completed. Unknown IDs count as unmet.
func (p *Plan) BlockedBy(t *Task) []string {
	var blocked []string
	for _, dep := range t.DependsOn {
		d := p.Task(dep)
		if d == nil || d.Status != TaskCompleted {
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

// RecomputeProgress rebuilds the progress counters from task state. BlockedBy
// is recomputed for every task here, not only for scheduling candidates, so
// the blocked count never goes stale.
func (p *Plan) RecomputeProgress() {
	prog := Progress{Total: len(p.Tasks)}
	for _, t := range p.Tasks {
		t.BlockedBy = p.BlockedBy(t)
		switch t.Status {
		case TaskCompleted:
			prog.Completed++
		case TaskFailed:
			prog.Failed++
		}
		if len(t.BlockedBy) > 0 && t.Status != TaskCompleted && t.Status != TaskFailed {
			prog.Blocked++
		}
	}
	p.Progress = prog
}

// RecentErrors returns up to limit task errors across all tasks, newest first.
func (p *Plan) RecentErrors(limit int) []*TaskError {
	var all []*TaskError
	for _, t := range p.Tasks {
		all = append(all, t.Errors...)
	}
	// Insertion sort by timestamp descending; error counts are small.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Timestamp.After(all[j-1].Timestamp); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}
