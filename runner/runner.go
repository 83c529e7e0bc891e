// Package runner provides the build, test, and file-existence collaborators
// the executor validates work against.
package runner

import (
	"context"
	"time"
)

// BuildResult is the outcome of a single build run.
type BuildResult struct {
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration_ms"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// TestResult is the outcome of a single test run.
type TestResult struct {
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration_ms"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Errors   []string      `json:"errors,omitempty"`
}

// BuildRunner runs the project's build and reports the outcome. A failed
// build is a successful call with Success=false; the error return is for
// infrastructure problems only.
type BuildRunner interface {
	RunBuild(ctx context.Context, dir string) (*BuildResult, error)
}

// TestRunner runs the project's test suite and reports the outcome.
type TestRunner interface {
	RunTests(ctx context.Context, dir string) (*TestResult, error)
}

// Prober checks whether a path exists in the workspace. It validates task
// output and drives the architecture diff.
type Prober interface {
	Exists(ctx context.Context, path string) (bool, error)
}
