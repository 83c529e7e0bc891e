package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocal_RunBuild(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "true", "true")

	res, err := l.RunBuild(context.Background(), dir)
	if err != nil {
		t.Fatalf("RunBuild: %v", err)
	}
	if !res.Success {
		t.Error("expected successful build")
	}
}

func TestLocal_RunBuild_Failure(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "echo 'undefined: foo' && false", "true")

	res, err := l.RunBuild(context.Background(), dir)
	if err != nil {
		t.Fatalf("RunBuild: %v", err)
	}
	if res.Success {
		t.Fatal("expected failed build")
	}
	if len(res.Errors) == 0 {
		t.Error("expected captured error output")
	}
	if res.Errors[0] != "undefined: foo" {
		t.Errorf("Errors[0] = %q, want command output", res.Errors[0])
	}
}

func TestLocal_RunTests_ParsesCounts(t *testing.T) {
	dir := t.TempDir()
	script := `printf -- '--- PASS: TestA (0.00s)\n--- PASS: TestB (0.00s)\n--- SKIP: TestC (0.00s)\nPASS\n'`
	l := NewLocal(dir, "true", script)

	res, err := l.RunTests(context.Background(), dir)
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if !res.Success {
		t.Fatal("expected successful test run")
	}
	if res.Passed != 2 || res.Failed != 0 || res.Skipped != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/0/1", res.Passed, res.Failed, res.Skipped)
	}
}

func TestLocal_RunTests_Failure(t *testing.T) {
	dir := t.TempDir()
	script := `printf -- '--- FAIL: TestA (0.00s)\nFAIL\n'; exit 1`
	l := NewLocal(dir, "true", script)

	res, err := l.RunTests(context.Background(), dir)
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if res.Success {
		t.Fatal("expected failed test run")
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if len(res.Errors) == 0 {
		t.Error("expected failing lines captured")
	}
}

func TestLocal_RunTests_NonGoHarnessFailure(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "true", "exit 1")

	res, err := l.RunTests(context.Background(), dir)
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	// No parseable counts, so the coarse signal reports one failure.
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
}

func TestLocal_Exists(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "app.go"), []byte("package app\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := NewLocal(dir, "true", "true")

	ok, err := l.Exists(context.Background(), "src/app.go")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("expected relative path to resolve under root")
	}

	ok, err = l.Exists(context.Background(), "src/missing.go")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("expected missing path to report false")
	}
}

func TestCountTestResults(t *testing.T) {
	output := "=== RUN   TestA\n--- PASS: TestA (0.01s)\n--- FAIL: TestB (0.02s)\n--- SKIP: TestC (0.00s)\nok  \texample.com/pkg\t0.05s\n"
	passed, failed, skipped := countTestResults(output)
	if passed != 1 || failed != 1 || skipped != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", passed, failed, skipped)
	}
}

func TestSplitOutputLines_Caps(t *testing.T) {
	var sb []byte
	for i := 0; i < 60; i++ {
		sb = append(sb, "line\n"...)
	}
	lines := splitOutputLines(string(sb))
	if len(lines) != 50 {
		t.Errorf("got %d lines, want cap at 50", len(lines))
	}
}

func TestGrepLines(t *testing.T) {
	output := "compiling\nWARNING: deprecated flag\nall good\n"
	lines := grepLines(output, "warning")
	if len(lines) != 1 || lines[0] != "WARNING: deprecated flag" {
		t.Errorf("grepLines = %v", lines)
	}
}
