package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Local runs builds and tests by shelling out on the host machine. The
// commands come from config (e.g. "go build ./..." or "npm run build").
type Local struct {
	BuildCommand string
	TestCommand  string
	Root         string // workspace root; probe paths are resolved against it
}

// NewLocal creates a Local runner rooted at root.
func NewLocal(root, buildCmd, testCmd string) *Local {
	return &Local{Root: root, BuildCommand: buildCmd, TestCommand: testCmd}
}

// RunBuild executes the configured build command in dir.
func (l *Local) RunBuild(ctx context.Context, dir string) (*BuildResult, error) {
	start := time.Now()
	output, err := l.runShell(ctx, dir, l.BuildCommand)
	res := &BuildResult{
		Success:  err == nil,
		Duration: time.Since(start),
	}
	if err != nil {
		res.Errors = splitOutputLines(output)
		if len(res.Errors) == 0 {
			res.Errors = []string{err.Error()}
		}
	} else {
		res.Warnings = grepLines(output, "warning")
	}
	return res, nil
}

// RunTests executes the configured test command in dir and parses pass/fail
// counts from go-test-style output when present.
func (l *Local) RunTests(ctx context.Context, dir string) (*TestResult, error) {
	start := time.Now()
	output, err := l.runShell(ctx, dir, l.TestCommand)
	res := &TestResult{
		Success:  err == nil,
		Duration: time.Since(start),
	}
	res.Passed, res.Failed, res.Skipped = countTestResults(output)
	if err != nil {
		if res.Failed == 0 {
			res.Failed = 1
		}
		res.Errors = grepLines(output, "fail")
		if len(res.Errors) == 0 {
			res.Errors = []string{err.Error()}
		}
	}
	return res, nil
}

// Exists reports whether path exists under the workspace root.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	full := path
	if l.Root != "" && !filepath.IsAbs(path) {
		full = filepath.Join(l.Root, path)
	}
	_, err := os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) runShell(ctx context.Context, dir, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var testLineRe = regexp.MustCompile(`^(ok|---\s*(PASS|FAIL|SKIP)|PASS|FAIL)`)

// countTestResults extracts pass/fail/skip counts from go test verbose output.
// Other harnesses fall back to a coarse pass/fail signal.
func countTestResults(output string) (passed, failed, skipped int) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !testLineRe.MatchString(line) {
			continue
		}
		switch {
		case strings.HasPrefix(line, "--- PASS"):
			passed++
		case strings.HasPrefix(line, "--- FAIL"):
			failed++
		case strings.HasPrefix(line, "--- SKIP"):
			skipped++
		}
	}
	return passed, failed, skipped
}

func splitOutputLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	const maxLines = 50
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

func grepLines(output, needle string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return lines
}
