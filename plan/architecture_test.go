package plan

import (
	"context"
	"reflect"
	"testing"
)

// fakeProber answers existence checks from a fixed set of present paths.
type fakeProber struct {
	present map[string]bool
	calls   int
}

func (f *fakeProber) Exists(_ context.Context, path string) (bool, error) {
	f.calls++
	return f.present[path], nil
}

func newArchPlan(t *testing.T, store *Store) string {
	t.Helper()
	p := &Plan{
		Title: "frontend",
		Architecture: ArchitectureSpec{
			Components: []ArchItem{
				{Name: "App", Path: "src/App.tsx"},
				{Name: "Header", Path: "src/Header.tsx"},
				{Name: "Sidebar", Path: "src/Sidebar.tsx"},
				{Name: "Footer", Path: "src/Footer.tsx"},
			},
		},
	}
	id, err := store.Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func TestCompareArchitecture_PartialImplementation(t *testing.T) {
	store := NewStore()
	id := newArchPlan(t, store)
	prober := &fakeProber{present: map[string]bool{
		"src/App.tsx":     true,
		"src/Header.tsx":  true,
		"src/Sidebar.tsx": true,
	}}

	diff, err := store.CompareArchitecture(context.Background(), id, prober)
	if err != nil {
		t.Fatalf("CompareArchitecture: %v", err)
	}
	if diff.CompletionPercentage != 75 {
		t.Errorf("CompletionPercentage = %d, want 75", diff.CompletionPercentage)
	}
	if len(diff.MissingComponents) != 1 || diff.MissingComponents[0] != "Footer" {
		t.Errorf("MissingComponents = %v, want [Footer]", diff.MissingComponents)
	}

	p, _ := store.Get(id)
	if len(p.ImplementedArchitecture.Components) != 3 {
		t.Errorf("ImplementedArchitecture has %d components, want 3",
			len(p.ImplementedArchitecture.Components))
	}
}

func TestCompareArchitecture_Idempotent(t *testing.T) {
	store := NewStore()
	id := newArchPlan(t, store)
	prober := &fakeProber{present: map[string]bool{
		"src/App.tsx":    true,
		"src/Header.tsx": true,
	}}

	first, err := store.CompareArchitecture(context.Background(), id, prober)
	if err != nil {
		t.Fatalf("first CompareArchitecture: %v", err)
	}
	second, err := store.CompareArchitecture(context.Background(), id, prober)
	if err != nil {
		t.Fatalf("second CompareArchitecture: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("diffs differ between runs:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	// Confirmed items must not duplicate across runs.
	p, _ := store.Get(id)
	if len(p.ImplementedArchitecture.Components) != 2 {
		t.Errorf("ImplementedArchitecture has %d components after two runs, want 2",
			len(p.ImplementedArchitecture.Components))
	}
}

func TestCompareArchitecture_EmptySpec(t *testing.T) {
	store := NewStore()
	id, err := store.Create(&Plan{Title: "empty"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	diff, err := store.CompareArchitecture(context.Background(), id, &fakeProber{})
	if err != nil {
		t.Fatalf("CompareArchitecture: %v", err)
	}
	if diff.CompletionPercentage != 100 {
		t.Errorf("CompletionPercentage = %d, want 100 for empty spec", diff.CompletionPercentage)
	}
}

func TestCompareArchitecture_UnverifiedListed(t *testing.T) {
	store := NewStore()
	p := &Plan{
		Title: "svc",
		Architecture: ArchitectureSpec{
			Files: []ArchItem{
				{Name: "handler", Path: "api/handler.go", Verified: true, Tested: true},
				{Name: "store", Path: "api/store.go"},
			},
		},
	}
	id, err := store.Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	prober := &fakeProber{present: map[string]bool{
		"api/handler.go": true,
		"api/store.go":   true,
	}}

	diff, err := store.CompareArchitecture(context.Background(), id, prober)
	if err != nil {
		t.Fatalf("CompareArchitecture: %v", err)
	}
	if len(diff.Unverified) != 1 || diff.Unverified[0] != "store" {
		t.Errorf("Unverified = %v, want [store]", diff.Unverified)
	}
}

func TestAddTasksFromArchitecture(t *testing.T) {
	store := NewStore()
	p := &Plan{
		Title: "app",
		Architecture: ArchitectureSpec{
			Components: []ArchItem{
				{Name: "Nav", Type: "component", Path: "src/Nav.tsx"},
				{Name: "Done", Type: "component", Path: "src/Done.tsx", Implemented: true},
			},
			APIs: []ArchItem{
				{Name: "users", Type: "api", Path: "api/users.go"},
			},
			Files: []ArchItem{
				{Name: "useAuth", Type: "hook", Path: "src/useAuth.ts"},
			},
		},
	}
	id, err := store.Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	created, err := store.AddTasksFromArchitecture(id)
	if err != nil {
		t.Fatalf("AddTasksFromArchitecture: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d tasks, want 3 (implemented items skipped)", len(created))
	}

	byTitle := make(map[string]*Task)
	for _, task := range created {
		byTitle[task.Title] = task
	}

	apiTask, ok := byTitle["Implement api users"]
	if !ok {
		t.Fatalf("api task missing; created: %v", titles(created))
	}
	if apiTask.Priority != PriorityHigh {
		t.Errorf("api task Priority = %q, want %q", apiTask.Priority, PriorityHigh)
	}
	if apiTask.Complexity != 4 {
		t.Errorf("api task Complexity = %d, want 4", apiTask.Complexity)
	}
	if len(apiTask.PlannedFiles) != 1 || apiTask.PlannedFiles[0] != "api/users.go" {
		t.Errorf("api task PlannedFiles = %v, want [api/users.go]", apiTask.PlannedFiles)
	}

	compTask := byTitle["Implement component Nav"]
	if compTask == nil || compTask.Complexity != 3 || compTask.Priority != PriorityMedium {
		t.Errorf("component task = %+v, want complexity 3 priority medium", compTask)
	}
	hookTask := byTitle["Implement hook useAuth"]
	if hookTask == nil || hookTask.Complexity != 2 {
		t.Errorf("hook task = %+v, want complexity 2", hookTask)
	}

	got, _ := store.Get(id)
	if got.Progress.Total != 3 {
		t.Errorf("Progress.Total = %d, want 3", got.Progress.Total)
	}
}

func titles(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.Title
	}
	return out
}
