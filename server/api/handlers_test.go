package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GoCodeAlone/foreman/agent"
	"github.com/GoCodeAlone/foreman/health"
	"github.com/GoCodeAlone/foreman/plan"
	"github.com/GoCodeAlone/foreman/server/api"
)

// --- Test doubles ---

type fakeAgent struct {
	state      agent.State
	startErr   error
	started    []string
	pauses     int
	resumes    int
	stops      int
	recoveries []string
	events     []agent.Event
}

func (f *fakeAgent) State() agent.State { return f.state }

func (f *fakeAgent) StartPlan(_ context.Context, planID string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, planID)
	return nil
}

func (f *fakeAgent) Pause() error  { f.pauses++; return nil }
func (f *fakeAgent) Resume() error { f.resumes++; return nil }
func (f *fakeAgent) Stop()         { f.stops++ }

func (f *fakeAgent) TriggerRecovery(_ context.Context, reason string) {
	f.recoveries = append(f.recoveries, reason)
}

func (f *fakeAgent) Subscribe(_ agent.Listener) (unsubscribe func()) { return func() {} }

func (f *fakeAgent) Events(limit int) []agent.Event {
	if limit <= 0 || limit >= len(f.events) {
		return f.events
	}
	return f.events[len(f.events)-limit:]
}

type fakeHealth struct {
	status   health.Status
	triggers []health.Trigger
	nextID   int
}

func (f *fakeHealth) Status() health.Status      { return f.status }
func (f *fakeHealth) Triggers() []health.Trigger { return f.triggers }

func (f *fakeHealth) AddTrigger(t health.Trigger) (health.Trigger, error) {
	if t.Name == "" {
		return health.Trigger{}, fmt.Errorf("trigger name is required")
	}
	f.nextID++
	t.ID = fmt.Sprintf("trig-%d", f.nextID)
	f.triggers = append(f.triggers, t)
	return t, nil
}

func (f *fakeHealth) RemoveTrigger(id string) error {
	for i, t := range f.triggers {
		if t.ID == id {
			f.triggers = append(f.triggers[:i], f.triggers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("trigger %s not found", id)
}

func (f *fakeHealth) setEnabled(id string, enabled bool) error {
	for i, t := range f.triggers {
		if t.ID == id {
			f.triggers[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("trigger %s not found", id)
}

func (f *fakeHealth) EnableTrigger(id string) error  { return f.setEnabled(id, true) }
func (f *fakeHealth) DisableTrigger(id string) error { return f.setEnabled(id, false) }

type allProber struct{}

func (allProber) Exists(_ context.Context, _ string) (bool, error) { return true, nil }

// --- Test helpers ---

func newHandlers(t *testing.T) (*api.Handlers, *http.ServeMux, *fakeAgent) {
	t.Helper()
	fa := &fakeAgent{state: agent.State{Status: agent.StatusIdle}}
	mux := http.NewServeMux()
	h := &api.Handlers{
		Store:   plan.NewStore(),
		Agent:   fa,
		Health:  &fakeHealth{status: health.Status{Overall: health.Healthy}},
		Prober:  allProber{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version: "test",
	}
	h.RegisterRoutes(mux)
	return h, mux, fa
}

func createPlan(t *testing.T, mux *http.ServeMux, body string) plan.Plan {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/plans", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create plan: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var p plan.Plan
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	return p
}

// --- Tests ---

func TestListPlans_Empty(t *testing.T) {
	_, mux, _ := newHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var plans []*plan.Plan
	if err := json.NewDecoder(rr.Body).Decode(&plans); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if plans == nil {
		t.Error("expected empty array, not null")
	}
}

func TestCreateGetDeletePlan(t *testing.T) {
	_, mux, _ := newHandlers(t)

	created := createPlan(t, mux, `{"title":"Build the dashboard","tasks":[{"title":"scaffold"}]}`)
	if created.ID == "" {
		t.Fatal("expected generated plan ID")
	}
	if created.Status != plan.StatusDraft {
		t.Errorf("expected status %q, got %q", plan.StatusDraft, created.Status)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/plans/"+created.ID, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got plan.Plan
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "Build the dashboard" {
		t.Errorf("expected title round-trip, got %q", got.Title)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/api/plans/"+created.ID, nil)
	delRR := httptest.NewRecorder()
	mux.ServeHTTP(delRR, delReq)
	if delRR.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", delRR.Code)
	}

	getRR := httptest.NewRecorder()
	mux.ServeHTTP(getRR, httptest.NewRequest(http.MethodGet, "/api/plans/"+created.ID, nil))
	if getRR.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", getRR.Code)
	}
}

func TestGetPlan_NotFound(t *testing.T) {
	_, mux, _ := newHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/plans/nonexistent", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestGenerateTasks(t *testing.T) {
	_, mux, _ := newHandlers(t)
	created := createPlan(t, mux, `{
		"title":"arch plan",
		"architecture":{"components":[
			{"name":"Header","path":"src/Header.tsx"},
			{"name":"Footer","path":"src/Footer.tsx"}
		]}
	}`)

	req := httptest.NewRequest(http.MethodPost, "/api/plans/"+created.ID+"/tasks", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var tasks []*plan.Task
	if err := json.NewDecoder(rr.Body).Decode(&tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("expected 2 generated tasks, got %d", len(tasks))
	}
}

func TestPlanDiff(t *testing.T) {
	_, mux, _ := newHandlers(t)
	created := createPlan(t, mux, `{
		"title":"arch plan",
		"architecture":{"files":[{"name":"main","path":"cmd/main.go"}]}
	}`)

	req := httptest.NewRequest(http.MethodGet, "/api/plans/"+created.ID+"/diff", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var diff plan.Diff
	if err := json.NewDecoder(rr.Body).Decode(&diff); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff.CompletionPercentage != 100 {
		t.Errorf("expected 100%% completion with all files present, got %d", diff.CompletionPercentage)
	}
}

func TestPlanReport(t *testing.T) {
	_, mux, _ := newHandlers(t)
	created := createPlan(t, mux, `{"title":"report plan","tasks":[{"title":"t1"}]}`)

	req := httptest.NewRequest(http.MethodGet, "/api/plans/"+created.ID+"/report", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rep plan.Report
	if err := json.NewDecoder(rr.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.PlanID != created.ID {
		t.Errorf("expected report for plan %s, got %s", created.ID, rep.PlanID)
	}
	if rep.Diff == nil {
		t.Error("expected embedded architecture diff")
	}
}

func TestStartAgent(t *testing.T) {
	_, mux, fa := newHandlers(t)

	// plan_id is required
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/agent/start", bytes.NewBufferString(`{}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without plan_id, got %d", rr.Code)
	}

	rr2 := httptest.NewRecorder()
	mux.ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/api/agent/start", bytes.NewBufferString(`{"plan_id":"p1"}`)))
	if rr2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr2.Code, rr2.Body.String())
	}
	if len(fa.started) != 1 || fa.started[0] != "p1" {
		t.Errorf("expected StartPlan(p1), got %v", fa.started)
	}
}

func TestStartAgent_Errors(t *testing.T) {
	_, mux, fa := newHandlers(t)

	fa.startErr = fmt.Errorf("plan p1 not found")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/agent/start", bytes.NewBufferString(`{"plan_id":"p1"}`)))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown plan, got %d", rr.Code)
	}

	fa.startErr = fmt.Errorf("executor is busy")
	rr2 := httptest.NewRecorder()
	mux.ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/api/agent/start", bytes.NewBufferString(`{"plan_id":"p1"}`)))
	if rr2.Code != http.StatusConflict {
		t.Errorf("expected 409 when busy, got %d", rr2.Code)
	}
}

func TestAgentLifecycleEndpoints(t *testing.T) {
	_, mux, fa := newHandlers(t)

	for _, path := range []string{"/api/agent/pause", "/api/agent/resume", "/api/agent/stop"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}
	if fa.pauses != 1 || fa.resumes != 1 || fa.stops != 1 {
		t.Errorf("lifecycle calls = %d/%d/%d, want 1/1/1", fa.pauses, fa.resumes, fa.stops)
	}
}

func TestRecoverAgent(t *testing.T) {
	_, mux, fa := newHandlers(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/agent/recover", bytes.NewBufferString(`{"reason":"stuck build"}`)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}

	// Body is optional; a default reason is filled in.
	rr2 := httptest.NewRecorder()
	mux.ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/api/agent/recover", nil))
	if rr2.Code != http.StatusAccepted {
		t.Fatalf("expected 202 without body, got %d", rr2.Code)
	}

	if len(fa.recoveries) != 2 {
		t.Fatalf("expected 2 recovery calls, got %d", len(fa.recoveries))
	}
	if fa.recoveries[0] != "stuck build" {
		t.Errorf("expected explicit reason, got %q", fa.recoveries[0])
	}
	if fa.recoveries[1] == "" {
		t.Error("expected default reason for empty body")
	}
}

func TestAgentEvents_Limit(t *testing.T) {
	_, mux, fa := newHandlers(t)
	for i := 0; i < 5; i++ {
		fa.events = append(fa.events, agent.Event{Type: agent.EventIterationStarted})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/agent/events?limit=2", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var events []agent.Event
	if err := json.NewDecoder(rr.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
}

func TestHealthEndpoints(t *testing.T) {
	_, mux, _ := newHandlers(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rr.Code)
	}
	var st health.Status
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Overall != health.Healthy {
		t.Errorf("expected healthy, got %q", st.Overall)
	}
}

func TestTriggerEndpoints(t *testing.T) {
	_, mux, _ := newHandlers(t)

	body := `{"name":"custom","condition":{"type":"status","status":"critical"},"action":"notify","enabled":true}`
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/health/triggers", bytes.NewBufferString(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("add trigger: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created health.Trigger
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected assigned trigger ID")
	}

	for _, suffix := range []string{"/disable", "/enable"} {
		rr2 := httptest.NewRecorder()
		mux.ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/api/health/triggers/"+created.ID+suffix, nil))
		if rr2.Code != http.StatusNoContent {
			t.Errorf("%s: expected 204, got %d", suffix, rr2.Code)
		}
	}

	delRR := httptest.NewRecorder()
	mux.ServeHTTP(delRR, httptest.NewRequest(http.MethodDelete, "/api/health/triggers/"+created.ID, nil))
	if delRR.Code != http.StatusNoContent {
		t.Fatalf("delete trigger: expected 204, got %d", delRR.Code)
	}

	againRR := httptest.NewRecorder()
	mux.ServeHTTP(againRR, httptest.NewRequest(http.MethodDelete, "/api/health/triggers/"+created.ID, nil))
	if againRR.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", againRR.Code)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	_, mux, _ := newHandlers(t)
	created := createPlan(t, mux, `{"title":"exported plan"}`)

	expRR := httptest.NewRecorder()
	mux.ServeHTTP(expRR, httptest.NewRequest(http.MethodPost, "/api/export", nil))
	if expRR.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", expRR.Code)
	}

	// Import into a fresh store behind a second handler set.
	_, mux2, _ := newHandlers(t)
	impRR := httptest.NewRecorder()
	mux2.ServeHTTP(impRR, httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewReader(expRR.Body.Bytes())))
	if impRR.Code != http.StatusNoContent {
		t.Fatalf("import: expected 204, got %d: %s", impRR.Code, impRR.Body.String())
	}

	getRR := httptest.NewRecorder()
	mux2.ServeHTTP(getRR, httptest.NewRequest(http.MethodGet, "/api/plans/"+created.ID, nil))
	if getRR.Code != http.StatusOK {
		t.Errorf("imported plan not retrievable: %d", getRR.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, mux, _ := newHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("expected version 'test', got %q", resp["version"])
	}
}
