package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/GoCodeAlone/foreman/agent"
	"github.com/GoCodeAlone/foreman/health"
	"github.com/GoCodeAlone/foreman/plan"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Store   *plan.Store
	Agent   Agent
	Health  Health
	Prober  plan.Prober
	Logger  *slog.Logger
	Version string
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/plans", h.listPlans)
	mux.HandleFunc("POST /api/plans", h.createPlan)
	mux.HandleFunc("GET /api/plans/{id}", h.getPlan)
	mux.HandleFunc("DELETE /api/plans/{id}", h.deletePlan)
	mux.HandleFunc("POST /api/plans/{id}/tasks", h.generateTasks)
	mux.HandleFunc("GET /api/plans/{id}/report", h.planReport)
	mux.HandleFunc("GET /api/plans/{id}/diff", h.planDiff)

	mux.HandleFunc("GET /api/agent", h.agentState)
	mux.HandleFunc("GET /api/agent/events", h.agentEvents)
	mux.HandleFunc("POST /api/agent/start", h.startAgent)
	mux.HandleFunc("POST /api/agent/pause", h.pauseAgent)
	mux.HandleFunc("POST /api/agent/resume", h.resumeAgent)
	mux.HandleFunc("POST /api/agent/stop", h.stopAgent)
	mux.HandleFunc("POST /api/agent/recover", h.recoverAgent)

	mux.HandleFunc("GET /api/health", h.healthStatus)
	mux.HandleFunc("GET /api/health/triggers", h.listTriggers)
	mux.HandleFunc("POST /api/health/triggers", h.addTrigger)
	mux.HandleFunc("DELETE /api/health/triggers/{id}", h.removeTrigger)
	mux.HandleFunc("POST /api/health/triggers/{id}/enable", h.enableTrigger)
	mux.HandleFunc("POST /api/health/triggers/{id}/disable", h.disableTrigger)

	mux.HandleFunc("POST /api/export", h.exportPlans)
	mux.HandleFunc("POST /api/import", h.importPlans)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func notFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}

// --- Plan handlers ---

func (h *Handlers) listPlans(w http.ResponseWriter, _ *http.Request) {
	plans := h.Store.List()
	if plans == nil {
		plans = []*plan.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *Handlers) createPlan(w http.ResponseWriter, r *http.Request) {
	var p plan.Plan
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id, err := h.Store.Create(&p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.Store.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) getPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.Get(r.PathValue("id"))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) deletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Delete(r.PathValue("id")); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// generateTasks expands the plan's architecture into pending tasks.
func (h *Handlers) generateTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Store.AddTasksFromArchitecture(r.PathValue("id"))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*plan.Task{}
	}
	writeJSON(w, http.StatusCreated, tasks)
}

func (h *Handlers) planReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Store.GenerateReport(r.Context(), r.PathValue("id"), h.Prober)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handlers) planDiff(w http.ResponseWriter, r *http.Request) {
	diff, err := h.Store.CompareArchitecture(r.Context(), r.PathValue("id"), h.Prober)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// --- Agent handlers ---

func (h *Handlers) agentState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Agent.State())
}

func (h *Handlers) agentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	events := h.Agent.Events(limit)
	if events == nil {
		events = []agent.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) startAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "plan_id is required")
		return
	}
	if err := h.Agent.StartPlan(r.Context(), req.PlanID); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.Agent.State())
}

func (h *Handlers) pauseAgent(w http.ResponseWriter, _ *http.Request) {
	if err := h.Agent.Pause(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.Agent.State())
}

func (h *Handlers) resumeAgent(w http.ResponseWriter, _ *http.Request) {
	if err := h.Agent.Resume(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.Agent.State())
}

func (h *Handlers) stopAgent(w http.ResponseWriter, _ *http.Request) {
	h.Agent.Stop()
	writeJSON(w, http.StatusOK, h.Agent.State())
}

func (h *Handlers) recoverAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional for manual recovery.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "manual recovery request"
	}
	h.Agent.TriggerRecovery(r.Context(), req.Reason)
	w.WriteHeader(http.StatusAccepted)
}

// --- Health handlers ---

func (h *Handlers) healthStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Health.Status())
}

func (h *Handlers) listTriggers(w http.ResponseWriter, _ *http.Request) {
	triggers := h.Health.Triggers()
	if triggers == nil {
		triggers = []health.Trigger{}
	}
	writeJSON(w, http.StatusOK, triggers)
}

func (h *Handlers) addTrigger(w http.ResponseWriter, r *http.Request) {
	var t health.Trigger
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := h.Health.AddTrigger(t)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) removeTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.Health.RemoveTrigger(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) enableTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.Health.EnableTrigger(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) disableTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.Health.DisableTrigger(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Export / import ---

func (h *Handlers) exportPlans(w http.ResponseWriter, _ *http.Request) {
	data, err := h.Store.Export()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handlers) importPlans(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if err := h.Store.Import(data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
