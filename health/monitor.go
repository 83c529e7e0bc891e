// Package health implements the periodic health monitor: a five-check
// sampler plus a rule-based trigger engine that acts back on the executor.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/foreman/agent"
	"github.com/GoCodeAlone/foreman/metrics"
	"github.com/GoCodeAlone/foreman/plan"
)

// Aggregate is the overall health verdict.
type Aggregate string

const (
	Healthy   Aggregate = "healthy"
	Degraded  Aggregate = "degraded"
	Unhealthy Aggregate = "unhealthy"
	Critical  Aggregate = "critical"
)

// CheckResult is the outcome of one check.
type CheckResult string

const (
	Pass CheckResult = "pass"
	Warn CheckResult = "warn"
	Fail CheckResult = "fail"
)

// Check names.
const (
	CheckAgent        = "agent"
	CheckReachability = "reachability"
	CheckErrorRate    = "error_rate"
	CheckMemory       = "memory"
	CheckLastBuild    = "last_build"
)

// Check is one sampled check result.
type Check struct {
	Result CheckResult `json:"result"`
	Detail string      `json:"detail,omitempty"`
}

// Status is a point-in-time snapshot of monitor state.
type Status struct {
	Overall             Aggregate        `json:"overall"`
	Checks              map[string]Check `json:"checks"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	SampledAt           time.Time        `json:"sampled_at"`
}

// Agent is the narrow executor surface the monitor acts through. The monitor
// never mutates executor-owned state directly; it only reads snapshots and
// issues commands.
type Agent interface {
	State() agent.State
	Subscribe(fn agent.Listener) (unsubscribe func())
	TriggerRecovery(ctx context.Context, reason string)
	Pause() error
	Resume() error
}

// Config controls the monitor's probe target and thresholds.
type Config struct {
	ProbeURL     string        `json:"probe_url" yaml:"probe_url"`
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	HTTPClient   *http.Client  `json:"-" yaml:"-"`
}

const (
	errorWindow       = 5 * time.Minute
	maxBufferedErrors = 100
	slowProbe         = 2 * time.Second
	restartDelay      = 2 * time.Second
)

// Monitor samples executor health on an interval and evaluates standing
// triggers on half that interval. Construct instances with NewMonitor.
type Monitor struct {
	mu     sync.Mutex
	agent  Agent
	store  *plan.Store
	cfg    Config
	logger *slog.Logger

	running    bool
	sampleStop chan struct{}
	trigStop   chan struct{}
	unsub      func()

	status      Status
	errorTimes  []time.Time
	consecFails int
	triggers    []*Trigger
}

// NewMonitor creates a stopped Monitor with the default trigger set
// pre-registered.
func NewMonitor(a Agent, store *plan.Store, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	m := &Monitor{
		agent:  a,
		store:  store,
		cfg:    cfg,
		logger: logger,
		status: Status{Overall: Healthy, Checks: map[string]Check{}},
	}
	for _, t := range defaultTriggers() {
		m.triggers = append(m.triggers, t)
	}
	return m
}

// Start begins sampling at the given interval and trigger evaluation at half
// that interval. It subscribes once to the executor's event stream.
func (m *Monitor) Start(interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor already running")
	}
	if interval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	m.running = true
	m.sampleStop = make(chan struct{})
	m.trigStop = make(chan struct{})
	m.unsub = m.agent.Subscribe(m.ingest)

	go m.sampleLoop(interval, m.sampleStop)
	go m.triggerLoop(interval/2, m.trigStop)
	return nil
}

// Stop halts sampling and trigger evaluation and detaches from the event
// stream.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.sampleStop)
	close(m.trigStop)
	m.sampleStop = nil
	m.trigStop = nil
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// Status returns the latest sampled status snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.status
	out.Checks = make(map[string]Check, len(m.status.Checks))
	for k, v := range m.status.Checks {
		out.Checks[k] = v
	}
	out.ConsecutiveFailures = m.consecFails
	return out
}

// ingest buffers failure-flavored lifecycle events and tracks executor
// health-check ticks out of band of the sampling loop.
func (m *Monitor) ingest(ev agent.Event) {
	switch ev.Type {
	case agent.EventTaskFailed, agent.EventPlanFailed, agent.EventRecoveryFailed:
		m.bufferError(ev.Timestamp)
	case agent.EventBuildCompleted, agent.EventTestCompleted:
		if success, ok := ev.Payload["success"].(bool); ok && !success {
			m.bufferError(ev.Timestamp)
		}
	case agent.EventHealthCheck:
		healthy, ok := ev.Payload["healthy"].(bool)
		if !ok {
			return
		}
		m.mu.Lock()
		if healthy {
			m.consecFails = 0
		} else {
			m.consecFails++
		}
		m.mu.Unlock()
	}
}

func (m *Monitor) bufferError(ts time.Time) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorTimes = append(m.errorTimes, ts)
	if len(m.errorTimes) > maxBufferedErrors {
		m.errorTimes = m.errorTimes[len(m.errorTimes)-maxBufferedErrors:]
	}
}

// recentErrors counts buffered failure events within the trailing window.
func (m *Monitor) recentErrors(now time.Time) int {
	cutoff := now.Add(-errorWindow)
	n := 0
	for _, ts := range m.errorTimes {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

func (m *Monitor) sampleLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// sample runs the five checks and folds them into the aggregate status.
func (m *Monitor) sample() {
	st := m.agent.State()
	now := time.Now().UTC()

	checks := map[string]Check{
		CheckAgent:        checkAgent(st),
		CheckReachability: m.checkReachability(),
		CheckMemory:       checkMemory(st),
		CheckLastBuild:    m.checkLastBuild(st.PlanID),
	}
	m.mu.Lock()
	errCount := m.recentErrors(now)
	m.mu.Unlock()
	checks[CheckErrorRate] = checkErrorRate(errCount)

	overall := aggregate(checks)

	m.mu.Lock()
	m.status = Status{Overall: overall, Checks: checks, SampledAt: now}
	if overall == Unhealthy || overall == Critical {
		m.consecFails++
	} else {
		m.consecFails = 0
	}
	m.mu.Unlock()

	for name, c := range checks {
		metrics.HealthStatus.WithLabelValues(name).Set(checkScore(c.Result))
	}
	if overall != Healthy {
		m.logger.Warn("health sample", slog.String("overall", string(overall)))
	}
}

func checkScore(r CheckResult) float64 {
	switch r {
	case Warn:
		return 1
	case Fail:
		return 2
	default:
		return 0
	}
}

// aggregate folds check results into one verdict: two failures are critical,
// one is unhealthy, two warnings degrade, anything else is healthy.
func aggregate(checks map[string]Check) Aggregate {
	fails, warns := 0, 0
	for _, c := range checks {
		switch c.Result {
		case Fail:
			fails++
		case Warn:
			warns++
		}
	}
	switch {
	case fails >= 2:
		return Critical
	case fails == 1:
		return Unhealthy
	case warns >= 2:
		return Degraded
	default:
		return Healthy
	}
}

// checkAgent reads the executor's own health flags.
func checkAgent(st agent.State) Check {
	detail := fmt.Sprintf("%d consecutive failures", st.ConsecutiveFailures)
	switch {
	case st.ConsecutiveFailures < 3:
		return Check{Result: Pass, Detail: detail}
	case st.ConsecutiveFailures < 5:
		return Check{Result: Warn, Detail: detail}
	default:
		return Check{Result: Fail, Detail: detail}
	}
}

// checkReachability probes the configured liveness endpoint.
func (m *Monitor) checkReachability() Check {
	if m.cfg.ProbeURL == "" {
		return Check{Result: Pass, Detail: "no probe configured"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ProbeURL, nil)
	if err != nil {
		return Check{Result: Fail, Detail: err.Error()}
	}
	start := time.Now()
	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return Check{Result: Fail, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Result: Fail, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	if latency > slowProbe {
		return Check{Result: Warn, Detail: fmt.Sprintf("slow response: %s", latency.Round(time.Millisecond))}
	}
	return Check{Result: Pass, Detail: latency.Round(time.Millisecond).String()}
}

// checkErrorRate classifies the trailing five-minute failure count.
func checkErrorRate(count int) Check {
	detail := fmt.Sprintf("%d failures in %s", count, errorWindow)
	switch {
	case count > 20:
		return Check{Result: Fail, Detail: detail}
	case count > 10:
		return Check{Result: Warn, Detail: detail}
	default:
		return Check{Result: Pass, Detail: detail}
	}
}

// checkMemory uses activity-log length as a growth proxy.
func checkMemory(st agent.State) Check {
	n := len(st.Activity)
	detail := fmt.Sprintf("%d activity entries", n)
	switch {
	case n > 800:
		return Check{Result: Fail, Detail: detail}
	case n > 500:
		return Check{Result: Warn, Detail: detail}
	default:
		return Check{Result: Pass, Detail: detail}
	}
}

// checkLastBuild inspects the most recent iteration's build result, if any.
func (m *Monitor) checkLastBuild(planID string) Check {
	if planID == "" {
		return Check{Result: Pass, Detail: "no active plan"}
	}
	p, err := m.store.Get(planID)
	if err != nil {
		return Check{Result: Pass, Detail: "no active plan"}
	}
	for i := len(p.Iterations) - 1; i >= 0; i-- {
		if res := p.Iterations[i].BuildResult; res != nil {
			if res.Success {
				return Check{Result: Pass, Detail: "last build succeeded"}
			}
			return Check{Result: Fail, Detail: "last build failed"}
		}
	}
	return Check{Result: Pass, Detail: "no builds yet"}
}

// consecutiveBuildFailures counts trailing failed build results on the
// active plan.
func (m *Monitor) consecutiveBuildFailures(planID string) int {
	if planID == "" {
		return 0
	}
	p, err := m.store.Get(planID)
	if err != nil {
		return 0
	}
	n := 0
	for i := len(p.Iterations) - 1; i >= 0; i-- {
		res := p.Iterations[i].BuildResult
		if res == nil {
			continue
		}
		if res.Success {
			break
		}
		n++
	}
	return n
}

// totalTaskErrors counts every recorded task error on the active plan.
func (m *Monitor) totalTaskErrors(planID string) int {
	if planID == "" {
		return 0
	}
	p, err := m.store.Get(planID)
	if err != nil {
		return 0
	}
	n := 0
	for _, t := range p.Tasks {
		n += len(t.Errors)
	}
	return n
}
