package agent

import (
	"log/slog"
	"sync"
	"time"
)

// EventType identifies a lifecycle event emitted by the executor.
type EventType string

const (
	EventPlanStarted       EventType = "plan_started"
	EventPlanCompleted     EventType = "plan_completed"
	EventPlanFailed        EventType = "plan_failed"
	EventPlanPaused        EventType = "plan_paused"
	EventPlanResumed       EventType = "plan_resumed"
	EventPlanStopped       EventType = "plan_stopped"
	EventIterationStarted  EventType = "iteration_started"
	EventTaskStarted       EventType = "task_started"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskFailed        EventType = "task_failed"
	EventBuildCompleted    EventType = "build_completed"
	EventTestCompleted     EventType = "test_completed"
	EventRecoveryStarted   EventType = "recovery_started"
	EventRecoveryCompleted EventType = "recovery_completed"
	EventRecoveryFailed    EventType = "recovery_failed"
	EventHealthCheck       EventType = "health_check"
)

// Event is a single lifecycle notification.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	PlanID    string         `json:"plan_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Listener receives events. Listeners run synchronously on the emitting
// goroutine; a panicking listener is isolated and cannot block the others.
type Listener func(Event)

// stream is the executor's observer registry with a bounded event history.
type stream struct {
	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
	history   []Event
	maxHist   int
	logger    *slog.Logger
}

func newStream(logger *slog.Logger) *stream {
	return &stream{
		listeners: make(map[int]Listener),
		maxHist:   1000,
		logger:    logger,
	}
}

// subscribe registers a listener. The returned function unsubscribes it.
func (s *stream) subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// emit records the event and fans it out to all listeners.
func (s *stream) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.history = append(s.history, ev)
	if len(s.history) > s.maxHist {
		s.history = s.history[len(s.history)-s.maxHist:]
	}
	targets := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		targets = append(targets, fn)
	}
	s.mu.Unlock()

	for _, fn := range targets {
		s.deliver(fn, ev)
	}
}

// deliver invokes a single listener, containing any panic.
func (s *stream) deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event listener panic",
				slog.String("event", string(ev.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	fn(ev)
}

// recent returns the most recent limit events, oldest first.
func (s *stream) recent(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.history
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]Event(nil), events...)
}
