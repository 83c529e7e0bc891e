// Package api defines the REST API handlers and interfaces for the Foreman
// server.
package api

import (
	"context"

	"github.com/GoCodeAlone/foreman/agent"
	"github.com/GoCodeAlone/foreman/health"
)

// Agent is the interface the API uses to control the executor.
// Implemented by agent.Executor.
type Agent interface {
	State() agent.State
	StartPlan(ctx context.Context, planID string) error
	Pause() error
	Resume() error
	Stop()
	TriggerRecovery(ctx context.Context, reason string)
	Subscribe(fn agent.Listener) (unsubscribe func())
	Events(limit int) []agent.Event
}

// Health is the interface the API uses to read and reconfigure the health
// monitor. Implemented by health.Monitor.
type Health interface {
	Status() health.Status
	Triggers() []health.Trigger
	AddTrigger(t health.Trigger) (health.Trigger, error)
	RemoveTrigger(id string) error
	EnableTrigger(id string) error
	DisableTrigger(id string) error
}
