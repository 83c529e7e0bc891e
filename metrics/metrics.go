// Package metrics exposes the supervisor's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Iterations counts execution-loop passes.
	Iterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foreman_iterations_total",
		Help: "Number of execution loop iterations started.",
	})

	// TasksCompleted counts tasks that passed all gates.
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foreman_tasks_completed_total",
		Help: "Number of tasks completed successfully.",
	})

	// TasksFailed counts task failures by recorded error kind.
	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_tasks_failed_total",
		Help: "Number of task failures, by error kind.",
	}, []string{"kind"})

	// RecoveryRuns counts recovery pipeline invocations by trigger kind.
	RecoveryRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_recovery_runs_total",
		Help: "Number of recovery pipeline invocations, by trigger.",
	}, []string{"trigger"})

	// ConsecutiveFailures mirrors the executor's failure streak.
	ConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foreman_consecutive_failures",
		Help: "Current consecutive failure count of the executor.",
	})

	// HealthStatus reports each health check: 0 pass, 1 warn, 2 fail.
	HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "foreman_health_check_status",
		Help: "Latest result per health check (0 pass, 1 warn, 2 fail).",
	}, []string{"check"})
)
