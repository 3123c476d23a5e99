// Package observability exposes this runtime's Prometheus metrics: workpool
// depth/attempt counters, projection lag, agent cost-budget spend, and
// per-agent circuit-breaker state, all collected under one registry and
// served over a single /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this runtime registers. Its Record*/Set*
// methods are exported for callers; within this module only PollWorkpool
// feeds it (queue depth). Nothing here owns scraping or serving.
type Metrics struct {
	WorkpoolQueueDepth   *prometheus.GaugeVec
	WorkpoolTasksTotal   *prometheus.CounterVec
	WorkpoolTaskAttempts *prometheus.HistogramVec
	WorkpoolTaskDuration *prometheus.HistogramVec

	ProjectionLagSeconds  *prometheus.GaugeVec
	ProjectionPoisonTotal *prometheus.CounterVec

	AgentDailySpend    *prometheus.GaugeVec
	AgentBudgetDenials *prometheus.CounterVec
	AgentCircuitState  *prometheus.GaugeVec
}

// New builds a Metrics instance registered against prometheus's default
// registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry builds a Metrics instance against registerer, so tests can
// pass a fresh prometheus.NewRegistry() instead of polluting the process
// default.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		WorkpoolQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coreflow_workpool_queue_depth",
				Help: "Number of tasks currently scheduled or running, by partition and status.",
			},
			[]string{"partition", "status"},
		),
		WorkpoolTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreflow_workpool_tasks_total",
				Help: "Total workpool tasks processed, by target and outcome.",
			},
			[]string{"target", "outcome"},
		),
		WorkpoolTaskAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreflow_workpool_task_attempts",
				Help:    "Number of attempts a task took before its final outcome.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"target"},
		),
		WorkpoolTaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coreflow_workpool_task_duration_seconds",
				Help:    "Wall-clock duration of a single task attempt.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),

		ProjectionLagSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coreflow_projection_lag_seconds",
				Help: "Seconds between a projection's last-applied event and wall-clock now.",
			},
			[]string{"projection"},
		),
		ProjectionPoisonTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreflow_projection_poison_events_total",
				Help: "Total events quarantined after exhausting projection retries.",
			},
			[]string{"projection"},
		),

		AgentDailySpend: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coreflow_agent_daily_spend_dollars",
				Help: "Current day's accumulated cost spend for an agent.",
			},
			[]string{"agent_id"},
		),
		AgentBudgetDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coreflow_agent_budget_denials_total",
				Help: "Total decisions denied for exceeding an agent's daily budget.",
			},
			[]string{"agent_id"},
		),
		AgentCircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coreflow_agent_circuit_state",
				Help: "Current gobreaker state per agent: 0=closed, 1=half-open, 2=open.",
			},
			[]string{"agent_id"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.WorkpoolQueueDepth,
			m.WorkpoolTasksTotal,
			m.WorkpoolTaskAttempts,
			m.WorkpoolTaskDuration,
			m.ProjectionLagSeconds,
			m.ProjectionPoisonTotal,
			m.AgentDailySpend,
			m.AgentBudgetDenials,
			m.AgentCircuitState,
		)
	}

	return m
}

// RecordTaskOutcome records one completed attempt of a workpool task.
func (m *Metrics) RecordTaskOutcome(target, outcome string, attempt int, duration float64) {
	m.WorkpoolTasksTotal.WithLabelValues(target, outcome).Inc()
	m.WorkpoolTaskAttempts.WithLabelValues(target).Observe(float64(attempt))
	m.WorkpoolTaskDuration.WithLabelValues(target).Observe(duration)
}

// SetQueueDepth sets the current scheduled/running task count for a
// partition.
func (m *Metrics) SetQueueDepth(partition, status string, depth int) {
	m.WorkpoolQueueDepth.WithLabelValues(partition, status).Set(float64(depth))
}

// SetProjectionLag records how far behind, in seconds, a projection's
// checkpoint trails wall-clock now.
func (m *Metrics) SetProjectionLag(projection string, lagSeconds float64) {
	m.ProjectionLagSeconds.WithLabelValues(projection).Set(lagSeconds)
}

// RecordPoisonEvent counts one event quarantined for a projection.
func (m *Metrics) RecordPoisonEvent(projection string) {
	m.ProjectionPoisonTotal.WithLabelValues(projection).Inc()
}

// SetAgentDailySpend records an agent's current accumulated daily spend.
func (m *Metrics) SetAgentDailySpend(agentID string, spend float64) {
	m.AgentDailySpend.WithLabelValues(agentID).Set(spend)
}

// RecordBudgetDenial counts one decision denied for exceeding budget.
func (m *Metrics) RecordBudgetDenial(agentID string) {
	m.AgentBudgetDenials.WithLabelValues(agentID).Inc()
}

// CircuitState enumerates gobreaker's three states as the gauge values
// SetAgentCircuitState expects, matching gobreaker.State's own ordering.
type CircuitState float64

const (
	CircuitClosed   CircuitState = 0
	CircuitHalfOpen CircuitState = 1
	CircuitOpen     CircuitState = 2
)

// SetAgentCircuitState records an agent's current breaker state.
func (m *Metrics) SetAgentCircuitState(agentID string, state CircuitState) {
	m.AgentCircuitState.WithLabelValues(agentID).Set(float64(state))
}
