package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewWithRegistry(prometheus.NewRegistry())
}

func TestNewWithRegistry_RegistersEveryCollector(t *testing.T) {
	m := newTestMetrics(t)
	require.NotNil(t, m.WorkpoolQueueDepth)
	require.NotNil(t, m.WorkpoolTasksTotal)
	require.NotNil(t, m.WorkpoolTaskAttempts)
	require.NotNil(t, m.WorkpoolTaskDuration)
	require.NotNil(t, m.ProjectionLagSeconds)
	require.NotNil(t, m.ProjectionPoisonTotal)
	require.NotNil(t, m.AgentDailySpend)
	require.NotNil(t, m.AgentBudgetDenials)
	require.NotNil(t, m.AgentCircuitState)
}

func TestRecordTaskOutcome_IncrementsCountersAndObservesHistograms(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTaskOutcome("projection:order-summary", "success", 1, 0.05)
	m.RecordTaskOutcome("projection:order-summary", "failure", 3, 0.5)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkpoolTasksTotal.WithLabelValues("projection:order-summary", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkpoolTasksTotal.WithLabelValues("projection:order-summary", "failure")))
}

func TestSetQueueDepth_ReflectsLatestValue(t *testing.T) {
	m := newTestMetrics(t)

	m.SetQueueDepth("order-1", "scheduled", 4)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.WorkpoolQueueDepth.WithLabelValues("order-1", "scheduled")))

	m.SetQueueDepth("order-1", "scheduled", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkpoolQueueDepth.WithLabelValues("order-1", "scheduled")))
}

func TestSetProjectionLag_ReflectsLatestValue(t *testing.T) {
	m := newTestMetrics(t)

	m.SetProjectionLag("order-summary", 2.5)
	assert.Equal(t, 2.5, testutil.ToFloat64(m.ProjectionLagSeconds.WithLabelValues("order-summary")))
}

func TestRecordPoisonEvent_IncrementsCounter(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordPoisonEvent("order-summary")
	m.RecordPoisonEvent("order-summary")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ProjectionPoisonTotal.WithLabelValues("order-summary")))
}

func TestAgentBudgetMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.SetAgentDailySpend("remediation-agent", 42.5)
	assert.Equal(t, 42.5, testutil.ToFloat64(m.AgentDailySpend.WithLabelValues("remediation-agent")))

	m.RecordBudgetDenial("remediation-agent")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AgentBudgetDenials.WithLabelValues("remediation-agent")))
}

func TestSetAgentCircuitState_ReflectsTransitions(t *testing.T) {
	m := newTestMetrics(t)

	m.SetAgentCircuitState("remediation-agent", CircuitClosed)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.AgentCircuitState.WithLabelValues("remediation-agent")))

	m.SetAgentCircuitState("remediation-agent", CircuitOpen)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AgentCircuitState.WithLabelValues("remediation-agent")))
}
