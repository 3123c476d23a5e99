package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
	"github.com/coreflow/runtime/pkg/agentbc"
	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/orchestrator"
	"github.com/coreflow/runtime/pkg/projection"
	"github.com/coreflow/runtime/pkg/replay"
	"github.com/coreflow/runtime/pkg/workpool"
)

type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, env orchestrator.Envelope) (orchestrator.Result, error) {
	return orchestrator.Result{Status: orchestrator.ResultSuccess}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	pool := workpool.New(s, workpool.Config{PollInterval: 10 * time.Millisecond}, nil, nil)
	t.Cleanup(pool.Stop)

	registry := projection.NewRegistry()
	registry.Register(projection.Definition{
		Name:       "order-summary",
		Kind:       projection.KindPrimary,
		FilterExpr: ".order_id",
		EventHandlers: map[string]projection.EventHandler{
			"OrderOpened": func(ctx context.Context, args projection.Args) error { return nil },
		},
	})
	engine := projection.New(s, registry, pool, nil)

	replayer := replay.New(s, events, registry, pool, nil)
	replayer.Wire()

	agents := agentbc.NewManager(s.DB, events, pool, fakeExecutor{}, nil)
	agents.Register(agentbc.Subscription{
		AgentID:        "remediation-agent",
		SubscriptionID: "remediation-agent:orders",
		EventTypes:     []string{"OrderOpened"},
		OnEvent: func(ctx context.Context, ec agentbc.AgentExecutionContext) (*agentbc.Decision, error) {
			return nil, nil
		},
	})
	agents.Wire()

	pool.Start(context.Background())

	return New(s, pool, replayer, engine, agents, agentbc.NewApprovalStore(s.DB), agentbc.NewDeadLetterStore(s.DB), GuardConfig{TestMode: true})
}

func newCtx(method, target string, body string, paramNames []string, paramValues []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(paramNames) > 0 {
		c.SetParamNames(paramNames...)
		c.SetParamValues(paramValues...)
	}
	return c, rec
}

func TestHealthHandler_ReportsHealthyDatabaseAndPool(t *testing.T) {
	s := newTestServer(t)
	c, rec := newCtx(http.MethodGet, "/healthz", "", nil, nil)

	require.NoError(t, s.healthHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["database"].Status)
}

func TestTriggerRebuild_ThenGetStatusReportsRunningOrCompleted(t *testing.T) {
	s := newTestServer(t)

	c, rec := newCtx(http.MethodPost, "/admin/rebuilds", `{"projection":"order-summary"}`, nil, nil)
	require.NoError(t, s.triggerRebuildHandler(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var rebuildResp RebuildResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rebuildResp))
	require.NotEmpty(t, rebuildResp.ReplayID)

	statusCtx, statusRec := newCtx(http.MethodGet, "/admin/rebuilds/:replayId", "", []string{"replayId"}, []string{rebuildResp.ReplayID})
	require.NoError(t, s.getRebuildStatusHandler(statusCtx))
	assert.Equal(t, http.StatusOK, statusRec.Code)
}

func TestTriggerRebuild_MissingProjectionIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	c, _ := newCtx(http.MethodPost, "/admin/rebuilds", `{}`, nil, nil)

	err := s.triggerRebuildHandler(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestListActiveRebuilds_ReturnsTriggeredRun(t *testing.T) {
	s := newTestServer(t)

	triggerCtx, _ := newCtx(http.MethodPost, "/admin/rebuilds", `{"projection":"order-summary"}`, nil, nil)
	require.NoError(t, s.triggerRebuildHandler(triggerCtx))

	listCtx, listRec := newCtx(http.MethodGet, "/admin/rebuilds", "", nil, nil)
	require.NoError(t, s.listActiveRebuildsHandler(listCtx))
	assert.Equal(t, http.StatusOK, listRec.Code)

	var rebuilds []replay.Checkpoint
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &rebuilds))
}

func TestPreviewProjectionEvent_AppliesFilterExpr(t *testing.T) {
	s := newTestServer(t)

	c, rec := newCtx(http.MethodPost, "/admin/projections/:name/preview",
		`{"eventPayload":{"order_id":"order-7"}}`, []string{"name"}, []string{"order-summary"})
	require.NoError(t, s.previewProjectionEventHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "order-7", body["result"])
}

func TestPreviewProjectionEvent_UnknownProjectionIsNotFound(t *testing.T) {
	s := newTestServer(t)

	c, _ := newCtx(http.MethodPost, "/admin/projections/:name/preview",
		`{"eventPayload":{}}`, []string{"name"}, []string{"does-not-exist"})
	err := s.previewProjectionEventHandler(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestListPoisonEvents_EmptyByDefault(t *testing.T) {
	s := newTestServer(t)
	c, rec := newCtx(http.MethodGet, "/admin/poison-events", "", nil, nil)

	require.NoError(t, s.listPoisonEventsHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var events []projection.PoisonEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Empty(t, events)
}

func TestReplayPoisonEvent_UnknownEventIsNotFound(t *testing.T) {
	s := newTestServer(t)
	c, _ := newCtx(http.MethodPost, "/admin/poison-events/:eventId/replay", `{"projection":"order-summary","resolvedBy":"operator@example.com"}`, []string{"eventId"}, []string{"00000000-0000-0000-0000-000000000000"})

	err := s.replayPoisonEventHandler(c)
	require.Error(t, err)
}

func TestListAgentDeadLetters_EmptyByDefault(t *testing.T) {
	s := newTestServer(t)
	c, rec := newCtx(http.MethodGet, "/admin/agent-dead-letters", "", nil, nil)

	require.NoError(t, s.listAgentDeadLettersHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var letters []agentbc.AgentDeadLetter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &letters))
	assert.Empty(t, letters)
}

func TestListPendingApprovals_EmptyByDefault(t *testing.T) {
	s := newTestServer(t)
	c, rec := newCtx(http.MethodGet, "/admin/approvals", "", nil, nil)

	require.NoError(t, s.listPendingApprovalsHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var approvals []agentbc.PendingApproval
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approvals))
	assert.Empty(t, approvals)
}

func TestGetCircuitState_UnknownAgentReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	c, _ := newCtx(http.MethodGet, "/admin/agents/:agentId/circuit", "", []string{"agentId"}, []string{"no-such-agent"})

	err := s.getCircuitStateHandler(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestGetCircuitState_RegisteredAgentReportsClosed(t *testing.T) {
	s := newTestServer(t)
	c, rec := newCtx(http.MethodGet, "/admin/agents/:agentId/circuit", "", []string{"agentId"}, []string{"remediation-agent"})

	require.NoError(t, s.getCircuitStateHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp CircuitStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "closed", resp.State)
}

func TestResetCircuit_UnknownAgentReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	c, _ := newCtx(http.MethodPost, "/admin/agents/:agentId/circuit/reset", "", []string{"agentId"}, []string{"no-such-agent"})

	err := s.resetCircuitHandler(c)
	require.Error(t, err)
}

func TestResetCircuit_RegisteredAgentSucceeds(t *testing.T) {
	s := newTestServer(t)
	c, rec := newCtx(http.MethodPost, "/admin/agents/:agentId/circuit/reset", "", []string{"agentId"}, []string{"remediation-agent"})

	require.NoError(t, s.resetCircuitHandler(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, maxListRows, clampLimit(0))
	assert.Equal(t, maxListRows, clampLimit(-5))
	assert.Equal(t, maxListRows, clampLimit(maxListRows+1))
	assert.Equal(t, 25, clampLimit(25))
}
