package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/adapter"
)

func TestObserveNode(t *testing.T) {
	c := NewCollector("", zap.NewNop())

	c.ObserveNode("triage", 120*time.Millisecond, "")
	c.ObserveNode("triage", 80*time.Millisecond, "")
	c.ObserveNode("billing", time.Second, "TimedOut")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.agentInvocations.WithLabelValues("triage", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentInvocations.WithLabelValues("billing", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentErrors.WithLabelValues("billing", "TimedOut")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.agentLatency))
}

func TestObserveLLMCall(t *testing.T) {
	c := NewCollector("test", nil)

	c.ObserveLLMCall(adapter.CallReport{
		Caller:  "triage",
		Model:   "claude-sonnet-4-5-20250929",
		Usage:   adapter.Usage{PromptTokens: 1000, CompletionTokens: 200},
		Cost:    0.006,
		Latency: 2 * time.Second,
	})
	c.ObserveLLMCall(adapter.CallReport{Caller: "triage", Model: "claude-sonnet-4-5-20250929", Error: "exhausted"})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("triage", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("triage", "error")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("claude-sonnet-4-5-20250929", "prompt")))
	assert.Equal(t, 200.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("claude-sonnet-4-5-20250929", "completion")))
	assert.InDelta(t, 0.006, testutil.ToFloat64(c.llmCost.WithLabelValues("triage")), 1e-12)
}

func TestObserveToolAndTicket(t *testing.T) {
	c := NewCollector("test", nil)

	c.ObserveToolCall("payment_gateway", true, time.Millisecond)
	c.ObserveToolCall("payment_gateway", false, time.Millisecond)
	c.ObserveTicket("billing", "high", "resolved", 3*time.Second)
	c.ObserveTicket("", "", "error", time.Second)
	c.ObserveRouting("billing", 0.92)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("payment_gateway", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ticketsProcessed.WithLabelValues("billing", "high")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.ticketsProcessed), "failed runs without a route are not counted")
	assert.Equal(t, 2, testutil.CollectAndCount(c.ticketResolution))
	assert.Equal(t, 1, testutil.CollectAndCount(c.routingConf))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("test", nil)
	b := NewCollector("test", nil)

	a.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.httpRequests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 0, testutil.CollectAndCount(b.httpRequests))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("test", nil)
	c.ObserveNode("triage", time.Millisecond, "")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_agent_invocation_total{agent="triage",status="success"} 1`), body)
}
