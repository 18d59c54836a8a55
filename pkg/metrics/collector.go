// Package metrics exposes the workflow's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/adapter"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ticketflow"

// Collector owns a registry and the metric vectors registered on it.
type Collector struct {
	registry *prometheus.Registry

	agentInvocations *prometheus.CounterVec
	agentLatency     *prometheus.HistogramVec
	routingConf      *prometheus.HistogramVec
	agentErrors      *prometheus.CounterVec

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmCost     *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec

	ticketsProcessed *prometheus.CounterVec
	ticketResolution *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector on a fresh registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.agentInvocations = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_invocation_total",
		Help:      "Node executions by outcome",
	}, []string{"agent", "status"})

	c.agentLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_decision_latency_seconds",
		Help:      "Node execution latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"agent"})

	c.routingConf = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_routing_confidence",
		Help:      "Classifier confidence per routed target",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	}, []string{"agent"})

	c.agentErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_errors_total",
		Help:      "Node failures by error kind",
	}, []string{"agent", "error_type"})

	c.toolCalls = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Tool invocations by outcome",
	}, []string{"tool", "status"})

	c.toolDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tool_call_duration_seconds",
		Help:      "Tool invocation latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool"})

	c.llmRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Logical model calls by caller and outcome",
	}, []string{"caller", "status"})

	c.llmTokens = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_total",
		Help:      "Tokens used by model and direction",
	}, []string{"model", "type"})

	c.llmCost = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_cost_dollars_total",
		Help:      "Model spend in USD by caller",
	}, []string{"caller"})

	c.llmDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "Model call latency across retries in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"caller"})

	c.ticketsProcessed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_processed_total",
		Help:      "Completed workflow runs by target and urgency",
	}, []string{"target", "urgency"})

	c.ticketResolution = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ticket_resolution_seconds",
		Help:      "End-to-end workflow latency by resolution status",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"status"})

	c.httpRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "path", "status"})

	c.httpDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveNode records one node execution. errorType is empty on success.
func (c *Collector) ObserveNode(node string, d time.Duration, errorType string) {
	status := "success"
	if errorType != "" {
		status = "error"
		c.agentErrors.WithLabelValues(node, errorType).Inc()
	}
	c.agentInvocations.WithLabelValues(node, status).Inc()
	c.agentLatency.WithLabelValues(node).Observe(d.Seconds())
}

// ObserveRouting records the classifier's confidence for a target.
func (c *Collector) ObserveRouting(target string, confidence float64) {
	c.routingConf.WithLabelValues(target).Observe(confidence)
}

// ObserveTicket records a finished workflow run.
func (c *Collector) ObserveTicket(target, urgency, status string, d time.Duration) {
	if target != "" {
		c.ticketsProcessed.WithLabelValues(target, urgency).Inc()
	}
	c.ticketResolution.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveToolCall implements tools.Observer.
func (c *Collector) ObserveToolCall(tool string, ok bool, d time.Duration) {
	status := "success"
	if !ok {
		status = "failure"
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveLLMCall implements llm.Observer.
func (c *Collector) ObserveLLMCall(r adapter.CallReport) {
	status := "success"
	if !r.Succeeded() {
		status = "error"
	}
	c.llmRequests.WithLabelValues(r.Caller, status).Inc()
	c.llmDuration.WithLabelValues(r.Caller).Observe(r.Latency.Seconds())
	if r.Usage.PromptTokens > 0 {
		c.llmTokens.WithLabelValues(r.Model, "prompt").Add(float64(r.Usage.PromptTokens))
	}
	if r.Usage.CompletionTokens > 0 {
		c.llmTokens.WithLabelValues(r.Model, "completion").Add(float64(r.Usage.CompletionTokens))
	}
	if r.Cost > 0 {
		c.llmCost.WithLabelValues(r.Caller).Add(r.Cost)
	}
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, path string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
