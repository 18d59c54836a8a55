package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/adapter"
	"github.com/zen-systems/ticketflow/pkg/retry"
	"github.com/zen-systems/ticketflow/pkg/usage"
)

const tracerName = "github.com/zen-systems/ticketflow/pkg/llm"

// Result is a successful generation.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	ModelID          string
	Cost             float64
	Attempts         int
	Latency          time.Duration
}

// Observer receives one report per logical call.
type Observer interface {
	ObserveLLMCall(report adapter.CallReport)
}

// Client issues generation requests with retry and usage accounting.
// It is safe for concurrent use.
type Client struct {
	backend     adapter.Adapter
	tracker     *usage.Tracker
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	policy      retry.Policy
	logger      *zap.Logger
	observer    Observer
	tracer      trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the model id sent to the backend.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithPolicy replaces the default retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxTokens sets the completion limit.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a call observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithTracerProvider sets the tracer provider used for spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a client over backend. A nil tracker gets a fresh default tracker.
func New(backend adapter.Adapter, tracker *usage.Tracker, opts ...Option) *Client {
	if tracker == nil {
		tracker = usage.NewTracker(nil)
	}
	c := &Client{
		backend:   backend,
		tracker:   tracker,
		model:     usage.DefaultModel,
		maxTokens: 4096,
		timeout:   30 * time.Second,
		policy:    retry.DefaultPolicy(),
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.Logger == nil {
		c.policy.Logger = c.logger
	}
	return c
}

// Model returns the configured model id.
func (c *Client) Model() string {
	return c.model
}

// Usage returns the tracker totals.
func (c *Client) Usage() usage.Summary {
	return c.tracker.Snapshot()
}

// ResetUsage zeroes the tracker.
func (c *Client) ResetUsage() {
	c.tracker.Reset()
}

// Generate sends one system instruction and user message. caller tags
// logs, spans and metrics. Transient failures are retried per the policy.
func (c *Client) Generate(ctx context.Context, system, user, caller string) (*Result, error) {
	if strings.TrimSpace(system) == "" || strings.TrimSpace(user) == "" {
		return nil, &Error{Kind: InvalidRequest, Caller: caller, Err: errors.New("system and user message must be non-empty")}
	}

	ctx, span := c.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.model", c.model),
		attribute.String("llm.adapter", c.backend.Name()),
		attribute.String("agent", caller),
	))
	defer span.End()

	req := adapter.Request{
		Model:       c.model,
		System:      system,
		Prompt:      user,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	start := time.Now()
	resp, attempts, err := retry.Do(ctx, c.policy, IsRetryable, func(ctx context.Context) (*adapter.Response, error) {
		return c.attempt(ctx, req, caller)
	})
	latency := time.Since(start)

	report := adapter.CallReport{
		Caller:   caller,
		Adapter:  c.backend.Name(),
		Model:    c.model,
		Attempts: attempts,
		Latency:  latency,
	}

	if err != nil {
		err = c.wrapFailure(err, caller, attempts)
		if KindOf(err) == ExhaustedRetries {
			c.tracker.Record(0, 0, c.model)
		}
		report.Error = err.Error()
		c.observe(report)

		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
		c.logger.Error("llm_request_failed",
			zap.String("caller", caller),
			zap.String("model", c.model),
			zap.String("kind", KindOf(err).String()),
			zap.Int("attempts", attempts),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	u := resp.Usage.Normalize()
	cost := c.tracker.Record(u.PromptTokens, u.CompletionTokens, model)

	report.Model = model
	report.Usage = u
	report.Cost = cost
	c.observe(report)

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", u.PromptTokens),
		attribute.Int("llm.completion_tokens", u.CompletionTokens),
		attribute.Int("llm.attempts", attempts),
		attribute.Float64("llm.cost", cost),
	)
	c.logger.Info("llm_request_completed",
		zap.String("caller", caller),
		zap.String("model", model),
		zap.Int("prompt_tokens", u.PromptTokens),
		zap.Int("completion_tokens", u.CompletionTokens),
		zap.Float64("cost", cost),
		zap.Int("attempts", attempts),
		zap.Duration("latency", latency),
	)

	return &Result{
		Content:          resp.Content,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		ModelID:          model,
		Cost:             cost,
		Attempts:         attempts,
		Latency:          latency,
	}, nil
}

func (c *Client) attempt(ctx context.Context, req adapter.Request, caller string) (*adapter.Response, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.backend.Generate(attemptCtx, req)
	if err == nil {
		return resp, nil
	}

	kind := Classify(err)
	if kind == Cancelled || (ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled)) {
		kind = Cancelled
	}
	return nil, &Error{Kind: kind, Caller: caller, Err: err}
}

func (c *Client) wrapFailure(err error, caller string, attempts int) error {
	var exhausted *retry.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return &Error{Kind: ExhaustedRetries, Caller: caller, Attempts: exhausted.Attempts, Err: exhausted.Err}
	case errors.Is(err, retry.ErrCancelled):
		return &Error{Kind: Cancelled, Caller: caller, Attempts: attempts, Err: err}
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		llmErr.Attempts = attempts
		return llmErr
	}
	return &Error{Kind: Classify(err), Caller: caller, Attempts: attempts, Err: fmt.Errorf("generate: %w", err)}
}

func (c *Client) observe(report adapter.CallReport) {
	if c.observer != nil {
		c.observer.ObserveLLMCall(report)
	}
}
