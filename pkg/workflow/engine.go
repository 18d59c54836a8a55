// Package workflow sequences the handler nodes for one ticket: the triage
// classifier first, then exactly one specialist chosen from its decision.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/events"
	"github.com/zen-systems/ticketflow/pkg/llm"
	"github.com/zen-systems/ticketflow/pkg/node"
	"github.com/zen-systems/ticketflow/pkg/ticket"
	"github.com/zen-systems/ticketflow/pkg/usage"
)

const tracerName = "github.com/zen-systems/ticketflow/pkg/workflow"

// FailureResponse is the customer-facing text of a failed run.
const FailureResponse = "We could not process this ticket automatically. A support agent will follow up."

// Phase is a run's position in the state machine.
type Phase string

const (
	PhaseCreated     Phase = "created"
	PhaseClassified  Phase = "classified"
	PhaseSpecialized Phase = "specialized"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Request is the input of one run.
type Request struct {
	TicketID      string
	CorrelationID string
	CustomerID    string
	Email         string
	Tier          ticket.Tier
	Subject       string
	Body          string
	CategoryHint  string
}

func (r Request) validate() error {
	var missing []string
	if strings.TrimSpace(r.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(r.Body) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Observer receives run and node measurements.
type Observer interface {
	ObserveNode(node string, d time.Duration, errorType string)
	ObserveRouting(target string, confidence float64)
	ObserveTicket(target, urgency, status string, d time.Duration)
}

// UsageReporter exposes process-wide model usage.
type UsageReporter interface {
	Usage() usage.Summary
}

// Engine runs tickets through the node table. It holds no per-run state
// and is safe for concurrent use.
type Engine struct {
	classifier node.Node
	handlers   map[ticket.Target]node.Node
	usage      UsageReporter
	publisher  events.Publisher
	observer   Observer
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithPublisher sets where ticket.processed events go.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithUsage sets the source of UsageSummary.
func WithUsage(u UsageReporter) Option {
	return func(e *Engine) { e.usage = u }
}

// WithTracerProvider sets the tracer provider used for spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine. handlers must include the escalation node, which
// takes every target without a handler of its own.
func New(classifier node.Node, handlers map[ticket.Target]node.Node, opts ...Option) (*Engine, error) {
	if classifier == nil {
		return nil, errors.New("workflow: classifier node is required")
	}
	if handlers[ticket.TargetEscalation] == nil {
		return nil, errors.New("workflow: escalation handler is required")
	}
	table := make(map[ticket.Target]node.Node, len(handlers))
	for target, n := range handlers {
		if n != nil {
			table[target] = n
		}
	}
	e := &Engine{
		classifier: classifier,
		handlers:   table,
		publisher:  events.Nop{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewDefault wires the triage node and the four specialists from deps.
func NewDefault(deps node.Deps, opts ...Option) *Engine {
	e, err := New(node.NewTriage(deps, nil), node.Specialists(deps), opts...)
	if err != nil {
		panic(err) // unreachable: the default table is complete
	}
	return e
}

// NewTicketID returns an id of the form T-XXXXXXXX.
func NewTicketID() string {
	return "T-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// UsageSummary returns the process-wide model usage totals.
func (e *Engine) UsageSummary() usage.Summary {
	if e.usage == nil {
		return usage.Summary{}
	}
	return e.usage.Usage()
}

// Route returns the handler for a decision. Targets without a handler, and
// a missing decision, go to escalation.
func (e *Engine) Route(d *ticket.RoutingDecision) (ticket.Target, node.Node) {
	if d != nil {
		if n, ok := e.handlers[d.Target]; ok {
			return d.Target, n
		}
	}
	return ticket.TargetEscalation, e.handlers[ticket.TargetEscalation]
}

// ProcessRequest runs one ticket. The returned state is always well formed;
// on failure its resolution has status error and the error is a *Error.
func (e *Engine) ProcessRequest(ctx context.Context, req Request) (ticket.State, error) {
	start := e.now()
	if req.TicketID == "" {
		req.TicketID = NewTicketID()
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	s := ticket.New(req.TicketID, req.CorrelationID,
		ticket.Customer{ID: req.CustomerID, Email: req.Email, Tier: req.Tier},
		ticket.Content{Subject: req.Subject, Body: req.Body, CategoryHint: req.CategoryHint},
		start,
	)

	ctx, span := e.tracer.Start(ctx, "workflow.process", trace.WithAttributes(
		attribute.String("ticket.id", s.TicketID),
		attribute.String("correlation.id", s.CorrelationID),
	))
	defer span.End()

	logger := e.logger.With(
		zap.String("ticket_id", s.TicketID),
		zap.String("correlation_id", s.CorrelationID),
	)

	if err := req.validate(); err != nil {
		return e.fail(ctx, span, logger, s, PhaseCreated, "", err, start)
	}

	phase := PhaseCreated
	s, err := e.runNode(ctx, logger, e.classifier, s)
	if err != nil {
		return e.fail(ctx, span, logger, s, phase, e.classifier.Name(), err, start)
	}
	phase = PhaseClassified
	if s.Routing != nil && e.observer != nil {
		e.observer.ObserveRouting(string(s.Routing.Target), s.Routing.Confidence)
	}

	target, handler := e.Route(s.Routing)
	span.SetAttributes(attribute.String("ticket.target", string(target)))
	if s.Routing != nil && s.Routing.Target != target {
		logger.Warn("unmapped_target", zap.String("target", string(s.Routing.Target)))
	}

	s, err = e.runNode(ctx, logger, handler, s)
	if err != nil {
		return e.fail(ctx, span, logger, s, phase, handler.Name(), err, start)
	}
	phase = PhaseSpecialized

	if s.Resolution == nil {
		s = s.WithResolution(ticket.NewResolution(ticket.StatusPending, ""))
	}
	s = e.stamp(s, start)
	phase = PhaseDone

	status := string(s.Resolution.Status)
	span.SetAttributes(attribute.String("ticket.status", status))
	logger.Info("workflow_completed",
		zap.String("phase", string(phase)),
		zap.String("target", string(target)),
		zap.String("status", status),
		zap.Duration("latency", s.Metadata.Latency),
		zap.Int("total_tokens", s.TotalTokens()),
	)
	if e.observer != nil {
		e.observer.ObserveTicket(string(target), urgencyOf(s), status, s.Metadata.Latency)
	}
	e.publish(ctx, logger, s)
	return s, nil
}

// runNode executes one node and checks that it appended exactly one
// interaction.
func (e *Engine) runNode(ctx context.Context, logger *zap.Logger, n node.Node, s ticket.State) (ticket.State, error) {
	ctx, span := e.tracer.Start(ctx, "node."+n.Name())
	defer span.End()

	before := len(s.Interactions)
	began := e.now()
	out, err := n.Execute(ctx, s)
	elapsed := e.now().Sub(began)

	if err == nil && len(out.Interactions) != before+1 {
		err = fmt.Errorf("node %s appended %d interactions, want 1", n.Name(), len(out.Interactions)-before)
	}
	if e.observer != nil {
		e.observer.ObserveNode(n.Name(), elapsed, errorType(err))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	logger.Info("node_completed", zap.String("node", n.Name()), zap.Duration("latency", elapsed))
	return out, nil
}

// fail forces the error resolution and wraps err.
func (e *Engine) fail(ctx context.Context, span trace.Span, logger *zap.Logger, s ticket.State, phase Phase, nodeName string, err error, start time.Time) (ticket.State, error) {
	s.Metadata.ErrorCount++
	s = s.WithResolution(ticket.NewResolution(ticket.StatusError, FailureResponse))
	s = e.stamp(s, start)

	wfErr := &Error{Phase: phase, Node: nodeName, CorrelationID: s.CorrelationID, Err: err}
	span.RecordError(wfErr)
	span.SetStatus(codes.Error, wfErr.Error())
	logger.Error("workflow_failed",
		zap.String("phase", string(phase)),
		zap.String("node", nodeName),
		zap.String("error_kind", errorType(err)),
		zap.Error(err),
	)

	if e.observer != nil {
		target := ""
		if s.Routing != nil {
			target = string(s.Routing.Target)
		}
		e.observer.ObserveTicket(target, urgencyOf(s), string(ticket.StatusError), s.Metadata.Latency)
	}
	e.publish(ctx, logger, s)
	return s, wfErr
}

func (e *Engine) stamp(s ticket.State, start time.Time) ticket.State {
	end := e.now()
	s.Metadata.Latency = end.Sub(start)
	s.Metadata.ProcessedAt = end
	return s
}

// Outcome is the ticket.processed event payload.
type Outcome struct {
	TicketID      string        `json:"ticket_id"`
	CorrelationID string        `json:"correlation_id"`
	CustomerID    string        `json:"customer_id,omitempty"`
	Target        ticket.Target `json:"target,omitempty"`
	Urgency       string        `json:"urgency,omitempty"`
	Status        ticket.Status `json:"status"`
	RequiresHuman bool          `json:"requires_human"`
	Interactions  int           `json:"interactions"`
	TotalTokens   int           `json:"total_tokens"`
	LatencyMS     int64         `json:"latency_ms"`
}

// OutcomeOf summarizes a finished state.
func OutcomeOf(s ticket.State) Outcome {
	o := Outcome{
		TicketID:      s.TicketID,
		CorrelationID: s.CorrelationID,
		CustomerID:    s.Customer.ID,
		Urgency:       urgencyOf(s),
		Status:        ticket.StatusPending,
		Interactions:  len(s.Interactions),
		TotalTokens:   s.TotalTokens(),
		LatencyMS:     s.Metadata.Latency.Milliseconds(),
	}
	if s.Routing != nil {
		o.Target = s.Routing.Target
	}
	if s.Resolution != nil {
		o.Status = s.Resolution.Status
		o.RequiresHuman = s.Resolution.RequiresHuman
	}
	return o
}

func (e *Engine) publish(ctx context.Context, logger *zap.Logger, s ticket.State) {
	// The outcome is final even when ctx is already done.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.publisher.Publish(pctx, events.TypeTicketProcessed, s.TicketID, OutcomeOf(s)); err != nil {
		logger.Warn("event_publish_failed", zap.Error(err))
	}
}

func urgencyOf(s ticket.State) string {
	if s.Routing == nil {
		return ""
	}
	return string(s.Routing.Urgency)
}

func errorType(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	if errors.Is(err, context.Canceled) {
		return llm.Cancelled.String()
	}
	return llm.KindOf(err).String()
}
