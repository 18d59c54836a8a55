// Package node implements the workflow's handler nodes: the triage
// classifier and the four specialists.
package node

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/llm"
	"github.com/zen-systems/ticketflow/pkg/ticket"
	"github.com/zen-systems/ticketflow/pkg/tools"
)

// Interaction actions.
const (
	ActionRoute          = "route"
	ActionResolve        = "resolve"
	ActionTroubleshoot   = "troubleshoot"
	ActionEscalate       = "escalate"
	ActionResolveComplex = "resolve_complex"
	ActionError          = "error"
)

// Node is one stage of the workflow. Execute returns the input state plus
// exactly one new interaction, also when it fails.
type Node interface {
	Name() string
	Execute(ctx context.Context, s ticket.State) (ticket.State, error)
}

// Generator is the model client contract nodes depend on.
type Generator interface {
	Generate(ctx context.Context, system, user, caller string) (*llm.Result, error)
}

// Deps are the shared collaborators injected into every node.
type Deps struct {
	LLM    Generator
	Tools  *tools.Registry
	Logger *zap.Logger
	Now    func() time.Time
}

// EscalationPhrases mark generated text that needs a human.
var EscalationPhrases = []string{
	"escalat",
	"human",
	"manual review",
	"legal",
	"compliance",
	"policy exception",
	"beyond my capability",
	"specialized expertise",
}

// NeedsHuman reports whether text contains an escalation phrase.
func NeedsHuman(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range EscalationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// base carries what every node shares.
type base struct {
	name   string
	llm    Generator
	tools  *tools.Toolbox
	logger *zap.Logger
	now    func() time.Time
}

func newBase(name string, d Deps) base {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	var box *tools.Toolbox
	if d.Tools != nil {
		box = d.Tools.ForNode(name)
	}
	return base{name: name, llm: d.LLM, tools: box, logger: logger.With(zap.String("node", name)), now: now}
}

// Name implements Node.
func (b base) Name() string { return b.name }

// use calls a tool when it is available to this node and records the call.
// ok is false when the tool is unavailable or failed. err is non-nil only
// when ctx ended, and the node must then fail instead of carrying on.
func (b base) use(ctx context.Context, calls *[]ticket.ToolCall, name string, in tools.Input) (out tools.Outcome, ok bool, err error) {
	if !b.tools.Has(name) {
		return tools.Outcome{}, false, cancelled(ctx, b.name)
	}
	out = b.tools.Execute(ctx, name, in)
	*calls = append(*calls, ticket.ToolCall{
		ToolName:      name,
		InputSummary:  in.Summary(),
		OutputSummary: out.Summary(),
		Succeeded:     out.Succeeded,
	})
	if err := cancelled(ctx, b.name); err != nil {
		return out, false, err
	}
	return out, out.Succeeded, nil
}

// cancelled reports a context that ended as a Cancelled failure.
func cancelled(ctx context.Context, caller string) error {
	if err := ctx.Err(); err != nil {
		return &llm.Error{Kind: llm.Cancelled, Caller: caller, Err: err}
	}
	return nil
}

// lookupCustomer fetches customer_info and returns the context enriched
// from the directory.
func (b base) lookupCustomer(ctx context.Context, calls *[]ticket.ToolCall, s ticket.State) (ticket.Customer, bool, error) {
	if s.Customer.ID == "" {
		return s.Customer, false, nil
	}
	out, ok, err := b.use(ctx, calls, tools.DatabaseQuery, tools.DatabaseInput{
		QueryType:  tools.QueryCustomerInfo,
		CustomerID: s.Customer.ID,
	})
	if err != nil || !ok {
		return s.Customer, false, err
	}
	info, isInfo := out.Result.(tools.CustomerInfo)
	if !isInfo || !info.Found {
		return s.Customer, false, nil
	}
	return s.Customer.Enrich(ticket.Customer{
		Tier:          ticket.ParseTier(info.Customer.Tier),
		Email:         info.Customer.Email,
		AccountStatus: info.Customer.AccountStatus,
		Name:          info.Customer.Name,
	}), true, nil
}

// generate calls the model with this node's name as the caller tag.
func (b base) generate(ctx context.Context, system, user string) (*llm.Result, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("%s: no model client configured", b.name)
	}
	return b.llm.Generate(ctx, system, user, b.name)
}

// failed appends the error interaction and returns the node error.
func (b base) failed(s ticket.State, calls []ticket.ToolCall, err error) (ticket.State, error) {
	s = s.WithInteraction(ticket.Interaction{
		NodeName:      b.name,
		Timestamp:     b.now(),
		Action:        ActionError,
		ToolCalls:     calls,
		ResultSummary: truncate(err.Error(), 200),
	})
	b.logger.Warn("node_failed",
		zap.String("ticket_id", s.TicketID),
		zap.String("correlation_id", s.CorrelationID),
		zap.Error(err),
	)
	return s, fmt.Errorf("%s node: %w", b.name, err)
}

// recordUsage stores the call's tokens and retries on the state.
func recordUsage(s ticket.State, node string, res *llm.Result) ticket.State {
	s = s.WithUsage(node, ticket.TokenUsage{Prompt: res.PromptTokens, Completion: res.CompletionTokens})
	if res.Attempts > 1 {
		s.Metadata.RetryCount += res.Attempts - 1
	}
	return s
}

// truncate cuts s to its first n characters, never inside a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
