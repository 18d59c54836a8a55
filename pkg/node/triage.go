package node

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/router"
	"github.com/zen-systems/ticketflow/pkg/ticket"
)

// TriageName is the classifier's node name.
const TriageName = "triage"

// Triage classifies a ticket into a routing decision.
type Triage struct {
	base
	rules *router.RuleSet
}

// NewTriage creates the classifier node. rules supplies the keyword hint
// shown to the model; nil uses the default triggers.
func NewTriage(d Deps, rules *router.RuleSet) *Triage {
	if rules == nil {
		rules = router.NewRuleSet(router.DefaultTriggers())
	}
	return &Triage{base: newBase(TriageName, d), rules: rules}
}

// Execute implements Node.
func (t *Triage) Execute(ctx context.Context, s ticket.State) (ticket.State, error) {
	var calls []ticket.ToolCall
	customer, ok, err := t.lookupCustomer(ctx, &calls, s)
	if err != nil {
		return t.failed(s, calls, err)
	}
	if ok {
		s = s.WithCustomer(customer)
	}

	res, err := t.generate(ctx, TriagePrompt, t.prompt(s))
	if err != nil {
		return t.failed(s, calls, err)
	}

	decision := router.Parse(res.Content)
	s = recordUsage(s.WithRouting(decision), t.name, res)
	s = s.WithInteraction(ticket.Interaction{
		NodeName:      t.name,
		Timestamp:     t.now(),
		Action:        ActionRoute,
		Reasoning:     decision.Reasoning,
		ToolCalls:     calls,
		ResultSummary: fmt.Sprintf("routed to %s (urgency %s, confidence %.2f)", decision.Target, decision.Urgency, decision.Confidence),
	})

	t.logger.Info("ticket_classified",
		zap.String("ticket_id", s.TicketID),
		zap.String("correlation_id", s.CorrelationID),
		zap.String("target", string(decision.Target)),
		zap.String("urgency", string(decision.Urgency)),
		zap.Float64("confidence", decision.Confidence),
	)
	return s, nil
}

func (t *Triage) prompt(s ticket.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket ID: %s\n", s.TicketID)
	fmt.Fprintf(&b, "Subject: %s\n", s.Content.Subject)
	fmt.Fprintf(&b, "Description: %s\n", oneLine(s.Content.Body))
	if s.Content.CategoryHint != "" {
		fmt.Fprintf(&b, "Category hint: %s\n", s.Content.CategoryHint)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Customer ID: %s\n", orNone(s.Customer.ID))
	fmt.Fprintf(&b, "Customer tier: %s\n", s.Customer.Tier)
	fmt.Fprintf(&b, "Customer status: %s\n", orNone(s.Customer.AccountStatus))

	suggestion := t.rules.Suggest(s.Content.Subject + " " + s.Content.Body)
	if suggestion.Matched {
		fmt.Fprintf(&b, "\nKeyword hint: %s\n", suggestion.Target)
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orNone(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
