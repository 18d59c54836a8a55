package node

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/ticket"
	"github.com/zen-systems/ticketflow/pkg/tools"
)

const emailBodyLimit = 500

// Specialists returns the handler table keyed by routing target.
func Specialists(d Deps) map[ticket.Target]Node {
	return map[ticket.Target]Node{
		ticket.TargetBilling:    NewBilling(d),
		ticket.TargetTechnical:  NewTechnical(d),
		ticket.TargetAccount:    NewAccount(d),
		ticket.TargetEscalation: NewEscalation(d),
	}
}

// outcome is what a specialist hands to finish.
type outcome struct {
	text      string
	action    string
	reasoning string
	calls     []ticket.ToolCall
}

// finish notifies the customer, sets the resolution and appends the
// specialist's interaction.
func (b base) finish(ctx context.Context, s ticket.State, o outcome) (ticket.State, error) {
	escalated := NeedsHuman(o.text)
	status := ticket.StatusResolved
	if escalated {
		status = ticket.StatusEscalated
	}

	if s.Customer.Email != "" {
		subject := "Re: " + s.Content.Subject
		if escalated {
			subject = "Your ticket " + s.TicketID + " has been escalated"
		}
		if _, _, err := b.use(ctx, &o.calls, tools.EmailSender, tools.EmailInput{
			To:      s.Customer.Email,
			Subject: subject,
			Body:    truncate(o.text, emailBodyLimit),
		}); err != nil {
			return b.failed(s, o.calls, err)
		}
	}

	summary := "issue resolved"
	if escalated {
		summary = "escalated for human review"
	}
	s = s.WithResolution(ticket.NewResolution(status, o.text))
	s = s.WithInteraction(ticket.Interaction{
		NodeName:      b.name,
		Timestamp:     b.now(),
		Action:        o.action,
		Reasoning:     o.reasoning,
		ToolCalls:     o.calls,
		ResultSummary: summary,
	})

	b.logger.Info("ticket_handled",
		zap.String("ticket_id", s.TicketID),
		zap.String("correlation_id", s.CorrelationID),
		zap.String("status", string(status)),
		zap.Int("tool_calls", len(o.calls)),
	)
	return s, nil
}

// ticketBlock renders the ticket and customer for specialist prompts.
func ticketBlock(s ticket.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket ID: %s\n", s.TicketID)
	fmt.Fprintf(&b, "Subject: %s\n", s.Content.Subject)
	fmt.Fprintf(&b, "Description: %s\n", oneLine(s.Content.Body))
	fmt.Fprintf(&b, "Customer ID: %s\n", orNone(s.Customer.ID))
	fmt.Fprintf(&b, "Customer tier: %s\n", s.Customer.Tier)
	if s.Routing != nil {
		fmt.Fprintf(&b, "Urgency: %s\n", s.Routing.Urgency)
	}
	return b.String()
}

// Billing resolves charges and refunds.
type Billing struct{ base }

// NewBilling creates the billing specialist.
func NewBilling(d Deps) *Billing {
	return &Billing{base: newBase(string(ticket.TargetBilling), d)}
}

// RefundMarker in billing output triggers a refund of the latest payment.
const RefundMarker = "ACTION: PROCESS_REFUND"

// Execute implements Node.
func (n *Billing) Execute(ctx context.Context, s ticket.State) (ticket.State, error) {
	var calls []ticket.ToolCall
	var payments []tools.PaymentRecord
	if s.Customer.ID != "" {
		out, ok, err := n.use(ctx, &calls, tools.DatabaseQuery, tools.DatabaseInput{
			QueryType:  tools.QueryPaymentHistory,
			CustomerID: s.Customer.ID,
			Limit:      5,
		})
		if err != nil {
			return n.failed(s, calls, err)
		}
		if ok {
			if h, isHistory := out.Result.(tools.PaymentHistory); isHistory {
				payments = h.Payments
			}
		}
	}

	prompt := ticketBlock(s) + "\nPayment history:\n" + tools.FormatPayments(payments)
	res, err := n.generate(ctx, BillingPrompt, prompt)
	if err != nil {
		return n.failed(s, calls, err)
	}
	s = recordUsage(s, n.name, res)

	reasoning := fmt.Sprintf("reviewed %d payments", len(payments))
	if strings.Contains(res.Content, RefundMarker) && len(payments) > 0 {
		latest := payments[0]
		_, ok, err := n.use(ctx, &calls, tools.PaymentGateway, tools.RefundInput{
			PaymentID:  latest.PaymentID,
			CustomerID: s.Customer.ID,
			Amount:     latest.Amount,
			Reason:     s.Content.Subject,
		})
		if err != nil {
			return n.failed(s, calls, err)
		}
		if ok {
			reasoning += "; refunded " + latest.PaymentID
		}
	}

	return n.finish(ctx, s, outcome{
		text:      res.Content,
		action:    ActionResolve,
		reasoning: reasoning,
		calls:     calls,
	})
}

// Technical troubleshoots with the knowledge base.
type Technical struct{ base }

// NewTechnical creates the technical specialist.
func NewTechnical(d Deps) *Technical {
	return &Technical{base: newBase(string(ticket.TargetTechnical), d)}
}

// Execute implements Node.
func (n *Technical) Execute(ctx context.Context, s ticket.State) (ticket.State, error) {
	var calls []ticket.ToolCall
	articles := tools.SearchResult{}
	out, ok, err := n.use(ctx, &calls, tools.KnowledgeBase, tools.KnowledgeInput{
		Query:      s.Content.Subject + " " + s.Content.Body,
		Category:   "technical",
		MaxResults: 3,
	})
	if err != nil {
		return n.failed(s, calls, err)
	}
	if ok {
		if r, isResult := out.Result.(tools.SearchResult); isResult {
			articles = r
		}
	}

	prompt := ticketBlock(s) + "\nRelevant articles:\n" + articles.Format()
	res, err := n.generate(ctx, TechnicalPrompt, prompt)
	if err != nil {
		return n.failed(s, calls, err)
	}
	s = recordUsage(s, n.name, res)

	return n.finish(ctx, s, outcome{
		text:      res.Content,
		action:    ActionTroubleshoot,
		reasoning: fmt.Sprintf("consulted %d articles", len(articles.Articles)),
		calls:     calls,
	})
}

// Account handles access and profile requests.
type Account struct{ base }

// NewAccount creates the account specialist.
func NewAccount(d Deps) *Account {
	return &Account{base: newBase(string(ticket.TargetAccount), d)}
}

// Execute implements Node.
func (n *Account) Execute(ctx context.Context, s ticket.State) (ticket.State, error) {
	var calls []ticket.ToolCall
	customer, ok, err := n.lookupCustomer(ctx, &calls, s)
	if err != nil {
		return n.failed(s, calls, err)
	}
	if ok {
		s = s.WithCustomer(customer)
	}

	prompt := ticketBlock(s) + fmt.Sprintf("Account status: %s\nEmail on file: %s\n",
		orNone(s.Customer.AccountStatus), orNone(s.Customer.Email))
	res, err := n.generate(ctx, AccountPrompt, prompt)
	if err != nil {
		return n.failed(s, calls, err)
	}
	s = recordUsage(s, n.name, res)

	return n.finish(ctx, s, outcome{
		text:      res.Content,
		action:    ActionResolve,
		reasoning: "account status " + orNone(s.Customer.AccountStatus),
		calls:     calls,
	})
}

// Escalation is the default handler for anything the others cannot take.
type Escalation struct{ base }

// NewEscalation creates the escalation specialist.
func NewEscalation(d Deps) *Escalation {
	return &Escalation{base: newBase(string(ticket.TargetEscalation), d)}
}

// Execute implements Node.
func (n *Escalation) Execute(ctx context.Context, s ticket.State) (ticket.State, error) {
	var calls []ticket.ToolCall
	customer, ok, err := n.lookupCustomer(ctx, &calls, s)
	if err != nil {
		return n.failed(s, calls, err)
	}
	if ok {
		s = s.WithCustomer(customer)
	}

	history := tools.FormatTickets(nil)
	if s.Customer.ID != "" {
		out, ok, err := n.use(ctx, &calls, tools.DatabaseQuery, tools.DatabaseInput{
			QueryType:  tools.QueryTicketHistory,
			CustomerID: s.Customer.ID,
			Limit:      10,
		})
		if err != nil {
			return n.failed(s, calls, err)
		}
		if ok {
			if h, isHistory := out.Result.(tools.TicketHistory); isHistory {
				history = tools.FormatTickets(h.Tickets)
			}
		}
	}

	articles := tools.SearchResult{}
	out, ok, err := n.use(ctx, &calls, tools.KnowledgeBase, tools.KnowledgeInput{
		Query:      s.Content.Subject,
		MaxResults: 5,
	})
	if err != nil {
		return n.failed(s, calls, err)
	}
	if ok {
		if r, isResult := out.Result.(tools.SearchResult); isResult {
			articles = r
		}
	}

	var cited []string
	if s.Customer.ID != "" {
		for _, id := range citedPayments(s.Content) {
			out, ok, err := n.use(ctx, &calls, tools.PaymentGateway, tools.PaymentQueryInput{
				PaymentID:  id,
				CustomerID: s.Customer.ID,
			})
			if err != nil {
				return n.failed(s, calls, err)
			}
			if !ok {
				cited = append(cited, fmt.Sprintf("- %s: %s", id, out.Summary()))
				continue
			}
			if p, isStatus := out.Result.(tools.PaymentStatus); isStatus {
				cited = append(cited, fmt.Sprintf("- %s: %s $%.2f", p.PaymentID, p.Status, p.Amount))
			}
		}
	}

	var b strings.Builder
	b.WriteString(ticketBlock(s))
	b.WriteString("\nPrevious tickets:\n")
	b.WriteString(history)
	b.WriteString("\n\nRelevant articles:\n")
	b.WriteString(articles.Format())
	if len(cited) > 0 {
		b.WriteString("\n\nCited payments:\n")
		b.WriteString(strings.Join(cited, "\n"))
	}
	b.WriteString("\n\nRouting notes:\n")
	b.WriteString(routingNotes(s))

	res, err := n.generate(ctx, EscalationPrompt, b.String())
	if err != nil {
		return n.failed(s, calls, err)
	}
	s = recordUsage(s, n.name, res)

	action := ActionResolveComplex
	if NeedsHuman(res.Content) {
		action = ActionEscalate
	}
	return n.finish(ctx, s, outcome{
		text:      res.Content,
		action:    action,
		reasoning: "reviewed customer history and routing notes",
		calls:     calls,
	})
}

var paymentRef = regexp.MustCompile(`\bPAY-\d+\b`)

// maxCitedPayments bounds the payment lookups for one ticket.
const maxCitedPayments = 3

// citedPayments returns the distinct payment ids the customer mentions.
func citedPayments(c ticket.Content) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range paymentRef.FindAllString(strings.ToUpper(c.Subject+" "+c.Body), -1) {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) == maxCitedPayments {
			break
		}
	}
	return ids
}

func routingNotes(s ticket.State) string {
	var lines []string
	for _, in := range s.Interactions {
		if in.Reasoning == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", in.NodeName, in.Action, in.Reasoning))
	}
	if len(lines) == 0 {
		return "none"
	}
	return strings.Join(lines, "\n")
}
