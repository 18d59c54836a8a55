package tools

import (
	"context"
	"errors"
	"fmt"
)

// Query types accepted by the database tool.
const (
	QueryCustomerInfo   = "customer_info"
	QueryTicketHistory  = "ticket_history"
	QueryPaymentHistory = "payment_history"
)

// DatabaseInput selects customer data.
type DatabaseInput struct {
	QueryType  string
	CustomerID string
	Limit      int
}

// Summary implements Input.
func (in DatabaseInput) Summary() string {
	return fmt.Sprintf("%s customer=%s limit=%d", in.QueryType, in.CustomerID, in.Limit)
}

// CustomerInfo is the customer_info result.
type CustomerInfo struct {
	Found    bool           `json:"found"`
	Customer CustomerRecord `json:"customer"`
}

func (c CustomerInfo) String() string {
	if !c.Found {
		return "customer not found"
	}
	return fmt.Sprintf("customer %s tier=%s status=%s", c.Customer.CustomerID, c.Customer.Tier, c.Customer.AccountStatus)
}

// TicketHistory is the ticket_history result.
type TicketHistory struct {
	Found   bool           `json:"found"`
	Tickets []TicketRecord `json:"tickets"`
}

func (h TicketHistory) String() string {
	return fmt.Sprintf("%d previous tickets", len(h.Tickets))
}

// PaymentHistory is the payment_history result.
type PaymentHistory struct {
	Found    bool            `json:"found"`
	Payments []PaymentRecord `json:"payments"`
}

func (h PaymentHistory) String() string {
	return fmt.Sprintf("%d payments", len(h.Payments))
}

// DatabaseTool answers customer data queries from a Directory.
type DatabaseTool struct {
	dir Directory
}

// NewDatabaseTool creates the database_query tool.
func NewDatabaseTool(dir Directory) *DatabaseTool {
	return &DatabaseTool{dir: dir}
}

// Name implements Tool.
func (t *DatabaseTool) Name() string { return DatabaseQuery }

// Description implements Tool.
func (t *DatabaseTool) Description() string {
	return "Query customer information, ticket history, or payment history"
}

// Execute implements Tool.
func (t *DatabaseTool) Execute(ctx context.Context, in Input) Outcome {
	q, isQuery := in.(DatabaseInput)
	if !isQuery {
		return unsupported(t.Name(), in)
	}
	if q.CustomerID == "" {
		return fail("customer id is required")
	}

	switch q.QueryType {
	case QueryCustomerInfo:
		c, err := t.dir.Customer(ctx, q.CustomerID)
		if errors.Is(err, ErrNotFound) {
			return ok(CustomerInfo{Found: false})
		}
		if err != nil {
			return fail("customer lookup: %v", err)
		}
		return ok(CustomerInfo{Found: true, Customer: c})
	case QueryTicketHistory:
		tickets, err := t.dir.Tickets(ctx, q.CustomerID, q.Limit)
		if err != nil {
			return fail("ticket history: %v", err)
		}
		return ok(TicketHistory{Found: len(tickets) > 0, Tickets: tickets})
	case QueryPaymentHistory:
		payments, err := t.dir.Payments(ctx, q.CustomerID, q.Limit)
		if err != nil {
			return fail("payment history: %v", err)
		}
		return ok(PaymentHistory{Found: len(payments) > 0, Payments: payments})
	default:
		return fail("unknown query type: %s", q.QueryType)
	}
}
