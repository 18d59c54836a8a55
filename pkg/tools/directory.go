package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned by a Directory for unknown customers.
var ErrNotFound = errors.New("not found")

// CustomerRecord is a stored customer.
type CustomerRecord struct {
	CustomerID    string `json:"customer_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Tier          string `json:"tier"`
	AccountStatus string `json:"account_status"`
	JoinedDate    string `json:"joined_date,omitempty"`
}

// TicketRecord is a past ticket.
type TicketRecord struct {
	TicketID            string `json:"ticket_id"`
	Date                string `json:"date"`
	Subject             string `json:"subject"`
	Status              string `json:"status"`
	ResolutionTimeHours int    `json:"resolution_time_hours"`
}

// PaymentRecord is a past payment.
type PaymentRecord struct {
	PaymentID   string  `json:"payment_id"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
}

// Directory is the customer data source behind the database_query tool.
// History methods return newest first.
type Directory interface {
	Customer(ctx context.Context, customerID string) (CustomerRecord, error)
	Tickets(ctx context.Context, customerID string, limit int) ([]TicketRecord, error)
	Payments(ctx context.Context, customerID string, limit int) ([]PaymentRecord, error)
}

// MemoryDirectory serves fixed in-memory records.
type MemoryDirectory struct {
	customers map[string]CustomerRecord
	tickets   map[string][]TicketRecord
	payments  map[string][]PaymentRecord
}

// NewMemoryDirectory returns a directory seeded with sample customers.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		customers: map[string]CustomerRecord{
			"C12345": {CustomerID: "C12345", Name: "John Doe", Email: "john.doe@example.com", Tier: "pro", AccountStatus: "active", JoinedDate: "2023-01-15"},
			"C67890": {CustomerID: "C67890", Name: "Jane Smith", Email: "jane.smith@example.com", Tier: "enterprise", AccountStatus: "active", JoinedDate: "2022-06-10"},
		},
		tickets: map[string][]TicketRecord{
			"C12345": {
				{TicketID: "T-001", Date: "2024-11-20", Subject: "Password reset", Status: "resolved", ResolutionTimeHours: 2},
				{TicketID: "T-002", Date: "2024-12-01", Subject: "Billing question", Status: "resolved", ResolutionTimeHours: 4},
			},
			"C67890": {
				{TicketID: "T-003", Date: "2024-10-15", Subject: "Feature request", Status: "resolved", ResolutionTimeHours: 48},
			},
		},
		payments: map[string][]PaymentRecord{
			"C12345": {
				{PaymentID: "PAY-001", Date: "2024-11-01", Amount: 49.99, Status: "completed", Description: "Pro subscription - November"},
				{PaymentID: "PAY-002", Date: "2024-12-01", Amount: 49.99, Status: "completed", Description: "Pro subscription - December"},
			},
			"C67890": {
				{PaymentID: "PAY-003", Date: "2024-11-01", Amount: 199.99, Status: "completed", Description: "Enterprise subscription - November"},
			},
		},
	}
}

// AddCustomer inserts or replaces a customer.
func (d *MemoryDirectory) AddCustomer(c CustomerRecord) {
	d.customers[c.CustomerID] = c
}

// AddPayment appends a payment for a customer.
func (d *MemoryDirectory) AddPayment(customerID string, p PaymentRecord) {
	d.payments[customerID] = append(d.payments[customerID], p)
}

// Customer implements Directory.
func (d *MemoryDirectory) Customer(ctx context.Context, customerID string) (CustomerRecord, error) {
	if err := ctx.Err(); err != nil {
		return CustomerRecord{}, err
	}
	c, ok := d.customers[customerID]
	if !ok {
		return CustomerRecord{}, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	return c, nil
}

// Tickets implements Directory.
func (d *MemoryDirectory) Tickets(ctx context.Context, customerID string, limit int) ([]TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := append([]TicketRecord(nil), d.tickets[customerID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return head(out, limit), nil
}

// Payments implements Directory.
func (d *MemoryDirectory) Payments(ctx context.Context, customerID string, limit int) ([]PaymentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := append([]PaymentRecord(nil), d.payments[customerID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return head(out, limit), nil
}

func head[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// FormatPayments renders payments one per line for prompts.
func FormatPayments(payments []PaymentRecord) string {
	if len(payments) == 0 {
		return "No payment history found"
	}
	lines := make([]string, 0, len(payments))
	for _, p := range payments {
		lines = append(lines, fmt.Sprintf("- %s: $%.2f (%s) - %s", p.Date, p.Amount, p.Status, p.Description))
	}
	return strings.Join(lines, "\n")
}

// FormatTickets renders past tickets one per line for prompts.
func FormatTickets(tickets []TicketRecord) string {
	if len(tickets) == 0 {
		return "No previous tickets"
	}
	lines := make([]string, 0, len(tickets))
	for _, t := range tickets {
		lines = append(lines, fmt.Sprintf("- %s %s: %s (%s)", t.Date, t.TicketID, t.Subject, t.Status))
	}
	return strings.Join(lines, "\n")
}
