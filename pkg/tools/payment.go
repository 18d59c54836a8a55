package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RefundInput requests a refund of one payment.
type RefundInput struct {
	PaymentID  string
	CustomerID string
	Amount     float64
	Reason     string
}

// Summary implements Input.
func (in RefundInput) Summary() string {
	return fmt.Sprintf("refund %s $%.2f", in.PaymentID, in.Amount)
}

// PaymentQueryInput asks for the status of one of a customer's payments.
type PaymentQueryInput struct {
	PaymentID  string
	CustomerID string
}

// Summary implements Input.
func (in PaymentQueryInput) Summary() string {
	return "query " + in.PaymentID
}

// RefundResult is a processed refund.
type RefundResult struct {
	RefundID         string  `json:"refund_id"`
	PaymentID        string  `json:"payment_id"`
	Amount           float64 `json:"amount"`
	Status           string  `json:"status"`
	EstimatedArrival string  `json:"estimated_arrival"`
}

func (r RefundResult) String() string {
	return fmt.Sprintf("refund %s of $%.2f for %s %s", r.RefundID, r.Amount, r.PaymentID, r.Status)
}

// PaymentStatus describes one payment.
type PaymentStatus struct {
	PaymentID string  `json:"payment_id"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	Refunded  bool    `json:"refunded"`
}

// PaymentTool is a simulated payment gateway. Payment status queries read
// the customer's payments from the directory.
type PaymentTool struct {
	directory Directory
	faults    *Faults
	mu        sync.Mutex
	refunded  map[string]string
}

// NewPaymentTool creates the payment_gateway tool. A nil directory uses the
// in-memory sample data; faults may be nil.
func NewPaymentTool(dir Directory, faults *Faults) *PaymentTool {
	if dir == nil {
		dir = NewMemoryDirectory()
	}
	return &PaymentTool{directory: dir, faults: faults, refunded: make(map[string]string)}
}

// Name implements Tool.
func (t *PaymentTool) Name() string { return PaymentGateway }

// Description implements Tool.
func (t *PaymentTool) Description() string { return "Process refunds and query payment status" }

// Execute implements Tool.
func (t *PaymentTool) Execute(ctx context.Context, in Input) Outcome {
	if err := ctx.Err(); err != nil {
		return fail("payment gateway: %v", err)
	}
	switch req := in.(type) {
	case RefundInput:
		return t.refund(req)
	case PaymentQueryInput:
		return t.query(ctx, req)
	default:
		return unsupported(t.Name(), in)
	}
}

func (t *PaymentTool) refund(req RefundInput) Outcome {
	if req.PaymentID == "" {
		return fail("payment id is required")
	}
	if req.Amount <= 0 {
		return fail("refund amount must be positive")
	}
	if t.faults.Fail() {
		return fail("payment gateway temporarily unavailable")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if prior, done := t.refunded[req.PaymentID]; done {
		return fail("payment %s already refunded by %s", req.PaymentID, prior)
	}
	id := "REF-" + strings.ToUpper(uuid.NewString()[:8])
	t.refunded[req.PaymentID] = id

	return ok(RefundResult{
		RefundID:         id,
		PaymentID:        req.PaymentID,
		Amount:           req.Amount,
		Status:           "processed",
		EstimatedArrival: "3-5 business days",
	})
}

func (t *PaymentTool) query(ctx context.Context, req PaymentQueryInput) Outcome {
	if req.PaymentID == "" || req.CustomerID == "" {
		return fail("payment id and customer id are required")
	}
	payments, err := t.directory.Payments(ctx, req.CustomerID, 0)
	if err != nil {
		return fail("payment lookup: %v", err)
	}
	for _, p := range payments {
		if p.PaymentID != req.PaymentID {
			continue
		}
		t.mu.Lock()
		_, refunded := t.refunded[p.PaymentID]
		t.mu.Unlock()

		status := p.Status
		if refunded {
			status = "refunded"
		}
		return ok(PaymentStatus{PaymentID: p.PaymentID, Status: status, Amount: p.Amount, Refunded: refunded})
	}
	return fail("payment %s not found for customer %s", req.PaymentID, req.CustomerID)
}
