// Package ticket holds the request state threaded through the workflow.
//
// A State is a value. Nodes receive a copy, append to it, and return it;
// Clone guarantees that slices and maps are never shared between copies.
package ticket

import (
	"fmt"
	"time"
)

// Tier is the customer's plan.
type Tier string

const (
	TierUnknown    Tier = "unknown"
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// ParseTier maps free text onto a Tier, defaulting to TierUnknown.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierFree, TierPro, TierEnterprise:
		return Tier(s)
	}
	return TierUnknown
}

// Target is a specialist identity.
type Target string

const (
	TargetBilling    Target = "billing"
	TargetTechnical  Target = "technical"
	TargetAccount    Target = "account"
	TargetEscalation Target = "escalation"
)

// Targets lists every specialist in routing-table order.
var Targets = []Target{TargetBilling, TargetTechnical, TargetAccount, TargetEscalation}

// Valid reports whether t names a specialist.
func (t Target) Valid() bool {
	switch t {
	case TargetBilling, TargetTechnical, TargetAccount, TargetEscalation:
		return true
	}
	return false
}

// Urgency is the classifier's priority assessment.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Status is the resolution outcome.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
	StatusError     Status = "error"
)

// Customer is the customer context. Enrichment only ever fills fields.
type Customer struct {
	ID            string `json:"customer_id"`
	Tier          Tier   `json:"tier"`
	Email         string `json:"email,omitempty"`
	AccountStatus string `json:"account_status,omitempty"`
	Name          string `json:"name,omitempty"`
}

// Enrich returns c updated from other, a directory record. A known tier
// and an account status in other replace c's; email and name only fill
// gaps. Existing values are never cleared.
func (c Customer) Enrich(other Customer) Customer {
	if other.Tier != "" && other.Tier != TierUnknown {
		c.Tier = other.Tier
	} else if c.Tier == "" {
		c.Tier = TierUnknown
	}
	if c.Email == "" {
		c.Email = other.Email
	}
	if other.AccountStatus != "" {
		c.AccountStatus = other.AccountStatus
	}
	if c.Name == "" {
		c.Name = other.Name
	}
	return c
}

// Content is the customer's request. It does not change after creation.
type Content struct {
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	CategoryHint string `json:"category_hint,omitempty"`
}

// RoutingDecision is the parsed classifier output.
type RoutingDecision struct {
	Target     Target  `json:"target"`
	Urgency    Urgency `json:"urgency"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ToolCall records one capability invocation.
type ToolCall struct {
	ToolName      string `json:"tool_name"`
	InputSummary  string `json:"input_summary"`
	OutputSummary string `json:"output_summary"`
	Succeeded     bool   `json:"succeeded"`
}

// Interaction records one node execution.
type Interaction struct {
	NodeName      string     `json:"node_name"`
	Timestamp     time.Time  `json:"timestamp"`
	Action        string     `json:"action"`
	Reasoning     string     `json:"reasoning,omitempty"`
	ToolCalls     []ToolCall `json:"tool_calls"`
	ResultSummary string     `json:"result_summary"`
}

// Resolution is the specialist's outcome.
type Resolution struct {
	Status        Status `json:"status"`
	Response      string `json:"response,omitempty"`
	RequiresHuman bool   `json:"requires_human"`
}

// NewResolution builds a resolution whose RequiresHuman follows the status:
// escalated and error both require a human.
func NewResolution(status Status, response string) Resolution {
	return Resolution{
		Status:        status,
		Response:      response,
		RequiresHuman: status == StatusEscalated || status == StatusError,
	}
}

// TokenUsage is the token count attributed to one node.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
}

// Metadata carries run-level counters.
type Metadata struct {
	TokenUsage  map[string]TokenUsage `json:"token_usage"`
	RetryCount  int                   `json:"retry_count"`
	ErrorCount  int                   `json:"error_count"`
	Latency     time.Duration         `json:"latency"`
	ProcessedAt time.Time             `json:"processed_at,omitempty"`
}

// State is the request record for one workflow run.
type State struct {
	TicketID      string           `json:"ticket_id"`
	CorrelationID string           `json:"correlation_id"`
	CreatedAt     time.Time        `json:"created_at"`
	Customer      Customer         `json:"customer_context"`
	Content       Content          `json:"request_content"`
	Routing       *RoutingDecision `json:"routing_decision,omitempty"`
	Interactions  []Interaction    `json:"interaction_log"`
	Resolution    *Resolution      `json:"resolution,omitempty"`
	Metadata      Metadata         `json:"metadata"`
}

// New creates the initial state for a run.
func New(ticketID, correlationID string, customer Customer, content Content, now time.Time) State {
	if customer.Tier == "" {
		customer.Tier = TierUnknown
	}
	return State{
		TicketID:      ticketID,
		CorrelationID: correlationID,
		CreatedAt:     now,
		Customer:      customer,
		Content:       content,
		Interactions:  []Interaction{},
		Metadata:      Metadata{TokenUsage: map[string]TokenUsage{}},
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Routing != nil {
		r := *s.Routing
		out.Routing = &r
	}
	if s.Resolution != nil {
		r := *s.Resolution
		out.Resolution = &r
	}
	out.Interactions = make([]Interaction, len(s.Interactions))
	for i, in := range s.Interactions {
		in.ToolCalls = append([]ToolCall(nil), in.ToolCalls...)
		out.Interactions[i] = in
	}
	out.Metadata.TokenUsage = make(map[string]TokenUsage, len(s.Metadata.TokenUsage))
	for k, v := range s.Metadata.TokenUsage {
		out.Metadata.TokenUsage[k] = v
	}
	return out
}

// WithInteraction returns a copy with in appended to the log.
func (s State) WithInteraction(in Interaction) State {
	out := s.Clone()
	in.ToolCalls = append([]ToolCall(nil), in.ToolCalls...)
	out.Interactions = append(out.Interactions, in)
	return out
}

// WithRouting returns a copy carrying d.
func (s State) WithRouting(d RoutingDecision) State {
	out := s.Clone()
	out.Routing = &d
	return out
}

// WithResolution returns a copy carrying r.
func (s State) WithResolution(r Resolution) State {
	out := s.Clone()
	out.Resolution = &r
	return out
}

// WithUsage returns a copy with node's token usage recorded. An existing
// entry for node is kept; the new one is stored under a numbered key.
func (s State) WithUsage(node string, u TokenUsage) State {
	out := s.Clone()
	key := node
	for i := 2; ; i++ {
		if _, exists := out.Metadata.TokenUsage[key]; !exists {
			break
		}
		key = fmt.Sprintf("%s#%d", node, i)
	}
	out.Metadata.TokenUsage[key] = u
	return out
}

// WithCustomer returns a copy with the customer context enriched from c.
func (s State) WithCustomer(c Customer) State {
	out := s.Clone()
	out.Customer = out.Customer.Enrich(c)
	return out
}

// TotalTokens sums token usage across nodes.
func (s State) TotalTokens() int {
	total := 0
	for _, u := range s.Metadata.TokenUsage {
		total += u.Prompt + u.Completion
	}
	return total
}

// LastInteraction returns the most recent interaction, if any.
func (s State) LastInteraction() (Interaction, bool) {
	if len(s.Interactions) == 0 {
		return Interaction{}, false
	}
	return s.Interactions[len(s.Interactions)-1], true
}
