package node

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/ticketflow/pkg/adapter"
	"github.com/zen-systems/ticketflow/pkg/events"
	"github.com/zen-systems/ticketflow/pkg/llm"
	"github.com/zen-systems/ticketflow/pkg/ticket"
	"github.com/zen-systems/ticketflow/pkg/tools"
	"github.com/zen-systems/ticketflow/pkg/usage"
)

// scripted answers by system prompt and records every call.
type scripted struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   []string
	users   []string
}

func (s *scripted) Generate(_ context.Context, system, user, caller string) (*llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, caller)
	s.users = append(s.users, user)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Result{Content: s.replies[system], PromptTokens: 100, CompletionTokens: 20, Attempts: 2}, nil
}

func testDeps(t *testing.T, gen Generator) (Deps, *events.Memory) {
	t.Helper()
	pub := &events.Memory{}
	reg := tools.NewRegistry()
	tools.RegisterDefaults(reg, tools.Defaults{Publisher: pub})
	return Deps{LLM: gen, Tools: reg, Now: time.Now}, pub
}

func newState(customerID, subject, body string) ticket.State {
	return ticket.New("T-1", "corr-1", ticket.Customer{ID: customerID}, ticket.Content{Subject: subject, Body: body}, time.Now())
}

func TestNeedsHuman(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"This requires human review.", true},
		{"Escalating to the on-call team", true},
		{"Needs LEGAL sign-off", true},
		{"a policy exception applies", true},
		{"Your refund is on its way.", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsHuman(tt.text), tt.text)
	}
}

func TestTriageEnrichesAndRoutes(t *testing.T) {
	gen := &scripted{replies: map[string]string{
		TriagePrompt: "ROUTE: billing\nURGENCY: high\nCONFIDENCE: 0.9\nREASONING: Duplicate charge",
	}}
	d, _ := testDeps(t, gen)

	in := newState("C12345", "Charged twice", "I was charged twice this month")
	out, err := NewTriage(d, nil).Execute(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, out.Routing)
	assert.Equal(t, ticket.TargetBilling, out.Routing.Target)
	assert.Equal(t, ticket.UrgencyHigh, out.Routing.Urgency)
	assert.Equal(t, ticket.TierPro, out.Customer.Tier)
	assert.Equal(t, "john.doe@example.com", out.Customer.Email)

	require.Len(t, out.Interactions, 1)
	in0 := out.Interactions[0]
	assert.Equal(t, TriageName, in0.NodeName)
	assert.Equal(t, ActionRoute, in0.Action)
	require.Len(t, in0.ToolCalls, 1)
	assert.Equal(t, tools.DatabaseQuery, in0.ToolCalls[0].ToolName)

	assert.Equal(t, ticket.TokenUsage{Prompt: 100, Completion: 20}, out.Metadata.TokenUsage[TriageName])
	assert.Equal(t, 1, out.Metadata.RetryCount)
	assert.Empty(t, in.Interactions, "input state is not mutated")
	assert.Equal(t, []string{TriageName}, gen.calls)
}

func TestTriageUnparseableOutputEscalates(t *testing.T) {
	gen := &scripted{replies: map[string]string{TriagePrompt: "I am not sure what to do here."}}
	d, _ := testDeps(t, gen)

	out, err := NewTriage(d, nil).Execute(context.Background(), newState("", "hello", "???"))
	require.NoError(t, err)
	require.NotNil(t, out.Routing)
	assert.Equal(t, ticket.TargetEscalation, out.Routing.Target)
	require.Len(t, out.Interactions, 1)
	assert.Empty(t, out.Interactions[0].ToolCalls, "no customer id, no lookup")
}

func TestTriageFailureAppendsErrorInteraction(t *testing.T) {
	cause := &llm.Error{Kind: llm.ExhaustedRetries, Attempts: 3, Err: errors.New("timeout")}
	d, _ := testDeps(t, &scripted{err: cause})

	out, err := NewTriage(d, nil).Execute(context.Background(), newState("C12345", "x", "y"))
	require.Error(t, err)
	assert.Equal(t, llm.ExhaustedRetries, llm.KindOf(err))
	assert.Nil(t, out.Routing)
	require.Len(t, out.Interactions, 1)
	assert.Equal(t, ActionError, out.Interactions[0].Action)
	assert.Equal(t, 0, out.Metadata.ErrorCount, "the engine counts failures")
}

func TestBillingRefundsLatestPayment(t *testing.T) {
	gen := &scripted{replies: map[string]string{
		BillingPrompt: "Refund approved.\n" + RefundMarker,
	}}
	d, pub := testDeps(t, gen)

	in := newState("C12345", "Charged twice", "please refund")
	in = in.WithCustomer(ticket.Customer{Email: "john.doe@example.com"})
	out, err := NewBilling(d).Execute(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, out.Resolution)
	assert.Equal(t, ticket.StatusResolved, out.Resolution.Status)
	assert.False(t, out.Resolution.RequiresHuman)

	last, ok := out.LastInteraction()
	require.True(t, ok)
	assert.Equal(t, ActionResolve, last.Action)

	names := make([]string, 0, len(last.ToolCalls))
	for _, c := range last.ToolCalls {
		names = append(names, c.ToolName)
	}
	assert.Equal(t, []string{tools.DatabaseQuery, tools.PaymentGateway, tools.EmailSender}, names)
	assert.Contains(t, last.ToolCalls[1].InputSummary, "PAY-002")
	assert.Contains(t, last.Reasoning, "refunded PAY-002")

	sent := pub.Events()
	require.Len(t, sent, 1)
	assert.Equal(t, events.TypeNotificationEmail, sent[0].Type)
}

// cancelDuring cancels the run while the model call is in flight and then
// answers normally, as a backend that ignores cancellation would.
type cancelDuring struct {
	cancel context.CancelFunc
	reply  string
}

func (c *cancelDuring) Generate(context.Context, string, string, string) (*llm.Result, error) {
	c.cancel()
	return &llm.Result{Content: c.reply, PromptTokens: 10, CompletionTokens: 5, Attempts: 1}, nil
}

func TestBillingCancelledAfterGenerationFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, pub := testDeps(t, &cancelDuring{cancel: cancel, reply: "Your refund is on its way.\n" + RefundMarker})

	in := newState("C12345", "Charged twice", "please refund")
	in = in.WithCustomer(ticket.Customer{Email: "john.doe@example.com"})
	out, err := NewBilling(d).Execute(ctx, in)
	require.Error(t, err)
	assert.Equal(t, llm.Cancelled, llm.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Nil(t, out.Resolution, "a cancelled run is not resolved")
	last, ok := out.LastInteraction()
	require.True(t, ok)
	assert.Equal(t, ActionError, last.Action)
	require.Len(t, last.ToolCalls, 2)
	assert.Equal(t, tools.PaymentGateway, last.ToolCalls[1].ToolName)
	assert.False(t, last.ToolCalls[1].Succeeded)
	assert.Empty(t, pub.Events(), "no email after cancellation")
}

func TestTechnicalCancelledBeforeEmailFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, pub := testDeps(t, &cancelDuring{cancel: cancel, reply: "Clear your cache and retry."})

	in := newState("", "Login loop", "the page keeps reloading")
	in = in.WithCustomer(ticket.Customer{Email: "jane@example.com"})
	out, err := NewTechnical(d).Execute(ctx, in)
	require.Error(t, err)
	assert.Equal(t, llm.Cancelled, llm.KindOf(err))
	assert.Nil(t, out.Resolution)
	require.Len(t, out.Interactions, 1)
	assert.Equal(t, ActionError, out.Interactions[0].Action)
	assert.Empty(t, pub.Events())
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "日本", truncate("日本語テキスト", 2))

	long := strings.Repeat("é", emailBodyLimit+20)
	got := truncate(long, emailBodyLimit)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, emailBodyLimit, utf8.RuneCountInString(got))
}

func TestBillingWithoutMarkerDoesNotRefund(t *testing.T) {
	gen := &scripted{replies: map[string]string{BillingPrompt: "Everything looks fine."}}
	d, _ := testDeps(t, gen)

	out, err := NewBilling(d).Execute(context.Background(), newState("C12345", "invoice", "question"))
	require.NoError(t, err)
	last, _ := out.LastInteraction()
	for _, c := range last.ToolCalls {
		assert.NotEqual(t, tools.PaymentGateway, c.ToolName)
	}
}

func TestSpecialistEscalatesOnKeyword(t *testing.T) {
	gen := &scripted{replies: map[string]string{
		TechnicalPrompt: "This outage requires human review by the platform team.",
	}}
	d, _ := testDeps(t, gen)

	out, err := NewTechnical(d).Execute(context.Background(), newState("C12345", "API down", "500 errors"))
	require.NoError(t, err)
	require.NotNil(t, out.Resolution)
	assert.Equal(t, ticket.StatusEscalated, out.Resolution.Status)
	assert.True(t, out.Resolution.RequiresHuman)

	last, _ := out.LastInteraction()
	assert.Equal(t, ActionTroubleshoot, last.Action)
	require.NotEmpty(t, last.ToolCalls)
	assert.Equal(t, tools.KnowledgeBase, last.ToolCalls[0].ToolName)
}

func TestAccountUsesCustomerLookup(t *testing.T) {
	gen := &scripted{replies: map[string]string{AccountPrompt: "Reset link sent."}}
	d, pub := testDeps(t, gen)

	out, err := NewAccount(d).Execute(context.Background(), newState("C67890", "Can't log in", "password"))
	require.NoError(t, err)
	assert.Equal(t, ticket.TierEnterprise, out.Customer.Tier)
	assert.Equal(t, ticket.StatusResolved, out.Resolution.Status)
	require.Len(t, pub.Events(), 1, "confirmation goes to the enriched email")
}

func TestEscalationGathersHistory(t *testing.T) {
	gen := &scripted{replies: map[string]string{
		EscalationPrompt: "A human specialist will take over.",
	}}
	d, _ := testDeps(t, gen)

	in := newState("C12345", "weird", "something odd")
	in = in.WithInteraction(ticket.Interaction{NodeName: TriageName, Action: ActionRoute, Reasoning: "unclear"})
	out, err := NewEscalation(d).Execute(context.Background(), in)
	require.NoError(t, err)

	last, _ := out.LastInteraction()
	assert.Equal(t, ActionEscalate, last.Action)
	assert.Equal(t, ticket.StatusEscalated, out.Resolution.Status)

	var queries []string
	for _, c := range last.ToolCalls {
		queries = append(queries, c.ToolName+":"+strings.Fields(c.InputSummary)[0])
	}
	assert.Contains(t, queries, tools.DatabaseQuery+":"+tools.QueryCustomerInfo)
	assert.Contains(t, queries, tools.DatabaseQuery+":"+tools.QueryTicketHistory)
	assert.Len(t, out.Interactions, 2)
}

func TestEscalationLooksUpCitedPayments(t *testing.T) {
	gen := &scripted{replies: map[string]string{EscalationPrompt: "A human will review the charge."}}
	d, _ := testDeps(t, gen)

	in := newState("C67890", "Charge dispute", "I dispute pay-003 and PAY-003, also PAY-999")
	out, err := NewEscalation(d).Execute(context.Background(), in)
	require.NoError(t, err)

	last, _ := out.LastInteraction()
	var queried []string
	for _, c := range last.ToolCalls {
		if c.ToolName == tools.PaymentGateway {
			queried = append(queried, c.InputSummary)
		}
	}
	assert.Equal(t, []string{"query PAY-003", "query PAY-999"}, queried)

	require.Len(t, gen.users, 1)
	assert.Contains(t, gen.users[0], "- PAY-003: completed $199.99")
	assert.Contains(t, gen.users[0], "PAY-999")
	assert.Contains(t, gen.users[0], "not found")
}

func TestEscalationResolvesComplex(t *testing.T) {
	gen := &scripted{replies: map[string]string{EscalationPrompt: "Fixed the configuration for you."}}
	d, _ := testDeps(t, gen)

	out, err := NewEscalation(d).Execute(context.Background(), newState("", "odd", "thing"))
	require.NoError(t, err)
	last, _ := out.LastInteraction()
	assert.Equal(t, ActionResolveComplex, last.Action)
	assert.Equal(t, ticket.StatusResolved, out.Resolution.Status)
}

func TestSpecialistsTable(t *testing.T) {
	d, _ := testDeps(t, &scripted{})
	table := Specialists(d)
	require.Len(t, table, len(ticket.Targets))
	for _, target := range ticket.Targets {
		n, ok := table[target]
		require.True(t, ok, target)
		assert.Equal(t, string(target), n.Name())
	}
}

func TestMockResponderDrivesNodes(t *testing.T) {
	backend := adapter.NewMockAdapter(adapter.WithResponder(MockResponder(nil)))
	client := llm.New(backend, usage.NewTracker(nil), llm.WithModel("mock-1"))
	d, _ := testDeps(t, client)

	s := newState("C12345", "I was charged twice", "Please refund the duplicate charge")
	s, err := NewTriage(d, nil).Execute(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, ticket.TargetBilling, s.Routing.Target)
	assert.InDelta(t, 0.92, s.Routing.Confidence, 1e-9)

	s, err = NewBilling(d).Execute(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusResolved, s.Resolution.Status)
	last, _ := s.LastInteraction()
	assert.Equal(t, tools.PaymentGateway, last.ToolCalls[1].ToolName)
	assert.Greater(t, s.TotalTokens(), 0)
}

func TestMockResponderUnroutable(t *testing.T) {
	reply := MockResponder(nil)(adapter.Request{System: TriagePrompt, Prompt: "Subject: hello\nDescription: lorem ipsum\n"})
	assert.Contains(t, reply, "ROUTE: escalation")
	assert.Contains(t, reply, "CONFIDENCE: 0.60")
}
