package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() State {
	return New("T-1", "corr-1",
		Customer{ID: "C12345", Email: "a@example.com"},
		Content{Subject: "s", Body: "b"},
		time.Unix(0, 0))
}

func TestNewDefaultsTier(t *testing.T) {
	s := newState()
	assert.Equal(t, TierUnknown, s.Customer.Tier)
	assert.Empty(t, s.Interactions)
	assert.NotNil(t, s.Metadata.TokenUsage)
	assert.Nil(t, s.Routing)
	assert.Nil(t, s.Resolution)
}

func TestWithInteractionDoesNotAlias(t *testing.T) {
	base := newState()
	a := base.WithInteraction(Interaction{NodeName: "triage", ToolCalls: []ToolCall{{ToolName: "database_query"}}})
	b := a.WithInteraction(Interaction{NodeName: "billing"})

	assert.Empty(t, base.Interactions)
	require.Len(t, a.Interactions, 1)
	require.Len(t, b.Interactions, 2)

	b.Interactions[0].ToolCalls[0].ToolName = "changed"
	assert.Equal(t, "database_query", a.Interactions[0].ToolCalls[0].ToolName)
}

func TestWithUsageNeverOverwrites(t *testing.T) {
	s := newState().
		WithUsage("triage", TokenUsage{Prompt: 10, Completion: 5}).
		WithUsage("triage", TokenUsage{Prompt: 1, Completion: 1})

	assert.Equal(t, TokenUsage{Prompt: 10, Completion: 5}, s.Metadata.TokenUsage["triage"])
	assert.Equal(t, TokenUsage{Prompt: 1, Completion: 1}, s.Metadata.TokenUsage["triage#2"])
	assert.Equal(t, 17, s.TotalTokens())
}

func TestCustomerEnrichKeepsFields(t *testing.T) {
	c := Customer{ID: "C1", Tier: TierUnknown, Email: "mine@example.com"}

	got := c.Enrich(Customer{Tier: TierPro, Email: "other@example.com", AccountStatus: "active", Name: "John"})

	assert.Equal(t, "C1", got.ID)
	assert.Equal(t, TierPro, got.Tier)
	assert.Equal(t, "mine@example.com", got.Email)
	assert.Equal(t, "active", got.AccountStatus)
	assert.Equal(t, "John", got.Name)

	again := got.Enrich(Customer{})
	assert.Equal(t, got, again)
}

func TestCustomerEnrichDirectoryTierWins(t *testing.T) {
	declared := Customer{ID: "C12345", Tier: TierEnterprise}

	got := declared.Enrich(Customer{Tier: TierPro})
	assert.Equal(t, TierPro, got.Tier)

	kept := declared.Enrich(Customer{Tier: TierUnknown})
	assert.Equal(t, TierEnterprise, kept.Tier, "an unknown tier does not overwrite")
}

func TestNewResolutionRequiresHuman(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusResolved, false},
		{StatusPending, false},
		{StatusEscalated, true},
		{StatusError, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewResolution(tt.status, "").RequiresHuman, string(tt.status))
	}
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierPro, ParseTier("pro"))
	assert.Equal(t, TierEnterprise, ParseTier("enterprise"))
	assert.Equal(t, TierUnknown, ParseTier("platinum"))
	assert.Equal(t, TierUnknown, ParseTier(""))
}

func TestTargetValid(t *testing.T) {
	for _, target := range Targets {
		assert.True(t, target.Valid())
	}
	assert.False(t, Target("sales").Valid())
}
