package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/zen-systems/ticketflow/pkg/ticket"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ticket.RoutingDecision
	}{
		{
			name: "multi line",
			raw:  "ROUTE: billing_agent\nURGENCY: high\nCONFIDENCE: 0.95\nREASONING: Duplicate charge\n",
			want: ticket.RoutingDecision{Target: ticket.TargetBilling, Urgency: ticket.UrgencyHigh, Confidence: 0.95, Reasoning: "Duplicate charge"},
		},
		{
			name: "single line with separators",
			raw:  "ROUTE: technical_agent | URGENCY: critical | CONFIDENCE: 0.88 | REASONING: Technical issue reported",
			want: ticket.RoutingDecision{Target: ticket.TargetTechnical, Urgency: ticket.UrgencyCritical, Confidence: 0.88, Reasoning: "Technical issue reported"},
		},
		{
			name: "reasoning before other fields",
			raw:  "REASONING: login trouble | ROUTE: account | URGENCY: low | CONFIDENCE: 0.7",
			want: ticket.RoutingDecision{Target: ticket.TargetAccount, Urgency: ticket.UrgencyLow, Confidence: 0.7, Reasoning: "login trouble"},
		},
		{
			name: "case insensitive keys and values",
			raw:  "route: ACCOUNT\nurgency: Medium\nconfidence: 1\nreasoning: ok",
			want: ticket.RoutingDecision{Target: ticket.TargetAccount, Urgency: ticket.UrgencyMedium, Confidence: 1, Reasoning: "ok"},
		},
		{
			name: "no route line",
			raw:  "I think this is about money.",
			want: ticket.RoutingDecision{Target: ticket.TargetEscalation, Urgency: ticket.UrgencyMedium, Confidence: 0.5, Reasoning: DefaultReasoning},
		},
		{
			name: "unknown target",
			raw:  "ROUTE: sales_agent\nCONFIDENCE: 0.9",
			want: ticket.RoutingDecision{Target: ticket.TargetEscalation, Urgency: ticket.UrgencyMedium, Confidence: 0.9, Reasoning: DefaultReasoning},
		},
		{
			name: "non numeric confidence",
			raw:  "ROUTE: billing\nCONFIDENCE: high",
			want: ticket.RoutingDecision{Target: ticket.TargetBilling, Urgency: ticket.UrgencyMedium, Confidence: 0.5, Reasoning: DefaultReasoning},
		},
		{
			name: "malformed number",
			raw:  "ROUTE: billing\nCONFIDENCE: 0.9.1",
			want: ticket.RoutingDecision{Target: ticket.TargetBilling, Urgency: ticket.UrgencyMedium, Confidence: 0.5, Reasoning: DefaultReasoning},
		},
		{
			name: "confidence out of range",
			raw:  "ROUTE: billing\nCONFIDENCE: 7",
			want: ticket.RoutingDecision{Target: ticket.TargetBilling, Urgency: ticket.UrgencyMedium, Confidence: 0.5, Reasoning: DefaultReasoning},
		},
		{
			name: "unknown urgency",
			raw:  "ROUTE: technical\nURGENCY: whenever",
			want: ticket.RoutingDecision{Target: ticket.TargetTechnical, Urgency: ticket.UrgencyMedium, Confidence: 0.5, Reasoning: DefaultReasoning},
		},
		{
			name: "empty",
			raw:  "",
			want: ticket.RoutingDecision{Target: ticket.TargetEscalation, Urgency: ticket.UrgencyMedium, Confidence: 0.5, Reasoning: DefaultReasoning},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestNormalizeTarget(t *testing.T) {
	assert.Equal(t, ticket.TargetBilling, NormalizeTarget("billing_agent"))
	assert.Equal(t, ticket.TargetBilling, NormalizeTarget(" Billing "))
	assert.Equal(t, ticket.TargetEscalation, NormalizeTarget("escalation_agent"))
	assert.Equal(t, ticket.TargetEscalation, NormalizeTarget("agent"))
}

func TestParseIsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.String().Draw(t, "raw")
		first := Parse(raw)
		second := Parse(raw)
		if first != second {
			t.Fatalf("Parse(%q) not stable: %+v vs %+v", raw, first, second)
		}
		if !first.Target.Valid() || !first.Urgency.Valid() {
			t.Fatalf("Parse(%q) produced invalid decision %+v", raw, first)
		}
		if first.Confidence < 0 || first.Confidence > 1 {
			t.Fatalf("Parse(%q) confidence %f out of range", raw, first.Confidence)
		}
	})
}

func TestParseFallbackWithoutRoute(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringMatching(`[a-z ,.!?\n]{0,80}`).Draw(t, "text")
		raw += "\nCONFIDENCE: " + rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "confidence")

		d := Parse(raw)
		if d.Target != ticket.TargetEscalation {
			t.Fatalf("target = %s, want escalation", d.Target)
		}
		if d.Confidence != 0.5 {
			t.Fatalf("confidence = %f, want 0.5", d.Confidence)
		}
	})
}
