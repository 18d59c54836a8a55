package node

import (
	"fmt"
	"strings"

	"github.com/zen-systems/ticketflow/pkg/adapter"
	"github.com/zen-systems/ticketflow/pkg/router"
	"github.com/zen-systems/ticketflow/pkg/ticket"
)

var mockConfidence = map[ticket.Target]float64{
	ticket.TargetBilling:   0.92,
	ticket.TargetTechnical: 0.88,
	ticket.TargetAccount:   0.85,
}

var refundCues = []string{"refund", "charged twice", "double charge", "duplicate"}

// MockResponder answers node prompts the way a cooperative model would,
// so the whole workflow runs offline against adapter.MockAdapter.
func MockResponder(rules *router.RuleSet) adapter.Responder {
	if rules == nil {
		rules = router.NewRuleSet(router.DefaultTriggers())
	}
	return func(req adapter.Request) string {
		text := strings.ToLower(ticketText(req.Prompt))
		switch req.System {
		case TriagePrompt:
			return mockRoute(rules, text)
		case BillingPrompt:
			if containsAny(text, refundCues) {
				return "I reviewed your recent payments and found the duplicate charge. " +
					"A refund for the most recent payment is on its way and should arrive in 5-7 business days.\n" +
					RefundMarker
			}
			return "I reviewed your billing history and everything is in order. " +
				"Your next invoice will reflect your current plan."
		case TechnicalPrompt:
			return "Thanks for the detailed report. Please try these steps:\n" +
				"1. Clear your browser cache and sign in again.\n" +
				"2. Regenerate your API key if requests fail with 401.\n" +
				"3. Check the status page for ongoing incidents.\n" +
				"Reply to this message if the problem persists."
		case AccountPrompt:
			return "Your account is active. Use the Forgot password link on the sign-in page to reset your password; " +
				"the link expires in 24 hours."
		case EscalationPrompt:
			return "This request needs a human specialist. I've escalated it with your history and our routing notes, " +
				"and a senior agent will contact you within one business day."
		}
		return "Thank you for contacting support. We'll get back to you shortly."
	}
}

func mockRoute(rules *router.RuleSet, text string) string {
	s := rules.Suggest(text)
	if !s.Matched {
		return "ROUTE: escalation | URGENCY: medium | CONFIDENCE: 0.60 | REASONING: No clear category match"
	}
	urgency := ticket.UrgencyMedium
	switch {
	case strings.Contains(text, "critical"):
		urgency = ticket.UrgencyCritical
	case containsAny(text, []string{"urgent", "asap", "immediately", "outage", " down"}):
		urgency = ticket.UrgencyHigh
	}
	return fmt.Sprintf("ROUTE: %s | URGENCY: %s | CONFIDENCE: %.2f | REASONING: Ticket mentions %s",
		s.Target, urgency, mockConfidence[s.Target], strings.Join(triggersFor(s), ", "))
}

func triggersFor(s router.Suggestion) []string {
	for _, c := range s.Candidates {
		if c.Target == s.Target {
			return c.Triggers
		}
	}
	return []string{string(s.Target)}
}

// ticketText keeps only the ticket's own lines from a node prompt.
func ticketText(prompt string) string {
	var parts []string
	for _, line := range strings.Split(prompt, "\n") {
		for _, prefix := range []string{"Subject:", "Description:", "Category hint:"} {
			if strings.HasPrefix(line, prefix) {
				parts = append(parts, strings.TrimSpace(strings.TrimPrefix(line, prefix)))
			}
		}
	}
	if len(parts) == 0 {
		return prompt
	}
	return strings.Join(parts, " ")
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
