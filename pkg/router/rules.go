package router

import (
	"sort"
	"strings"

	"github.com/zen-systems/ticketflow/pkg/ticket"
)

// DefaultTriggers are the keyword stems associated with each specialist.
func DefaultTriggers() map[string][]string {
	return map[string][]string{
		string(ticket.TargetBilling):   {"charge", "billing", "refund", "payment", "invoice", "subscription"},
		string(ticket.TargetTechnical): {"bug", "error", "crash", "not working", "api", "timeout", "outage"},
		string(ticket.TargetAccount):   {"password", "account", "login", "log in", "profile", "2fa"},
	}
}

// RuleSet contains the compiled keyword rules.
type RuleSet struct {
	// ordered by priority (longer triggers first for specificity)
	rules []compiledRule
}

type compiledRule struct {
	target  ticket.Target
	trigger string
}

// NewRuleSet compiles triggers keyed by specialist name. Unknown names are skipped.
func NewRuleSet(triggers map[string][]string) *RuleSet {
	rs := &RuleSet{}
	for name, list := range triggers {
		target := ticket.Target(strings.ToLower(name))
		if !target.Valid() {
			continue
		}
		for _, trigger := range list {
			trigger = strings.ToLower(strings.TrimSpace(trigger))
			if trigger == "" {
				continue
			}
			rs.rules = append(rs.rules, compiledRule{target: target, trigger: trigger})
		}
	}

	sort.SliceStable(rs.rules, func(i, j int) bool {
		if len(rs.rules[i].trigger) != len(rs.rules[j].trigger) {
			return len(rs.rules[i].trigger) > len(rs.rules[j].trigger)
		}
		return rs.rules[i].trigger < rs.rules[j].trigger
	})
	return rs
}

// Suggest scores each specialist by matched triggers. Ties go to the
// specialist listed first in ticket.Targets; no match suggests escalation.
func (rs *RuleSet) Suggest(text string) Suggestion {
	lower := strings.ToLower(text)
	byTarget := map[ticket.Target]*Candidate{}

	for _, rule := range rs.rules {
		if !containsTrigger(lower, rule.trigger) {
			continue
		}
		c, ok := byTarget[rule.target]
		if !ok {
			c = &Candidate{Target: rule.target}
			byTarget[rule.target] = c
		}
		c.Score++
		c.Triggers = append(c.Triggers, rule.trigger)
	}

	s := Suggestion{Target: DefaultTarget}
	best := 0
	for _, target := range ticket.Targets {
		c, ok := byTarget[target]
		if !ok {
			continue
		}
		s.Candidates = append(s.Candidates, *c)
		if c.Score > best {
			best = c.Score
			s.Target = target
			s.Matched = true
		}
	}
	return s
}

// containsTrigger reports whether trigger starts a word in text. Only the
// left edge is a boundary, so "charge" matches "charged".
func containsTrigger(text, trigger string) bool {
	offset := 0
	for {
		idx := strings.Index(text[offset:], trigger)
		if idx == -1 {
			return false
		}
		idx += offset
		if idx == 0 || !isWordChar(text[idx-1]) {
			return true
		}
		offset = idx + 1
	}
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
