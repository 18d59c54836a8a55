package router

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zen-systems/ticketflow/pkg/ticket"
)

// Fallback values used when a field is missing or unparseable.
const (
	DefaultTarget     = ticket.TargetEscalation
	DefaultUrgency    = ticket.UrgencyMedium
	DefaultConfidence = 0.5
	DefaultReasoning  = "unparseable classifier output"
)

var (
	routePattern      = regexp.MustCompile(`(?i)ROUTE:\s*(\w+)`)
	urgencyPattern    = regexp.MustCompile(`(?i)URGENCY:\s*(\w+)`)
	confidencePattern = regexp.MustCompile(`(?i)CONFIDENCE:\s*([\d.]+)`)
	reasoningPattern  = regexp.MustCompile(`(?i)REASONING:\s*(.+?)(?:\n|$)`)
	trailingFields    = regexp.MustCompile(`(?i)\s*\|\s*(ROUTE|URGENCY|CONFIDENCE):.*$`)
)

// Parse extracts a routing decision from classifier text. It never fails:
// each missing or invalid field takes its fallback value.
func Parse(raw string) ticket.RoutingDecision {
	d := ticket.RoutingDecision{
		Target:     DefaultTarget,
		Urgency:    DefaultUrgency,
		Confidence: DefaultConfidence,
		Reasoning:  DefaultReasoning,
	}

	if m := routePattern.FindStringSubmatch(raw); m != nil {
		d.Target = NormalizeTarget(m[1])
	}
	if m := urgencyPattern.FindStringSubmatch(raw); m != nil {
		if u := ticket.Urgency(strings.ToLower(m[1])); u.Valid() {
			d.Urgency = u
		}
	}
	if m := confidencePattern.FindStringSubmatch(raw); m != nil {
		if c, err := strconv.ParseFloat(m[1], 64); err == nil && c >= 0 && c <= 1 {
			d.Confidence = c
		}
	}
	if m := reasoningPattern.FindStringSubmatch(raw); m != nil {
		reason := strings.TrimSpace(trailingFields.ReplaceAllString(m[1], ""))
		if reason != "" {
			d.Reasoning = reason
		}
	}

	return d
}

// NormalizeTarget maps classifier names such as "billing_agent" onto a
// specialist. Unknown names map to DefaultTarget.
func NormalizeTarget(name string) ticket.Target {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, "_agent")
	if t := ticket.Target(name); t.Valid() {
		return t
	}
	return DefaultTarget
}
