package router

import "github.com/zen-systems/ticketflow/pkg/ticket"

// Candidate captures a heuristic candidate specialist.
type Candidate struct {
	Target   ticket.Target `json:"target"`
	Score    int           `json:"score"`
	Triggers []string      `json:"triggers,omitempty"`
}

// Suggestion is the keyword heuristic's view of a ticket.
type Suggestion struct {
	Target     ticket.Target `json:"target"`
	Matched    bool          `json:"matched"`
	Candidates []Candidate   `json:"candidates,omitempty"`
}
