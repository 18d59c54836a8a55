package workflow

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks requests rejected before any node runs.
var ErrInvalidRequest = errors.New("invalid request")

// Error is a fatal run failure.
type Error struct {
	Phase         Phase
	Node          string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("workflow %s failed in %s (%s): %v", e.CorrelationID, e.Node, e.Phase, e.Err)
	}
	return fmt.Sprintf("workflow %s failed (%s): %v", e.CorrelationID, e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
