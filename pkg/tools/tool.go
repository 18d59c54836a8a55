// Package tools defines the capability contract used by handler nodes and
// the built-in capabilities: customer data lookup, payment actions, email
// notifications and knowledge base search.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Tool names.
const (
	DatabaseQuery  = "database_query"
	PaymentGateway = "payment_gateway"
	EmailSender    = "email_sender"
	KnowledgeBase  = "knowledge_base"
)

// Input is a typed tool input.
type Input interface {
	// Summary is a short, log-safe description of the input.
	Summary() string
}

// Outcome is the result of a tool call. Failures live in Error; Execute
// never returns a Go error or panics.
type Outcome struct {
	Succeeded bool   `json:"succeeded"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Summary renders the outcome for interaction logs, capped at 200 bytes.
func (o Outcome) Summary() string {
	if !o.Succeeded {
		return truncate("error: "+o.Error, 200)
	}
	if s, ok := o.Result.(fmt.Stringer); ok {
		return truncate(s.String(), 200)
	}
	data, err := json.Marshal(o.Result)
	if err != nil {
		return "ok"
	}
	return truncate(string(data), 200)
}

// Tool is a capability a node can invoke.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, in Input) Outcome
}

func ok(result any) Outcome {
	return Outcome{Succeeded: true, Result: result}
}

func fail(format string, args ...any) Outcome {
	return Outcome{Error: fmt.Sprintf(format, args...)}
}

func unsupported(tool string, in Input) Outcome {
	return fail("%s: unsupported input %T", tool, in)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
