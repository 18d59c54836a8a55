package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/zen-systems/ticketflow/pkg/adapter"
)

// Kind classifies a model call failure.
type Kind int

const (
	KindUnknown Kind = iota
	RateLimited
	TimedOut
	BackendUnavailable
	InvalidRequest
	Cancelled
	ExhaustedRetries
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case TimedOut:
		return "timed_out"
	case BackendUnavailable:
		return "backend_unavailable"
	case InvalidRequest:
		return "invalid_request"
	case Cancelled:
		return "cancelled"
	case ExhaustedRetries:
		return "exhausted_retries"
	default:
		return "unknown"
	}
}

// Transient reports whether the kind is worth another attempt.
func (k Kind) Transient() bool {
	return k == RateLimited || k == TimedOut || k == BackendUnavailable
}

// Error is the failure returned by Client.Generate.
type Error struct {
	Kind     Kind
	Caller   string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Caller != "" {
		return fmt.Sprintf("llm %s (%s): %v", e.Kind, e.Caller, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the outermost Kind in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind
	}
	return KindUnknown
}

// LastKind returns the kind of the final attempt for exhausted failures,
// and KindOf otherwise.
func LastKind(err error) Kind {
	var llmErr *Error
	if !errors.As(err, &llmErr) {
		return KindUnknown
	}
	if llmErr.Kind == ExhaustedRetries {
		if inner := LastKind(llmErr.Err); inner != KindUnknown {
			return inner
		}
	}
	return llmErr.Kind
}

// IsRetryable reports whether err is a transient backend failure.
func IsRetryable(err error) bool {
	return KindOf(err).Transient()
}

// Classify maps a raw backend error onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if k := KindOf(err); k != KindUnknown {
		return k
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimedOut
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimedOut
	}

	status := adapter.StatusOf(err)
	switch {
	case status == 429:
		return RateLimited
	case status == 408 || status == 504:
		return TimedOut
	case status >= 500:
		return BackendUnavailable
	case status >= 400:
		return InvalidRequest
	}
	if adapter.IsTransient(err) {
		return BackendUnavailable
	}
	var adapterErr *adapter.AdapterError
	if errors.As(err, &adapterErr) && adapterErr.Status == 0 {
		// Transport failures without a response.
		return BackendUnavailable
	}
	return InvalidRequest
}
