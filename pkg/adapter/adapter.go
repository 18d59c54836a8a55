package adapter

import (
	"context"
)

// Adapter is a language-model backend: one system instruction and one user
// message in, generated text plus token counts out.
type Adapter interface {
	// Generate performs a single attempt. Retries belong to the caller.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Request is one generation call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

func (r Request) maxTokens() int64 {
	if r.MaxTokens <= 0 {
		return 4096
	}
	return int64(r.MaxTokens)
}
