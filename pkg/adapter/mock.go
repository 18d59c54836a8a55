package adapter

import (
	"context"
	"fmt"
	"strings"
)

// Responder produces scripted text for a request.
type Responder func(req Request) string

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string
	responder       Responder
	counter         TokenCounter
}

// MockOption configures a MockAdapter.
type MockOption func(*MockAdapter)

// WithResponder routes every unmatched request through fn.
func WithResponder(fn Responder) MockOption {
	return func(a *MockAdapter) { a.responder = fn }
}

// WithTokenCounter sets the counter used to estimate usage.
func WithTokenCounter(c TokenCounter) MockOption {
	return func(a *MockAdapter) { a.counter = c }
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter(opts ...MockOption) *MockAdapter {
	a := &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "Thank you for contacting support. I'll help you with your request right away.",
		counter:         HeuristicCounter{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewMockAdapterWithResponses creates a mock adapter with responses keyed by user message.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	a := NewMockAdapter()
	a.responses = responses
	if defaultResponse != "" {
		a.defaultResponse = defaultResponse
	}
	return a
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Generate returns a deterministic response for the request.
func (a *MockAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mock: %w", err)
	}
	model := req.Model
	if model == "" {
		model = "mock-1"
	}

	content, ok := a.responses[req.Prompt]
	if !ok {
		if a.responder != nil {
			content = a.responder(req)
		}
		if content == "" {
			content = a.defaultResponse
		}
	}

	prompt := strings.Join([]string{req.System, req.Prompt}, " ")
	return &Response{
		Content: content,
		Model:   model,
		Usage: Usage{
			PromptTokens:     a.counter.Count(prompt),
			CompletionTokens: a.counter.Count(content),
		}.Normalize(),
	}, nil
}
