package adapter

import "time"

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Normalize fills TotalTokens and clamps negative counts.
func (u Usage) Normalize() Usage {
	if u.PromptTokens < 0 {
		u.PromptTokens = 0
	}
	if u.CompletionTokens < 0 {
		u.CompletionTokens = 0
	}
	if u.TotalTokens == 0 && (u.PromptTokens > 0 || u.CompletionTokens > 0) {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// Response wraps an adapter output and its usage.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// CallReport captures metadata for one logical model call, across retries.
type CallReport struct {
	Caller   string        `json:"caller"`
	Adapter  string        `json:"adapter"`
	Model    string        `json:"model"`
	Usage    Usage         `json:"usage"`
	Cost     float64       `json:"cost"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

// Succeeded reports whether the call produced a response.
func (r CallReport) Succeeded() bool {
	return r.Error == ""
}
