// Package llm defines the text-generation provider interface and the Anthropic
// implementation. The generator gives no structural guarantee about its output;
// callers validate and fall back on their own.
package llm

import "context"

// GenerateRequest is a single prompt completion request.
type GenerateRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// GenerateResponse carries the raw generated text plus token accounting.
type GenerateResponse struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns prompt plus completion token usage.
func (r *GenerateResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the abstraction over text-generation backends.
type Provider interface {
	// Generate sends a prompt and waits for the full response.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// ModelID returns the current model identifier string.
	ModelID() string
}
