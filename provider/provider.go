// Package provider defines the code-generation service interface the
// executor implements tasks through.
package provider

import "context"

// Request carries a plan/task-derived prompt to the generation backend.
type Request struct {
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Response is the accumulated generated text. The executor never parses code
// semantics out of it; it only validates file-existence side effects afterward.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider is a code-generation backend.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "mock").
	Name() string

	// Generate sends the prompt and returns the complete response.
	Generate(ctx context.Context, req Request) (*Response, error)
}
