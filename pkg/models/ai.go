// Package models contains shared data models used across the WorkHuntr codebase.
package models

import "context"

// AIProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly; always inject this interface.
type AIProvider interface {
	// Complete sends a single prompt and returns the model's raw text answer.
	// Callers are responsible for parsing the text; providers never interpret it.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// CompletionRequest is the input to a single AI completion.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is the raw output of a completion.
type CompletionResponse struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}
