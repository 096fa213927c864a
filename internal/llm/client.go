// Package llm wraps the external text-completion service. The Client
// interface is the raw provider boundary; Gateway layers the workflow-facing
// contract on top of it (no retries, failures reported as text, best-effort
// progress notifications).
package llm

import (
	"context"

	"taskpilot/internal/memory"
)

// Default generation parameters, matching the values the workflow was tuned
// against.
const (
	DefaultMaxTokens   = 1000
	AnswerMaxTokens    = 1500
	DefaultTemperature = 0.7
)

// CompletionRequest is one call to the completion service.
type CompletionRequest struct {
	// System is the optional system instruction.
	System string

	// Messages is the ordered, role-tagged context window. The last entry
	// is the active prompt.
	Messages []memory.Turn

	// MaxTokens bounds the generated output. Zero means DefaultMaxTokens.
	MaxTokens int

	// Temperature for sampling. Zero means DefaultTemperature.
	Temperature float64
}

// Prompt is a convenience constructor for a single-message request.
func Prompt(system, user string, maxTokens int) CompletionRequest {
	return CompletionRequest{
		System:    system,
		Messages:  []memory.Turn{{Role: memory.RoleUser, Content: user}},
		MaxTokens: maxTokens,
	}
}

// Client is the minimal provider interface. Implementations perform exactly
// one network call per Complete invocation.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
