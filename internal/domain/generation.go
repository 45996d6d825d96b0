package domain

import "context"

// Completer sends a prompt to a generative text backend.
// The returned text is untrusted and must be parsed strictly by the caller.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64) (Completion, error)
}

// Completion is the raw text returned by a generative backend plus token usage.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
