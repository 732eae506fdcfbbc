package llm

import (
	"context"
	"fmt"
)

// Prompt is a single system+user exchange. Agents build one prompt per call;
// there is no conversation history.
type Prompt struct {
	System string
	User   string
}

// Client abstracts the model provider so agents can be tested without
// network access.
type Client interface {
	Complete(ctx context.Context, model string, prompt Prompt) (string, error)
	Embed(ctx context.Context, model, input string) ([]float64, error)
}

// ProviderError wraps transport and provider failures so callers can tell
// them apart from parse failures on the returned text.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
