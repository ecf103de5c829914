// Package llm abstracts the language-model capability behind a single
// completion call. Failures and timeouts surface as errors; there is no
// transparent retry here.
package llm

import "context"

// Client completes a prompt pair into text.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
