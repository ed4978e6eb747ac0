// Package llm abstracts the text-completion provider used for reviews.
package llm

import (
	"context"
	"errors"
)

// Client completes a prompt. Implementations must honour ctx cancellation.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	// ErrDisabled is returned when no provider is configured.
	ErrDisabled = errors.New("llm provider disabled")
	// ErrEmptyCompletion is returned when the provider answers with no text.
	ErrEmptyCompletion = errors.New("llm returned empty completion")
)

// Disabled is the client used when no API key is configured. Every call
// fails, which sends review generation down its fallback path.
type Disabled struct{}

func (Disabled) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrDisabled
}
