// Package recommend asks a chat-completion model for structured improvement
// advice on a renewable energy project.
package recommend

import (
	"context"
	"errors"
)

// Prompt is one system+user exchange.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Completer returns the model's text for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ErrEmptyCompletion is returned when the provider answers without content.
var ErrEmptyCompletion = errors.New("completion has no content")
