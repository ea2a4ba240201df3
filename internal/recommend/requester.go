package recommend

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mohammed-shakir/opendata-map/internal/core/observability"
)

const (
	DefaultTemperature = 0.5
	DefaultMaxTokens   = 4096
)

type Recommendation struct {
	Content  string   `json:"content"`
	Sections Sections `json:"sections"`
}

type Options struct {
	Temperature float64
	MaxTokens   int
}

type Requester struct {
	logger    *slog.Logger
	completer Completer
	opts      Options
}

func NewRequester(logger *slog.Logger, c Completer, opts Options) *Requester {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Requester{logger: logger, completer: c, opts: opts}
}

// Recommend sends project to the model once and returns the parsed answer.
// A completion missing any section header yields *IncompleteResponseError.
func (r *Requester) Recommend(ctx context.Context, project any) (Recommendation, error) {
	user, err := BuildUserPrompt(project)
	if err != nil {
		return Recommendation{}, err
	}
	text, err := r.completer.Complete(ctx, Prompt{
		System:      systemPrompt,
		User:        user,
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
	})
	if err != nil {
		r.record(err)
		return Recommendation{}, err
	}
	sections, err := Parse(text)
	if err != nil {
		var inc *IncompleteResponseError
		if errors.As(err, &inc) {
			r.logger.Warn("incomplete recommendation", "missing", inc.Missing)
		}
		r.record(err)
		return Recommendation{}, err
	}
	r.record(nil)
	return Recommendation{Content: text, Sections: sections}, nil
}

func (r *Requester) record(err error) {
	var inc *IncompleteResponseError
	switch {
	case err == nil:
		observability.IncRecommendation("ok")
	case errors.As(err, &inc):
		observability.IncRecommendation("incomplete")
	default:
		observability.IncRecommendation("error")
	}
}
