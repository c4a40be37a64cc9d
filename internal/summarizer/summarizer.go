// Package summarizer sends extracted text to a language model.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/document-summarizer/internal/models"
	"github.com/feichai0017/document-summarizer/pkg/logger"
)

const (
	DefaultMinLength = 50
	DefaultMaxLength = 100000
)

// Completer is one chat completion against a model provider.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
	Name() string
}

type Options struct {
	MinLength int
	MaxLength int
}

type Client struct {
	completer Completer
	opts      Options
	logger    logger.Logger
}

// New builds a client. A nil completer yields a client whose every call
// fails with models.ErrNotConfigured.
func New(completer Completer, opts Options, log logger.Logger) *Client {
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	return &Client{completer: completer, opts: opts, logger: log.Named("summarizer")}
}

func (c *Client) Configured() bool { return c.completer != nil }

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < c.opts.MinLength {
		return "", models.ErrInsufficientInput
	}
	if c.completer == nil {
		return "", models.ErrNotConfigured
	}

	input := truncate(text, c.opts.MaxLength)
	summary, err := c.completer.Complete(ctx, SystemPrompt, userMessage(input))
	if err != nil {
		c.logger.Warn("Completion failed",
			logger.String("provider", c.completer.Name()),
			logger.Error(err),
		)
		return "", fmt.Errorf("%w: %w", models.ErrUpstream, err)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("%w: empty response from %s", models.ErrUpstream, c.completer.Name())
	}
	return summary, nil
}

// truncate keeps the first max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
