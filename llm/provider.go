// Package llm provides the LLM provider port for the DM engine.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Response is a completed provider call.
type Response struct {
	Content    string
	TokensUsed int
}

// Provider is the interface every LLM backend must implement.
//
// Complete performs a single-shot completion. StreamComplete returns a
// channel of text fragments delivered in provider order; the channel is
// closed when the stream ends or the context is cancelled. Both operations
// report failures through ProviderError so callers can tell retryable
// failures from fatal ones.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (Response, error)
	StreamComplete(ctx context.Context, systemPrompt, userMessage string) (<-chan string, error)
	Close() error
}

// ProviderError classifies a provider failure. Retryable failures (rate
// limiting, server overload, transient gateway errors) may be retried with
// backoff; fatal failures (authentication, malformed request) must surface
// immediately.
type ProviderError struct {
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d, retryable %v): %v", e.StatusCode, e.Retryable, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient provider failure worth
// retrying. Cancellation and fatal provider errors are not retryable.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr) && providerErr.Retryable
}
