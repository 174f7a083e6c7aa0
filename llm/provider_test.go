package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// TestIsRetryable verifies the retryable classification helper.
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable provider error", &ProviderError{Retryable: true, Err: errors.New("overloaded")}, true},
		{"fatal provider error", &ProviderError{Retryable: false, Err: errors.New("bad key")}, false},
		{"wrapped retryable", fmt.Errorf("call failed: %w", &ProviderError{Retryable: true, Err: errors.New("x")}), true},
		{"plain error", errors.New("something"), false},
		{"context canceled", context.Canceled, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestClassify verifies the failure taxonomy: rate limits and server errors
// retry, auth errors do not, and cancellation passes through untouched.
func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"request timeout", &openai.APIError{HTTPStatusCode: http.StatusRequestTimeout}, true},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, true},
		{"bad gateway", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, true},
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, false},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"request error 503", &openai.RequestError{HTTPStatusCode: http.StatusServiceUnavailable, Err: errors.New("down")}, true},
		{"transport failure", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classify(tt.err)
			var providerErr *ProviderError
			if !errors.As(classified, &providerErr) {
				t.Fatalf("classify did not return a ProviderError: %v", classified)
			}
			if providerErr.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", providerErr.Retryable, tt.retryable)
			}
		})
	}
}

// TestClassifyCancellation verifies context errors are not wrapped.
func TestClassifyCancellation(t *testing.T) {
	if got := classify(context.Canceled); !errors.Is(got, context.Canceled) {
		t.Errorf("classify(Canceled) = %v", got)
	}
	var providerErr *ProviderError
	if errors.As(classify(context.DeadlineExceeded), &providerErr) {
		t.Error("deadline exceeded should not be wrapped in ProviderError")
	}
}

// TestNewOpenAIProviderValidation verifies the API key requirement and the
// applied defaults.
func TestNewOpenAIProviderValidation(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider failed: %v", err)
	}
	if provider.config.Model != openai.GPT4o {
		t.Errorf("default model = %q, want %q", provider.config.Model, openai.GPT4o)
	}
	if provider.config.MaxTokens != 500 {
		t.Errorf("default max tokens = %d, want 500", provider.config.MaxTokens)
	}
}

// TestNewOpenAIProviderTemperaturePassthrough verifies an explicit zero
// temperature is kept as deterministic sampling rather than replaced by a
// default.
func TestNewOpenAIProviderTemperaturePassthrough(t *testing.T) {
	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", Temperature: 0})
	if err != nil {
		t.Fatalf("NewOpenAIProvider failed: %v", err)
	}
	if provider.config.Temperature != 0 {
		t.Errorf("Temperature = %g, want 0 kept as configured", provider.config.Temperature)
	}

	provider, err = NewOpenAIProvider(Config{APIKey: "test-key", Temperature: 1.3})
	if err != nil {
		t.Fatalf("NewOpenAIProvider failed: %v", err)
	}
	if provider.config.Temperature != 1.3 {
		t.Errorf("Temperature = %g, want 1.3", provider.config.Temperature)
	}
}

// TestProviderErrorUnwrap verifies errors.Is works through ProviderError.
func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &ProviderError{StatusCode: 500, Retryable: true, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ProviderError should unwrap to its cause")
	}
}
