// Package llm: OpenAI-compatible provider implementation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds settings for the OpenAI-compatible provider. BaseURL may
// point at any endpoint speaking the OpenAI chat completion API.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// OpenAIProvider implements Provider for OpenAI-compatible APIs.
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a provider instance from the given config.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI provider")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	// Temperature passes through as configured; zero means deterministic
	// sampling, not unset. The default lives in the config layer.

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Complete sends a single-shot chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userMessage string) (Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(systemPrompt, userMessage, false))
	if err != nil {
		return Response{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, &ProviderError{Retryable: true, Err: errors.New("empty completion response")}
	}

	return Response{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// StreamComplete sends a streaming chat completion request and relays delta
// fragments on the returned channel in arrival order. The channel closes on
// stream end or context cancellation; cancellation never emits an error
// chunk.
func (p *OpenAIProvider) StreamComplete(ctx context.Context, systemPrompt, userMessage string) (<-chan string, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(systemPrompt, userMessage, true))
	if err != nil {
		return nil, classify(err)
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					log.Printf("[LLM] Stream receive failed: %v", err)
				}
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case ch <- choice.Delta.Content:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close releases provider resources. The OpenAI client holds no persistent
// connection.
func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) buildRequest(systemPrompt, userMessage string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		Stream:      stream,
	}
}

// classify maps API failures onto the retryable/fatal taxonomy. Rate
// limiting, request timeouts, and 5xx responses are retryable; other API
// errors (auth, malformed request) are fatal. Cancellation passes through
// untouched so callers can recognize it.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			StatusCode: apiErr.HTTPStatusCode,
			Retryable:  retryableStatus(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{
			StatusCode: reqErr.HTTPStatusCode,
			Retryable:  retryableStatus(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}

	// Transport-level failures have no status; treat them as transient.
	return &ProviderError{Retryable: true, Err: err}
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}
