// Package generate provides the answer generation client.
package generate

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Generator produces an answer from an assembled prompt. Implementations do
// not retry; the caller decides whether a failed generation is retryable.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
// Ollama's /v1 API works unchanged.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIGenerator creates a generator for the given endpoint and model.
// apiKey may be empty for servers that do not authenticate.
func NewOpenAIGenerator(baseURL, apiKey, model string, timeout time.Duration) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}
}

// Generate sends the prompt as a single user message and returns the reply.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (g *OpenAIGenerator) Close() error {
	return nil
}
