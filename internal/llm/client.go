// Package llm wraps the chat completion backend used for query rewriting,
// re-ranking and answer synthesis.
package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ErrOverloaded marks transient backend failures (rate limits, server
// errors). These are the only failures worth retrying.
var ErrOverloaded = errors.New("generative backend overloaded")

// ErrRequest marks non-transient generation failures. Retrying would just
// reproduce the same error.
var ErrRequest = errors.New("generative request failed")

// TextGenerator produces a completion for a single prompt.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator implements TextGenerator against an OpenAI-compatible
// chat completion endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator builds a generator for the given endpoint and model.
// baseURL must include the API version path, e.g. "https://api.openai.com/v1".
func NewOpenAIGenerator(baseURL, apiKey, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", ErrRequest)
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps backend errors to the package sentinels. HTTP 429 and 5xx
// are overload; everything else, including transport failures, is a plain
// request error.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrOverloaded, err)
		}
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	return fmt.Errorf("%w: %v", ErrRequest, err)
}
