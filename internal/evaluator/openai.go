package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/config"
)

// OpenAIClient talks to any OpenAI compatible chat completions endpoint.
type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIClient builds a client for the configured provider.
func NewOpenAIClient(cfg config.LLM, timeout time.Duration) *OpenAIClient {
	key := cfg.APIKey
	if key == "" {
		// local servers ignore the key but the header must be present
		key = cfg.Provider
	}
	opts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(2)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	if base := cfg.ResolvedBaseURL(); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       cfg.ResolvedModel(),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Complete sends one system and one user message and returns the reply text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", c.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
