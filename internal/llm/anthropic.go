package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicClient implements Client using the Anthropic API.
// The API key is read from the environment by the SDK.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *slog.Logger
}

// NewAnthropicClient creates an Anthropic-backed completion client.
func NewAnthropicClient(model anthropic.Model, maxTokens int64, logger *slog.Logger) *AnthropicClient {
	return &AnthropicClient{
		client:    anthropic.NewClient(),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Complete sends the prompt pair and returns the first text block of the
// response.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	c.logger.DebugContext(ctx, "llm call starting", "model", c.model, "max_tokens", c.maxTokens, "user_prompt_len", len(userPrompt))

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})

	duration := time.Since(start)
	if err != nil {
		c.logger.ErrorContext(ctx, "llm call failed", "duration", duration, "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	c.logger.DebugContext(ctx, "llm call completed", "duration", duration, "stop_reason", msg.StopReason)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
