// Package llm wraps the OpenAI-compatible chat and embedding endpoints used
// for temporal-intent parsing, answer composition, and EmbeddingItem
// vectorization.
package llm

import (
	"context"
	"fmt"
	"strings"

	"campusrag/internal/config"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"
)

// Message is a role/content pair, independent of the SDK's param types.
type Message struct {
	Role    string
	Content string
}

// ChatClient drives the blocking chat LLM used by the temporal intent
// parser and the response composer.
type ChatClient struct {
	client openai.Client
	model  string
}

func NewChatClient(cfg config.ChatConfig) *ChatClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ChatClient{client: openai.NewClient(opts...), model: cfg.Model}
}

// Complete sends msgs and returns the first choice's content.
func (c *ChatClient) Complete(ctx context.Context, msgs []Message, maxTokens int, temperature float64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    toSDKMessages(msgs),
		Temperature: param.NewOpt(temperature),
		MaxTokens:   param.NewOpt(int64(maxTokens)),
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func toSDKMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
