package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hustleforge/hustleforge/internal/models"
)

// OpenAIClient implements Client using the OpenAI chat completion API.
type OpenAIClient struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAIClient creates an OpenAI-backed client. model may be empty to use
// the default model.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	chatModel := openai.ChatModel(model)
	if strings.TrimSpace(model) == "" {
		chatModel = openai.ChatModelGPT4oMini
	}

	slog.Info("OpenAIClient configured", "model", chatModel)
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  chatModel,
	}, nil
}

// Generate sends the prompt as a single user message and returns the
// completion text.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	slog.Debug("OpenAIClient.Generate", "model", c.model, "prompt_length", len(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		slog.Error("OpenAIClient.Generate failed", "error", err, "model", c.model)
		return "", fmt.Errorf("openai generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("OpenAIClient.Generate returned no choices", "model", c.model)
		return "", models.ErrEmptyGeneration
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		slog.Error("OpenAIClient.Generate returned empty text", "model", c.model)
		return "", models.ErrEmptyGeneration
	}

	slog.Debug("OpenAIClient.Generate succeeded", "model", c.model, "response_length", len(out))
	return out, nil
}
