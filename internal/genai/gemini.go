package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	googleai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hustleforge/hustleforge/internal/models"
)

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client  *googleai.Client
	modelID string
}

// NewGeminiClient creates a Gemini-backed client. modelID may be empty to
// use the default model.
func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = DefaultGeminiModel
	}

	client, err := googleai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		slog.Error("GeminiClient init failed", "error", err)
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	slog.Info("GeminiClient configured", "model", modelID)
	return &GeminiClient{client: client, modelID: modelID}, nil
}

// Generate sends the prompt to Gemini and returns the response text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	slog.Debug("GeminiClient.Generate", "model", c.modelID, "prompt_length", len(prompt))

	model := c.client.GenerativeModel(c.modelID)
	resp, err := model.GenerateContent(ctx, googleai.Text(prompt))
	if err != nil {
		slog.Error("GeminiClient.Generate failed", "error", err, "model", c.modelID)
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		slog.Error("GeminiClient.Generate returned no candidates", "model", c.modelID)
		return "", models.ErrEmptyGeneration
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(googleai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		slog.Error("GeminiClient.Generate returned empty text", "model", c.modelID)
		return "", models.ErrEmptyGeneration
	}

	slog.Debug("GeminiClient.Generate succeeded", "model", c.modelID, "response_length", len(out))
	return out, nil
}

// Close releases resources held by the underlying client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
