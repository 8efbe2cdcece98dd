// Package genai provides generative-text clients for idea generation.
//
// Two providers are supported: Google Gemini (the default) and OpenAI,
// selected at startup. Both reduce to a single prompt-in, text-out call; an
// empty result is reported as an error so callers have exactly one failure
// path.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Provider names accepted by NewClient.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

// Client generates text from a synthesized prompt. Implementations must
// treat an empty or whitespace-only result as an error.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewClient constructs the configured provider. An empty provider selects
// Gemini. An empty apiKey or model falls back to the provider's environment
// variables (GEMINI_API_KEY/GEMINI_MODEL or OPENAI_API_KEY/OPENAI_MODEL).
func NewClient(ctx context.Context, provider, apiKey, model string) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderGemini:
		slog.Debug("genai.NewClient: using Gemini provider")
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if model == "" {
			model = os.Getenv("GEMINI_MODEL")
		}
		return NewGeminiClient(ctx, apiKey, model)
	case ProviderOpenAI:
		slog.Debug("genai.NewClient: using OpenAI provider")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if model == "" {
			model = os.Getenv("OPENAI_MODEL")
		}
		return NewOpenAIClient(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown generative provider %q", provider)
	}
}
