package genai

import (
	"context"
	"testing"
)

func TestNewClientUnknownProvider(t *testing.T) {
	if _, err := NewClient(context.Background(), "vertex", "key", ""); err == nil {
		t.Error("NewClient accepted unknown provider")
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), "", ""); err == nil {
		t.Error("NewGeminiClient accepted empty API key")
	}
	if _, err := NewGeminiClient(context.Background(), "   ", "custom-model"); err == nil {
		t.Error("NewGeminiClient accepted blank API key")
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient("", ""); err == nil {
		t.Error("NewOpenAIClient accepted empty API key")
	}
}

func TestNewOpenAIClientDefaultsModel(t *testing.T) {
	c, err := NewOpenAIClient("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model == "" {
		t.Error("model not defaulted")
	}
}
