package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appconfig "crypto-dashboard/config"
)

// LLMService generates free-form text from a system and user prompt
type LLMService interface {
	Name() string
	InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewLLMService builds the provider selected by LLM_PROVIDER. It returns
// (nil, nil) when no provider is configured.
func NewLLMService(ctx context.Context, cfg *appconfig.Config) (LLMService, error) {
	switch cfg.LLM.Provider {
	case "":
		return nil, nil
	case appconfig.LLMProviderBedrock:
		svc, err := NewBedrockService(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case appconfig.LLMProviderOpenAI:
		svc, err := NewOpenAIService(cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}

// InvokeStructured sends a prompt and decodes the JSON object in the reply into result
func InvokeStructured(ctx context.Context, llm LLMService, systemPrompt, userPrompt string, result any) error {
	text, err := llm.InvokeWithPrompt(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(ExtractJSON(text)), result); err != nil {
		return fmt.Errorf("failed to parse response as JSON: %w", err)
	}
	return nil
}

// ExtractJSON trims markdown fences and prose around the outermost JSON object
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}
