package openai

import (
	"strings"
)

// ModelCapabilities describes request-shaping differences between OpenAI models
type ModelCapabilities struct {
	SupportsJSONMode         bool
	SupportsSystemPrompt     bool
	UsesCompletionTokenLimit bool
}

// getModelCapabilities returns the capabilities of a specific OpenAI model
func getModelCapabilities(model string) ModelCapabilities {
	switch {
	case strings.Contains(model, "instruct"):
		// Instruct models reject response_format
		return ModelCapabilities{
			SupportsJSONMode:     false,
			SupportsSystemPrompt: true,
		}
	case isReasoningModel(model):
		// o1-mini and o1-preview reject system messages; every o-series
		// model takes max_completion_tokens instead of max_tokens
		return ModelCapabilities{
			SupportsJSONMode:         model != "o1-mini" && !strings.HasPrefix(model, "o1-preview"),
			SupportsSystemPrompt:     model != "o1-mini" && !strings.HasPrefix(model, "o1-preview"),
			UsesCompletionTokenLimit: true,
		}
	default:
		return ModelCapabilities{
			SupportsJSONMode:     true,
			SupportsSystemPrompt: true,
		}
	}
}

func isReasoningModel(model string) bool {
	return model == "o1" || strings.HasPrefix(model, "o1-") ||
		model == "o3" || strings.HasPrefix(model, "o3-") ||
		model == "o4-mini" || strings.HasPrefix(model, "o4-mini-")
}
