// Package deepseek adapts the DeepSeek API, which speaks the OpenAI chat
// completion wire protocol on its own endpoint.
package deepseek

import (
	"insight-backend/internal/llm"
	"insight-backend/internal/llm/openai"
)

// DefaultBaseURL is DeepSeek's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.deepseek.com/v1"

// NewClient constructs a DeepSeek adapter.
func NewClient(apiKey, model, baseURL string) (llm.Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return openai.NewCompatibleClient("deepseek", apiKey, model, baseURL)
}
