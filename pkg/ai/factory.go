package ai

import (
	"fmt"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "gemini", "ollama" or "auto"

	// Gemini config
	GeminiAPIKey string
	GeminiModel  string

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// NewAnalyzerService creates an AnalyzerService based on the config.
// This is the factory function - switch AI provider by changing config.Provider
func NewAnalyzerService(cfg Config) (AnalyzerService, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiAnalyzer(cfg.GeminiAPIKey, cfg.GeminiModel), nil

	case ProviderOllama:
		return NewOllamaAnalyzer(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	default:
		// Gemini with Ollama fallback when an API key is available,
		// Ollama alone otherwise
		if cfg.GeminiAPIKey != "" {
			return NewFallbackAnalyzer(
				NewGeminiAnalyzer(cfg.GeminiAPIKey, cfg.GeminiModel),
				NewOllamaAnalyzer(cfg.OllamaBaseURL, cfg.OllamaModel),
			), nil
		}
		return NewOllamaAnalyzer(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	}
}
