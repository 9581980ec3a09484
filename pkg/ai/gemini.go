package ai

import (
	"context"

	"mailmind/pkg/gemini"
)

// GeminiAnalyzer implements AnalyzerService on top of the Gemini REST client.
type GeminiAnalyzer struct {
	service *gemini.GeminiService
}

// NewGeminiAnalyzer creates a Gemini-backed analyzer
func NewGeminiAnalyzer(apiKey, model string) *GeminiAnalyzer {
	return &GeminiAnalyzer{
		service: gemini.NewGeminiService(apiKey, model),
	}
}

// AnalyzeBatch implements AnalyzerService
func (g *GeminiAnalyzer) AnalyzeBatch(ctx context.Context, requests []AnalysisRequest) ([]AnalysisResult, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	text, err := g.service.Generate(ctx, buildBatchPrompt(requests))
	if err != nil {
		return nil, err
	}
	return parseBatchResponse(text)
}
