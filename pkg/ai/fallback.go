package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	"mailmind/internal/email/domain"
)

// FallbackAnalyzer routes analysis between providers:
// Gemini first (better structured output), Ollama when Gemini is
// unreachable or out of quota.
type FallbackAnalyzer struct {
	gemini AnalyzerService
	ollama AnalyzerService
}

// NewFallbackAnalyzer creates an analyzer with both providers
func NewFallbackAnalyzer(gemini, ollama AnalyzerService) *FallbackAnalyzer {
	return &FallbackAnalyzer{
		gemini: gemini,
		ollama: ollama,
	}
}

// AnalyzeBatch tries Gemini first, falls back to Ollama on transient or
// quota failures. Malformed-output failures do not fall back: a second
// model would see the same inputs and the caller's per-item handling is
// the right place to deal with them.
func (f *FallbackAnalyzer) AnalyzeBatch(ctx context.Context, requests []AnalysisRequest) ([]AnalysisResult, error) {
	if f.gemini != nil {
		results, err := f.gemini.AnalyzeBatch(ctx, requests)
		if err == nil {
			return results, nil
		}
		if f.ollama == nil || !shouldFallback(err) {
			return nil, err
		}
		log.Printf("[AI] Gemini unavailable (%v), falling back to Ollama", err)
	}

	if f.ollama != nil {
		return f.ollama.AnalyzeBatch(ctx, requests)
	}

	return nil, fmt.Errorf("no AI provider available")
}

func shouldFallback(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return domain.IsRetryable(err) || errors.Is(err, domain.ErrAuthExpired)
}
