package ai

import (
	"context"
)

// AnalysisRequest is one message's input to the analyzer. ID is an opaque
// correlation key echoed back in the matching result.
type AnalysisRequest struct {
	ID             string `json:"id"`
	Subject        string `json:"subject"`
	Sender         string `json:"sender"`
	Body           string `json:"body"`
	AttachmentText string `json:"attachment_text,omitempty"`
}

// AnalysisResult is the analyzer's verdict for one message.
type AnalysisResult struct {
	ID               string            `json:"id"`
	Summaries        map[string]string `json:"summaries"`
	Sentiment        string            `json:"sentiment"`
	PriorityScore    int               `json:"priority_score"`
	PriorityReason   string            `json:"priority_reason"`
	KeyTopics        []string          `json:"key_topics"`
	ActionItems      []string          `json:"action_items"`
	SuggestedActions []string          `json:"suggested_actions"`
	ActionRequired   bool              `json:"action_required"`
}

// AnalyzerService is the interface for AI email analysis.
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type AnalyzerService interface {
	// AnalyzeBatch analyzes up to a handful of messages in one model call.
	// Results come back keyed by request ID; a request with no matching
	// result failed individually. A non-nil error means the whole call
	// failed and no results are usable.
	AnalyzeBatch(ctx context.Context, requests []AnalysisRequest) ([]AnalysisResult, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
