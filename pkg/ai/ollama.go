package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mailmind/internal/email/domain"
)

// OllamaAnalyzer implements AnalyzerService using a local Ollama model
type OllamaAnalyzer struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaAnalyzer creates a new Ollama-backed analyzer
func NewOllamaAnalyzer(baseURL, model string) *OllamaAnalyzer {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaAnalyzer{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// AnalyzeBatch implements AnalyzerService
func (o *OllamaAnalyzer) AnalyzeBatch(ctx context.Context, requests []AnalysisRequest) ([]AnalysisResult, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	url := o.baseURL + "/api/generate"

	payload := map[string]interface{}{
		"model":  o.model,
		"prompt": buildBatchPrompt(requests),
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.2,
			"num_predict": 400 * len(requests),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ollama request: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("ollama API error (%d): %w", resp.StatusCode, domain.ErrTransient)
		}
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	return parseBatchResponse(result.Response)
}
