package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"mailmind/internal/email/domain"
)

const defaultModel = "gemini-2.0-flash"

// GeminiService is a minimal client for the generateContent REST endpoint.
type GeminiService struct {
	ApiKey string
	Model  string
	client *http.Client
}

func NewGeminiService(apiKey, model string) *GeminiService {
	if model == "" {
		model = defaultModel
	}
	return &GeminiService{
		ApiKey: apiKey,
		Model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Generate sends a prompt and returns the first candidate's text.
func (g *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	url := "https://generativelanguage.googleapis.com/v1beta/models/" + g.Model + ":generateContent?key=" + g.ApiKey

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("gemini request: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp, respBody)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	// Parse text from the candidates tree
	if c, ok := result["candidates"].([]interface{}); ok && len(c) > 0 {
		if cand, ok := c[0].(map[string]interface{}); ok {
			if content, ok := cand["content"].(map[string]interface{}); ok {
				if parts, ok := content["parts"].([]interface{}); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]interface{}); ok {
						if text, ok := part["text"].(string); ok {
							return text, nil
						}
					}
				}
			}
		}
	}
	return "", fmt.Errorf("%w: no candidates returned", domain.ErrMalformedResponse)
}

func classifyStatus(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, err := strconv.Atoi(after); err == nil {
				return &domain.RateLimitedError{RetryAfter: time.Duration(secs) * time.Second}
			}
		}
		return fmt.Errorf("gemini API: %w", domain.ErrQuotaExceeded)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("gemini API: %w", domain.ErrAuthExpired)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("gemini API: %w", domain.ErrTimeout)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("gemini API error (%d): %w", resp.StatusCode, domain.ErrTransient)
	}
	return fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(body))
}
