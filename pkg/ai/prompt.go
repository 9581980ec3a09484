package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"mailmind/internal/email/domain"
)

const maxListItems = 10

// buildBatchPrompt renders the analysis instruction for a batch of emails.
// The model is asked for one JSON array entry per email, keyed by id.
func buildBatchPrompt(requests []AnalysisRequest) string {
	var b strings.Builder
	b.WriteString(`You are an email triage assistant. Analyze each of the emails below and return a JSON array with EXACTLY one object per email, in any order, keyed by the email's "id".

Each object must have these fields:
- "id": the email's id, copied verbatim
- "summaries": {"brief": "one sentence", "detailed": "2-3 sentences covering the main points", "bullet": "3-5 key points, one per line prefixed with -", "executive": "one short paragraph: what it is about and what to do"}
- "sentiment": one of "positive", "negative", "neutral", "urgent"
- "priority_score": integer 0-100 (100 = needs immediate attention)
- "priority_reason": brief explanation for the score
- "action_required": boolean, does the recipient need to act?
- "action_items": list of concrete tasks found in the email
- "suggested_actions": list of specific actions the recipient should take
- "key_topics": list of main topics/themes discussed

Consider for priority scoring:
- Time-sensitive requests (meetings, deadlines) = higher
- Questions requiring answers = medium-high
- FYI / newsletters / promotions = lower
- Urgent language or tone = higher

Return ONLY the JSON array, no other text.

EMAILS:
`)

	for i, req := range requests {
		fmt.Fprintf(&b, "\n--- Email %d ---\nid: %s\nFrom: %s\nSubject: %s\nBody:\n%s\n",
			i+1, req.ID, req.Sender, req.Subject, req.Body)
		if req.AttachmentText != "" {
			fmt.Fprintf(&b, "Attachments:\n%s\n", req.AttachmentText)
		}
	}

	b.WriteString("\nJSON OUTPUT:")
	return b.String()
}

// parseBatchResponse extracts the JSON array from raw model output. Model
// chatter around the array is tolerated; an unparseable payload is
// ErrMalformedResponse.
func parseBatchResponse(responseText string) ([]AnalysisResult, error) {
	responseText = strings.TrimSpace(responseText)
	jsonStart := strings.Index(responseText, "[")
	jsonEnd := strings.LastIndex(responseText, "]")
	if jsonStart == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("%w: no JSON array in output", domain.ErrMalformedResponse)
	}
	responseText = responseText[jsonStart : jsonEnd+1]

	var results []AnalysisResult
	if err := json.Unmarshal([]byte(responseText), &results); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	sane := make([]AnalysisResult, 0, len(results))
	for _, r := range results {
		if r.ID == "" {
			continue
		}
		r = sanitizeResult(r)
		// a result with no usable summary is no result at all; dropping
		// it makes the scheduler fail that one item, not commit a blank
		if r.Summaries[domain.SummaryBrief] == "" {
			continue
		}
		sane = append(sane, r)
	}
	return sane, nil
}

// sanitizeResult clamps and defaults model output to our declared ranges
func sanitizeResult(r AnalysisResult) AnalysisResult {
	r.PriorityScore = domain.ClampPriority(r.PriorityScore)
	if !domain.ValidSentiment(strings.ToLower(r.Sentiment)) {
		r.Sentiment = domain.SentimentNeutral
	} else {
		r.Sentiment = strings.ToLower(r.Sentiment)
	}
	r.KeyTopics = capList(r.KeyTopics)
	r.ActionItems = capList(r.ActionItems)
	r.SuggestedActions = capList(r.SuggestedActions)
	if r.Summaries == nil {
		r.Summaries = map[string]string{}
	}
	for key, value := range r.Summaries {
		r.Summaries[key] = strings.TrimSpace(value)
	}
	return r
}

func capList(items []string) []string {
	out := items[:0]
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}
