package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"mailmind/internal/email/domain"
)

const snippetLength = 200

var (
	multiBlankLines = regexp.MustCompile(`\n{3,}`)
	htmlTags        = regexp.MustCompile(`<[^>]*>`)
)

// Normalize converts a fetched raw message into its canonical persisted
// form. It is deterministic: the same raw input always yields the same
// message, including its fingerprint.
func Normalize(raw *domain.RawMessage) (*domain.Message, error) {
	if raw == nil || raw.RemoteID == "" {
		return nil, fmt.Errorf("%w: missing remote id", domain.ErrMalformedMessage)
	}
	if raw.ReceivedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp for %s", domain.ErrMalformedMessage, raw.RemoteID)
	}

	bodyText := raw.BodyText
	if bodyText == "" && raw.BodyHTML != "" {
		bodyText = stripHTML(raw.BodyHTML)
	}
	bodyText = cleanBody(bodyText)

	snippet := strings.TrimSpace(raw.Snippet)
	if snippet == "" {
		snippet = makeSnippet(bodyText)
	}

	msg := &domain.Message{
		RemoteID:    raw.RemoteID,
		ThreadID:    raw.ThreadID,
		Sender:      strings.ToLower(strings.TrimSpace(raw.Sender)),
		SenderName:  strings.TrimSpace(raw.SenderName),
		Recipients:  domain.StringArray(raw.Recipients),
		Subject:     strings.TrimSpace(raw.Subject),
		Snippet:     snippet,
		BodyText:    bodyText,
		BodyHTML:    raw.BodyHTML,
		Labels:      domain.StringArray(raw.Labels),
		Category:    domain.MapLabelsToCategory(raw.Labels),
		IsRead:      raw.IsRead,
		ReceivedAt:  raw.ReceivedAt.UTC(),
		Fingerprint: domain.ComputeFingerprint(bodyText, raw.Labels, raw.IsRead),
	}
	return msg, nil
}

// cleanBody normalizes line endings and whitespace so fingerprints ignore
// transport-level noise
func cleanBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, " ", " ")

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	body = strings.Join(lines, "\n")
	body = multiBlankLines.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

func stripHTML(html string) string {
	text := htmlTags.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	return strings.Join(strings.Fields(text), " ")
}

func makeSnippet(bodyText string) string {
	snippet := strings.Join(strings.Fields(bodyText), " ")
	if utf8.RuneCountInString(snippet) <= snippetLength {
		return snippet
	}
	return string([]rune(snippet)[:snippetLength])
}
