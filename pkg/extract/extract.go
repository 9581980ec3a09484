// Package extract converts attachment bytes into searchable text.
package extract

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

// Extraction errors. All of them are recoverable per attachment: the caller
// records a failed extraction and moves on.
var (
	ErrUnsupportedFormat = errors.New("unsupported attachment format")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrSizeLimitExceeded = errors.New("attachment exceeds size limit")
)

// DefaultMaxBytes bounds how large an attachment we attempt to parse
const DefaultMaxBytes = 10 << 20 // 10 MiB

// PreviewLength is the stored preview size in characters
const PreviewLength = 500

// Result is the outcome of one successful extraction.
type Result struct {
	Text     string
	Preview  string
	Metadata map[string]string
}

// Parser converts one attachment format into text.
type Parser func(data []byte) (*Result, error)

// Extractor routes attachment bytes to a parser by MIME type.
type Extractor struct {
	maxBytes int64
	parsers  map[string]Parser
}

// New creates an extractor with the built-in parser set. maxBytes <= 0 uses
// DefaultMaxBytes.
func New(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	e := &Extractor{
		maxBytes: maxBytes,
		parsers:  make(map[string]Parser),
	}

	for _, mt := range []string{
		"text/plain", "text/csv", "text/xml", "text/markdown",
		"application/json", "application/xml",
	} {
		e.Register(mt, parseText)
	}
	e.Register("text/html", parseHTML)
	for _, mt := range []string{"image/png", "image/jpeg", "image/gif"} {
		e.Register(mt, parseImage)
	}

	return e
}

// Register adds or replaces the parser for a MIME type
func (e *Extractor) Register(contentType string, p Parser) {
	e.parsers[contentType] = p
}

// Supports reports whether a content type has a registered parser
func (e *Extractor) Supports(contentType string) bool {
	_, ok := e.parsers[normalizeContentType(contentType)]
	return ok
}

// Extract parses attachment bytes into text. The same bytes always produce
// the same result.
func (e *Extractor) Extract(data []byte, contentType string) (*Result, error) {
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrSizeLimitExceeded, len(data))
	}

	parser, ok := e.parsers[normalizeContentType(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
	}

	result, err := parser(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if result.Preview == "" {
		result.Preview = Preview(result.Text)
	}
	return result, nil
}

func normalizeContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// Preview truncates text to PreviewLength characters, cutting at a word
// boundary when one is near.
func Preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}

	runes := []rune(text)
	cut := PreviewLength
	for i := cut - 1; i > cut-50 && i > 0; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut]))
}
