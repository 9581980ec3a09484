package extract

import (
	"bytes"
	"fmt"
	"image"
	"strings"
	"unicode/utf8"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

func parseText(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not valid utf-8 text")
	}
	text := strings.TrimSpace(string(data))
	return &Result{Text: text}, nil
}

// parseHTML strips tags and collapses whitespace. Scripts and styles are
// dropped wholesale.
func parseHTML(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not valid utf-8 text")
	}

	var b strings.Builder
	inTag := false
	skipUntil := ""
	src := string(data)
	lower := strings.ToLower(src)

	for i := 0; i < len(src); i++ {
		if skipUntil != "" {
			if strings.HasPrefix(lower[i:], skipUntil) {
				i += len(skipUntil) - 1
				skipUntil = ""
				inTag = false
			}
			continue
		}
		switch {
		case src[i] == '<':
			inTag = true
			if strings.HasPrefix(lower[i:], "<script") {
				skipUntil = "</script>"
			} else if strings.HasPrefix(lower[i:], "<style") {
				skipUntil = "</style>"
			}
		case src[i] == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteByte(src[i])
		}
	}

	return &Result{Text: strings.Join(strings.Fields(b.String()), " ")}, nil
}

// parseImage records dimensions and format instead of content, matching what
// we can usefully feed the analyzer for images.
func parseImage(data []byte) (*Result, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}
	text := fmt.Sprintf("[Image] format=%s size=%dx%d", format, cfg.Width, cfg.Height)
	return &Result{
		Text: text,
		Metadata: map[string]string{
			"format": format,
			"width":  fmt.Sprintf("%d", cfg.Width),
			"height": fmt.Sprintf("%d", cfg.Height),
		},
	}, nil
}
