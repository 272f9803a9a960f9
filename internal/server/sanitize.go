package server

import (
	"strings"
	"unicode"
)

// sanitizeText strips control characters and caps the rune length of
// client-supplied text. Valid Unicode, including emoji and CJK characters,
// passes through untouched so encrypted blobs and media URLs survive as-is.
func sanitizeText(s string, maxRunes int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		if r == unicode.ReplacementChar {
			continue
		}
		b.WriteRune(r)
	}

	out := b.String()
	if runes := []rune(out); len(runes) > maxRunes {
		out = string(runes[:maxRunes])
	}
	return strings.TrimSpace(out)
}
