package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTextStripsControlCharacters(t *testing.T) {
	assert.Equal(t, "hello", sanitizeText("he\x00l\x1blo", 100))
	assert.Equal(t, "a\tb\nc", sanitizeText("a\tb\nc", 100), "tab and newline survive")
	assert.Equal(t, "ab", sanitizeText("a�b", 100), "replacement char is dropped")
}

func TestSanitizeTextKeepsUnicode(t *testing.T) {
	assert.Equal(t, "héllo 👍 世界", sanitizeText("héllo 👍 世界", 100))
}

func TestSanitizeTextCapsRunesNotBytes(t *testing.T) {
	in := strings.Repeat("界", 10)
	out := sanitizeText(in, 4)
	assert.Equal(t, strings.Repeat("界", 4), out)
}

func TestSanitizeTextTrimsWhitespace(t *testing.T) {
	assert.Equal(t, "hi", sanitizeText("  hi  ", 100))
	assert.Equal(t, "", sanitizeText("   ", 100))
	assert.Equal(t, "", sanitizeText("\x00\x01", 100))
	assert.Equal(t, "", sanitizeText("", 100))
}
