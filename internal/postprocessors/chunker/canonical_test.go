package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unchanged", "a\nb", "a\nb"},
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"bare cr", "a\rb", "a\nb"},
		{"mixed", "a\r\n\rb\n", "a\n\nb\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonicalize(tt.input))
		})
	}
}

func TestHash(t *testing.T) {
	h := Hash("hello\n")
	assert.Len(t, h, 64)
	assert.Equal(t, h, Hash("hello\r\n"), "hash is over canonical text")
	assert.NotEqual(t, h, Hash("hello"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", Preview("  a\n\n b\t c  "))

	long := strings.Repeat("word ", 100)
	p := Preview(long)
	assert.LessOrEqual(t, utf8.RuneCountInString(p), PreviewLength)
	assert.True(t, strings.HasSuffix(p, "…"))
}

func TestSlice(t *testing.T) {
	text := "héllo world"
	assert.Equal(t, "héllo", Slice(text, 0, 5))
	assert.Equal(t, "world", Slice(text, 6, 11))
	assert.Equal(t, "world", Slice(text, 6, 99))
	assert.Equal(t, "", Slice(text, 20, 30))
	assert.Equal(t, "", Slice(text, 5, 2))
}
