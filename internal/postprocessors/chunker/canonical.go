package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PreviewLength caps preview strings, in characters.
const PreviewLength = 200

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Canonicalize normalises CRLF and bare CR line endings to LF.
func Canonicalize(text string) string {
	if !strings.ContainsRune(text, '\r') {
		return text
	}
	return lineEndings.Replace(text)
}

// Hash returns the hex SHA-256 of the canonical form of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Canonicalize(text)))
	return hex.EncodeToString(sum[:])
}

// Preview collapses whitespace and truncates to PreviewLength characters.
func Preview(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= PreviewLength {
		return collapsed
	}
	return strings.TrimRight(string(runes[:PreviewLength-1]), " ") + "…"
}

// Slice returns text[start:end] in character offsets, clamped to the
// text bounds. It is how chunk text is recovered from current content.
func Slice(text string, start, end int) string {
	runes := []rune(text)
	start = max(0, min(start, len(runes)))
	end = max(start, min(end, len(runes)))
	return string(runes[start:end])
}
