package services

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

var (
	codeFence    = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")
	sourcesLabel = regexp.MustCompile(`(?im)^[^\S\n]*\**sources\**[^\S\n]*:`)
	sourceLine   = regexp.MustCompile(
		`(?i)\[(\d+)\][^\S\n]*[:\-]?[^\S\n]*docId[^\S\n]*[=:][^\S\n]*"?([^\s",;]+)"?[\s,;]+chunkId[^\S\n]*[=:][^\S\n]*"?([^\s",;]+)"?`)
	inlineMarker = regexp.MustCompile(`\[(\d+)\]`)
)

// extractJSONObject finds a JSON object in model output. It tries, in order:
// the whole output, the contents of a code fence, then the first balanced
// brace span.
func extractJSONObject(raw string) (json.RawMessage, bool) {
	candidates := []string{strings.TrimSpace(raw)}
	if m := codeFence.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if span, ok := firstBalancedObject(raw); ok {
		candidates = append(candidates, span)
	}

	for _, c := range candidates {
		if !strings.HasPrefix(c, "{") {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(c), &obj); err == nil {
			return json.RawMessage(c), true
		}
	}
	return nil, false
}

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside JSON strings.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// strictPayload is the JSON contract of a strict answer.
type strictPayload struct {
	Answer []domain.Claim `json:"answer"`
	Notes  string         `json:"notes"`
}

// parseStrictAnswer decodes a strict answer. It fails with a
// SCHEMA_VALIDATION_FAILED error when no object with an answer array and
// at least one non-empty claim can be found.
func parseStrictAnswer(raw string) (*strictPayload, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, schemaError("no JSON object in output")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil, schemaError(err.Error())
	}
	if _, ok := fields["answer"]; !ok {
		return nil, schemaError(`missing "answer"`)
	}

	var p strictPayload
	if err := json.Unmarshal(obj, &p); err != nil {
		return nil, schemaError(err.Error())
	}

	claims := p.Answer[:0]
	for _, c := range p.Answer {
		c.Claim = strings.TrimSpace(c.Claim)
		if c.Claim != "" {
			claims = append(claims, c)
		}
	}
	if len(claims) == 0 {
		return nil, schemaError("answer has no claims")
	}
	p.Answer = claims
	return &p, nil
}

// looseAnswer is a parsed loose answer before validation.
type looseAnswer struct {
	Text    string
	Sources map[int]domain.ChunkRef
	Notes   string
}

// looseJSON is the object shape accepted when a loose answer arrives as JSON.
type looseJSON struct {
	AnswerText string `json:"answerText"`
	Answer     any    `json:"answer"`
	Citations  []struct {
		Marker  int    `json:"marker"`
		DocID   string `json:"docId"`
		ChunkID string `json:"chunkId"`
	} `json:"citations"`
	Notes string `json:"notes"`
}

// parseLooseAnswer splits free text with [n] markers from its trailing
// SOURCES block. Output without a SOURCES block may instead be a JSON
// object with answerText (or a string answer) and citations.
func parseLooseAnswer(raw string) (*looseAnswer, error) {
	if loc := lastMatch(sourcesLabel, raw); loc != nil {
		ans := &looseAnswer{
			Text:    strings.TrimSpace(raw[:loc[0]]),
			Sources: make(map[int]domain.ChunkRef),
		}
		for _, m := range sourceLine.FindAllStringSubmatch(raw[loc[1]:], -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			ans.Sources[n] = domain.ChunkRef{DocID: m[2], ChunkID: m[3]}
		}
		if ans.Text == "" {
			return nil, schemaError("empty answer text")
		}
		if len(ans.Sources) == 0 {
			return nil, schemaError("SOURCES block has no entries")
		}
		return ans, nil
	}

	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, schemaError("no SOURCES block and no JSON object")
	}
	var j looseJSON
	if err := json.Unmarshal(obj, &j); err != nil {
		return nil, schemaError(err.Error())
	}

	text := strings.TrimSpace(j.AnswerText)
	if s, ok := j.Answer.(string); ok && text == "" {
		text = strings.TrimSpace(s)
	}
	if text == "" {
		return nil, schemaError("empty answer text")
	}

	ans := &looseAnswer{Text: text, Notes: j.Notes, Sources: make(map[int]domain.ChunkRef)}
	for i, c := range j.Citations {
		marker := c.Marker
		if marker <= 0 {
			marker = i + 1
		}
		ans.Sources[marker] = domain.ChunkRef{DocID: c.DocID, ChunkID: c.ChunkID}
	}
	return ans, nil
}

// parsePlan reads the planner's chunk selection. Unparseable output yields nil.
func parsePlan(raw string) []domain.ChunkRef {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil
	}
	var plan struct {
		Chunks []domain.ChunkRef `json:"chunks"`
	}
	if err := json.Unmarshal(obj, &plan); err != nil {
		return nil
	}
	return plan.Chunks
}

// markersInText returns the distinct [n] markers of text in order of
// first appearance.
func markersInText(text string) []int {
	seen := make(map[int]bool)
	var markers []int
	for _, m := range inlineMarker.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		markers = append(markers, n)
	}
	return markers
}

// stripMarkers removes [n] markers whose number is not in keep.
func stripMarkers(text string, keep map[int]bool) string {
	out := inlineMarker.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err == nil && keep[n] {
			return m
		}
		return ""
	})
	// Tidy spaces left in front of punctuation
	out = strings.NewReplacer(" .", ".", " ,", ",", "  ", " ").Replace(out)
	return strings.TrimSpace(out)
}

func lastMatch(re *regexp.Regexp, s string) []int {
	all := re.FindAllStringIndex(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func schemaError(reason string) error {
	return domain.WrapError(domain.CodeSchemaValidationFailed, "invalid model output", errors.New(reason))
}
