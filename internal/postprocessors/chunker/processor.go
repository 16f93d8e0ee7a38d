// Package chunker splits canonical document text into deterministic,
// bounded, overlapping chunks addressed by character offsets.
//
// Offsets count Unicode code points, not bytes, so a hard cut never
// splits a multi-byte character.
package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// Defaults, in characters.
const (
	DefaultMinChars     = 1200
	DefaultMaxChars     = 1800
	DefaultOverlapChars = 200

	// MinMinChars is the smallest accepted minimum chunk size.
	MinMinChars = 100
)

var (
	paragraphBreak = regexp.MustCompile(`\n{2,}`)
	lineBreak      = regexp.MustCompile(`\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+\s+`)
)

// Chunker splits text into chunks. It is stateless after construction
// and safe for concurrent use.
type Chunker struct {
	minChars int
	maxChars int
	overlap  int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMinChars sets the preferred minimum chunk size.
func WithMinChars(n int) Option {
	return func(c *Chunker) {
		c.minChars = n
	}
}

// WithMaxChars sets the maximum chunk size.
func WithMaxChars(n int) Option {
	return func(c *Chunker) {
		c.maxChars = n
	}
}

// WithOverlap sets the overlap between consecutive chunks.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		c.overlap = n
	}
}

// WithSettings applies all three sizes from settings.
func WithSettings(s domain.ChunkingSettings) Option {
	return func(c *Chunker) {
		c.minChars = s.MinChars
		c.maxChars = s.MaxChars
		c.overlap = s.OverlapChars
	}
}

// New creates a chunker. Sizes are clamped: minChars >= 100,
// maxChars >= minChars, 0 <= overlap < minChars.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		minChars: DefaultMinChars,
		maxChars: DefaultMaxChars,
		overlap:  DefaultOverlapChars,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.minChars < MinMinChars {
		c.minChars = MinMinChars
	}
	if c.maxChars < c.minChars {
		c.maxChars = c.minChars
	}
	if c.overlap < 0 {
		c.overlap = 0
	}
	// Ensure overlap doesn't swallow a whole chunk
	if c.overlap >= c.minChars {
		c.overlap = c.minChars / 4
	}

	return c
}

// Settings returns the effective, clamped sizes.
func (c *Chunker) Settings() domain.ChunkingSettings {
	return domain.ChunkingSettings{
		MinChars:     c.minChars,
		MaxChars:     c.maxChars,
		OverlapChars: c.overlap,
	}
}

// Chunk splits text into an ordered list of chunks for docID.
// Identical input always yields identical output.
func (c *Chunker) Chunk(docID, text string) []domain.Chunk {
	text = Canonicalize(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	bounds := c.boundaries(text)

	var chunks []domain.Chunk
	start, prevEnd := 0, 0

	// Every iteration advances the end by at least one character.
	for iter := 0; iter <= n; iter++ {
		end := c.chooseEnd(bounds, start, prevEnd, n)
		slice := string(runes[start:end])

		chunks = append(chunks, domain.Chunk{
			DocID:     docID,
			ID:        ChunkID(docID, len(chunks)),
			Index:     len(chunks),
			StartChar: start,
			EndChar:   end,
			TextHash:  Hash(slice),
			Preview:   Preview(slice),
		})

		if end >= n {
			break
		}

		next := max(end-c.overlap, start)
		if next <= start {
			next = end
		}
		start, prevEnd = next, end
	}

	return chunks
}

// chooseEnd picks the end offset for a chunk beginning at start.
// Candidates must lie beyond the previous chunk's end.
func (c *Chunker) chooseEnd(bounds []int, start, prevEnd, n int) int {
	limit := start + c.maxChars

	// Largest boundary within maxChars. When any boundary falls in
	// [start+minChars, start+maxChars] this is the largest of them;
	// otherwise it is the largest one below start+minChars.
	i := sort.SearchInts(bounds, limit+1)
	if i > 0 && bounds[i-1] > prevEnd {
		return bounds[i-1]
	}

	// Forced overflow: the next boundary past the window, tolerated
	// only within the overlap that pulled start backwards.
	if i < len(bounds) && bounds[i]-limit <= c.overlap {
		return bounds[i]
	}

	return min(limit, n)
}

// boundaries returns the sorted end offsets of every unit. The last
// boundary is always the text length.
func (c *Chunker) boundaries(text string) []int {
	toRune := runeOffsets(text)

	var bounds []int
	last := 0
	add := func(b int) {
		if b > last {
			bounds = append(bounds, b)
			last = b
		}
	}

	for _, unit := range baseUnits(text) {
		ustart, uend := toRune[unit[0]], toRune[unit[1]]
		if uend-ustart <= c.maxChars {
			add(uend)
			continue
		}
		for _, piece := range sentences(text, unit) {
			pstart, pend := toRune[piece[0]], toRune[piece[1]]
			for cut := pstart + c.maxChars; cut < pend; cut += c.maxChars {
				add(cut)
			}
			add(pend)
		}
	}

	return bounds
}

// baseUnits returns contiguous byte spans covering text. Separators stay
// attached to the unit they terminate.
func baseUnits(text string) [][2]int {
	seps := paragraphBreak.FindAllStringIndex(text, -1)
	if len(seps) == 0 {
		seps = lineBreak.FindAllStringIndex(text, -1)
	}
	return spansBetween(seps, 0, len(text))
}

// sentences splits a byte span at sentence-ending punctuation followed
// by whitespace.
func sentences(text string, span [2]int) [][2]int {
	matches := sentenceEnd.FindAllStringIndex(text[span[0]:span[1]], -1)
	for i := range matches {
		matches[i][0] += span[0]
		matches[i][1] += span[0]
	}
	return spansBetween(matches, span[0], span[1])
}

// spansBetween turns separator matches into spans ending after each separator.
func spansBetween(seps [][]int, from, to int) [][2]int {
	spans := make([][2]int, 0, len(seps)+1)
	start := from
	for _, m := range seps {
		if m[1] > start {
			spans = append(spans, [2]int{start, m[1]})
			start = m[1]
		}
	}
	if start < to {
		spans = append(spans, [2]int{start, to})
	}
	return spans
}

// runeOffsets maps every byte offset of text to its code point offset.
// Only offsets at rune starts (and len(text)) are meaningful.
func runeOffsets(text string) []int {
	offsets := make([]int, len(text)+1)
	r := 0
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		for j := 0; j < size; j++ {
			offsets[i+j] = r
		}
		i += size
		r++
	}
	offsets[len(text)] = r
	return offsets
}

// ChunkID derives the chunk identifier for the chunk at index.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s::%d", docID, index)
}
