package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

const validStrict = `{"answer":[{"claim":"Ducks fly south.","citations":[{"docId":"d","chunkId":"d::0"}],"quotes":[]}],"notes":"ok"}`

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"direct", `{"a":1}`, `{"a":1}`, true},
		{"surrounding whitespace", "\n  {\"a\":1}\n", `{"a":1}`, true},
		{"code fence", "Here you go:\n```json\n{\"a\":1}\n```\nThanks", `{"a":1}`, true},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`, true},
		{"balanced braces in prose", `Sure! {"a":{"b":"}"}} hope that helps`, `{"a":{"b":"}"}}`, true},
		{"escaped quote in string", `x {"a":"say \"{\" ok"} y`, `{"a":"say \"{\" ok"}`, true},
		{"no object", "no json here", "", false},
		{"unbalanced", `{"a":1`, "", false},
		{"array is not an object", `[1,2]`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONObject(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.JSONEq(t, tt.want, string(got))
			}
		})
	}
}

func TestParseStrictAnswer(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p, err := parseStrictAnswer(validStrict)
		require.NoError(t, err)
		require.Len(t, p.Answer, 1)
		assert.Equal(t, "Ducks fly south.", p.Answer[0].Claim)
		assert.Equal(t, []domain.ChunkRef{{DocID: "d", ChunkID: "d::0"}}, p.Answer[0].Citations)
		assert.Equal(t, "ok", p.Notes)
	})

	t.Run("fenced", func(t *testing.T) {
		p, err := parseStrictAnswer("```json\n" + validStrict + "\n```")
		require.NoError(t, err)
		assert.Len(t, p.Answer, 1)
	})

	t.Run("blank claims are dropped", func(t *testing.T) {
		p, err := parseStrictAnswer(`{"answer":[{"claim":"  "},{"claim":"Kept."}]}`)
		require.NoError(t, err)
		require.Len(t, p.Answer, 1)
		assert.Equal(t, "Kept.", p.Answer[0].Claim)
	})

	failures := map[string]string{
		"not json":       "I think ducks fly south.",
		"missing answer": `{"notes":"nothing"}`,
		"answer string":  `{"answer":"ducks fly"}`,
		"no claims":      `{"answer":[]}`,
		"only blank":     `{"answer":[{"claim":""}]}`,
	}
	for name, raw := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := parseStrictAnswer(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrSchemaValidationFailed))
		})
	}
}

func TestParseLooseAnswer(t *testing.T) {
	t.Run("sources block", func(t *testing.T) {
		raw := "Ducks fly south [1] and geese follow [2].\n\nSOURCES:\n" +
			"[1] docId=ducks chunkId=ducks::0\n" +
			"[2] docId: \"geese\", chunkId: \"geese::3\"\n"
		a, err := parseLooseAnswer(raw)
		require.NoError(t, err)
		assert.Equal(t, "Ducks fly south [1] and geese follow [2].", a.Text)
		assert.Equal(t, map[int]domain.ChunkRef{
			1: {DocID: "ducks", ChunkID: "ducks::0"},
			2: {DocID: "geese", ChunkID: "geese::3"},
		}, a.Sources)
	})

	t.Run("markdown label", func(t *testing.T) {
		a, err := parseLooseAnswer("Answer [1]\n**Sources:**\n- [1] docId=a chunkId=a::0")
		require.NoError(t, err)
		assert.Equal(t, domain.ChunkRef{DocID: "a", ChunkID: "a::0"}, a.Sources[1])
	})

	t.Run("json fallback with answerText", func(t *testing.T) {
		a, err := parseLooseAnswer(`{"answerText":"Ducks [1].","citations":[{"marker":1,"docId":"a","chunkId":"a::0"}]}`)
		require.NoError(t, err)
		assert.Equal(t, "Ducks [1].", a.Text)
		assert.Equal(t, domain.ChunkRef{DocID: "a", ChunkID: "a::0"}, a.Sources[1])
	})

	t.Run("json fallback with answer and implicit markers", func(t *testing.T) {
		a, err := parseLooseAnswer(`{"answer":"Ducks [1] geese [2].","citations":[{"docId":"a","chunkId":"a::0"},{"docId":"b","chunkId":"b::0"}]}`)
		require.NoError(t, err)
		assert.Equal(t, domain.ChunkRef{DocID: "b", ChunkID: "b::0"}, a.Sources[2])
	})

	failures := map[string]string{
		"plain prose":         "Ducks fly south.",
		"empty text":          "SOURCES:\n[1] docId=a chunkId=a::0",
		"no source entries":   "Ducks [1].\nSOURCES:\nnone",
		"json without text":   `{"citations":[]}`,
		"json with no answer": `{"answer":[]}`,
	}
	for name, raw := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := parseLooseAnswer(raw)
			require.Error(t, err)
			assert.Equal(t, domain.CodeSchemaValidationFailed, domain.CodeOf(err))
		})
	}
}

func TestParsePlan(t *testing.T) {
	refs := parsePlan(`{"chunks":[{"docId":"a","chunkId":"a::1"}]}`)
	assert.Equal(t, []domain.ChunkRef{{DocID: "a", ChunkID: "a::1"}}, refs)

	assert.Nil(t, parsePlan("the first chunk"))
	assert.Nil(t, parsePlan(`{"chunks":"all"}`))
}

func TestMarkers(t *testing.T) {
	assert.Equal(t, []int{2, 1, 10}, markersInText("b [2] a [1] again [2] j [10]"))
	assert.Empty(t, markersInText("no markers [x]"))

	got := stripMarkers("Ducks [1] fly [2]. Geese [3], too.", map[int]bool{1: true})
	assert.Equal(t, "Ducks [1] fly. Geese, too.", got)
}
