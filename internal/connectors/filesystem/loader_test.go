package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// writeTree creates files under root from a path -> content map.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func ids(docs []domain.Document, root string) []string {
	out := make([]string, 0, len(docs))
	prefix := filepath.ToSlash(root) + "/"
	for _, d := range docs {
		out = append(out, d.ID[len(prefix):])
	}
	return out
}

func TestLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":           "alpha",
		"notes/b.md":      "# Bravo",
		"notes/deep/c.md": "charlie",
		".hidden.txt":     "secret",
		".git/config":     "[core]",
		"report.pdf":      "%PDF-1.4",
	})

	docs, err := NewLoader(Options{}).Load(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "notes/b.md", "notes/deep/c.md", "report.pdf"}, ids(docs, root))

	byName := make(map[string]domain.Document)
	for _, d := range docs {
		byName[filepath.Base(d.ID)] = d
	}
	assert.Equal(t, "alpha", byName["a.txt"].Content)
	assert.Equal(t, "a", byName["a.txt"].Title)
	assert.Equal(t, domain.KindText, byName["a.txt"].Kind)
	assert.Equal(t, domain.KindMarkdown, byName["b.md"].Kind)
	assert.Equal(t, domain.KindPDF, byName["report.pdf"].Kind)
	assert.Empty(t, byName["report.pdf"].Content, "non-textual files are not read")
}

func TestLoader_IDsAreAbsolute(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "alpha"})

	docs, err := NewLoader(Options{}).Load(context.Background(), filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, filepath.IsAbs(filepath.FromSlash(docs[0].ID)))
}

func TestLoader_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":               "alpha",
		"notes/b.md":          "bravo",
		"notes/drafts/c.md":   "charlie",
		"vendor/lib/d.md":     "delta",
		"notes/e.markdown":    "echo",
		"notes/drafts/f.txt":  "foxtrot",
		"notes/archive/g.md":  "golf",
		"notes/archive/h.txt": "hotel",
	})

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "include by extension",
			opts: Options{Include: []string{"**/*.md"}},
			want: []string{"notes/archive/g.md", "notes/b.md", "notes/drafts/c.md", "vendor/lib/d.md"},
		},
		{
			name: "include by base name",
			opts: Options{Include: []string{"*.txt"}},
			want: []string{"a.txt", "notes/archive/h.txt", "notes/drafts/f.txt"},
		},
		{
			name: "exclude directory",
			opts: Options{Include: []string{"**/*.md"}, Exclude: []string{"vendor/**", "notes/drafts/**"}},
			want: []string{"notes/archive/g.md", "notes/b.md"},
		},
		{
			name: "exclude wins",
			opts: Options{Include: []string{"*.txt"}, Exclude: []string{"h.txt"}},
			want: []string{"a.txt", "notes/drafts/f.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := NewLoader(tt.opts).Load(context.Background(), root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs, root))
		})
	}
}

func TestLoader_SkipsLargeFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.txt": "ok",
		"big.txt":   "0123456789",
	})

	docs, err := NewLoader(Options{MaxFileSize: 5}).Load(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"small.txt"}, ids(docs, root))
}

func TestLoader_InvalidUTF8IsBinary(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.txt"), []byte{0xff, 0xfe, 0x00}, 0o644))

	docs, err := NewLoader(Options{}).Load(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.KindBinary, docs[0].Kind)
	assert.Empty(t, docs[0].Content)
}

func TestLoader_DeduplicatesOverlappingPaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "alpha", "sub/b.txt": "bravo"})

	docs, err := NewLoader(Options{}).Load(context.Background(), root, filepath.Join(root, "sub"), filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, ids(docs, root))
}

func TestLoader_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := NewLoader(Options{}).Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("cancelled context", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{"a.txt": "alpha"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewLoader(Options{}).Load(ctx, root)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{"/home/user/.ssh/id_rsa", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
		{"path/../file", false},
		{"", false},
		{"file.hidden", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestLoader_Lookup(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":      "alpha",
		"report.pdf": "%PDF-1.4",
	})
	l := NewLoader(Options{Exclude: []string{"*.txt"}})

	id := filepath.ToSlash(filepath.Join(root, "a.txt"))
	doc, ok := l.Lookup(id)
	require.True(t, ok, "exclude patterns do not apply to lookups")
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, "alpha", doc.Content)

	tests := []struct {
		name string
		id   string
	}{
		{"relative id", "a.txt"},
		{"manifest id", "ducks"},
		{"missing file", filepath.ToSlash(filepath.Join(root, "gone.txt"))},
		{"directory", filepath.ToSlash(root)},
		{"non-textual", filepath.ToSlash(filepath.Join(root, "report.pdf"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := l.Lookup(tt.id)
			assert.False(t, ok)
		})
	}
}
