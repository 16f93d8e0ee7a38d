package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/logger"
)

// DefaultMaxFileSize is the largest file read as a document.
const DefaultMaxFileSize = 10 << 20

// Options configures document loading.
type Options struct {
	// Include restricts loading to paths matching any pattern. Patterns use
	// doublestar syntax against the slash-separated path relative to the
	// walked root, and also against the base name. Empty includes all.
	Include []string

	// Exclude drops paths matching any pattern, with the same matching rules.
	Exclude []string

	// MaxFileSize skips larger files. Zero uses DefaultMaxFileSize.
	MaxFileSize int64
}

// Loader turns files into tagged documents. Each document's ID is its
// absolute, slash-separated path.
type Loader struct {
	opts Options
}

// NewLoader creates a loader.
func NewLoader(opts Options) *Loader {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Loader{opts: opts}
}

// Load reads every file under paths. Directories are walked recursively,
// skipping hidden entries. Documents are returned in walk order with
// duplicates removed.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]domain.Document, error) {
	var docs []domain.Document
	seen := make(map[string]bool)

	add := func(doc domain.Document) {
		if seen[doc.ID] {
			return
		}
		seen[doc.ID] = true
		docs = append(docs, doc)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}

		if !info.IsDir() {
			doc, ok, err := l.readFile(root, info)
			if err != nil {
				return nil, err
			}
			if ok {
				add(doc)
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				logger.Warn("Skipping %s: %v", path, walkErr)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			if isHidden(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if !l.matches(filepath.ToSlash(rel)) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				logger.Warn("Skipping %s: %v", path, err)
				return nil
			}
			doc, ok, err := l.readFile(path, info)
			if err != nil {
				return err
			}
			if ok {
				add(doc)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	logger.Debug("Loaded %d documents from %d path(s)", len(docs), len(paths))
	return docs, nil
}

// Lookup reads the document whose ID is docID, an absolute slash-separated
// path as produced by Load. It reports false for other IDs and for files
// that are missing, too large or not textual. Include and exclude patterns
// do not apply.
func (l *Loader) Lookup(docID string) (domain.Document, bool) {
	path := filepath.FromSlash(docID)
	if !filepath.IsAbs(path) {
		return domain.Document{}, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return domain.Document{}, false
	}
	doc, ok, err := l.readFile(path, info)
	if err != nil {
		logger.Debug("Lookup %s: %v", docID, err)
		return domain.Document{}, false
	}
	if !ok || doc.ID != docID || !doc.Kind.IsTextual() {
		return domain.Document{}, false
	}
	return doc, true
}

// matches applies the include and exclude patterns to a relative path.
func (l *Loader) matches(rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range l.opts.Exclude {
		if globMatch(pattern, rel) || globMatch(pattern, base) {
			return false
		}
	}
	if len(l.opts.Include) == 0 {
		return true
	}
	for _, pattern := range l.opts.Include {
		if globMatch(pattern, rel) || globMatch(pattern, base) {
			return true
		}
	}
	return false
}

func globMatch(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	if err != nil {
		logger.Warn("Invalid pattern %q: %v", pattern, err)
		return false
	}
	return ok
}

// readFile builds a document for path. Non-textual files are returned
// with no content so the indexer can count them as skipped. It reports
// false for files over the size limit.
func (l *Loader) readFile(path string, info fs.FileInfo) (domain.Document, bool, error) {
	if info.Size() > l.opts.MaxFileSize {
		logger.Debug("Skipping %s: %d bytes exceeds limit", path, info.Size())
		return domain.Document{}, false, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("resolve %s: %w", path, err)
	}

	doc := domain.Document{
		ID:    filepath.ToSlash(abs),
		Title: titleFromPath(path),
		Kind:  domain.KindFromPath(path),
	}
	if !doc.Kind.IsTextual() {
		return doc, true, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		doc.Kind = domain.KindBinary
		return doc, true, nil
	}
	doc.Content = string(data)
	return doc, true, nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
