package filesystem

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// maxManifestLine bounds a single JSONL record.
const maxManifestLine = 16 << 20

// manifest is the object form of a manifest file.
type manifest struct {
	Documents []domain.Document `json:"documents" yaml:"documents"`
}

// LoadManifest reads documents from a JSON, JSONL or YAML file, chosen by
// extension. JSON and YAML accept either a list of documents or an object
// with a "documents" list. Every document needs a unique id; a missing
// kind means text.
func LoadManifest(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var docs []domain.Document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		docs, err = parseJSONManifest(data)
	case ".jsonl", ".ndjson":
		docs, err = parseJSONLManifest(data)
	case ".yaml", ".yml":
		docs, err = parseYAMLManifest(data)
	default:
		return nil, fmt.Errorf("%w: unsupported manifest format %q", domain.ErrInvalidInput, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if err := checkManifest(docs); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return docs, nil
}

func parseJSONManifest(data []byte) ([]domain.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []domain.Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	var m manifest
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, err
	}
	return m.Documents, nil
}

func parseJSONLManifest(data []byte) ([]domain.Document, error) {
	var docs []domain.Document
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxManifestLine)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var doc domain.Document
		if err := json.Unmarshal(text, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func parseYAMLManifest(data []byte) ([]domain.Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	if node.Content[0].Kind == yaml.SequenceNode {
		var docs []domain.Document
		if err := node.Decode(&docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	var m manifest
	if err := node.Decode(&m); err != nil {
		return nil, err
	}
	return m.Documents, nil
}

func checkManifest(docs []domain.Document) error {
	seen := make(map[string]bool, len(docs))
	for i := range docs {
		doc := &docs[i]
		doc.ID = strings.TrimSpace(doc.ID)
		if doc.ID == "" {
			return fmt.Errorf("%w: document %d has no id", domain.ErrInvalidInput, i)
		}
		if seen[doc.ID] {
			return fmt.Errorf("%w: duplicate document id %q", domain.ErrInvalidInput, doc.ID)
		}
		seen[doc.ID] = true
		if doc.Kind == "" {
			doc.Kind = domain.KindText
		}
	}
	return nil
}
