package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads ask pipeline prompts from user-editable files on disk,
// falling back to embedded defaults.
//
// Files are created lazily on the first Load, not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts. They are used when user
// files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptPlanner: `You select evidence for a research question. You will receive the question and a list of candidate excerpts, each labelled with a docId and chunkId.

Choose at most 3 excerpts that are most useful for answering the question. Only use docId/chunkId pairs that appear in the list.

Return ONLY a JSON object of the form:
{"chunks":[{"docId":"...","chunkId":"..."}]}`,

	driven.PromptAnswerStrict: `You answer questions using ONLY the provided excerpts. Every statement must be supported by the excerpts.

Return ONLY a JSON object with this exact shape:
{"answer":[{"claim":"...","citations":[{"docId":"...","chunkId":"..."}],"quotes":[{"docId":"...","chunkId":"...","quote":"..."}]}],"notes":"..."}

Rules:
- Cite only docId/chunkId pairs that appear in the excerpts.
- Every claim needs at least one citation.
- Quotes must be copied verbatim from the cited excerpt and be at most 25 words.
- If the excerpts do not answer the question, return an empty "answer" array and explain in "notes".`,

	driven.PromptAnswerLoose: `You answer questions using ONLY the provided excerpts.

Write a concise answer in plain prose. Mark supporting evidence inline with numbered markers such as [1] or [2].

End your reply with a SOURCES: block that maps every marker you used to an excerpt, one per line:
SOURCES:
[1] docId=<docId> chunkId=<chunkId>

Only use docId/chunkId pairs that appear in the excerpts. If the excerpts do not answer the question, say so.`,

	driven.PromptRepair: `Your previous reply could not be used because it did not follow the required format or cited evidence that was not provided. It has been discarded.

Answer the question again from the excerpts. Return ONLY a JSON object with this exact shape and nothing else:
{"answer":[{"claim":"...","citations":[{"docId":"...","chunkId":"..."}],"quotes":[{"docId":"...","chunkId":"...","quote":"..."}]}],"notes":"..."}

Use only docId/chunkId pairs from the excerpts. Quotes must be verbatim and at most 25 words. Cite at least two different excerpts when the evidence allows.`,

	driven.PromptRepairFinal: `Your reply still could not be used. This is the last attempt.

Fill in this skeleton and return ONLY the JSON, with no other text:
{"answer":[{"claim":"<one sentence>","citations":[{"docId":"<docId>","chunkId":"<chunkId>"}],"quotes":[]}],"notes":""}

Copy docId and chunkId exactly from the excerpts.`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.quackdas/prompts/.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".quackdas", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// Falls back to the embedded default if the file can't be read.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	prompt, err := s.loadFromFile(name)
	if err != nil || prompt == "" {
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		if err == nil {
			err = fmt.Errorf("empty prompt file")
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Double-check so concurrent loads agree on one value
	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.promptDir, name+".txt"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	content := `# Quackdas Prompts

These prompts drive the ask pipeline. Edit a file to change model behaviour;
delete it to restore the built-in default on the next run.

- ` + "`planner.txt`" + ` - selects up to three excerpts for the question
- ` + "`answer_strict.txt`" + ` - JSON answer with claims, citations and quotes
- ` + "`answer_loose.txt`" + ` - prose answer with [n] markers and a SOURCES block
- ` + "`repair.txt`" + ` - restates the JSON schema after an invalid answer
- ` + "`repair_final.txt`" + ` - last attempt with a minimal skeleton

The question and excerpts are sent as a separate message, so prompts take no
placeholders. Answers are validated against the excerpts whatever the prompt says.
`
	return os.WriteFile(path, []byte(content), 0600)
}
