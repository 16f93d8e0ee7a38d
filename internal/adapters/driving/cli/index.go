package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/s-edling/quackdas-sub000/internal/connectors/filesystem"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/logger"
)

var (
	indexDocs  documentFlags
	indexPrune bool
	indexWatch bool
	indexJSON  bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Index documents into the vector store",
	Long: `Chunk, embed and store documents from files, directories or a manifest.

Indexing is incremental: unchanged documents are skipped and only chunks whose
text changed are re-embedded. Hidden files and directories are ignored.

Manifests (.json, .jsonl, .yaml) list documents with id, title, content and kind.

Examples:
  quackdas index ~/notes
  quackdas index ~/notes --include '**/*.md' --exclude 'drafts/**'
  quackdas index --manifest corpus.yaml --prune
  quackdas index ~/notes --watch`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexDocs.manifest, "manifest", "", "read documents from a JSON, JSONL or YAML manifest")
	indexCmd.Flags().StringSliceVar(&indexDocs.include, "include", nil, "only index files matching these globs")
	indexCmd.Flags().StringSliceVar(&indexDocs.exclude, "exclude", nil, "skip files matching these globs")
	indexCmd.Flags().BoolVar(&indexPrune, "prune", false, "remove indexed documents absent from this run")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep running and re-index when files change")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	indexDocs.paths = args
	if indexDocs.empty() {
		return errors.New("nothing to index: pass at least one path or --manifest")
	}
	if indexWatch && len(args) == 0 {
		return errors.New("--watch needs at least one path")
	}

	docs, err := indexDocs.load(cmd.Context())
	if err != nil {
		return err
	}
	logger.Debug("Loaded %d document(s)", len(docs))

	if err := indexOnce(cmd, docs); err != nil {
		return err
	}
	if !indexWatch {
		return nil
	}
	return watchAndIndex(cmd)
}

// indexOnce runs one index job over docs and prints its summary.
func indexOnce(cmd *cobra.Command, docs []domain.Document) error {
	progress := newIndexProgress(cmd.ErrOrStderr())
	req := driving.JobRequest{
		Kind:      domain.JobKindIndex,
		Documents: docs,
		IndexOptions: domain.IndexOptions{
			ModelName:   appSettings.Embedding.Model,
			Chunking:    appSettings.Chunking,
			Concurrency: appSettings.Embedding.Concurrency,
			Prune:       indexPrune,
		},
	}

	ev, err := runJob(cmd, req, func(ev domain.JobEvent) {
		if p, ok := ev.Payload.(domain.Progress); ok {
			progress.Update(p)
			logger.Debug("%s %d/%d %s", p.Phase, p.Embedded, p.Total, p.DocID)
		}
	})
	progress.Finish()
	if err != nil {
		if ev.Type == domain.EventCancelled {
			cmd.PrintErrln("Indexing cancelled. Documents committed before the cancel are kept.")
		}
		return err
	}

	summary, _ := ev.Payload.(*domain.IndexSummary)
	if summary == nil {
		summary = &domain.IndexSummary{}
	}
	return printSummary(cmd, summary)
}

func printSummary(cmd *cobra.Command, s *domain.IndexSummary) error {
	if indexJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Indexed %d document(s) in %s\n", s.Documents, s.Duration.Round(time.Millisecond))
	cmd.Printf("  Chunks:    %d (%d embedded)\n", s.ChunksTotal, s.ChunksEmbedded)
	cmd.Printf("  Unchanged: %d\n", s.Unchanged)
	cmd.Printf("  Skipped:   %d\n", s.Skipped)
	if s.Remapped > 0 {
		cmd.Printf("  Moved:     %d\n", s.Remapped)
	}
	if s.Removed > 0 {
		cmd.Printf("  Removed:   %d\n", s.Removed)
	}
	return nil
}

// watchAndIndex re-indexes the watched paths after each burst of changes
// until interrupted.
func watchAndIndex(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var manifestDocs []domain.Document
	if indexDocs.manifest != "" {
		docs, err := filesystem.LoadManifest(indexDocs.manifest)
		if err != nil {
			return err
		}
		manifestDocs = docs
	}

	watcher := filesystem.NewWatcher(indexDocs.loader(), filesystem.DefaultDebounce)
	defer watcher.Close()

	cmd.PrintErrf("Watching %d path(s) for changes. Press Ctrl-C to stop.\n", len(indexDocs.paths))
	return watcher.Watch(ctx, indexDocs.paths, func(docs []domain.Document) {
		if ctx.Err() != nil {
			return
		}
		all := mergeDocuments(manifestDocs, docs)
		logger.Info("Change detected, re-indexing %d document(s)", len(all))
		if err := indexOnce(cmd, all); err != nil {
			logger.Warn("Re-index failed: %v", err)
		}
	})
}

// mergeDocuments appends docs to base, skipping ids already in base.
func mergeDocuments(base, docs []domain.Document) []domain.Document {
	out := make([]domain.Document, 0, len(base)+len(docs))
	out = append(out, base...)
	seen := make(map[string]bool, len(base))
	for _, d := range base {
		seen[d.ID] = true
	}
	for _, d := range docs {
		if !seen[d.ID] {
			out = append(out, d)
		}
	}
	return out
}
