package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/postprocessors/chunker"
)

var (
	searchTopK       int
	searchCandidates int
	searchJSON       bool
	searchDocs       documentFlags
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Search embeds the query with the active embedding model, ranks every stored
chunk by cosine similarity, and reranks the best candidates with lexical
signals (term coverage, density and exact phrase).

Chunk text is shown when the source documents are given with --source or
--manifest; otherwise the stored preview is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from settings)")
	searchCmd.Flags().IntVar(&searchCandidates, "candidates", 0, "semantic candidates to rerank (default from settings)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringSliceVar(&searchDocs.paths, "source", nil, "files or directories holding the indexed documents")
	searchCmd.Flags().StringVar(&searchDocs.manifest, "manifest", "", "manifest holding the indexed documents")
	rootCmd.AddCommand(searchCmd)
}

// searchResult is the JSON form of a retrieved chunk.
type searchResult struct {
	DocID       string  `json:"docId"`
	ChunkID     string  `json:"chunkId"`
	Title       string  `json:"title,omitempty"`
	Score       float64 `json:"score"`
	RerankScore float64 `json:"rerankScore"`
	Text        string  `json:"text"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errNotConfigured("search service")
	}
	ctx := cmd.Context()

	lookup, err := searchDocs.lookup(ctx)
	if err != nil {
		return err
	}

	results, err := searchService.Search(ctx, args[0], domain.SearchOptions{
		TopK:       searchTopK,
		CandidateK: searchCandidates,
		Lookup:     lookup,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if searchJSON {
		out := make([]searchResult, len(results))
		for i := range results {
			r := &results[i]
			out[i] = searchResult{
				DocID:       r.DocID,
				ChunkID:     r.ID,
				Title:       r.Title,
				Score:       r.Score,
				RerankScore: r.RerankScore,
				Text:        displayText(*r),
			}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("Results: %d\n\n", len(results))
	for i := range results {
		r := &results[i]
		title := r.Title
		if title == "" {
			title = r.DocID
		}
		cmd.Printf("%d. %s  [%.3f]\n", i+1, title, r.RerankScore)
		cmd.Printf("   %s\n", r.ID)
		cmd.Printf("   %s\n\n", chunker.Preview(displayText(*r)))
	}
	return nil
}

// displayText prefers resolved chunk text over the stored preview.
func displayText(r domain.RetrievedChunk) string {
	if strings.TrimSpace(r.Text) != "" {
		return r.Text
	}
	return r.Preview
}
