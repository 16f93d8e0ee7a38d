package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/logger"
)

var (
	askMode     string
	askTopK     int
	askJSON     bool
	askStream   bool
	askLanguage string
	askDocs     documentFlags
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from indexed documents",
	Long: `Ask retrieves relevant chunks, lets the local model pick the most useful
ones, and generates an answer with citations. Every citation and quote is
checked against the retrieved text; anything the model invented is dropped.

Modes:
  strict - JSON claims with citations and verbatim quotes (default)
  loose  - prose with [n] markers and a SOURCES block

When the model cannot produce a valid answer, the retrieved sources are
listed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askMode, "mode", "", "answer mode: strict or loose (default from settings)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "chunks to retrieve (default from settings)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer as JSON")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "echo raw model output to stderr as it arrives")
	askCmd.Flags().StringVar(&askLanguage, "language", "", "language to answer in")
	askCmd.Flags().StringSliceVar(&askDocs.paths, "source", nil, "files or directories holding the indexed documents")
	askCmd.Flags().StringVar(&askDocs.manifest, "manifest", "", "manifest holding the indexed documents")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	mode := domain.AskMode(strings.ToLower(askMode))
	if askMode != "" && !mode.IsValid() {
		return fmt.Errorf("%w: unknown mode %q (want strict or loose)", domain.ErrInvalidInput, askMode)
	}

	lookup, err := askDocs.groundingLookup(cmd.Context())
	if err != nil {
		return err
	}

	req := driving.JobRequest{
		Kind:     domain.JobKindAsk,
		Question: args[0],
		AskOptions: domain.AskOptions{
			Mode:     mode,
			TopK:     askTopK,
			Lookup:   lookup,
			Language: askLanguage,
		},
	}

	stderr := cmd.ErrOrStderr()
	stopSpinner := func() {}
	if !askStream {
		stopSpinner = startSpinner(stderr, "thinking")
	}

	titles := make(map[domain.ChunkRef]string)
	ev, err := runJob(cmd, req, func(ev domain.JobEvent) {
		switch p := ev.Payload.(type) {
		case domain.AskPhase:
			logger.Debug("Ask phase: %s", p)
		case []domain.RetrievedChunk:
			for _, c := range p {
				titles[c.Ref()] = c.Title
			}
			logger.Debug("Retrieved %d chunk(s)", len(p))
		case string:
			if askStream {
				fmt.Fprint(stderr, p)
			}
		}
	})
	stopSpinner()
	if askStream {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		if ev.Type == domain.EventCancelled {
			cmd.PrintErrln("Ask cancelled.")
		}
		return err
	}

	answer, _ := ev.Payload.(*domain.AskAnswer)
	if answer == nil {
		return fmt.Errorf("ask finished without an answer")
	}

	if askJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("encode answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	renderAnswer(cmd, answer, titles)
	return nil
}

// renderAnswer prints an answer with numbered citations.
func renderAnswer(cmd *cobra.Command, a *domain.AskAnswer, titles map[domain.ChunkRef]string) {
	switch {
	case len(a.Claims) > 0:
		refs := newRefNumbers()
		for _, c := range a.Claims {
			var marks strings.Builder
			for _, ref := range c.Citations {
				fmt.Fprintf(&marks, "[%d]", refs.number(ref))
			}
			cmd.Printf("- %s %s\n", c.Claim, marks.String())
			for _, q := range c.Quotes {
				cmd.Printf("    %q [%d]\n", q.Quote, refs.number(q.Ref()))
			}
		}
		printRefs(cmd, refs, titles)

	case a.AnswerText != "":
		cmd.Println(a.AnswerText)
		refs := newRefNumbers()
		for _, c := range a.CitationRefs {
			refs.assign(c.Marker, c.Ref())
		}
		printRefs(cmd, refs, titles)

	default:
		cmd.Println("No grounded answer.")
	}

	if a.Notes != "" {
		cmd.Printf("\nNote: %s\n", a.Notes)
	}
	if len(a.Sources) > 0 {
		cmd.Println("\nRetrieved sources:")
		for _, s := range a.Sources {
			title := s.Title
			if title == "" {
				title = s.DocID
			}
			cmd.Printf("  - %s (%s) [%.3f]\n", title, s.ChunkID, s.Score)
			if s.Preview != "" {
				cmd.Printf("    %s\n", s.Preview)
			}
		}
	}
}

// refNumbers numbers chunk refs in order of first use.
type refNumbers struct {
	order []domain.ChunkRef
	nums  map[domain.ChunkRef]int
}

func newRefNumbers() *refNumbers {
	return &refNumbers{nums: make(map[domain.ChunkRef]int)}
}

func (r *refNumbers) number(ref domain.ChunkRef) int {
	if n, ok := r.nums[ref]; ok {
		return n
	}
	r.order = append(r.order, ref)
	r.nums[ref] = len(r.order)
	return len(r.order)
}

// assign records a model-chosen marker for ref.
func (r *refNumbers) assign(marker int, ref domain.ChunkRef) {
	if _, ok := r.nums[ref]; ok {
		return
	}
	r.order = append(r.order, ref)
	r.nums[ref] = marker
}

func printRefs(cmd *cobra.Command, refs *refNumbers, titles map[domain.ChunkRef]string) {
	if len(refs.order) == 0 {
		return
	}
	cmd.Println("\nSources:")
	for _, ref := range refs.order {
		title := titles[ref]
		if title == "" {
			title = ref.DocID
		}
		cmd.Printf("  [%d] %s (%s)\n", refs.nums[ref], title, ref.ChunkID)
	}
}
