package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusJobs  bool
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Long:  `Show how many documents and chunks are indexed, which embedding models produced the stored vectors, and optionally recent jobs.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJobs, "jobs", false, "also list recent jobs")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of jobs to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if indexer == nil {
		return errNotConfigured("indexer")
	}
	ctx := cmd.Context()

	st, err := indexer.Status(ctx)
	if err != nil {
		return fmt.Errorf("index status: %w", err)
	}

	cmd.Println("Index")
	cmd.Printf("  Documents:    %d\n", st.Documents)
	cmd.Printf("  Chunks:       %d\n", st.Chunks)
	active := st.ActiveModel
	if active == "" {
		active = "(none)"
	}
	cmd.Printf("  Active model: %s (%d chunks embedded)\n", active, st.EmbeddedChunks)
	if len(st.Models) > 0 {
		names := make([]string, 0, len(st.Models))
		for name := range st.Models {
			names = append(names, name)
		}
		sort.Strings(names)
		cmd.Println("  Models:")
		for _, name := range names {
			cmd.Printf("    %s: %d\n", name, st.Models[name])
		}
	}
	if st.LastUpdated.IsZero() {
		cmd.Println("  Last updated: never")
	} else {
		cmd.Printf("  Last updated: %s\n", st.LastUpdated.Local().Format(time.DateTime))
	}

	if !statusJobs {
		return nil
	}
	if jobHistory == nil {
		return errNotConfigured("job history")
	}
	records, err := jobHistory.History(ctx, "", statusLimit)
	if err != nil {
		return fmt.Errorf("job history: %w", err)
	}

	cmd.Println()
	cmd.Println("Recent jobs")
	if len(records) == 0 {
		cmd.Println("  (none)")
		return nil
	}
	for _, r := range records {
		line := fmt.Sprintf("  %s  %-5s  %-9s  items=%d  %s",
			r.StartedAt.Local().Format(time.DateTime), r.Kind, r.Status, r.Items,
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))
		if r.Error != "" {
			line += "  " + r.Error
		}
		cmd.Println(line)
	}
	return nil
}
