package cli

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/s-edling/quackdas-sub000/internal/adapters/driven/storage/memory"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/services"
)

type testServices struct {
	models   *mockModels
	indexer  *mockIndexer
	search   *mockSearch
	asker    *mockAsker
	jobs     *services.JobManager
	settings *services.SettingsService
	history  *memory.JobHistoryStore
	store    *memory.VectorStore
}

// setupTestServices installs mocks behind the command globals and restores
// empty services when the test ends.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()

	ts := &testServices{
		models:  &mockModels{},
		indexer: &mockIndexer{summary: &domain.IndexSummary{}, status: &domain.IndexStatus{}},
		search:  &mockSearch{},
		asker:   &mockAsker{answer: &domain.AskAnswer{Mode: domain.AskModeStrict}},
		history: memory.NewJobHistoryStore(),
		store:   memory.NewVectorStore(),
	}
	ts.jobs = services.NewJobManager(ts.indexer, ts.asker, ts.history, domain.JobSettings{CancelGrace: time.Second})
	ts.settings = services.NewSettingsService(memory.NewConfigStore(), nil, ts.store)

	useServices(&Services{
		Models:    ts.models,
		Indexer:   ts.indexer,
		Search:    ts.search,
		Jobs:      ts.jobs,
		Settings:  ts.settings,
		History:   ts.history,
		Effective: domain.DefaultAppSettings(),
	})

	t.Cleanup(func() {
		ts.jobs.Wait()
		useServices(&Services{Effective: domain.DefaultAppSettings()})
	})
	return ts
}

// resetFlags restores every flag in the tree to its default so values do
// not leak between executions of the shared root command.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeErr runs the root command with args and returns stdout, stderr
// and the command error.
func executeErr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeErr(t, args...)
	return out, err
}

// fakeInterrupts replaces the signal source for the test and returns the
// channel to send on.
func fakeInterrupts(t *testing.T) chan os.Signal {
	t.Helper()
	ch := make(chan os.Signal, 1)
	orig := interrupts
	interrupts = func() (<-chan os.Signal, func()) { return ch, func() {} }
	t.Cleanup(func() { interrupts = orig })
	return ch
}
