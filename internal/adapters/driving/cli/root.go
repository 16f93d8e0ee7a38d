// Package cli provides the quackdas command tree. Commands are thin
// clients of the driving ports: they load documents, start jobs and render
// job events.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driven"
	"github.com/s-edling/quackdas-sub000/internal/core/ports/driving"
	"github.com/s-edling/quackdas-sub000/internal/logger"
)

// skipServices marks commands that run without the service graph.
const skipServices = "skip-services"

// version is set at build time via SetVersion.
var version = "dev"

// ModelLister reports which models the inference endpoint has installed.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
	IsReachable(ctx context.Context) bool
}

// Options carries the global flags to the service builder.
type Options struct {
	Home      string
	Ephemeral bool
}

// Services is the set of ports the commands drive.
type Services struct {
	Models   ModelLister
	Indexer  driving.Indexer
	Search   driving.SearchService
	Jobs     driving.JobManager
	Settings driving.SettingsService
	History  driven.JobHistoryStore

	// Effective holds the resolved settings after environment overrides.
	Effective domain.AppSettings

	// Close releases stores. Optional.
	Close func() error
}

// Builder constructs services once global flags are parsed.
type Builder func(opts Options) (*Services, error)

// Global flags.
var (
	homeDir   string
	verbose   bool
	sessionID string
	ephemeral bool
)

// Service globals, populated by the builder or by tests.
var (
	builder         Builder
	modelLister     ModelLister
	indexer         driving.Indexer
	searchService   driving.SearchService
	jobManager      driving.JobManager
	settingsService driving.SettingsService
	jobHistory      driven.JobHistoryStore
	appSettings     = domain.DefaultAppSettings()
	closeServices   func() error
)

var rootCmd = &cobra.Command{
	Use:   "quackdas",
	Short: "Local semantic search and grounded answers over your documents",
	Long: `quackdas indexes local documents into a SQLite vector store using a local
Ollama endpoint, retrieves relevant passages for a query, and answers questions
with citations that are checked against the retrieved text.

All inference runs against localhost. Non-local endpoints are rejected.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "application home directory (default $QUACKDAS_HOME or ~/.quackdas)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id for job ownership (default: random)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "use an in-memory store and default settings")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the command tree, building services with b.
func Execute(b Builder) error {
	builder = b
	rootCmd.SetOut(os.Stdout)
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if cmd.Annotations[skipServices] == "true" || builder == nil {
		return nil
	}

	svc, err := builder(Options{Home: homeDir, Ephemeral: ephemeral})
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}
	useServices(svc)
	return nil
}

func teardown() error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

// useServices assigns the service globals.
func useServices(svc *Services) {
	modelLister = svc.Models
	indexer = svc.Indexer
	searchService = svc.Search
	jobManager = svc.Jobs
	settingsService = svc.Settings
	jobHistory = svc.History
	appSettings = svc.Effective
	closeServices = svc.Close
}

// errNotConfigured reports a service the builder did not provide.
func errNotConfigured(name string) error {
	return errors.New(name + " not configured")
}
