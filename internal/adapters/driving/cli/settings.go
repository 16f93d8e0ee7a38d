package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s-edling/quackdas-sub000/internal/core/services"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change settings stored in config.toml under the application home.

Keys use dot notation, for example ollama.base_url or ask.mode. The index.*
keys are read-only and report the models recorded in the index.`,
	Args: cobra.NoArgs,
	RunE: runSettingsList,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Change one setting. The value is validated before it is saved: the Ollama
endpoint must be local, chunk bounds must be ordered, and the semantic rerank
weight must stay dominant.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the endpoint and configured models",
	Args:  cobra.NoArgs,
	RunE:  runSettingsCheck,
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsList(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings service")
	}
	keys, err := settingsService.Keys()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	for _, k := range services.SortedKeys(keys) {
		cmd.Printf("%s = %s\n", k, keys[k])
	}
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNotConfigured("settings service")
	}
	keys, err := settingsService.Keys()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	value, ok := keys[args[0]]
	if !ok {
		return fmt.Errorf("unknown setting %q", args[0])
	}
	cmd.Println(value)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNotConfigured("settings service")
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("%s = %s\n", args[0], args[1])
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings service")
	}
	if err := settingsService.ValidateConnectivity(cmd.Context()); err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	cmd.Println("Endpoint reachable and configured models installed.")
	return nil
}
