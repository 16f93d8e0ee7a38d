package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models installed on the local Ollama endpoint",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, _ []string) error {
	if modelLister == nil {
		return errNotConfigured("model lister")
	}

	models, err := modelLister.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		cmd.Println("No models installed. Pull one with 'ollama pull <model>'.")
		return nil
	}

	sort.Strings(models)
	for _, m := range models {
		var roles []string
		if sameModel(m, appSettings.Embedding.Model) {
			roles = append(roles, "embedding")
		}
		if sameModel(m, appSettings.LLM.Model) {
			roles = append(roles, "llm")
		}
		if len(roles) > 0 {
			cmd.Printf("* %s (%s)\n", m, strings.Join(roles, ", "))
		} else {
			cmd.Printf("  %s\n", m)
		}
	}

	for _, want := range []string{appSettings.Embedding.Model, appSettings.LLM.Model} {
		if !anyModel(models, want) {
			cmd.PrintErrf("warning: configured model %q is not installed\n", want)
		}
	}
	return nil
}

// sameModel matches an installed name against a configured one. A name
// without a tag matches its ":latest" variant.
func sameModel(installed, configured string) bool {
	if configured == "" {
		return false
	}
	return installed == configured ||
		(!strings.Contains(configured, ":") && installed == configured+":latest")
}

func anyModel(installed []string, configured string) bool {
	for _, m := range installed {
		if sameModel(m, configured) {
			return true
		}
	}
	return false
}
