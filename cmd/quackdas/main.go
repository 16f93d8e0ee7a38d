// Command quackdas indexes local documents and answers questions about them
// with citations, using a local Ollama endpoint.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/s-edling/quackdas-sub000/internal/adapters/driving/cli"
	"github.com/s-edling/quackdas-sub000/internal/core/domain"
)

// version is set via -ldflags at release time.
var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	cli.SetVersion(version)
	if err := cli.Execute(buildServices); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps cancellation to the conventional interrupt status.
func exitCode(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeIndexCancelled, domain.CodeAskCancelled:
		return 130
	default:
		return 1
	}
}
