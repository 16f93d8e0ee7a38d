package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/s-edling/quackdas-sub000/internal/adapters/driving/mcp"
	"github.com/s-edling/quackdas-sub000/internal/connectors/filesystem"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

Tools:
  search        semantic search over indexed chunks
  ask           grounded answer with verified citations
  index_status  indexed documents, chunks and models

By default the server communicates over stdio using JSON-RPC. Use --port to
serve streamable HTTP instead; Prometheus metrics are then available at
/metrics on the same port.

Examples:
  quackdas mcp serve
  quackdas mcp serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	ports := &mcp.Ports{
		Search:  searchService,
		Jobs:    jobManager,
		Indexer: indexer,
		History: jobHistory,
		Session: sessionID,
		Lookup:  filesystem.NewLoader(filesystem.Options{}).Lookup,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if port > 0 {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		cmd.PrintErrf("MCP server listening on http://%s (metrics at /metrics)\n", addr)
		return server.RunHTTP(ctx, addr)
	}

	return server.Run(ctx)
}
