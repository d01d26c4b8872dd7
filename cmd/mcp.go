package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/serapeum-ai/serapeum/internal/app"
	"github.com/serapeum-ai/serapeum/internal/config"
	"github.com/serapeum-ai/serapeum/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP tool server on stdio",
	Long: `Serve the RAG pipelines as MCP tools over stdin/stdout.
Logs go to stderr; stdout carries only the protocol stream.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMCP()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Name:         "serapeum",
		Version:      Version,
		Querier:      a.Querier,
		Ingestor:     a.Ingestor,
		Documents:    a.Vectors,
		Graph:        mcpGraphReader(a),
		Knowledge:    mcpKnowledgeSurface(a),
		Availability: a.Availability,
		Logger:       a.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	a.Logger.Info("MCP server ready", "version", Version, "transport", "stdio")
	if err := mcpServer.Run(ctx, &sdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	a.Logger.Info("MCP server shut down gracefully")
	return nil
}

func mcpGraphReader(a *app.App) mcp.GraphReader {
	if a.Graph == nil {
		return nil
	}
	return a.Graph
}

func mcpKnowledgeSurface(a *app.App) mcp.Knowledge {
	if a.Knowledge == nil {
		return nil
	}
	return a.Knowledge
}
