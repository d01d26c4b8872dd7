// Package cmd defines the serapeum command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "serapeum",
	Short: "Serapeum - retrieval-augmented generation server",
	Long: `Serapeum stores documents as embeddings in pgvector, enriches them
with a Neo4j knowledge graph and an external knowledge processor, and
answers queries with retrieval-augmented generation.

It serves two surfaces: an HTTP JSON API (serve) and an MCP tool
server on stdio (mcp).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
