// Package app wires configuration, backends and pipelines into a
// running application. Setup probes every capability once at startup:
// the vector store and embedding chain are mandatory, the graph store
// and knowledge processor are optional and their probe results are
// recorded in Availability.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serapeum-ai/serapeum/internal/config"
	"github.com/serapeum-ai/serapeum/internal/graph"
	"github.com/serapeum-ai/serapeum/internal/knowledge"
	"github.com/serapeum-ai/serapeum/internal/ledger"
	"github.com/serapeum-ai/serapeum/internal/model"
	"github.com/serapeum-ai/serapeum/internal/rag"
	"github.com/serapeum-ai/serapeum/internal/vector"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool    *pgxpool.Pool
	Vectors *vector.Store
	Ledger  *ledger.Ledger

	// Optional capabilities; nil when the startup probe failed.
	Graph     *graph.Store
	Knowledge *knowledge.Subprocess

	Embedder  *model.FallbackEmbedder
	Generator *model.Generator

	Ingestor *rag.Ingestor
	Querier  *rag.Querier

	Availability rag.Availability
}

// Close releases resources in reverse initialization order.
func (a *App) Close(ctx context.Context) error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			a.Logger.Warn("closing graph driver", "error", err)
		}
	}
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			a.Logger.Warn("closing ledger", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return nil
}
