// Package graph implements the best-effort graph enrichment store on
// Neo4j. Query answering never depends on it: a failed graph write marks
// the ingestion degraded and nothing more.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/serapeum-ai/serapeum/internal/rag"
)

// Node labels the store will interpolate into Cypher. Labels cannot be
// bound as query parameters, so anything outside this set is rejected
// before query construction.
const (
	LabelDocument = "Document"
	LabelChunk    = "Chunk"
	LabelSource   = "Source"
)

var allowedLabels = map[string]struct{}{
	LabelDocument: {},
	LabelChunk:    {},
	LabelSource:   {},
}

// ValidateLabel rejects labels outside the allow-list. Exposed so the
// dispatch layers can fail a request before reaching the store.
func ValidateLabel(label string) error {
	if _, ok := allowedLabels[label]; !ok {
		return rag.Validationf("unknown graph label %q, must be one of Document, Chunk, Source", label)
	}
	return nil
}

// Store wraps a Neo4j driver.
type Store struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// Connect creates the driver and verifies connectivity once. Callers
// treat a failure here as "graph capability unavailable", not fatal.
func Connect(ctx context.Context, uri, username, password string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: creating driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verifying connectivity: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

// CreateNode creates a node with the given label and properties. The
// label passes the allow-list; properties travel as a bound parameter.
func (s *Store) CreateNode(ctx context.Context, label string, properties map[string]any) error {
	if err := ValidateLabel(label); err != nil {
		return err
	}

	query := fmt.Sprintf("CREATE (n:%s $props) RETURN n", label)
	if _, err := s.Run(ctx, query, map[string]any{"props": properties}); err != nil {
		return fmt.Errorf("graph: creating %s node: %w", label, err)
	}
	s.logger.Debug("graph node created", "label", label)
	return nil
}

// NodesByLabel returns up to limit nodes carrying the label, as
// label/properties maps.
func (s *Store) NodesByLabel(ctx context.Context, label string, limit int) ([]map[string]any, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf("MATCH (n:%s) RETURN n LIMIT $limit", label)
	records, err := s.Run(ctx, query, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("graph: listing %s nodes: %w", label, err)
	}

	nodes := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		for _, v := range rec {
			node, ok := v.(neo4j.Node)
			if !ok {
				continue
			}
			nodes = append(nodes, map[string]any{
				"labels":     node.Labels,
				"properties": node.Props,
			})
		}
	}
	return nodes, nil
}

// Run executes a Cypher query with bound parameters and returns the
// records as maps. Callers are internal and trusted; label interpolation
// stays behind CreateNode/NodesByLabel.
func (s *Store) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() {
		if err := session.Close(ctx); err != nil {
			s.logger.Warn("closing graph session", "error", err)
		}
	}()

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("graph: running query: %w", err)
	}

	var records []map[string]any
	for result.Next(ctx) {
		records = append(records, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: reading query result: %w", err)
	}
	return records, nil
}

// Ping re-verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph: ping: %w", err)
	}
	return nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
