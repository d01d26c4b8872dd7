// Package vector implements the document store on PostgreSQL + pgvector.
// It is the source of truth for document existence: once Upsert returns,
// the document is visible to the query pipeline.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/serapeum-ai/serapeum/internal/rag"
)

// Metric names the similarity metric the collection is declared with.
// Only cosine is supported; the constant exists so configuration and
// error messages agree on spelling.
const MetricCosine = "cosine"

// DB is the subset of pgxpool.Pool the store needs. Declared on the
// consumer side so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store reads and writes the documents table. The vector dimension is
// fixed at construction and enforced on every write.
type Store struct {
	db     DB
	dim    int
	logger *slog.Logger
}

// New creates a Store. dim must match the collection's declared vector
// size; EnsureCollection verifies that.
func New(db DB, dim int, logger *slog.Logger) (*Store, error) {
	if dim <= 0 {
		return nil, rag.Configurationf("vector dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dim: dim, logger: logger}, nil
}

// NewPool opens a pgx pool with the pgvector codec registered on every
// connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("vector: parsing dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vector: creating pool: %w", err)
	}
	return pool, nil
}

// EnsureCollection creates the extension and table if absent, then
// verifies the declared vector dimension against the configured one. A
// mismatch is a configuration error and fatal at startup: continuing
// would fail every write.
func (s *Store) EnsureCollection(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("vector: creating extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS documents (
			id         text PRIMARY KEY,
			content    text NOT NULL,
			embedding  vector(%d) NOT NULL,
			metadata   jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, s.dim)
	if _, err := s.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("vector: creating documents table: %w", err)
	}

	// atttypmod of a vector column is its declared dimension. A
	// pre-existing table with a different size must be caught here, not
	// silently truncated on write.
	var declared int
	err := s.db.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'documents'::regclass AND attname = 'embedding'`,
	).Scan(&declared)
	if err != nil {
		return fmt.Errorf("vector: reading declared dimension: %w", err)
	}
	if declared != s.dim {
		return rag.Configurationf(
			"vector dimension mismatch: collection declares %d, configuration says %d",
			declared, s.dim)
	}

	if _, err := s.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS documents_embedding_idx
		ON documents USING hnsw (embedding vector_cosine_ops)`); err != nil {
		return fmt.Errorf("vector: creating similarity index: %w", err)
	}

	s.logger.Debug("vector collection ready", "dimension", s.dim, "metric", MetricCosine)
	return nil
}

// Upsert writes content, vector and metadata under the given id. The
// vector length is checked against the declared dimension before the
// database is touched; a mismatch is a configuration error, never a
// truncation.
func (s *Store) Upsert(ctx context.Context, doc rag.Document, vec []float32) error {
	if len(vec) != s.dim {
		return rag.Configurationf(
			"embedding dimension %d does not match collection dimension %d",
			len(vec), s.dim)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("vector: marshaling metadata: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at`,
		doc.ID, doc.Content, pgvector.NewVector(vec), metadataJSON, createdAt)
	if err != nil {
		return fmt.Errorf("vector: upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("document stored", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Get retrieves a document by id. An absent id returns (nil, nil): not
// found is a typed empty result, not an error.
func (s *Store) Get(ctx context.Context, id string) (*rag.Document, error) {
	var (
		content      string
		metadataJSON []byte
		createdAt    time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT content, metadata, created_at FROM documents WHERE id = $1`, id,
	).Scan(&content, &metadataJSON, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vector: retrieving document %q: %w", id, err)
	}

	return &rag.Document{
		ID:        id,
		Content:   content,
		Metadata:  s.parseMetadata(id, metadataJSON),
		CreatedAt: createdAt,
	}, nil
}

// Search returns the k nearest documents by cosine similarity, highest
// score first. Equal scores are ordered by ascending id so results are
// stable across runs regardless of backend plan choices.
func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]rag.SearchResult, error) {
	if len(vec) != s.dim {
		return nil, rag.Configurationf(
			"query embedding dimension %d does not match collection dimension %d",
			len(vec), s.dim)
	}
	if k <= 0 {
		return nil, rag.Validationf("search limit must be positive, got %d", k)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM documents
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $2`, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("vector: similarity search: %w", err)
	}
	defer rows.Close()

	var results []rag.SearchResult
	for rows.Next() {
		var (
			id           string
			content      string
			metadataJSON []byte
			score        float64
		)
		if err := rows.Scan(&id, &content, &metadataJSON, &score); err != nil {
			return nil, fmt.Errorf("vector: scanning search row: %w", err)
		}
		results = append(results, rag.SearchResult{
			ID:       id,
			Score:    float32(score),
			Content:  content,
			Metadata: s.parseMetadata(id, metadataJSON),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector: reading search rows: %w", err)
	}
	return results, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("vector: counting documents: %w", err)
	}
	return n, nil
}

// Ping reports backend reachability. Used as the mandatory startup probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("vector: ping: %w", err)
	}
	return nil
}

func (s *Store) parseMetadata(id string, raw []byte) map[string]string {
	metadata := make(map[string]string)
	if len(raw) == 0 {
		return metadata
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		s.logger.Warn("unparseable document metadata", "id", id, "error", err)
		return make(map[string]string)
	}
	return metadata
}
