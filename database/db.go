package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// DefaultEmbeddingDimensions is used when the configured size is unusable.
const DefaultEmbeddingDimensions = 768

type PostgresStore struct {
	DB     *sql.DB
	logger *zap.Logger

	semanticWeight float64
	lexicalWeight  float64
}

func NewPostgresStore(connStr string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Successfully connected to the database")
	return &PostgresStore{DB: db, logger: logger}, nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// EnsureSchema creates the pgvector extension and the document tables if they
// do not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context, dimensions int) error {
	for _, stmt := range schemaStatements(dimensions) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func schemaStatements(dimensions int) []string {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
            document_id TEXT PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            filename TEXT NOT NULL DEFAULT '',
            origin JSONB,
            body JSONB,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            search_tsv TSVECTOR GENERATED ALWAYS AS (
                to_tsvector('english', coalesce(name, '') || ' ' || coalesce(filename, ''))
            ) STORED
        )`,
		`CREATE INDEX IF NOT EXISTS idx_documents_search ON documents USING GIN (search_tsv)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
            id UUID PRIMARY KEY,
            document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
            chunk_index INT NOT NULL,
            text TEXT NOT NULL,
            headings TEXT[] DEFAULT '{}'::TEXT[],
            heading_text TEXT NOT NULL DEFAULT '',
            doc_items JSONB DEFAULT '[]'::jsonb,
            origin JSONB,
            filename TEXT NOT NULL DEFAULT '',
            embedding vector(%d),
            search_tsv TSVECTOR GENERATED ALWAYS AS (
                to_tsvector('english', text || ' ' || heading_text)
            ) STORED
        )`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_search ON chunks USING GIN (search_tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS pictures (
            document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
            picture_id TEXT NOT NULL,
            label TEXT NOT NULL DEFAULT '',
            captions TEXT[] DEFAULT '{}'::TEXT[],
            image JSONB,
            PRIMARY KEY (document_id, picture_id)
        )`,
		`CREATE TABLE IF NOT EXISTS doc_tables (
            document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
            table_id TEXT NOT NULL,
            label TEXT NOT NULL DEFAULT '',
            captions TEXT[] DEFAULT '{}'::TEXT[],
            data JSONB,
            PRIMARY KEY (document_id, table_id)
        )`,
	}
}
