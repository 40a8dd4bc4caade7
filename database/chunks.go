package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"multimodal-rag/document"
	apperrors "multimodal-rag/errors"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// Fusion weights for hybrid search. Each list is normalized by its own top
// score before weighting.
const (
	DefaultSemanticWeight = 0.7
	DefaultLexicalWeight  = 0.3
)

const chunkColumns = `id, document_id, text, headings, doc_items, origin`

type scoredChunk struct {
	chunk document.Chunk
	score float64
}

// SetFusionWeights overrides the hybrid weights. Non-positive pairs are ignored.
func (s *PostgresStore) SetFusionWeights(semantic, lexical float64) {
	if semantic < 0 || lexical < 0 || semantic+lexical <= 0 {
		return
	}
	s.semanticWeight, s.lexicalWeight = semantic, lexical
}

func (s *PostgresStore) weights() (float64, float64) {
	if s.semanticWeight+s.lexicalWeight <= 0 {
		return DefaultSemanticWeight, DefaultLexicalWeight
	}
	return s.semanticWeight, s.lexicalWeight
}

// SearchChunks runs a hybrid search: vector similarity over the embedding
// column and full-text rank over chunk text and headings, fused by weight.
// Either side is skipped when the request has no vector or no query.
func (s *PostgresStore) SearchChunks(ctx context.Context, req document.SearchRequest) ([]document.Chunk, error) {
	if req.Size <= 0 {
		return nil, nil
	}
	query := strings.TrimSpace(req.Query)
	if query == "" && len(req.Vector) == 0 {
		return nil, fmt.Errorf("%w: search needs a query or a vector", apperrors.ErrInvalidInput)
	}

	candidateLimit := max(req.Size*4, 20)

	var semantic, lexical []scoredChunk
	var err error
	if len(req.Vector) > 0 {
		semantic, err = s.semanticCandidates(ctx, req.Vector, req.Filters, candidateLimit)
		if err != nil {
			return nil, err
		}
	}
	if query != "" {
		lexical, err = s.lexicalCandidates(ctx, query, req.Filters, candidateLimit)
		if err != nil {
			return nil, err
		}
	}

	semanticWeight, lexicalWeight := s.weights()
	fused := fuseCandidates(semantic, lexical, semanticWeight, lexicalWeight, req.Size)

	s.logger.Debug("Hybrid chunk search",
		zap.Int("semantic_candidates", len(semantic)),
		zap.Int("lexical_candidates", len(lexical)),
		zap.Int("results", len(fused)))

	return fused, nil
}

func (s *PostgresStore) semanticCandidates(ctx context.Context, vector []float32, filters map[string]string, limit int) ([]scoredChunk, error) {
	where, args, err := buildFilters(filters, 2)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL%s
		ORDER BY embedding <=> $1
		LIMIT %d`, chunkColumns, where, limit)

	args = append([]any{pgvector.NewVector(vector)}, args...)
	return s.queryScored(ctx, query, args...)
}

func (s *PostgresStore) lexicalCandidates(ctx context.Context, text string, filters map[string]string, limit int) ([]scoredChunk, error) {
	where, args, err := buildFilters(filters, 2)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s, ts_rank(search_tsv, plainto_tsquery('english', $1)) AS score
		FROM chunks
		WHERE search_tsv @@ plainto_tsquery('english', $1)%s
		ORDER BY score DESC
		LIMIT %d`, chunkColumns, where, limit)

	args = append([]any{text}, args...)
	return s.queryScored(ctx, query, args...)
}

func (s *PostgresStore) queryScored(ctx context.Context, query string, args ...any) ([]scoredChunk, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search chunks: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer rows.Close()

	var out []scoredChunk
	for rows.Next() {
		var sc scoredChunk
		if err := scanChunk(rows, &sc.chunk, &sc.score); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunks: %v", apperrors.ErrDatabaseOperation, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner, c *document.Chunk, extra ...any) error {
	var headings []string
	var docItems, origin []byte
	dest := []any{&c.ID, &c.DocumentID, &c.Text, pq.Array(&headings), &docItems, &origin}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return fmt.Errorf("%w: scan chunk: %v", apperrors.ErrDatabaseOperation, err)
	}

	c.Meta.Headings = headings
	if len(docItems) > 0 {
		if err := json.Unmarshal(docItems, &c.Meta.DocItems); err != nil {
			return fmt.Errorf("decode doc_items for chunk %s: %w", c.ID, err)
		}
	}
	if len(origin) > 0 && string(origin) != "null" {
		c.Meta.Origin = &document.Origin{}
		if err := json.Unmarshal(origin, c.Meta.Origin); err != nil {
			return fmt.Errorf("decode origin for chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// buildFilters renders filters as " AND col = $n" clauses starting at
// parameter index next. Keys are emitted in sorted order.
func buildFilters(filters map[string]string, next int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		var column string
		switch k {
		case document.FilterDocumentID:
			column = "document_id"
		case document.FilterFilename:
			column = "filename"
		default:
			return "", nil, fmt.Errorf("%w: unsupported filter %q", apperrors.ErrInvalidInput, k)
		}
		builder.WriteString(fmt.Sprintf(" AND %s = $%d", column, next))
		args = append(args, filters[k])
		next++
	}
	return builder.String(), args, nil
}

// fuseCandidates merges the two candidate lists into at most size chunks.
// Scores are normalized per list by its maximum, then combined with the
// weights. Ties keep semantic order first, then lexical order.
func fuseCandidates(semantic, lexical []scoredChunk, semanticWeight, lexicalWeight float64, size int) []document.Chunk {
	if size <= 0 {
		return nil
	}
	if len(lexical) == 0 {
		lexicalWeight = 0
	}
	if len(semantic) == 0 {
		semanticWeight = 0
	}
	if semanticWeight+lexicalWeight <= 0 {
		return nil
	}

	type entry struct {
		chunk document.Chunk
		score float64
		order int
	}
	byID := make(map[string]*entry)
	var entries []*entry

	add := func(list []scoredChunk, weight float64) {
		maxScore := 0.0
		for _, c := range list {
			maxScore = max(maxScore, c.score)
		}
		for _, c := range list {
			norm := 0.0
			if maxScore > 0 {
				norm = c.score / maxScore
			}
			e, ok := byID[c.chunk.ID]
			if !ok {
				e = &entry{chunk: c.chunk, order: len(entries)}
				byID[c.chunk.ID] = e
				entries = append(entries, e)
			}
			e.score += weight * norm
		}
	}
	add(semantic, semanticWeight)
	add(lexical, lexicalWeight)

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	if len(entries) > size {
		entries = entries[:size]
	}
	out := make([]document.Chunk, len(entries))
	for i, e := range entries {
		out[i] = e.chunk
	}
	return out
}

// GetChunksByDocument returns the chunks of a document in index order.
func (s *PostgresStore) GetChunksByDocument(ctx context.Context, documentID string) ([]document.Chunk, error) {
	query := fmt.Sprintf(`SELECT %s FROM chunks WHERE document_id = $1 ORDER BY chunk_index ASC`, chunkColumns)
	rows, err := s.DB.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer rows.Close()

	var chunks []document.Chunk
	for rows.Next() {
		var c document.Chunk
		if err := scanChunk(rows, &c); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunks: %v", apperrors.ErrDatabaseOperation, err)
	}
	return chunks, nil
}
