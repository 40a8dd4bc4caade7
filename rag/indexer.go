package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"multimodal-rag/database"
	"multimodal-rag/document"
	apperrors "multimodal-rag/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEmbedBatchSize is the number of chunk texts sent per embedding call.
const DefaultEmbedBatchSize = 60

// BatchEmbedder embeds many texts in one call.
type BatchEmbedder interface {
	EmbedContent(ctx context.Context, texts []string) ([][]float32, error)
}

// ExportStore persists an indexed export.
type ExportStore interface {
	IndexExport(ctx context.Context, export *document.Export) (*database.IndexResult, error)
}

// Indexer embeds pre-chunked document exports and writes them to the store.
type Indexer struct {
	embedder  BatchEmbedder
	store     ExportStore
	batchSize int
	logger    *zap.Logger
}

func NewIndexer(embedder BatchEmbedder, store ExportStore, batchSize int, logger *zap.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &Indexer{
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// IndexExport assigns a document id when missing, embeds every chunk that has
// no vector yet, and stores the export.
func (ix *Indexer) IndexExport(ctx context.Context, export *document.Export) (*database.IndexResult, error) {
	if export == nil {
		return nil, fmt.Errorf("%w: nil export", apperrors.ErrInvalidInput)
	}
	for i, c := range export.Chunks {
		if strings.TrimSpace(c.Text) == "" {
			return nil, fmt.Errorf("%w: chunk %d has no text", apperrors.ErrInvalidInput, i)
		}
	}

	documentID := export.Document.DocumentID
	if documentID == "" {
		documentID = uuid.New().String()
	}
	export.AssignDocumentID(documentID)

	if err := ix.embedChunks(ctx, export.Chunks); err != nil {
		return nil, err
	}
	return ix.store.IndexExport(ctx, export)
}

func (ix *Indexer) embedChunks(ctx context.Context, chunks []document.Chunk) error {
	var pending []int
	for i, c := range chunks {
		if len(c.Vector) == 0 {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += ix.batchSize {
		end := min(start+ix.batchSize, len(pending))
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = chunks[idx].Text
		}

		vectors, err := ix.embedder.EmbedContent(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", batch[0], batch[len(batch)-1], err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("%w: got %d vectors for %d chunks", apperrors.ErrEmbedding, len(vectors), len(batch))
		}
		for j, idx := range batch {
			chunks[idx].Vector = vectors[j]
		}

		ix.logger.Debug("Embedded chunk batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("pending", len(pending)))
	}
	return nil
}

// IndexDirectory indexes every export found one level below dir: each
// subdirectory holds a single JSON export, and its file name (without
// extension) becomes the document id. Failures are logged and skipped.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string) ([]database.IndexResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read indexing directory: %w", err)
	}

	var results []database.IndexResult
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		subdir := filepath.Join(dir, entry.Name())
		matches, err := filepath.Glob(filepath.Join(subdir, "*.json"))
		if err != nil || len(matches) == 0 {
			ix.logger.Warn("No JSON export found in directory", zap.String("dir", subdir))
			continue
		}
		sort.Strings(matches)
		if len(matches) > 1 {
			ix.logger.Warn("Multiple JSON files found, using the first",
				zap.String("dir", subdir),
				zap.String("file", filepath.Base(matches[0])))
		}

		result, err := ix.indexFile(ctx, matches[0])
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			ix.logger.Error("Failed to index export", zap.String("file", matches[0]), zap.Error(err))
			continue
		}
		results = append(results, *result)
	}

	ix.logger.Info("Directory indexing finished",
		zap.String("dir", dir),
		zap.Int("documents", len(results)))
	return results, nil
}

func (ix *Indexer) indexFile(ctx context.Context, path string) (*database.IndexResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var export document.Export
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", apperrors.ErrInvalidInput, filepath.Base(path), err)
	}
	if export.Document.DocumentID == "" {
		export.Document.DocumentID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ix.IndexExport(ctx, &export)
}
