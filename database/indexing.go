package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"multimodal-rag/document"
	apperrors "multimodal-rag/errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// IndexResult summarizes what IndexExport wrote.
type IndexResult struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Pictures   int    `json:"pictures"`
	Tables     int    `json:"tables"`
}

// IndexExport stores a document with its chunks, pictures and tables in one
// transaction. Re-indexing a document replaces its previous parts.
func (s *PostgresStore) IndexExport(ctx context.Context, export *document.Export) (*IndexResult, error) {
	documentID := export.Document.DocumentID
	if documentID == "" {
		return nil, fmt.Errorf("%w: export has no document id", apperrors.ErrInvalidInput)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin index transaction: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer tx.Rollback()

	originJSON, err := marshalNullable(export.Document.Origin)
	if err != nil {
		return nil, err
	}
	var body any
	if len(export.Document.Body) > 0 {
		body = string(export.Document.Body)
	}
	filename := ""
	if export.Document.Origin != nil {
		filename = export.Document.Origin.Filename
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (document_id, name, filename, origin, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (document_id)
		DO UPDATE SET name = EXCLUDED.name, filename = EXCLUDED.filename, origin = EXCLUDED.origin, body = EXCLUDED.body, created_at = NOW()
	`, documentID, export.Document.Name, filename, originJSON, body)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert document: %v", apperrors.ErrDatabaseOperation, err)
	}

	for _, table := range []string{"chunks", "pictures", "doc_tables"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, table), documentID); err != nil {
			return nil, fmt.Errorf("%w: clear %s: %v", apperrors.ErrDatabaseOperation, table, err)
		}
	}

	for i, chunk := range export.Chunks {
		docItems, err := json.Marshal(chunk.Meta.DocItems)
		if err != nil {
			return nil, fmt.Errorf("marshal doc_items for chunk %d: %w", i, err)
		}
		origin := chunk.Meta.Origin
		if origin == nil {
			origin = export.Document.Origin
		}
		chunkOrigin, err := marshalNullable(origin)
		if err != nil {
			return nil, err
		}
		chunkFilename := filename
		if origin != nil {
			chunkFilename = origin.Filename
		}
		var vector any
		if len(chunk.Vector) > 0 {
			vector = pgvector.NewVector(chunk.Vector)
		}
		headings := chunk.Meta.Headings
		if headings == nil {
			headings = []string{}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, chunk_index, text, headings, heading_text, doc_items, origin, filename, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, uuid.New(), documentID, i, chunk.Text, pq.Array(headings), strings.Join(headings, " "),
			string(docItems), chunkOrigin, chunkFilename, vector)
		if err != nil {
			return nil, fmt.Errorf("%w: insert chunk %d: %v", apperrors.ErrDatabaseOperation, i, err)
		}
	}

	for _, pic := range export.Pictures {
		image, err := marshalNullable(pic.Image)
		if err != nil {
			return nil, err
		}
		captions := pic.Captions
		if captions == nil {
			captions = []string{}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pictures (document_id, picture_id, label, captions, image)
			VALUES ($1, $2, $3, $4, $5)
		`, documentID, pic.PictureID, pic.Label, pq.Array(captions), image)
		if err != nil {
			return nil, fmt.Errorf("%w: insert picture %s: %v", apperrors.ErrDatabaseOperation, pic.PictureID, err)
		}
	}

	for _, tbl := range export.Tables {
		captions := tbl.Captions
		if captions == nil {
			captions = []string{}
		}
		var data any
		if len(tbl.Data) > 0 {
			data = string(tbl.Data)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO doc_tables (document_id, table_id, label, captions, data)
			VALUES ($1, $2, $3, $4, $5)
		`, documentID, tbl.TableID, tbl.Label, pq.Array(captions), data)
		if err != nil {
			return nil, fmt.Errorf("%w: insert table %s: %v", apperrors.ErrDatabaseOperation, tbl.TableID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit index transaction: %v", apperrors.ErrDatabaseOperation, err)
	}

	s.logger.Info("Indexed document",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(export.Chunks)),
		zap.Int("pictures", len(export.Pictures)),
		zap.Int("tables", len(export.Tables)))

	return &IndexResult{
		DocumentID: documentID,
		Chunks:     len(export.Chunks),
		Pictures:   len(export.Pictures),
		Tables:     len(export.Tables),
	}, nil
}

// marshalNullable encodes v as a JSON string argument, or nil for SQL NULL.
func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return string(b), nil
}
