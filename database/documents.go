package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"multimodal-rag/document"
	apperrors "multimodal-rag/errors"

	"github.com/lib/pq"
)

// GetDocument returns the stored document or ErrNotFound.
func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*document.Document, error) {
	const query = `SELECT document_id, name, origin, body FROM documents WHERE document_id = $1`

	doc, err := scanDocument(s.DB.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", documentID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: fetch document: %v", apperrors.ErrDatabaseOperation, err)
	}
	return doc, nil
}

// SearchDocuments ranks documents by full-text match on name and filename.
// An empty query lists the most recently indexed documents.
func (s *PostgresStore) SearchDocuments(ctx context.Context, req document.SearchRequest) ([]document.Document, error) {
	size := req.Size
	if size <= 0 {
		size = 10
	}

	var builder strings.Builder
	builder.WriteString("SELECT document_id, name, origin, NULL::jsonb FROM documents WHERE TRUE")
	var args []any
	param := 1

	text := strings.TrimSpace(req.Query)
	if text != "" {
		builder.WriteString(fmt.Sprintf(" AND search_tsv @@ plainto_tsquery('english', $%d)", param))
		args = append(args, text)
		param++
	}

	where, filterArgs, err := buildFilters(req.Filters, param)
	if err != nil {
		return nil, err
	}
	builder.WriteString(where)
	args = append(args, filterArgs...)

	if text != "" {
		builder.WriteString(" ORDER BY ts_rank(search_tsv, plainto_tsquery('english', $1)) DESC, created_at DESC")
	} else {
		builder.WriteString(" ORDER BY created_at DESC")
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", size))

	rows, err := s.DB.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search documents: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", apperrors.ErrDatabaseOperation, err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate documents: %v", apperrors.ErrDatabaseOperation, err)
	}
	return docs, nil
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var doc document.Document
	var origin, body []byte
	if err := row.Scan(&doc.DocumentID, &doc.Name, &origin, &body); err != nil {
		return nil, err
	}
	if len(origin) > 0 && string(origin) != "null" {
		doc.Origin = &document.Origin{}
		if err := json.Unmarshal(origin, doc.Origin); err != nil {
			return nil, fmt.Errorf("decode origin: %w", err)
		}
	}
	if len(body) > 0 {
		doc.Body = json.RawMessage(body)
	}
	return &doc, nil
}

// GetPicture returns the picture or nil when the document has no such picture.
func (s *PostgresStore) GetPicture(ctx context.Context, documentID, pictureID string) (*document.Picture, error) {
	const query = `
		SELECT picture_id, document_id, label, captions, image
		FROM pictures
		WHERE document_id = $1 AND picture_id = $2
	`

	var pic document.Picture
	var captions []string
	var image []byte
	err := s.DB.QueryRowContext(ctx, query, documentID, pictureID).
		Scan(&pic.PictureID, &pic.DocumentID, &pic.Label, pq.Array(&captions), &image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: fetch picture: %v", apperrors.ErrDatabaseOperation, err)
	}
	pic.Captions = captions
	if len(image) > 0 && string(image) != "null" {
		pic.Image = &document.ImageData{}
		if err := json.Unmarshal(image, pic.Image); err != nil {
			return nil, fmt.Errorf("decode image for picture %s: %w", pictureID, err)
		}
	}
	return &pic, nil
}
