package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"multimodal-rag/database"
	"multimodal-rag/document"
	apperrors "multimodal-rag/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxDocumentSearchSize = 100

// DocumentStore is the read side of the document store.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentID string) (*document.Document, error)
	SearchDocuments(ctx context.Context, req document.SearchRequest) ([]document.Document, error)
	GetChunksByDocument(ctx context.Context, documentID string) ([]document.Chunk, error)
	GetPicture(ctx context.Context, documentID, pictureID string) (*document.Picture, error)
}

// ExportIndexer embeds and stores a document export.
type ExportIndexer interface {
	IndexExport(ctx context.Context, export *document.Export) (*database.IndexResult, error)
}

type DocumentHandler struct {
	store   DocumentStore
	indexer ExportIndexer
	logger  *zap.Logger
}

func NewDocumentHandler(store DocumentStore, indexer ExportIndexer, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		store:   store,
		indexer: indexer,
		logger:  logger,
	}
}

// GetDocument returns a document; ?chunks=true includes its chunks.
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	documentID := c.Param("documentID")
	doc, err := h.store.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		respondWithAppError(c, err, "Could not load document", h.logger, zap.String("document_id", documentID))
		return
	}

	body := gin.H{"document": doc}
	if include, _ := strconv.ParseBool(c.Query("chunks")); include {
		chunks, err := h.store.GetChunksByDocument(c.Request.Context(), documentID)
		if err != nil {
			respondWithAppError(c, err, "Could not load document chunks", h.logger, zap.String("document_id", documentID))
			return
		}
		body["chunks"] = withoutVectors(chunks)
	}
	c.JSON(http.StatusOK, body)
}

// SearchDocuments lists documents matching ?q=, optionally filtered by
// ?filename=, at most ?size= of them.
func (h *DocumentHandler) SearchDocuments(c *gin.Context) {
	size := 10
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxDocumentSearchSize {
			respondWithClientError(c, http.StatusBadRequest, fmt.Sprintf("size must be between 1 and %d", maxDocumentSearchSize))
			return
		}
		size = n
	}

	req := document.SearchRequest{Query: c.Query("q"), Size: size}
	if filename := c.Query("filename"); filename != "" {
		req.Filters = map[string]string{document.FilterFilename: filename}
	}

	docs, err := h.store.SearchDocuments(c.Request.Context(), req)
	if err != nil {
		respondWithAppError(c, err, "Could not search documents", h.logger)
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// GetPicture returns a picture's metadata and image data.
func (h *DocumentHandler) GetPicture(c *gin.Context) {
	pic, ok := h.loadPicture(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, pic)
}

// GetPictureImage serves the decoded image bytes of a picture.
func (h *DocumentHandler) GetPictureImage(c *gin.Context) {
	pic, ok := h.loadPicture(c)
	if !ok {
		return
	}
	if pic.Image == nil {
		respondWithClientError(c, http.StatusNotFound, "Picture has no image data")
		return
	}
	mimetype, data, err := decodeDataURI(pic.Image.URI)
	if err != nil {
		respondWithError(c, http.StatusUnprocessableEntity, err, "Picture image data is unreadable", h.logger,
			zap.String("picture_id", pic.PictureID))
		return
	}
	if mimetype == "" {
		mimetype = pic.Image.Mimetype
	}
	c.Data(http.StatusOK, mimetype, data)
}

func (h *DocumentHandler) loadPicture(c *gin.Context) (*document.Picture, bool) {
	documentID, pictureID := c.Param("documentID"), c.Param("pictureID")
	pic, err := h.store.GetPicture(c.Request.Context(), documentID, pictureID)
	if err != nil {
		respondWithAppError(c, err, "Could not load picture", h.logger,
			zap.String("document_id", documentID),
			zap.String("picture_id", pictureID))
		return nil, false
	}
	if pic == nil {
		respondWithClientError(c, http.StatusNotFound, "Picture not found")
		return nil, false
	}
	return pic, true
}

// IndexDocument indexes a document export posted as JSON.
func (h *DocumentHandler) IndexDocument(c *gin.Context) {
	limitBody(c, maxExportBodyBytes)
	var export document.Export
	if err := c.ShouldBindJSON(&export); err != nil {
		respondWithBindError(c, err, "Invalid document export")
		return
	}
	if len(export.Chunks) == 0 {
		respondWithClientError(c, http.StatusBadRequest, "Document export has no chunks")
		return
	}

	result, err := h.indexer.IndexExport(c.Request.Context(), &export)
	if err != nil {
		respondWithAppError(c, err, "Could not index document", h.logger,
			zap.String("document_name", export.Document.Name))
		return
	}
	h.logger.Info("Indexed document",
		zap.String("document_id", result.DocumentID),
		zap.Int("chunks", result.Chunks),
		zap.Int("pictures", result.Pictures))
	c.JSON(http.StatusCreated, result)
}

// decodeDataURI decodes a base64 "data:<mime>;base64,<data>" URI.
func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data URI", apperrors.ErrInvalidInput)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: data URI has no payload", apperrors.ErrInvalidInput)
	}
	mimetype, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: data URI is not base64 encoded", apperrors.ErrInvalidInput)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return mimetype, data, nil
}
