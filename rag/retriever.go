package rag

import (
	"context"
	"fmt"
	"strings"

	"multimodal-rag/document"

	"go.uber.org/zap"
)

// NoResultsMessage is the tool output when a search finds nothing.
const NoResultsMessage = "No relevant documents found for the query."

// ErrorMessagePrefix starts the tool output when retrieval fails.
const ErrorMessagePrefix = "Error retrieving documents: "

// DefaultRetrievalSize is the number of chunks fetched per search.
const DefaultRetrievalSize = 10

// ChunkSearcher runs hybrid chunk searches.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, req document.SearchRequest) ([]document.Chunk, error)
}

// QueryEmbedder embeds a single search query.
type QueryEmbedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// ToolResult is the outcome of one retrieval: the text handed back to the
// model and the raw chunks in ranked order.
type ToolResult struct {
	Content string
	Chunks  []document.Chunk
	Failed  bool
}

// Retriever is the retrieve_documents tool.
type Retriever struct {
	searcher ChunkSearcher
	embedder QueryEmbedder
	size     int
	logger   *zap.Logger
}

func NewRetriever(searcher ChunkSearcher, embedder QueryEmbedder, size int, logger *zap.Logger) *Retriever {
	if size <= 0 {
		size = DefaultRetrievalSize
	}
	return &Retriever{
		searcher: searcher,
		embedder: embedder,
		size:     size,
		logger:   logger,
	}
}

// Retrieve embeds query once, runs a hybrid search and renders the hits as
// [CHUNK_ID: ...] passages. Failures are reported in the returned content,
// never as an error; callers check ctx themselves for cancellation.
func (r *Retriever) Retrieve(ctx context.Context, query string) ToolResult {
	vector, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		r.logger.Error("Failed to embed retrieval query", zap.Error(err), zap.String("query", query))
		return ToolResult{Content: ErrorMessagePrefix + err.Error(), Failed: true}
	}

	chunks, err := r.searcher.SearchChunks(ctx, document.SearchRequest{
		Query:  query,
		Vector: vector,
		Size:   r.size,
	})
	if err != nil {
		r.logger.Error("Failed to search chunks", zap.Error(err), zap.String("query", query))
		return ToolResult{Content: ErrorMessagePrefix + err.Error(), Failed: true}
	}

	if len(chunks) == 0 {
		r.logger.Info("Retrieval returned no chunks", zap.String("query", query))
		return ToolResult{Content: NoResultsMessage, Chunks: []document.Chunk{}}
	}

	r.logger.Debug("Retrieved chunks", zap.String("query", query), zap.Int("count", len(chunks)))
	return ToolResult{Content: FormatPassages(chunks), Chunks: chunks}
}

// FormatPassages renders chunks for the model, each prefixed by its
// synthetic id and separated by a blank line.
func FormatPassages(chunks []document.Chunk) string {
	passages := make([]string, 0, len(chunks))
	for i, c := range chunks {
		rank := i + 1
		header := fmt.Sprintf("Document %d", rank)
		if len(c.Meta.Headings) > 0 {
			header = fmt.Sprintf("Document %d (Headings: %s)", rank, strings.Join(c.Meta.Headings, " > "))
		}
		passages = append(passages, fmt.Sprintf("[CHUNK_ID: %s]\n%s:\n%s", ChunkID(rank, c.Text), header, c.Text))
	}
	return strings.Join(passages, "\n\n")
}

// HasPassages reports whether tool output carries retrieved passages rather
// than the empty-result or error message.
func HasPassages(content string) bool {
	content = strings.TrimSpace(content)
	return content != "" && content != NoResultsMessage && !strings.HasPrefix(content, ErrorMessagePrefix)
}
