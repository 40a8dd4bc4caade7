package agent

import (
	"context"

	"multimodal-rag/document"
	"multimodal-rag/llmclient"
	"multimodal-rag/rag"
)

// Generator is the language model used by the decision nodes.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	GenerateStructuredContent(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error)
	GenerateContentWithTools(ctx context.Context, prompt string, tools []llmclient.ToolDeclaration) (llmclient.Outcome, error)
}

// RetrievalTool executes the retrieve_documents tool.
type RetrievalTool interface {
	Retrieve(ctx context.Context, query string) rag.ToolResult
}

// PictureStore resolves picture references found in chunk metadata.
// A missing picture is reported as (nil, nil).
type PictureStore interface {
	GetPicture(ctx context.Context, documentID, pictureID string) (*document.Picture, error)
}
