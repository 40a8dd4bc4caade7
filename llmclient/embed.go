package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "multimodal-rag/errors"
)

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates embedding vectors for texts in one request against the
// OpenAI-compatible embeddings endpoint. Vectors come back in input order.
func (c *Client) Embed(ctx context.Context, host string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	bodyBytes, err := c.post(ctx, host, "/v1/embeddings", embeddingRequest{
		Model: c.cfg.EmbeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrEmbedding, err)
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("%w: decode embedding response: %v", apperrors.ErrEmbedding, err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", apperrors.ErrEmbedding, len(texts), len(er.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range er.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad embedding index %d", apperrors.ErrEmbedding, d.Index)
		}
		if want := c.cfg.EmbeddingDimensions; want > 0 && len(d.Embedding) != want {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, want %d", apperrors.ErrEmbedding, len(d.Embedding), want)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// EmbedSingle embeds one text with the configured embedding model.
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, c.cfg.EmbeddingHost, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedContent embeds a batch of texts with the configured embedding model.
func (c *Client) EmbedContent(ctx context.Context, texts []string) ([][]float32, error) {
	return c.Embed(ctx, c.cfg.EmbeddingHost, texts)
}

// Dimensions returns the configured embedding size.
func (c *Client) Dimensions() int {
	return c.cfg.EmbeddingDimensions
}
