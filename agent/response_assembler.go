package agent

import (
	"context"

	"multimodal-rag/document"
	"multimodal-rag/rag"

	"go.uber.org/zap"
)

// Assembler maps cited chunk ids back to retrieved chunks and resolves the
// pictures those chunks reference.
type Assembler struct {
	pictures PictureStore
	logger   *zap.Logger
}

// NewAssembler creates an assembler. pictures may be nil, in which case no
// pictures are resolved.
func NewAssembler(pictures PictureStore, logger *zap.Logger) *Assembler {
	return &Assembler{pictures: pictures, logger: logger}
}

// ChunksUsed selects the retrieved chunks named by ids. Ids are recomputed
// with the same rank and hash rule the retrieval tool uses. When no ids were
// cited every retrieved chunk counts as used.
func (a *Assembler) ChunksUsed(retrieved []document.Chunk, ids []string) []document.Chunk {
	if len(retrieved) == 0 {
		return []document.Chunk{}
	}
	if len(ids) == 0 {
		out := make([]document.Chunk, len(retrieved))
		copy(out, retrieved)
		return out
	}

	byID := rag.MapChunkIDs(retrieved)
	seen := make(map[string]bool, len(ids))
	used := make([]document.Chunk, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		chunk, ok := byID[id]
		if !ok {
			a.logger.Debug("Cited chunk id not found in retrieval", zap.String("chunk_id", id))
			continue
		}
		used = append(used, chunk)
	}
	return used
}

// Pictures resolves the picture references of chunks. Lookup failures and
// misses are skipped.
func (a *Assembler) Pictures(ctx context.Context, chunks []document.Chunk) []document.Picture {
	pictures := []document.Picture{}
	if a.pictures == nil {
		return pictures
	}

	seen := make(map[string]bool)
	for _, chunk := range chunks {
		for _, pictureID := range chunk.PictureIDs() {
			key := chunk.DocumentID + "/" + pictureID
			if seen[key] {
				continue
			}
			seen[key] = true

			pic, err := a.pictures.GetPicture(ctx, chunk.DocumentID, pictureID)
			if err != nil {
				a.logger.Warn("Failed to load picture",
					zap.String("document_id", chunk.DocumentID),
					zap.String("picture_id", pictureID),
					zap.Error(err))
				continue
			}
			if pic == nil {
				continue
			}
			pictures = append(pictures, *pic)
		}
	}
	return pictures
}
