package rag

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"multimodal-rag/document"
)

// chunkHashBuckets bounds the hash suffix of a synthetic chunk id.
const chunkHashBuckets = 10000

// ChunkID builds the synthetic id of the chunk at 1-based rank in a result
// batch. The rank keeps ids unique inside one batch; the text hash keeps the
// same batch producing the same ids on every call.
func ChunkID(rank int, text string) string {
	return fmt.Sprintf("chunk_%d_%d", rank, textHash(text)%chunkHashBuckets)
}

func textHash(text string) uint64 {
	sum := sha256.Sum256([]byte(text))
	return binary.BigEndian.Uint64(sum[:8])
}

// AssignChunkIDs returns the synthetic ids for chunks in their ranked order.
func AssignChunkIDs(chunks []document.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = ChunkID(i+1, c.Text)
	}
	return ids
}

// MapChunkIDs indexes chunks by their synthetic ids.
func MapChunkIDs(chunks []document.Chunk) map[string]document.Chunk {
	byID := make(map[string]document.Chunk, len(chunks))
	for i, c := range chunks {
		byID[ChunkID(i+1, c.Text)] = c
	}
	return byID
}
