package session

import (
	"fmt"
	"strings"
	"sync"

	"multimodal-rag/document"
	"multimodal-rag/rag"
	"multimodal-rag/web/format"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const (
	DefaultChunksPerSession = 200
	DefaultPreviewChars     = 3000
)

// StoredChunk is a retrieved chunk kept for later preview under the synthetic
// id it was shown to the model with.
type StoredChunk struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Headings   []string `json:"headings,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Text       string   `json:"text"`
}

// ChunkManager remembers, per session, the chunks of recent retrievals so
// cited ids can be resolved after the turn is over. Synthetic ids are only
// unique within one retrieval, so a later retrieval overwrites an equal id.
type ChunkManager struct {
	mu               sync.Mutex
	sessions         *lru.Cache
	chunksPerSession int
	previewChars     int
	logger           *zap.Logger
}

func NewChunkManager(cacheSize, previewChars int, logger *zap.Logger) (*ChunkManager, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create chunk cache: %w", err)
	}
	return &ChunkManager{
		sessions:         cache,
		chunksPerSession: DefaultChunksPerSession,
		previewChars:     previewChars,
		logger:           logger,
	}, nil
}

// Store records chunks, in ranked order, under their synthetic ids and
// returns those ids.
func (m *ChunkManager) Store(sessionID string, chunks []document.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cache, err := m.sessionCache(sessionID, true)
	if err != nil {
		return nil, err
	}
	ids := rag.AssignChunkIDs(chunks)
	for i, c := range chunks {
		stored := StoredChunk{
			ChunkID:    ids[i],
			DocumentID: c.DocumentID,
			Headings:   c.Meta.Headings,
			Text:       c.Text,
		}
		if c.Meta.Origin != nil {
			stored.Filename = c.Meta.Origin.Filename
		}
		cache.Add(ids[i], stored)
	}
	m.logger.Debug("Stored chunks for session",
		zap.String("session_id", sessionID),
		zap.Int("chunks", len(chunks)))
	return ids, nil
}

// Get returns the stored chunk with chunkID.
func (m *ChunkManager) Get(sessionID, chunkID string) (StoredChunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache, _ := m.sessionCache(sessionID, false)
	if cache == nil {
		return StoredChunk{}, false
	}
	v, ok := cache.Get(chunkID)
	if !ok {
		return StoredChunk{}, false
	}
	return v.(StoredChunk), true
}

// IDs lists the chunk ids held for the session, least recently used first.
func (m *ChunkManager) IDs(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache, _ := m.sessionCache(sessionID, false)
	if cache == nil {
		return nil
	}
	keys := cache.Keys()
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.(string))
	}
	return ids
}

// Clear forgets the session's chunks.
func (m *ChunkManager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Remove(sessionID)
}

// FormatChunk renders a chunk for display: source line, heading path and a
// preview truncated at a sentence boundary.
func (m *ChunkManager) FormatChunk(c StoredChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", c.ChunkID)
	if c.Filename != "" {
		fmt.Fprintf(&b, " %s", c.Filename)
	} else if c.DocumentID != "" {
		fmt.Fprintf(&b, " document %s", c.DocumentID)
	}
	b.WriteString("\n")
	if len(c.Headings) > 0 {
		b.WriteString(strings.Join(c.Headings, " > "))
		b.WriteString("\n")
	}
	b.WriteString(format.TruncateAtSentence(c.Text, m.previewChars))
	return b.String()
}

// sessionCache must be called with m.mu held.
func (m *ChunkManager) sessionCache(sessionID string, create bool) (*lru.Cache, error) {
	if v, ok := m.sessions.Get(sessionID); ok {
		return v.(*lru.Cache), nil
	}
	if !create {
		return nil, nil
	}
	cache, err := lru.New(m.chunksPerSession)
	if err != nil {
		return nil, fmt.Errorf("create session chunk cache: %w", err)
	}
	m.sessions.Add(sessionID, cache)
	return cache, nil
}
