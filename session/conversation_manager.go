// Package session keeps per-session conversation history and the chunks
// cited in recent answers. Both are held in memory and bounded by LRU caches.
package session

import (
	"fmt"
	"sync"

	"multimodal-rag/web/types"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const (
	DefaultMaxLength = 10
	DefaultCacheSize = 1000
)

// ConversationManager stores the recent messages of each session. Histories
// are trimmed to maxLength messages and the least recently used sessions are
// evicted once cacheSize sessions are held.
type ConversationManager struct {
	mu        sync.Mutex
	sessions  *lru.Cache
	maxLength int
	logger    *zap.Logger
}

func NewConversationManager(maxLength, cacheSize int, logger *zap.Logger) (*ConversationManager, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.NewWithEvict(cacheSize, func(key, _ any) {
		logger.Debug("Evicted conversation", zap.Any("session_id", key))
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation cache: %w", err)
	}
	return &ConversationManager{
		sessions:  cache,
		maxLength: maxLength,
		logger:    logger,
	}, nil
}

// History returns a copy of the session's messages, oldest first.
func (m *ConversationManager) History(sessionID string) []types.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.get(sessionID)
	out := make([]types.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func (m *ConversationManager) AddUserMessage(sessionID, content string) {
	m.add(sessionID, types.NewUserMessage(content))
}

func (m *ConversationManager) AddAssistantMessage(sessionID, content string) {
	m.add(sessionID, types.NewAssistantMessage(content))
}

// AddExchange records a user message and the reply to it together.
func (m *ConversationManager) AddExchange(sessionID, user, assistant string) {
	m.add(sessionID, types.NewUserMessage(user), types.NewAssistantMessage(assistant))
}

func (m *ConversationManager) add(sessionID string, msgs ...types.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.get(sessionID), msgs...)
	if len(history) > m.maxLength {
		trimmed := make([]types.ChatMessage, m.maxLength)
		copy(trimmed, history[len(history)-m.maxLength:])
		history = trimmed
	}
	m.sessions.Add(sessionID, history)
}

// get must be called with m.mu held.
func (m *ConversationManager) get(sessionID string) []types.ChatMessage {
	v, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil
	}
	return v.([]types.ChatMessage)
}

// Clear forgets the session's history.
func (m *ConversationManager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Remove(sessionID)
	m.logger.Debug("Cleared conversation", zap.String("session_id", sessionID))
}

// ActiveSessions lists the held sessions, least recently used first.
func (m *ConversationManager) ActiveSessions() []string {
	keys := m.sessions.Keys()
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := k.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of messages held for the session.
func (m *ConversationManager) Count(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.get(sessionID))
}

// Sessions returns the number of held sessions.
func (m *ConversationManager) Sessions() int {
	return m.sessions.Len()
}
