package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"multimodal-rag/agent"
	apperrors "multimodal-rag/errors"
	"multimodal-rag/session"
	"multimodal-rag/web/format"
	"multimodal-rag/web/types"

	"go.uber.org/zap"
)

// MaxMessageLength bounds a single chat message in runes.
const MaxMessageLength = 8000

// MessageProcessor runs one agent turn.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message, chatID string, history []types.ChatMessage) (*agent.AgentResponse, error)
}

// ChatResult is the outcome of one chat message, ready for rendering.
type ChatResult struct {
	Response *agent.AgentResponse
	HTML     string
	// ChunkIDs are the synthetic ids the retrieved chunks were stored under,
	// in ranked order.
	ChunkIDs []string
}

// ChatService ties the agent to per-session conversation and chunk state.
type ChatService struct {
	agent         MessageProcessor
	conversations *session.ConversationManager
	chunks        *session.ChunkManager
	logger        *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewChatService(agent MessageProcessor, conversations *session.ConversationManager, chunks *session.ChunkManager, logger *zap.Logger) *ChatService {
	return &ChatService{
		agent:         agent,
		conversations: conversations,
		chunks:        chunks,
		logger:        logger,
		lastSeen:      make(map[string]time.Time),
	}
}

// Send processes message for the session and records the exchange.
func (s *ChatService) Send(ctx context.Context, sessionID, message string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", apperrors.ErrInvalidInput)
	}
	if len([]rune(message)) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", apperrors.ErrInvalidInput, MaxMessageLength)
	}
	s.touch(sessionID)

	history := s.conversations.History(sessionID)
	resp, err := s.agent.ProcessMessage(ctx, message, sessionID, history)
	if err != nil {
		return nil, err
	}

	s.conversations.AddExchange(sessionID, message, resp.Content)

	ids, err := s.chunks.Store(sessionID, resp.RetrievedChunks)
	if err != nil {
		// Previews are a convenience; the answer itself is still valid.
		s.logger.Warn("Failed to store retrieved chunks",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	if errMsg, ok := resp.Metadata["error"]; ok {
		s.logger.Warn("Agent turn ended with an error response",
			zap.String("session_id", sessionID),
			zap.Any("error", errMsg))
	}

	return &ChatResult{
		Response: resp,
		HTML:     format.AnswerHTML(resp.Content, known),
		ChunkIDs: ids,
	}, nil
}

// History returns the session's recorded messages.
func (s *ChatService) History(sessionID string) []types.ChatMessage {
	return s.conversations.History(sessionID)
}

// Chunk returns a chunk cited in the session together with its preview text.
func (s *ChatService) Chunk(sessionID, chunkID string) (session.StoredChunk, string, error) {
	c, ok := s.chunks.Get(sessionID, chunkID)
	if !ok {
		return session.StoredChunk{}, "", fmt.Errorf("%w: chunk %s", apperrors.ErrNotFound, chunkID)
	}
	return c, s.chunks.FormatChunk(c), nil
}

// Reset forgets the session's conversation and chunks.
func (s *ChatService) Reset(sessionID string) {
	s.conversations.Clear(sessionID)
	s.chunks.Clear(sessionID)
	s.mu.Lock()
	delete(s.lastSeen, sessionID)
	s.mu.Unlock()
	s.logger.Info("Reset chat session", zap.String("session_id", sessionID))
}

// IdleSessions lists sessions without activity since cutoff.
func (s *ChatService) IdleSessions(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idle []string
	for id, seen := range s.lastSeen {
		if seen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

func (s *ChatService) touch(sessionID string) {
	s.mu.Lock()
	s.lastSeen[sessionID] = time.Now()
	s.mu.Unlock()
}
