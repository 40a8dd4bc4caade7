package web

import (
	"context"
	"testing"
	"time"

	"multimodal-rag/agent"
	"multimodal-rag/session"
	"multimodal-rag/web/middleware"
	"multimodal-rag/web/services"
	"multimodal-rag/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type echoProcessor struct{}

func (echoProcessor) ProcessMessage(ctx context.Context, message, chatID string, history []types.ChatMessage) (*agent.AgentResponse, error) {
	return &agent.AgentResponse{Content: "echo: " + message, ChatID: chatID, Metadata: map[string]any{}}, nil
}

func newChatService(t *testing.T) *services.ChatService {
	t.Helper()
	conversations, err := session.NewConversationManager(10, 10, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := session.NewChunkManager(10, 100, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return services.NewChatService(echoProcessor{}, conversations, chunks, zap.NewNop())
}

func TestCleanupIdleSessions(t *testing.T) {
	chat := newChatService(t)
	limiter := middleware.NewSessionRateLimiter(middleware.RateLimiterConfig{MessagesPerMinute: 1, BurstSize: 1}, zap.NewNop())
	defer limiter.Stop()

	sessionID := uuid.New()
	if _, err := chat.Send(context.Background(), sessionID.String(), "hello"); err != nil {
		t.Fatal(err)
	}
	if !limiter.AllowMessage(sessionID) {
		t.Fatal("first message should be allowed")
	}

	cs := NewCleanupService(chat, limiter, zap.NewNop())
	if n := cs.CleanupIdleSessions(time.Hour); n != 0 {
		t.Errorf("removed %d active sessions", n)
	}

	time.Sleep(5 * time.Millisecond)
	if n := cs.CleanupIdleSessions(time.Millisecond); n != 1 {
		t.Fatalf("removed %d sessions, want 1", n)
	}
	if len(chat.History(sessionID.String())) != 0 {
		t.Error("history kept after cleanup")
	}
	if !limiter.AllowMessage(sessionID) {
		t.Error("rate limit bucket kept after cleanup")
	}
}
