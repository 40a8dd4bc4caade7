package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"multimodal-rag/agent"
	"multimodal-rag/document"
	apperrors "multimodal-rag/errors"
	"multimodal-rag/rag"
	"multimodal-rag/session"
	"multimodal-rag/web/types"

	"go.uber.org/zap"
)

type stubProcessor struct {
	resp    *agent.AgentResponse
	err     error
	calls   int
	history []types.ChatMessage
}

func (s *stubProcessor) ProcessMessage(ctx context.Context, message, chatID string, history []types.ChatMessage) (*agent.AgentResponse, error) {
	s.calls++
	s.history = history
	return s.resp, s.err
}

func newService(t *testing.T, proc *stubProcessor) *ChatService {
	t.Helper()
	conversations, err := session.NewConversationManager(4, 10, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := session.NewChunkManager(10, 200, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return NewChatService(proc, conversations, chunks, zap.NewNop())
}

func TestSendValidatesInput(t *testing.T) {
	proc := &stubProcessor{resp: &agent.AgentResponse{Content: "hi"}}
	svc := newService(t, proc)

	for _, msg := range []string{"", "  \n ", strings.Repeat("x", MaxMessageLength+1)} {
		if _, err := svc.Send(context.Background(), "s1", msg); !apperrors.IsInvalidInput(err) {
			t.Errorf("Send(%d chars) error = %v, want invalid input", len(msg), err)
		}
	}
	if proc.calls != 0 {
		t.Errorf("agent called %d times for invalid input", proc.calls)
	}
}

func TestSendRecordsExchangeAndChunks(t *testing.T) {
	chunks := []document.Chunk{
		{DocumentID: "d1", Text: "Attention weighs tokens.", Meta: document.ChunkMeta{Origin: &document.Origin{Filename: "paper.pdf"}}},
		{DocumentID: "d1", Text: "Unrelated passage."},
	}
	cited := rag.ChunkID(1, chunks[0].Text)
	uncited := rag.ChunkID(2, chunks[1].Text)
	proc := &stubProcessor{resp: &agent.AgentResponse{
		Content:         "Attention weighs tokens [" + cited + "] and [chunk_9_1].",
		RetrievedChunks: chunks,
		ChunkIDsUsed:    []string{cited},
		Metadata:        map[string]any{},
	}}
	svc := newService(t, proc)

	result, err := svc.Send(context.Background(), "s1", "  What does attention do?  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(result.ChunkIDs) != 2 || result.ChunkIDs[0] != cited || result.ChunkIDs[1] != uncited {
		t.Errorf("chunk ids = %v", result.ChunkIDs)
	}
	if !strings.Contains(result.HTML, `href="/api/chunks/`+cited+`"`) {
		t.Errorf("known citation not linked: %s", result.HTML)
	}
	if strings.Contains(result.HTML, `/api/chunks/chunk_9_1`) {
		t.Errorf("unknown citation linked: %s", result.HTML)
	}

	history := svc.History("s1")
	if len(history) != 2 || history[0].Content != "What does attention do?" || history[1].Role != types.RoleAssistant {
		t.Errorf("history = %+v", history)
	}

	stored, preview, err := svc.Chunk("s1", cited)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if stored.Filename != "paper.pdf" || !strings.Contains(preview, "Attention weighs tokens.") {
		t.Errorf("chunk = %+v, preview = %q", stored, preview)
	}
	if _, _, err := svc.Chunk("s2", cited); !apperrors.IsNotFound(err) {
		t.Errorf("chunk from another session: err = %v, want not found", err)
	}
}

func TestSendAgentError(t *testing.T) {
	proc := &stubProcessor{err: context.Canceled}
	svc := newService(t, proc)

	if _, err := svc.Send(context.Background(), "s1", "hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := svc.History("s1"); len(got) != 0 {
		t.Errorf("failed turn should not be recorded: %+v", got)
	}
}

func TestResetAndIdleSessions(t *testing.T) {
	proc := &stubProcessor{resp: &agent.AgentResponse{Content: "ok", Metadata: map[string]any{}}}
	svc := newService(t, proc)

	if _, err := svc.Send(context.Background(), "s1", "first"); err != nil {
		t.Fatal(err)
	}
	if idle := svc.IdleSessions(time.Now().Add(-time.Hour)); len(idle) != 0 {
		t.Errorf("fresh session reported idle: %v", idle)
	}
	if idle := svc.IdleSessions(time.Now().Add(time.Second)); len(idle) != 1 || idle[0] != "s1" {
		t.Errorf("idle = %v, want [s1]", idle)
	}

	svc.Reset("s1")
	if len(svc.History("s1")) != 0 {
		t.Error("history survived reset")
	}
	if idle := svc.IdleSessions(time.Now().Add(time.Second)); len(idle) != 0 {
		t.Errorf("reset session still tracked: %v", idle)
	}
}
