package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"multimodal-rag/agent"
	"multimodal-rag/database"
	"multimodal-rag/document"
	"multimodal-rag/rag"
	"multimodal-rag/web/types"
)

type fakeAsker struct{ question string }

func (f *fakeAsker) ProcessMessage(ctx context.Context, message, chatID string, history []types.ChatMessage) (*agent.AgentResponse, error) {
	f.question = message
	return &agent.AgentResponse{
		Content: "Attention weighs tokens.",
		ChunksUsed: []document.Chunk{{
			DocumentID: "d1",
			Text:       "Attention weighs tokens.",
			Vector:     []float32{0.1},
			Meta: document.ChunkMeta{
				Headings: []string{"Model", "Attention"},
				Origin:   &document.Origin{Filename: "paper.pdf"},
			},
		}},
		Metadata: map[string]any{"rewrites": 0},
	}, nil
}

type fakeSearcher struct{ result rag.ToolResult }

func (f fakeSearcher) Retrieve(ctx context.Context, query string) rag.ToolResult { return f.result }

type fakeDirIndexer struct{ dir string }

func (f *fakeDirIndexer) IndexDirectory(ctx context.Context, dir string) ([]database.IndexResult, error) {
	f.dir = dir
	return []database.IndexResult{{DocumentID: "paper", Chunks: 12, Pictures: 2}}, nil
}

func run(t *testing.T, b *Backend, args ...string) (string, error) {
	t.Helper()
	prev := openBackend
	openBackend = func(ctx context.Context) (*Backend, error) { return b, nil }
	t.Cleanup(func() { openBackend = prev })

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	err := RootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAsk(t *testing.T) {
	asker := &fakeAsker{}
	closed := false
	b := &Backend{Agent: asker, Close: func() { closed = true }}

	out, err := run(t, b, "ask", "--format", "text", "what", "is", "attention?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if asker.question != "what is attention?" {
		t.Errorf("question = %q", asker.question)
	}
	if !strings.Contains(out, "Attention weighs tokens.") || !strings.Contains(out, "paper.pdf > Model > Attention") {
		t.Errorf("output = %q", out)
	}
	if !closed {
		t.Error("backend not closed")
	}

	out, err = run(t, b, "ask", "--format", "json", "again")
	if err != nil {
		t.Fatalf("ask json: %v", err)
	}
	var resp agent.AgentResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.ChunksUsed[0].Vector != nil {
		t.Error("vectors should be dropped from json output")
	}
}

func TestSearch(t *testing.T) {
	chunks := []document.Chunk{{DocumentID: "d1", Text: "Attention weighs tokens."}}
	b := &Backend{Retriever: fakeSearcher{rag.ToolResult{Content: rag.FormatPassages(chunks), Chunks: chunks}}}

	out, err := run(t, b, "search", "--format", "json", "attention")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, rag.ChunkID(1, chunks[0].Text)) {
		t.Errorf("output = %q", out)
	}

	failing := &Backend{Retriever: fakeSearcher{rag.ToolResult{Content: rag.ErrorMessagePrefix + "down", Failed: true}}}
	if _, err := run(t, failing, "search", "--format", "text", "attention"); err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("err = %v, want retrieval failure", err)
	}
}

func TestIndex(t *testing.T) {
	ix := &fakeDirIndexer{}
	out, err := run(t, &Backend{Indexer: ix}, "index", "--format", "text", "/data/exports")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if ix.dir != "/data/exports" {
		t.Errorf("dir = %q", ix.dir)
	}
	if !strings.Contains(out, "paper: 12 chunks, 2 pictures, 0 tables") || !strings.Contains(out, "indexed 1 document(s)") {
		t.Errorf("output = %q", out)
	}
}

func TestBackendErrorAndBadFormat(t *testing.T) {
	prev := openBackend
	openBackend = func(ctx context.Context) (*Backend, error) { return nil, errors.New("no database") }
	defer func() { openBackend = prev }()

	RootCmd.SetOut(&bytes.Buffer{})
	RootCmd.SetErr(&bytes.Buffer{})
	RootCmd.SetArgs([]string{"search", "--format", "text", "x"})
	if err := RootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "no database") {
		t.Errorf("err = %v, want backend error", err)
	}

	RootCmd.SetArgs([]string{"search", "--format", "yaml", "x"})
	if err := RootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("err = %v, want format error", err)
	}
}
