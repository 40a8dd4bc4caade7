package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"multimodal-rag/config"
	"multimodal-rag/document"
	"multimodal-rag/llmclient"
	"multimodal-rag/prompts"
	"multimodal-rag/rag"
	"multimodal-rag/web/types"

	"go.uber.org/zap"
)

// fakeGenerator scripts the model. Decide outcomes are consumed in order and
// the last one repeats.
type fakeGenerator struct {
	decide     []llmclient.Outcome
	decideErr  error
	grade      string
	gradeErr   error
	rewrite    string
	rewriteErr error
	answer     map[string]any
	answerErr  error
	panicOn    string

	decidePrompts  []string
	gradeCalls     int
	rewriteQueries []string
	answerCalls    int
}

func (f *fakeGenerator) GenerateContentWithTools(ctx context.Context, prompt string, tools []llmclient.ToolDeclaration) (llmclient.Outcome, error) {
	if f.panicOn == "decide" {
		panic("boom")
	}
	f.decidePrompts = append(f.decidePrompts, prompt)
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	i := min(len(f.decidePrompts)-1, len(f.decide)-1)
	return f.decide[i], nil
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.HasPrefix(prompt, "You are a grader") {
		f.gradeCalls++
		return f.grade, f.gradeErr
	}
	f.rewriteQueries = append(f.rewriteQueries, prompt)
	return f.rewrite, f.rewriteErr
}

func (f *fakeGenerator) GenerateStructuredContent(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	f.answerCalls++
	return f.answer, f.answerErr
}

type fakeTool struct {
	result  rag.ToolResult
	queries []string
	cancel  context.CancelFunc
}

func (f *fakeTool) Retrieve(ctx context.Context, query string) rag.ToolResult {
	f.queries = append(f.queries, query)
	if f.cancel != nil {
		f.cancel()
	}
	return f.result
}

type fakePictures struct {
	pictures map[string]*document.Picture
	err      error
	calls    []string
}

func (f *fakePictures) GetPicture(ctx context.Context, documentID, pictureID string) (*document.Picture, error) {
	f.calls = append(f.calls, pictureID)
	if f.err != nil {
		return nil, f.err
	}
	return f.pictures[pictureID], nil
}

func newTestAgent(gen Generator, tool RetrievalTool, pics PictureStore) *Agent {
	cfg := &config.Config{HistoryWindow: 5, MaxRewrites: 3, DecideContextMessages: 3}
	return NewAgent(cfg, gen, tool, pics, zap.NewNop())
}

func retrieveCall(query string) llmclient.ToolCallOutcome {
	return llmclient.ToolCallOutcome{
		ID:   "call_1",
		Name: prompts.RetrieveToolName,
		Args: map[string]any{"query": query},
	}
}

func chunkResult(chunks ...document.Chunk) rag.ToolResult {
	return rag.ToolResult{Content: rag.FormatPassages(chunks), Chunks: chunks}
}

func TestDirectReply(t *testing.T) {
	gen := &fakeGenerator{decide: []llmclient.Outcome{llmclient.TextOutcome{Text: "Hello! How can I help you today?"}}}
	tool := &fakeTool{}
	a := newTestAgent(gen, tool, &fakePictures{})

	resp, err := a.ProcessMessage(context.Background(), "Hello!", "chat-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Content, "Hello") {
		t.Errorf("content = %q, want a greeting", resp.Content)
	}
	if len(resp.RetrievedChunks) != 0 || len(resp.Pictures) != 0 {
		t.Errorf("direct reply should carry no chunks or pictures, got %d/%d", len(resp.RetrievedChunks), len(resp.Pictures))
	}
	if len(tool.queries) != 0 {
		t.Errorf("retrieval should not run, got %v", tool.queries)
	}
	if resp.ChatID != "chat-1" {
		t.Errorf("chat id = %q", resp.ChatID)
	}
}

func TestRetrieveGradeAnswer(t *testing.T) {
	chunk := document.Chunk{DocumentID: "doc-1", Text: "Machine learning is a field of AI."}
	gen := &fakeGenerator{
		decide: []llmclient.Outcome{retrieveCall("What is machine learning?")},
		grade:  "yes",
		answer: map[string]any{"answer": "ML is...", "chunk_ids_used": []any{"chunk_1_xxxx"}},
	}
	tool := &fakeTool{result: chunkResult(chunk)}
	a := newTestAgent(gen, tool, &fakePictures{})

	resp, err := a.ProcessMessage(context.Background(), "What is machine learning?", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ML is..." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ChunkIDsUsed) != 1 || resp.ChunkIDsUsed[0] != "chunk_1_xxxx" {
		t.Errorf("chunk ids = %v", resp.ChunkIDsUsed)
	}
	if len(resp.RetrievedChunks) != 1 {
		t.Errorf("retrieved chunks = %d, want 1", len(resp.RetrievedChunks))
	}
	if len(resp.ChunksUsed) != 0 {
		t.Errorf("unresolvable citation should select no chunks, got %d", len(resp.ChunksUsed))
	}
	if gen.answerCalls != 1 {
		t.Errorf("answer generated %d times, want 1", gen.answerCalls)
	}
	if len(tool.queries) != 1 || tool.queries[0] != "What is machine learning?" {
		t.Errorf("retrieval queries = %v", tool.queries)
	}
}

func TestEmptyRetrievalSkipsGrading(t *testing.T) {
	gen := &fakeGenerator{
		decide:  []llmclient.Outcome{retrieveCall("quantum gravity")},
		grade:   "yes",
		rewrite: "quantum gravity theories",
	}
	tool := &fakeTool{result: rag.ToolResult{Content: rag.NoResultsMessage, Chunks: []document.Chunk{}}}
	a := newTestAgent(gen, tool, &fakePictures{})

	resp, err := a.ProcessMessage(context.Background(), "quantum gravity", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.gradeCalls != 0 {
		t.Errorf("grading prompt called %d times for empty retrieval", gen.gradeCalls)
	}
	if len(gen.rewriteQueries) == 0 {
		t.Error("expected the query to be rewritten")
	}
	if resp.Content != NoRelevantInfo {
		t.Errorf("content = %q, want %q", resp.Content, NoRelevantInfo)
	}
	if gen.answerCalls != 0 {
		t.Errorf("answer generated %d times, want 0", gen.answerCalls)
	}
}

func TestRetrievalErrorRoutesToRewrite(t *testing.T) {
	// The grader would accept anything; a retrieval error must never reach it.
	gen := &fakeGenerator{
		decide:  []llmclient.Outcome{retrieveCall("neural networks")},
		grade:   "yes",
		rewrite: "artificial neural networks",
		answer:  map[string]any{"answer": "answered from error text", "chunk_ids_used": []any{}},
	}
	tool := &fakeTool{result: rag.ToolResult{Content: rag.ErrorMessagePrefix + "embedding failed", Failed: true}}
	a := newTestAgent(gen, tool, &fakePictures{})

	resp, err := a.ProcessMessage(context.Background(), "neural networks", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gen.rewriteQueries) == 0 {
		t.Fatal("tool error should route to rewrite")
	}
	if gen.gradeCalls != 0 {
		t.Errorf("grading prompt called %d times for a retrieval error", gen.gradeCalls)
	}
	if gen.answerCalls != 0 {
		t.Errorf("answer generated %d times from a retrieval error", gen.answerCalls)
	}
	if _, ok := resp.Metadata["error"]; ok {
		t.Errorf("tool error must not surface as a turn error: %v", resp.Metadata)
	}
	if resp.Content != NoRelevantInfo {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestMalformedStructuredAnswer(t *testing.T) {
	chunk := document.Chunk{DocumentID: "doc-1", Text: "Gradient descent minimises loss."}
	gen := &fakeGenerator{
		decide: []llmclient.Outcome{retrieveCall("gradient descent")},
		grade:  "Yes, relevant.",
		answer: map[string]any{"text": "Gradient descent is an optimiser {not json"},
	}
	a := newTestAgent(gen, &fakeTool{result: chunkResult(chunk)}, &fakePictures{})

	resp, err := a.ProcessMessage(context.Background(), "gradient descent", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Gradient descent is an optimiser {not json" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ChunkIDsUsed) != 0 {
		t.Errorf("chunk ids = %v, want empty", resp.ChunkIDsUsed)
	}
	if len(resp.ChunksUsed) != 1 {
		t.Errorf("no citations should mark all chunks used, got %d", len(resp.ChunksUsed))
	}
}

func TestRewriteLimitTerminates(t *testing.T) {
	tests := []struct {
		name        string
		result      rag.ToolResult
		maxRewrites int
		wantAnswer  bool
	}{
		{
			name:        "passages force an answer",
			result:      chunkResult(document.Chunk{DocumentID: "d", Text: "loosely related"}),
			maxRewrites: 3,
			wantAnswer:  true,
		},
		{
			name:        "no passages end with apology",
			result:      rag.ToolResult{Content: rag.NoResultsMessage},
			maxRewrites: 3,
		},
		{
			name:        "rewriting disabled",
			result:      chunkResult(document.Chunk{DocumentID: "d", Text: "loosely related"}),
			maxRewrites: 0,
			wantAnswer:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{
				decide:  []llmclient.Outcome{retrieveCall("obscure topic")},
				grade:   "no",
				rewrite: "\"a better query\"",
				answer:  map[string]any{"answer": "best effort", "chunk_ids_used": []any{}},
			}
			cfg := &config.Config{HistoryWindow: 5, MaxRewrites: tt.maxRewrites}
			a := NewAgent(cfg, gen, &fakeTool{result: tt.result}, &fakePictures{}, zap.NewNop())

			resp, err := a.ProcessMessage(context.Background(), "obscure topic", "", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := resp.Metadata["rewrites"]; got != tt.maxRewrites {
				t.Errorf("rewrites = %v, want %d", got, tt.maxRewrites)
			}
			if resp.Metadata["rewrite_limit_reached"] != true {
				t.Error("expected rewrite limit to be reported")
			}
			if tt.wantAnswer {
				if gen.answerCalls != 1 || resp.Content != "best effort" {
					t.Errorf("answer calls = %d, content = %q", gen.answerCalls, resp.Content)
				}
			} else if resp.Content != NoRelevantInfo {
				t.Errorf("content = %q", resp.Content)
			}
			if tt.maxRewrites > 0 && !strings.Contains(gen.decidePrompts[1], "a better query") {
				t.Errorf("decide after a rewrite should see the rewritten query:\n%s", gen.decidePrompts[1])
			}
		})
	}
}

func TestRewriteFailureKeepsQuery(t *testing.T) {
	gen := &fakeGenerator{
		decide:     []llmclient.Outcome{retrieveCall("original query")},
		grade:      "no",
		rewriteErr: errors.New("rate limited"),
	}
	tool := &fakeTool{result: rag.ToolResult{Content: rag.NoResultsMessage}}
	a := newTestAgent(gen, tool, &fakePictures{})

	if _, err := a.ProcessMessage(context.Background(), "original query", "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, q := range tool.queries {
		if q != "original query" {
			t.Errorf("query changed to %q after failed rewrite", q)
		}
	}
	if len(tool.queries) != 4 {
		t.Errorf("retrievals = %d, want 4", len(tool.queries))
	}
}

func TestDecideFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"model error", &fakeGenerator{decideErr: errors.New("connection refused")}},
		{"unknown tool", &fakeGenerator{decide: []llmclient.Outcome{llmclient.ToolCallOutcome{Name: "run_python"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := &fakeTool{}
			a := newTestAgent(tt.gen, tool, &fakePictures{})
			resp, err := a.ProcessMessage(context.Background(), "hi", "", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Content != DecideErrorMessage {
				t.Errorf("content = %q", resp.Content)
			}
			if len(tool.queries) != 0 {
				t.Error("retrieval should not run")
			}
		})
	}
}

func TestEmptyToolQueryFallsBackToMessage(t *testing.T) {
	gen := &fakeGenerator{
		decide: []llmclient.Outcome{llmclient.ToolCallOutcome{Name: prompts.RetrieveToolName}},
		grade:  "yes",
		answer: map[string]any{"answer": "ok"},
	}
	tool := &fakeTool{result: chunkResult(document.Chunk{Text: "x"})}
	a := newTestAgent(gen, tool, &fakePictures{})

	if _, err := a.ProcessMessage(context.Background(), "what is x?", "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tool.queries) != 1 || tool.queries[0] != "what is x?" {
		t.Errorf("queries = %v", tool.queries)
	}
}

func TestAnswerFailure(t *testing.T) {
	gen := &fakeGenerator{
		decide:    []llmclient.Outcome{retrieveCall("q")},
		grade:     "yes",
		answerErr: errors.New("503"),
	}
	a := newTestAgent(gen, &fakeTool{result: chunkResult(document.Chunk{Text: "t"})}, &fakePictures{})

	resp, err := a.ProcessMessage(context.Background(), "q", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != AnswerErrorMessage {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.ChunkIDsUsed == nil || len(resp.ChunkIDsUsed) != 0 {
		t.Errorf("chunk ids = %#v, want empty slice", resp.ChunkIDsUsed)
	}
}

func TestPicturesResolvedFromCitedChunks(t *testing.T) {
	withPicture := document.Chunk{
		DocumentID: "doc-1",
		Text:       "Figure 1 shows the architecture.",
		Meta: document.ChunkMeta{DocItems: []document.DocItem{
			{SelfRef: "#/pictures/0", Label: "picture"},
			{SelfRef: "#/pictures/1", Label: "picture"},
			{SelfRef: "#/texts/3", Label: "text"},
		}},
	}
	plain := document.Chunk{DocumentID: "doc-1", Text: "Unrelated text."}
	cited := rag.ChunkID(1, withPicture.Text)

	gen := &fakeGenerator{
		decide: []llmclient.Outcome{retrieveCall("architecture")},
		grade:  "yes",
		answer: map[string]any{"answer": "See figure.", "chunk_ids_used": []any{cited}},
	}
	pics := &fakePictures{pictures: map[string]*document.Picture{
		"doc-1_picture_0": {PictureID: "doc-1_picture_0", DocumentID: "doc-1"},
	}}
	a := newTestAgent(gen, &fakeTool{result: chunkResult(withPicture, plain)}, pics)

	resp, err := a.ProcessMessage(context.Background(), "architecture", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ChunksUsed) != 1 || resp.ChunksUsed[0].Text != withPicture.Text {
		t.Errorf("chunks used = %+v", resp.ChunksUsed)
	}
	if len(resp.Pictures) != 1 || resp.Pictures[0].PictureID != "doc-1_picture_0" {
		t.Errorf("pictures = %+v", resp.Pictures)
	}
	if len(pics.calls) != 2 {
		t.Errorf("picture lookups = %v, want 2", pics.calls)
	}
}

func TestHistoryWindowAndImmutability(t *testing.T) {
	history := make([]types.ChatMessage, 0, 8)
	for i := 0; i < 4; i++ {
		history = append(history,
			types.NewUserMessage("question "+string(rune('a'+i))),
			types.NewAssistantMessage("answer "+string(rune('a'+i))))
	}
	snapshot := make([]types.ChatMessage, len(history))
	copy(snapshot, history)

	gen := &fakeGenerator{
		decide: []llmclient.Outcome{retrieveCall("q")},
		grade:  "yes",
		answer: map[string]any{"answer": "done"},
	}
	a := newTestAgent(gen, &fakeTool{result: chunkResult(document.Chunk{Text: "t"})}, &fakePictures{})

	if _, err := a.ProcessMessage(context.Background(), "new question", "", history); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != len(snapshot) {
		t.Fatalf("history length changed: %d", len(history))
	}
	for i := range history {
		if history[i] != snapshot[i] {
			t.Errorf("history[%d] mutated: %+v", i, history[i])
		}
	}

	state := newState(history, "new question", 5)
	if len(state.Messages) != 6 {
		t.Fatalf("state messages = %d, want 5 history + 1", len(state.Messages))
	}
	if state.Messages[0].Content != "answer b" {
		t.Errorf("window should start at the 5th most recent message, got %q", state.Messages[0].Content)
	}

	prompt := gen.decidePrompts[0]
	if strings.Contains(prompt, "question b") || !strings.Contains(prompt, "answer d") {
		t.Errorf("decide prompt should carry the last 3 context lines:\n%s", prompt)
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{
		decide: []llmclient.Outcome{retrieveCall("q")},
		grade:  "yes",
		answer: map[string]any{"answer": "should not be seen"},
	}
	tool := &fakeTool{result: chunkResult(document.Chunk{Text: "t"}), cancel: cancel}
	a := newTestAgent(gen, tool, &fakePictures{})

	resp, err := a.ProcessMessage(ctx, "q", "", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if resp != nil {
		t.Errorf("cancelled turn returned a response: %+v", resp)
	}
	if gen.answerCalls != 0 {
		t.Error("answer should not be generated after cancellation")
	}
}

func TestPanicBecomesApology(t *testing.T) {
	a := newTestAgent(&fakeGenerator{panicOn: "decide"}, &fakeTool{}, nil)

	resp, err := a.ProcessMessage(context.Background(), "hi", "chat-9", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != ProcessErrorMessage {
		t.Errorf("content = %q", resp.Content)
	}
	if _, ok := resp.Metadata["error"]; !ok {
		t.Error("metadata should carry the error")
	}
	if strings.Contains(resp.Content, "boom") {
		t.Error("internal error leaked into content")
	}
}

func TestNewAgentLeavesConfigUntouched(t *testing.T) {
	cfg := &config.Config{HistoryWindow: 0, MaxRewrites: 3, DecideContextMessages: 3}
	a := NewAgent(cfg, &fakeGenerator{}, &fakeTool{}, nil, zap.NewNop())

	if cfg.HistoryWindow != 0 {
		t.Errorf("cfg.HistoryWindow = %d, want the caller's 0", cfg.HistoryWindow)
	}
	if a.historyWindow != DefaultHistoryWindow {
		t.Errorf("historyWindow = %d, want %d", a.historyWindow, DefaultHistoryWindow)
	}
}
