package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"multimodal-rag/database"
	"multimodal-rag/document"
	apperrors "multimodal-rag/errors"

	"go.uber.org/zap"
)

type fakeBatchEmbedder struct {
	batches []int
}

func (f *fakeBatchEmbedder) EmbedContent(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

type fakeExportStore struct {
	exports []*document.Export
}

func (f *fakeExportStore) IndexExport(ctx context.Context, export *document.Export) (*database.IndexResult, error) {
	f.exports = append(f.exports, export)
	return &database.IndexResult{DocumentID: export.Document.DocumentID, Chunks: len(export.Chunks)}, nil
}

func TestIndexExportBatchesEmbeddings(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	embedder := &fakeBatchEmbedder{}
	store := &fakeExportStore{}
	ix := NewIndexer(embedder, store, 0, logger)

	export := &document.Export{Document: document.Document{Name: "report"}}
	for i := 0; i < 125; i++ {
		export.Chunks = append(export.Chunks, document.Chunk{Text: fmt.Sprintf("chunk text %d", i)})
	}
	// Pre-embedded chunks are left alone.
	export.Chunks[3].Vector = []float32{9}

	result, err := ix.IndexExport(context.Background(), export)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantBatches := []int{60, 60, 4}
	if fmt.Sprint(embedder.batches) != fmt.Sprint(wantBatches) {
		t.Errorf("batches = %v, want %v", embedder.batches, wantBatches)
	}
	if result.DocumentID == "" {
		t.Error("a document id should be generated")
	}
	for i, c := range export.Chunks {
		if len(c.Vector) == 0 {
			t.Errorf("chunk %d has no vector", i)
		}
		if c.DocumentID != result.DocumentID {
			t.Errorf("chunk %d document id = %q", i, c.DocumentID)
		}
	}
	if export.Chunks[3].Vector[0] != 9 {
		t.Error("existing vector was overwritten")
	}
}

func TestIndexExportRejectsEmptyChunk(t *testing.T) {
	ix := NewIndexer(&fakeBatchEmbedder{}, &fakeExportStore{}, 10, zap.NewNop())
	export := &document.Export{Chunks: []document.Chunk{{Text: "ok"}, {Text: "  "}}}

	if _, err := ix.IndexExport(context.Background(), export); !apperrors.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()

	writeExport := func(sub, name string, export document.Export) {
		t.Helper()
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			t.Fatal(err)
		}
		raw, _ := json.Marshal(export)
		if err := os.WriteFile(filepath.Join(path, name), raw, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeExport("paper-a", "paper-a.json", document.Export{
		Document: document.Document{Name: "Paper A"},
		Chunks:   []document.Chunk{{Text: "alpha"}},
	})
	writeExport("broken", "broken.json", document.Export{})
	os.WriteFile(filepath.Join(dir, "broken", "broken.json"), []byte("{not json"), 0o644)
	os.MkdirAll(filepath.Join(dir, "empty"), 0o755)

	store := &fakeExportStore{}
	ix := NewIndexer(&fakeBatchEmbedder{}, store, 10, zap.NewNop())

	results, err := ix.IndexDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("indexed %d documents, want 1", len(results))
	}
	if results[0].DocumentID != "paper-a" {
		t.Errorf("document id = %q, want file stem", results[0].DocumentID)
	}
}
