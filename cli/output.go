package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"multimodal-rag/agent"
	"multimodal-rag/database"
	"multimodal-rag/rag"
)

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func writeAnswer(w io.Writer, resp *agent.AgentResponse) error {
	if formatFlag == "json" {
		for i := range resp.RetrievedChunks {
			resp.RetrievedChunks[i].Vector = nil
		}
		for i := range resp.ChunksUsed {
			resp.ChunksUsed[i].Vector = nil
		}
		return writeJSON(w, resp)
	}

	fmt.Fprintln(w, resp.Content)
	if len(resp.ChunksUsed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for _, c := range resp.ChunksUsed {
			name := c.DocumentID
			if c.Meta.Origin != nil && c.Meta.Origin.Filename != "" {
				name = c.Meta.Origin.Filename
			}
			if len(c.Meta.Headings) > 0 {
				name += " > " + strings.Join(c.Meta.Headings, " > ")
			}
			fmt.Fprintf(w, "  - %s\n", name)
		}
	}
	if len(resp.Pictures) > 0 {
		fmt.Fprintf(w, "\n%d related picture(s)\n", len(resp.Pictures))
	}
	return nil
}

func writeSearch(w io.Writer, query string, result rag.ToolResult) error {
	if formatFlag == "json" {
		ids := rag.AssignChunkIDs(result.Chunks)
		type hit struct {
			ChunkID    string   `json:"chunk_id"`
			DocumentID string   `json:"document_id"`
			Headings   []string `json:"headings,omitempty"`
			Text       string   `json:"text"`
		}
		hits := make([]hit, len(result.Chunks))
		for i, c := range result.Chunks {
			hits[i] = hit{ChunkID: ids[i], DocumentID: c.DocumentID, Headings: c.Meta.Headings, Text: c.Text}
		}
		return writeJSON(w, map[string]any{"query": query, "results": hits})
	}
	_, err := fmt.Fprintln(w, result.Content)
	return err
}

func writeIndexed(w io.Writer, results []database.IndexResult) error {
	if formatFlag == "json" {
		if results == nil {
			results = []database.IndexResult{}
		}
		return writeJSON(w, results)
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s: %d chunks, %d pictures, %d tables\n", r.DocumentID, r.Chunks, r.Pictures, r.Tables)
	}
	_, err := fmt.Fprintf(w, "indexed %d document(s)\n", len(results))
	return err
}
