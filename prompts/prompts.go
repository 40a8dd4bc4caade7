package prompts

import (
	_ "embed"
	"strings"

	"multimodal-rag/llmclient"
)

// Embedded prompt files

//go:embed query_or_respond.txt
var queryOrRespond string

//go:embed grade_documents.txt
var gradeDocuments string

//go:embed rewrite_query.txt
var rewriteQuery string

//go:embed generate_answer.txt
var generateAnswer string

func QueryOrRespond() string { return queryOrRespond }
func GradeDocuments() string { return gradeDocuments }
func RewriteQuery() string   { return rewriteQuery }
func GenerateAnswer() string { return generateAnswer }

// Placeholders are substituted in a single pass, so user text that happens to
// contain "{{...}}" is left alone.
func render(tmpl string, pairs ...string) string {
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(tmpl))
}

// BuildQueryOrRespond fills the decide prompt.
func BuildQueryOrRespond(history, message string) string {
	return render(queryOrRespond, "{{history}}", history, "{{message}}", message)
}

// BuildGradeDocuments fills the relevance grading prompt.
func BuildGradeDocuments(context, question string) string {
	return render(gradeDocuments, "{{context}}", context, "{{question}}", question)
}

// BuildRewriteQuery fills the query reformulation prompt.
func BuildRewriteQuery(query string) string {
	return render(rewriteQuery, "{{query}}", query)
}

// BuildGenerateAnswer fills the grounded answer prompt.
func BuildGenerateAnswer(history, context string) string {
	return render(generateAnswer, "{{history}}", history, "{{context}}", context)
}

// RetrieveToolName is the only tool the decide step can call.
const RetrieveToolName = "retrieve_documents"

// RetrieverTool is the declaration of the document retrieval tool.
func RetrieverTool() llmclient.ToolDeclaration {
	return llmclient.ToolDeclaration{
		Name:        RetrieveToolName,
		Description: "Search and return information from the document repository.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query for retrieving relevant documents",
				},
			},
			"required": []string{"query"},
		},
	}
}

// AnswerSchema is the JSON schema for the structured answer.
func AnswerSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "The main answer content",
			},
			"chunk_ids_used": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "List of chunk IDs used to generate this answer",
			},
		},
		"required": []string{"answer", "chunk_ids_used"},
	}
}
