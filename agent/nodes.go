package agent

import (
	"context"
	"strings"

	"multimodal-rag/llmclient"
	"multimodal-rag/prompts"
	"multimodal-rag/rag"
	"multimodal-rag/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type node string

const (
	nodeDecide   node = "decide"
	nodeRetrieve node = "retrieve"
	nodeRewrite  node = "rewrite_question"
	nodeGenerate node = "generate_answer"
	nodeEnd      node = "end"
)

// User-facing messages for recovered failures.
const (
	DecideErrorMessage  = "I apologize, but I encountered an error while processing your request."
	AnswerErrorMessage  = "I apologize, but I couldn't generate an answer based on the retrieved information."
	NoRelevantInfo      = "I'm sorry, but I could not find relevant information in the documents to answer your question."
	MissingAnswerText   = "I couldn't generate an answer."
	ProcessErrorMessage = "I apologize, but I encountered an error while processing your message."
)

// callContext bounds a single model call by the configured request timeout.
func (a *Agent) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.LLMRequestTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.LLMRequestTimeout)
	}
	return context.WithCancel(ctx)
}

// decide lets the model either answer directly or request a retrieval.
func (a *Agent) decide(ctx context.Context, state *State) node {
	current := state.latestUserMessage()
	if state.Rewrites > 0 && state.SearchQuery != "" {
		current = state.SearchQuery
	}
	prompt := prompts.BuildQueryOrRespond(recentContext(state.Messages, a.cfg.DecideContextMessages), current)

	callCtx, cancel := a.callContext(ctx)
	defer cancel()
	outcome, err := a.generator.GenerateContentWithTools(callCtx, prompt, []llmclient.ToolDeclaration{prompts.RetrieverTool()})
	if err != nil {
		a.logger.Error("Decide step failed, ending turn", zap.Error(err))
		state.append(Message{Role: types.RoleAssistant, Content: DecideErrorMessage})
		return nodeEnd
	}

	switch o := outcome.(type) {
	case llmclient.ToolCallOutcome:
		if o.Name != prompts.RetrieveToolName {
			a.logger.Warn("Model requested an unknown tool, ending turn", zap.String("tool", o.Name))
			state.append(Message{Role: types.RoleAssistant, Content: DecideErrorMessage})
			return nodeEnd
		}
		query := strings.TrimSpace(o.StringArg("query"))
		if query == "" {
			query = current
		}
		id := o.ID
		if id == "" {
			id = "call_" + uuid.New().String()
		}
		state.SearchQuery = query
		state.append(Message{
			Role:     types.RoleAssistant,
			ToolCall: &ToolCall{ID: id, Name: o.Name, Query: query},
		})
		a.logger.Debug("Decide step requested retrieval", zap.String("query", query))
		return nodeRetrieve

	case llmclient.TextOutcome:
		state.append(Message{Role: types.RoleAssistant, Content: o.Text})
		a.logger.Debug("Decide step answered directly")
		return nodeEnd

	default:
		a.logger.Error("Decide step returned an unexpected outcome")
		state.append(Message{Role: types.RoleAssistant, Content: DecideErrorMessage})
		return nodeEnd
	}
}

// retrieve runs the retrieval tool for the current search query. The
// retrieved chunks replace those of any earlier retrieval in the turn.
func (a *Agent) retrieve(ctx context.Context, state *State) {
	callID := ""
	if n := len(state.Messages); n > 0 && state.Messages[n-1].ToolCall != nil {
		callID = state.Messages[n-1].ToolCall.ID
	}

	result := a.tool.Retrieve(ctx, state.SearchQuery)
	state.retrievals++
	state.RetrievedChunks = result.Chunks
	state.append(Message{Role: types.RoleTool, Content: result.Content, ToolCallID: callID})
}

// grade decides whether the latest tool result is relevant enough to answer
// from. A missing query or a tool result without passages (empty, no hits or
// a retrieval error) goes straight to a rewrite without a model call.
func (a *Agent) grade(ctx context.Context, state *State) node {
	question := strings.TrimSpace(state.SearchQuery)
	content := state.latestToolResult()
	if question == "" || !rag.HasPassages(content) {
		a.logger.Debug("Nothing to grade, rewriting query",
			zap.Bool("empty_query", question == ""),
			zap.Bool("retrieval_failed", strings.HasPrefix(strings.TrimSpace(content), rag.ErrorMessagePrefix)))
		return nodeRewrite
	}

	callCtx, cancel := a.callContext(ctx)
	defer cancel()
	verdict, err := a.generator.GenerateContent(callCtx, prompts.BuildGradeDocuments(content, question))
	if err != nil {
		a.logger.Warn("Grading failed, treating documents as not relevant", zap.Error(err))
		return nodeRewrite
	}
	if strings.Contains(strings.ToLower(verdict), "yes") {
		return nodeGenerate
	}
	a.logger.Debug("Documents graded as not relevant", zap.String("verdict", verdict))
	return nodeRewrite
}

// rewrite reformulates the search query, or forces the turn to finish once
// the rewrite limit is reached.
func (a *Agent) rewrite(ctx context.Context, state *State) node {
	if ok, reason := a.rewriteLoop.ShouldRewrite(state.Rewrites); !ok {
		state.limitReached = true
		if rag.HasPassages(state.latestToolResult()) {
			a.logger.Info("Forcing answer from latest retrieval", zap.String("reason", reason))
			return nodeGenerate
		}
		a.logger.Info("No usable retrieval after rewrites, ending turn", zap.String("reason", reason))
		state.append(Message{Role: types.RoleAssistant, Content: NoRelevantInfo})
		return nodeEnd
	}
	a.rewriteLoop.RecordRewrite(state)

	callCtx, cancel := a.callContext(ctx)
	defer cancel()
	rewritten, err := a.generator.GenerateContent(callCtx, prompts.BuildRewriteQuery(state.SearchQuery))
	if err != nil {
		a.logger.Warn("Query rewrite failed, keeping previous query", zap.Error(err))
		return nodeDecide
	}
	if q := cleanQuery(rewritten); q != "" {
		a.logger.Debug("Rewrote search query",
			zap.String("from", state.SearchQuery),
			zap.String("to", q))
		state.SearchQuery = q
	}
	return nodeDecide
}

// cleanQuery strips whitespace and wrapping quotes from a rewritten query.
func cleanQuery(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	return strings.TrimSpace(s)
}

// generateAnswer produces the grounded answer and the cited chunk ids.
func (a *Agent) generateAnswer(ctx context.Context, state *State) {
	prompt := prompts.BuildGenerateAnswer(fullHistory(state.Messages), state.latestToolResult())

	callCtx, cancel := a.callContext(ctx)
	defer cancel()
	result, err := a.generator.GenerateStructuredContent(callCtx, prompt, prompts.AnswerSchema())
	if err != nil {
		a.logger.Error("Answer generation failed", zap.Error(err))
		state.ChunkIDsUsed = []string{}
		state.append(Message{Role: types.RoleAssistant, Content: AnswerErrorMessage})
		state.answered = true
		return
	}

	answer, ids := parseAnswer(result)
	state.ChunkIDsUsed = ids
	state.append(Message{Role: types.RoleAssistant, Content: answer})
	state.answered = true
}

// parseAnswer reads {answer, chunk_ids_used}; the raw-text fallback
// {"text": raw} yields the raw text and no ids.
func parseAnswer(result map[string]any) (string, []string) {
	ids := []string{}
	if answer, ok := result["answer"].(string); ok {
		if raw, ok := result["chunk_ids_used"].([]any); ok {
			for _, v := range raw {
				if id, ok := v.(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return answer, ids
	}
	if text, ok := result["text"].(string); ok {
		return text, ids
	}
	return MissingAnswerText, ids
}
