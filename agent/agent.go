package agent

import (
	"context"
	"fmt"
	"time"

	"multimodal-rag/config"
	"multimodal-rag/document"
	apperrors "multimodal-rag/errors"
	"multimodal-rag/web/types"

	"go.uber.org/zap"
)

// DefaultHistoryWindow is the number of prior messages carried into a turn.
const DefaultHistoryWindow = 5

// Agent drives one retrieval-augmented turn: decide, retrieve, grade, then
// either rewrite the query and loop or generate the grounded answer.
type Agent struct {
	cfg           *config.Config
	historyWindow int
	generator     Generator
	tool          RetrievalTool
	assembler     *Assembler
	rewriteLoop   *RewriteLoop
	logger        *zap.Logger
}

// AgentResponse is the result of a turn.
type AgentResponse struct {
	Content string `json:"content"`
	// RetrievedChunks holds the chunks of the retrieval the answer was
	// generated from. Empty when the turn ended without generating an answer.
	RetrievedChunks []document.Chunk   `json:"retrieved_chunks"`
	ChunksUsed      []document.Chunk   `json:"chunks_used"`
	ChunkIDsUsed    []string           `json:"chunk_ids_used"`
	Pictures        []document.Picture `json:"pictures"`
	ChatID          string             `json:"chat_id,omitempty"`
	Metadata        map[string]any     `json:"metadata"`
}

func NewAgent(cfg *config.Config, generator Generator, tool RetrievalTool, pictures PictureStore, logger *zap.Logger) *Agent {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	loop := NewRewriteLoop(cfg.MaxRewrites, logger)
	logger.Info("Agent initialized",
		zap.Int("history_window", window),
		zap.Int("max_rewrites", loop.MaxRewrites()))

	return &Agent{
		cfg:           cfg,
		historyWindow: window,
		generator:     generator,
		tool:          tool,
		assembler:     NewAssembler(pictures, logger),
		rewriteLoop:   loop,
		logger:        logger,
	}
}

// maxSteps bounds node transitions per turn. A rewrite cycle is three steps
// (decide, retrieve and grade, rewrite) and the last pass adds the answer.
func (a *Agent) maxSteps() int {
	return 4*(a.rewriteLoop.MaxRewrites()+1) + 4
}

// ProcessMessage runs one turn for message. history is read, never modified.
// Failures inside the turn are reported as an apology response with the
// diagnostic in Metadata["error"]; only cancellation of ctx is returned as an
// error.
func (a *Agent) ProcessMessage(ctx context.Context, message, chatID string, history []types.ChatMessage) (resp *AgentResponse, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Recovered from panic in agent turn",
				zap.Any("panic", r),
				zap.String("chat_id", chatID))
			resp, err = a.errorResponse(chatID, fmt.Errorf("panic: %v", r)), nil
		}
	}()

	state := newState(history, message, a.historyWindow)
	if runErr := a.run(ctx, state); runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a.logger.Error("Agent turn failed", zap.Error(runErr), zap.String("chat_id", chatID))
		return a.errorResponse(chatID, runErr), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final, ok := state.finalMessage()
	if !ok {
		a.logger.Error("Agent turn produced no reply", zap.String("chat_id", chatID))
		return a.errorResponse(chatID, apperrors.ErrEmptyWorkflow), nil
	}

	resp = &AgentResponse{
		Content:         final.Content,
		RetrievedChunks: []document.Chunk{},
		ChunksUsed:      []document.Chunk{},
		ChunkIDsUsed:    []string{},
		Pictures:        []document.Picture{},
		ChatID:          chatID,
	}
	if state.answered {
		if state.RetrievedChunks != nil {
			resp.RetrievedChunks = state.RetrievedChunks
		}
		if state.ChunkIDsUsed != nil {
			resp.ChunkIDsUsed = state.ChunkIDsUsed
		}
		resp.ChunksUsed = a.assembler.ChunksUsed(state.RetrievedChunks, state.ChunkIDsUsed)
		resp.Pictures = a.assembler.Pictures(ctx, resp.ChunksUsed)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	resp.Metadata = map[string]any{
		"workflow_steps":        state.steps,
		"rewrites":              state.Rewrites,
		"retrievals":            state.retrievals,
		"rewrite_limit_reached": state.limitReached,
		"search_query":          state.SearchQuery,
	}

	a.logger.Info("Agent turn complete",
		zap.String("chat_id", chatID),
		zap.Int("steps", state.steps),
		zap.Int("rewrites", state.Rewrites),
		zap.Int("retrieved_chunks", len(resp.RetrievedChunks)),
		zap.Int("pictures", len(resp.Pictures)),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

// run executes the state machine until a terminal node is reached.
func (a *Agent) run(ctx context.Context, state *State) error {
	next := nodeDecide
	limit := a.maxSteps()
	for next != nodeEnd {
		if err := ctx.Err(); err != nil {
			return err
		}
		if state.steps >= limit {
			return fmt.Errorf("workflow exceeded %d steps", limit)
		}
		state.steps++
		a.logger.Debug("Agent step", zap.String("node", string(next)), zap.Int("step", state.steps))

		switch next {
		case nodeDecide:
			next = a.decide(ctx, state)
		case nodeRetrieve:
			a.retrieve(ctx, state)
			next = a.grade(ctx, state)
		case nodeRewrite:
			next = a.rewrite(ctx, state)
		case nodeGenerate:
			a.generateAnswer(ctx, state)
			next = nodeEnd
		default:
			return fmt.Errorf("unknown workflow node %q", next)
		}
	}
	return ctx.Err()
}

func (a *Agent) errorResponse(chatID string, cause error) *AgentResponse {
	return &AgentResponse{
		Content:         ProcessErrorMessage,
		RetrievedChunks: []document.Chunk{},
		ChunksUsed:      []document.Chunk{},
		ChunkIDsUsed:    []string{},
		Pictures:        []document.Picture{},
		ChatID:          chatID,
		Metadata:        map[string]any{"error": cause.Error()},
	}
}
