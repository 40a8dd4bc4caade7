package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "multimodal-rag/errors"
	"multimodal-rag/web/types"
)

// ToolDeclaration describes a function the model may call.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type toolSpec struct {
	Type     string          `json:"type"`
	Function ToolDeclaration `json:"function"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// Outcome is the result of a tool-enabled generation: either plain text or a
// request to call one of the declared tools.
type Outcome interface {
	isOutcome()
}

// TextOutcome is a direct reply from the model.
type TextOutcome struct {
	Text string
}

// ToolCallOutcome is a model request to invoke a tool.
type ToolCallOutcome struct {
	ID   string
	Name string
	Args map[string]any
}

func (TextOutcome) isOutcome()     {}
func (ToolCallOutcome) isOutcome() {}

// StringArg returns args[key] when it is a string.
func (o ToolCallOutcome) StringArg(key string) string {
	if v, ok := o.Args[key].(string); ok {
		return v
	}
	return ""
}

// ChatWithTools performs a chat completion with tool declarations and returns
// the first tool call, or the text reply when the model calls none.
func (c *Client) ChatWithTools(ctx context.Context, host string, messages []types.AgentMessage, tools []ToolDeclaration) (Outcome, error) {
	specs := make([]toolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, toolSpec{Type: "function", Function: t})
	}

	req := chatRequest{
		Model:    c.cfg.LLMModel,
		Messages: messages,
		Tools:    specs,
	}
	if len(specs) > 0 {
		req.ToolChoice = "auto"
	}

	cr, err := c.complete(ctx, host, req)
	if err != nil {
		return nil, err
	}

	msg := cr.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return TextOutcome{Text: msg.Content}, nil
	}
	return parseToolCall(msg.ToolCalls[0])
}

func parseToolCall(tc toolCall) (Outcome, error) {
	if tc.Function.Name == "" {
		return nil, fmt.Errorf("%w: tool call without a function name", apperrors.ErrLLMCommunication)
	}
	args := map[string]any{}
	if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("%w: decode tool call arguments: %v", apperrors.ErrLLMCommunication, err)
		}
	}
	return ToolCallOutcome{ID: tc.ID, Name: tc.Function.Name, Args: args}, nil
}
