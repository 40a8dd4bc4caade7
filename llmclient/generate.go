package llmclient

import (
	"context"
	"encoding/json"
	"strings"

	"multimodal-rag/web/types"

	"go.uber.org/zap"
)

// GenerateContent sends prompt as a single user message to the main model.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	messages := []types.AgentMessage{{Role: types.RoleUser, Content: prompt}}
	return c.Chat(ctx, c.cfg.LLMHost, messages, nil)
}

// GenerateContentWithTools sends prompt with the given tool declarations.
func (c *Client) GenerateContentWithTools(ctx context.Context, prompt string, tools []ToolDeclaration) (Outcome, error) {
	messages := []types.AgentMessage{{Role: types.RoleUser, Content: prompt}}
	return c.ChatWithTools(ctx, c.cfg.LLMHost, messages, tools)
}

// GenerateStructuredContent asks for a JSON object matching schema. A reply
// that does not parse as a JSON object comes back as {"text": raw} with a nil
// error so callers can still use the model output.
func (c *Client) GenerateStructuredContent(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, err
	}
	fullPrompt := prompt + "\n\nRespond with a JSON object that follows this schema:\n" + string(schemaJSON)

	cr, err := c.complete(ctx, c.cfg.LLMHost, chatRequest{
		Model:    c.cfg.LLMModel,
		Messages: []types.AgentMessage{{Role: types.RoleUser, Content: fullPrompt}},
		ResponseFormat: &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchema{Name: "response", Schema: schema},
		},
	})
	if err != nil {
		return nil, err
	}

	raw := cr.Choices[0].Message.Content
	parsed, ok := ParseStructured(raw)
	if !ok {
		c.logger.Warn("Structured response was not valid JSON, falling back to raw text",
			zap.Int("length", len(raw)))
	}
	return parsed, nil
}

// ParseStructured decodes a JSON object reply, tolerating a surrounding
// markdown code fence. On failure it returns {"text": raw} and false.
func ParseStructured(raw string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil || out == nil {
		return map[string]any{"text": raw}, false
	}
	return out, true
}
