package agent

import (
	"strings"

	"multimodal-rag/web/types"
)

// conversationLines renders user and assistant messages as "User: ..." and
// "Assistant: ..." lines. Tool calls and tool results are left out.
func conversationLines(msgs []Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.ToolCall != nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case types.RoleUser:
			lines = append(lines, "User: "+m.Content)
		case types.RoleAssistant:
			lines = append(lines, "Assistant: "+m.Content)
		}
	}
	return lines
}

// recentContext returns the last n conversation lines before the current
// user message.
func recentContext(msgs []Message, n int) string {
	if len(msgs) > 0 && msgs[len(msgs)-1].Role == types.RoleUser {
		msgs = msgs[:len(msgs)-1]
	}
	lines := conversationLines(msgs)
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}

// fullHistory renders every conversation line of the turn.
func fullHistory(msgs []Message) string {
	return strings.Join(conversationLines(msgs), "\n")
}
