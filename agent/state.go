package agent

import (
	"multimodal-rag/document"
	"multimodal-rag/web/types"
)

// Message is one entry of the working conversation inside a turn. Assistant
// messages that request a tool carry ToolCall; tool results use RoleTool.
type Message struct {
	Role       string
	Content    string
	ToolCall   *ToolCall
	ToolCallID string
}

// ToolCall records a retrieve_documents request emitted by the decide node.
type ToolCall struct {
	ID    string
	Name  string
	Query string
}

// State is the mutable record of one ProcessMessage call.
type State struct {
	Messages        []Message
	RetrievedChunks []document.Chunk
	ChunkIDsUsed    []string
	SearchQuery     string
	Rewrites        int

	// bookkeeping for the response metadata
	steps        int
	retrievals   int
	answered     bool
	limitReached bool
}

// newState seeds the turn with the last window history messages and the new
// user message. history is copied, never aliased.
func newState(history []types.ChatMessage, message string, window int) *State {
	if window < 0 {
		window = 0
	}
	start := max(len(history)-window, 0)
	recent := history[start:]

	msgs := make([]Message, 0, len(recent)+1)
	for _, h := range recent {
		switch h.Role {
		case types.RoleUser, types.RoleAssistant:
			msgs = append(msgs, Message{Role: h.Role, Content: h.Content})
		}
	}
	msgs = append(msgs, Message{Role: types.RoleUser, Content: message})

	return &State{Messages: msgs}
}

func (s *State) append(m Message) {
	s.Messages = append(s.Messages, m)
}

// latestUserMessage returns the content of the newest user message.
func (s *State) latestUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == types.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// latestToolResult returns the content of the newest tool message.
func (s *State) latestToolResult() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == types.RoleTool {
			return s.Messages[i].Content
		}
	}
	return ""
}

// finalMessage returns the last message when it is an assistant reply
// without a tool call, i.e. a message the caller can be shown.
func (s *State) finalMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != types.RoleAssistant || last.ToolCall != nil {
		return Message{}, false
	}
	return last, true
}
