package handlers

import (
	"net/http"

	"multimodal-rag/document"
	"multimodal-rag/web/middleware"
	"multimodal-rag/web/services"
	"multimodal-rag/web/views"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChatHandler struct {
	chat   *services.ChatService
	logger *zap.Logger
}

type ChatRequest struct {
	Message string `json:"message" form:"message"`
}

// ChatResponse is the JSON body of POST /api/chat.
type ChatResponse struct {
	Content         string             `json:"content"`
	HTML            string             `json:"html"`
	ChunkIDsUsed    []string           `json:"chunk_ids_used"`
	RetrievedChunks []document.Chunk   `json:"retrieved_chunks"`
	ChunksUsed      []document.Chunk   `json:"chunks_used"`
	Pictures        []document.Picture `json:"pictures"`
	Metadata        map[string]any     `json:"metadata"`
}

func NewChatHandler(chat *services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

// Index renders the chat page with the session's history.
func (h *ChatHandler) Index(c *gin.Context) {
	sessionID, _ := middleware.SessionID(c)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := views.Page(h.chat.History(sessionID.String())).Render(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("Failed to render chat page", zap.Error(err))
	}
}

// APIChat answers a JSON chat request.
func (h *ChatHandler) APIChat(c *gin.Context) {
	limitBody(c, maxChatBodyBytes)
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBindError(c, err, "Invalid request")
		return
	}
	sessionID, _ := middleware.SessionID(c)

	result, err := h.chat.Send(c.Request.Context(), sessionID.String(), req.Message)
	if err != nil {
		respondWithAppError(c, err, "Could not process message", h.logger,
			zap.String("session_id", sessionID.String()))
		return
	}

	resp := result.Response
	c.JSON(http.StatusOK, ChatResponse{
		Content:         resp.Content,
		HTML:            result.HTML,
		ChunkIDsUsed:    resp.ChunkIDsUsed,
		RetrievedChunks: withoutVectors(resp.RetrievedChunks),
		ChunksUsed:      withoutVectors(resp.ChunksUsed),
		Pictures:        resp.Pictures,
		Metadata:        resp.Metadata,
	})
}

// SendMessage answers a form post with the rendered exchange fragment.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	limitBody(c, maxChatBodyBytes)
	var req ChatRequest
	if err := c.ShouldBind(&req); err != nil {
		status, msg := http.StatusBadRequest, "Invalid request"
		if bodyTooLarge(err) {
			status, msg = http.StatusRequestEntityTooLarge, "Message too large"
		}
		c.Status(status)
		_ = views.ErrorMessage(msg).Render(c.Request.Context(), c.Writer)
		return
	}
	sessionID, _ := middleware.SessionID(c)

	result, err := h.chat.Send(c.Request.Context(), sessionID.String(), req.Message)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Chat message failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
		c.Status(status)
		msg := "Could not process message"
		if status < http.StatusInternalServerError {
			msg = err.Error()
		}
		_ = views.ErrorMessage(msg).Render(c.Request.Context(), c.Writer)
		return
	}

	component := views.Exchange(req.Message, result.HTML, citedIDs(result), result.Response.Pictures)
	if err := component.Render(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("Failed to render chat fragment", zap.Error(err))
	}
}

// GetHistory returns the session's recorded messages.
func (h *ChatHandler) GetHistory(c *gin.Context) {
	sessionID, _ := middleware.SessionID(c)
	c.JSON(http.StatusOK, gin.H{"messages": h.chat.History(sessionID.String())})
}

// ClearHistory forgets the session's conversation and cited chunks.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	sessionID, _ := middleware.SessionID(c)
	h.chat.Reset(sessionID.String())
	c.Status(http.StatusNoContent)
}

// GetChunk returns the preview of a chunk shown in this session.
func (h *ChatHandler) GetChunk(c *gin.Context) {
	sessionID, _ := middleware.SessionID(c)
	chunk, preview, err := h.chat.Chunk(sessionID.String(), c.Param("chunkID"))
	if err != nil {
		respondWithAppError(c, err, "Could not load chunk", h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunk": chunk, "preview": preview})
}

// citedIDs lists the stored ids the answer cited, or every stored id when the
// answer cited none it could resolve.
func citedIDs(result *services.ChatResult) []string {
	known := make(map[string]bool, len(result.ChunkIDs))
	for _, id := range result.ChunkIDs {
		known[id] = true
	}
	var cited []string
	for _, id := range result.Response.ChunkIDsUsed {
		if known[id] {
			cited = append(cited, id)
		}
	}
	if len(cited) == 0 {
		return result.ChunkIDs
	}
	return cited
}

// withoutVectors drops embeddings from chunks before they are serialized.
func withoutVectors(chunks []document.Chunk) []document.Chunk {
	out := make([]document.Chunk, len(chunks))
	for i, c := range chunks {
		c.Vector = nil
		out[i] = c
	}
	return out
}
