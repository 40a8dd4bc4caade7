package handlers

import (
	"context"
	"errors"
	"net/http"

	apperrors "multimodal-rag/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Request body caps. Chat bodies carry one message of at most
// services.MaxMessageLength runes; exports may embed base64 images.
const (
	maxChatBodyBytes   int64 = 64 << 10
	maxExportBodyBytes int64 = 64 << 20
)

// limitBody caps how much of the request body binding may read.
func limitBody(c *gin.Context, n int64) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
}

// bodyTooLarge reports whether err came from reading past limitBody's cap.
func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// respondWithBindError answers a failed bind with 413 for oversized bodies
// and 400 otherwise.
func respondWithBindError(c *gin.Context, err error, userMessage string) {
	if bodyTooLarge(err) {
		respondWithClientError(c, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	respondWithClientError(c, http.StatusBadRequest, userMessage)
}

// respondWithError logs the technical error and returns a user-friendly message
func respondWithError(c *gin.Context, statusCode int, technicalError error, userMessage string, logger *zap.Logger, fields ...zap.Field) {
	if logger != nil {
		fields = append(fields, zap.Error(technicalError))
		logger.Error("Request failed", fields...)
	}

	c.JSON(statusCode, gin.H{"error": userMessage})
}

// respondWithClientError returns a client error (no logging needed for validation errors)
func respondWithClientError(c *gin.Context, statusCode int, userMessage string) {
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// statusFor maps an error to the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case apperrors.IsInvalidInput(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsRateLimited(err):
		return http.StatusTooManyRequests
	case apperrors.IsServiceUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError picks the status from err. Client errors carry err's
// message; server errors are logged and answered with userMessage.
func respondWithAppError(c *gin.Context, err error, userMessage string, logger *zap.Logger, fields ...zap.Field) {
	status := statusFor(err)
	if status < http.StatusInternalServerError && status != 499 {
		respondWithClientError(c, status, err.Error())
		return
	}
	respondWithError(c, status, err, userMessage, logger, fields...)
}
