package web

import (
	"context"
	"time"

	"multimodal-rag/web/middleware"
	"multimodal-rag/web/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CleanupService forgets chat sessions that have been idle for too long.
// The LRU caches bound memory; this releases sessions before they age out.
type CleanupService struct {
	chat    *services.ChatService
	limiter *middleware.SessionRateLimiter
	logger  *zap.Logger
}

// NewCleanupService creates a new cleanup service instance
func NewCleanupService(chat *services.ChatService, limiter *middleware.SessionRateLimiter, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		chat:    chat,
		limiter: limiter,
		logger:  logger,
	}
}

// CleanupIdleSessions resets sessions idle for longer than maxAge and returns
// how many were removed.
func (cs *CleanupService) CleanupIdleSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	idle := cs.chat.IdleSessions(cutoff)
	if len(idle) == 0 {
		cs.logger.Debug("No idle sessions found")
		return 0
	}

	for _, sessionID := range idle {
		cs.chat.Reset(sessionID)
		if cs.limiter != nil {
			if id, err := uuid.Parse(sessionID); err == nil {
				cs.limiter.Forget(id)
			}
		}
	}

	cs.logger.Info("Idle session cleanup completed",
		zap.Int("sessions_removed", len(idle)),
		zap.Duration("max_age", maxAge))
	return len(idle)
}

// Run cleans up idle sessions every interval until ctx is cancelled.
func (cs *CleanupService) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.CleanupIdleSessions(maxAge)
		}
	}
}
