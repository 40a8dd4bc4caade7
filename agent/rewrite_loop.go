package agent

import (
	"go.uber.org/zap"
)

// DefaultMaxRewrites bounds query reformulations per turn.
const DefaultMaxRewrites = 3

// RewriteLoop guards the grade/rewrite cycle so a turn always terminates.
type RewriteLoop struct {
	maxRewrites int
	logger      *zap.Logger
}

// NewRewriteLoop creates a loop guard. A negative limit falls back to the
// default; zero disables rewriting entirely.
func NewRewriteLoop(maxRewrites int, logger *zap.Logger) *RewriteLoop {
	if maxRewrites < 0 {
		maxRewrites = DefaultMaxRewrites
	}
	return &RewriteLoop{
		maxRewrites: maxRewrites,
		logger:      logger,
	}
}

// ShouldRewrite checks whether another rewrite is allowed after done rewrites.
// Returns (shouldRewrite, reason). If shouldRewrite is false, reason explains why.
func (r *RewriteLoop) ShouldRewrite(done int) (bool, string) {
	if done >= r.maxRewrites {
		r.logger.Info("Reached maximum query rewrites",
			zap.Int("max_rewrites", r.maxRewrites))
		return false, "Maximum query rewrites reached."
	}
	return true, ""
}

// RecordRewrite increments the rewrite counter on state.
func (r *RewriteLoop) RecordRewrite(state *State) {
	state.Rewrites++
	r.logger.Debug("Recorded query rewrite",
		zap.Int("rewrites", state.Rewrites),
		zap.Int("max_rewrites", r.maxRewrites))
}

// MaxRewrites returns the configured limit.
func (r *RewriteLoop) MaxRewrites() int {
	return r.maxRewrites
}
