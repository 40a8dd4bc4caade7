package llmclient

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// keyRing rotates through the configured API keys. An empty ring yields ""
// and requests go out without an Authorization header.
type keyRing struct {
	mu      sync.Mutex
	keys    []string
	current int
}

func newKeyRing(keys []string) *keyRing {
	cp := make([]string, len(keys))
	copy(cp, keys)
	return &keyRing{keys: cp}
}

func (k *keyRing) Len() int {
	return len(k.keys)
}

func (k *keyRing) Current() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return ""
	}
	return k.keys[k.current]
}

// Rotate advances past failed if it is still the current key and returns the
// new index. Concurrent callers that failed on the same key rotate only once.
func (k *keyRing) Rotate(failed string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return 0
	}
	if k.keys[k.current] == failed {
		k.current = (k.current + 1) % len(k.keys)
	}
	return k.current
}

var rateLimitMarkers = []string{"rate limit", "rate_limit", "quota", "resource_exhausted", "too many requests"}

func isRateLimited(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if status < 400 {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var retryDelayPattern = regexp.MustCompile(`(?i)retry(?:[ _-]?delay"?\s*:\s*"?| in |-after:?\s*)(\d+(?:\.\d+)?)s?`)

// retryAfter reads the suggested wait from a Retry-After header or from a
// "retryDelay": "12s" / "retry in 12s" hint in the error body.
func retryAfter(h http.Header, body []byte) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	m := retryDelayPattern.FindSubmatch(body)
	if m == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
