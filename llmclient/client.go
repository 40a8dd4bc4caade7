package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"multimodal-rag/config"
	apperrors "multimodal-rag/errors"
	"multimodal-rag/web/types"

	"go.uber.org/zap"
)

// ErrContextWindowExceeded is returned when the model reports the prompt
// exceeds the available context size.
var ErrContextWindowExceeded = errors.New("context window exceeded")

type chatRequest struct {
	Model          string               `json:"model,omitempty"`
	Messages       []types.AgentMessage `json:"messages"`
	Stream         bool                 `json:"stream"`
	Temperature    *float64             `json:"temperature,omitempty"` // Per-request temperature override
	Tools          []toolSpec           `json:"tools,omitempty"`
	ToolChoice     string               `json:"tool_choice,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role      string     `json:"role"`
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
	keys       *keyRing
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LLMRequestTimeout},
		logger:     logger,
		keys:       newKeyRing(cfg.LLMAPIKeys),
	}
}

// Chat performs a non-streaming chat completion call.
// temperature is optional; pass nil to use server default.
func (c *Client) Chat(ctx context.Context, host string, messages []types.AgentMessage, temperature *float64) (string, error) {
	cr, err := c.complete(ctx, host, chatRequest{
		Model:       c.cfg.LLMModel,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return cr.Choices[0].Message.Content, nil
}

func (c *Client) complete(ctx context.Context, host string, reqBody chatRequest) (*chatResponse, error) {
	bodyBytes, err := c.post(ctx, host, "/v1/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices from llm server", apperrors.ErrLLMCommunication)
	}
	return &cr, nil
}

// post sends payload to host+path. Rate-limited responses switch to the next
// API key; 5xx responses and transport errors back off and retry.
func (c *Client) post(ctx context.Context, host, path string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(host, "/") + path
	var lastErr error
	keysTried := 1

	// attempt counts backoff rounds; switching to an untried key is free so
	// every key gets a chance regardless of MaxRetries.
	attempt := 0
	for attempt < c.cfg.MaxRetries {
		lastAttempt := attempt == c.cfg.MaxRetries-1
		key := c.keys.Current()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Do not retry on context cancellation/deadline
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if !lastAttempt {
				if err := c.backoffSleep(ctx, attempt, 0); err != nil {
					return nil, err
				}
			}
			attempt++
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			attempt++
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil

		case isRateLimited(resp.StatusCode, body):
			lastErr = fmt.Errorf("%w: %s", apperrors.ErrRateLimited, truncate(string(body), 200))
			if keysTried < c.keys.Len() {
				next := c.keys.Rotate(key)
				keysTried++
				c.logger.Warn("API key rate limited, switching to next key",
					zap.Int("key_index", next),
					zap.Int("keys", c.keys.Len()))
				continue
			}
			// Every key is exhausted; wait for the server-suggested delay.
			keysTried = 1
			c.keys.Rotate(key)
			c.logger.Warn("All API keys rate limited, backing off",
				zap.Int("attempt", attempt+1))
			if !lastAttempt {
				if err := c.backoffSleep(ctx, attempt, retryAfter(resp.Header, body)); err != nil {
					return nil, err
				}
			}
			attempt++

		case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode >= 500:
			// Model loading or transient server failure; retry with backoff
			lastErr = fmt.Errorf("llm server status %s: %s", resp.Status, truncate(string(body), 200))
			c.logger.Warn("LLM service unavailable, retrying",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			if !lastAttempt {
				if err := c.backoffSleep(ctx, attempt, 0); err != nil {
					return nil, err
				}
			}
			attempt++

		default:
			if strings.Contains(string(body), "exceeds the available context size") {
				return nil, ErrContextWindowExceeded
			}
			return nil, fmt.Errorf("%w: llm server status %s: %s", apperrors.ErrLLMCommunication, resp.Status, string(body))
		}
	}

	if lastErr == nil {
		lastErr = apperrors.ErrServiceUnavailable
	}
	if errors.Is(lastErr, apperrors.ErrRateLimited) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: no successful response from %s: %w", apperrors.ErrLLMCommunication, url, lastErr)
}

// backoffSleep waits for an exponential backoff with jitter, or for hint when
// the server suggested a longer delay. It returns early with the context error.
func (c *Client) backoffSleep(ctx context.Context, attempt int, hint time.Duration) error {
	base := c.cfg.RetryDelaySeconds
	if base <= 0 {
		base = time.Second
	}
	d := base * time.Duration(1<<attempt)
	if hint > d {
		d = hint
	}
	maxWait := c.cfg.LLMBackoffMaxSeconds
	if maxWait > 0 && d > maxWait {
		d = maxWait
	}
	jitterRatio := c.cfg.LLMBackoffJitterRatio
	if jitterRatio < 0 || jitterRatio > 1 {
		jitterRatio = 0.1
	}
	jitter := time.Duration(float64(d) * jitterRatio)
	d = d - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter+1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
