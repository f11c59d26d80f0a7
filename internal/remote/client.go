// Package remote posts search text to the generation and execution peers.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/retailsearch/retailsearch/internal/observability"
)

const (
	LegGenerate = "generate"
	LegExecute  = "execute"

	maxResponseBytes = 16 << 20
)

var ErrRemoteCallFailed = errors.New("remote call failed")

// CallError describes the last failed attempt. Status is zero for transport
// failures.
type CallError struct {
	Endpoint string
	Status   int
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote call to %s failed after %d attempt(s): status %d: %v", e.Endpoint, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("remote call to %s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func (e *CallError) Is(target error) bool {
	return target == ErrRemoteCallFailed
}

type Config struct {
	// Timeout bounds each attempt.
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

type Client struct {
	timeout      time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

type searchPayload struct {
	Search string `json:"search"`
}

func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	backoff := cfg.RetryBackoff
	if backoff < 0 {
		backoff = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		timeout:      timeout,
		maxAttempts:  maxAttempts,
		retryBackoff: backoff,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// Post sends {"search": text} to endpoint and returns the response body.
func (c *Client) Post(ctx context.Context, endpoint, search string) (string, error) {
	return c.PostLeg(ctx, "peer", endpoint, search)
}

// PostLeg is Post with the leg name used for metrics and logs.
func (c *Client) PostLeg(ctx context.Context, leg, endpoint, search string) (string, error) {
	start := time.Now()
	body, err := c.post(ctx, leg, endpoint, search)
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	observability.ObserveRemoteCall(leg, outcome, time.Since(start))
	return body, err
}

func (c *Client) post(ctx context.Context, leg, endpoint, search string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", &CallError{Endpoint: endpoint, Err: errors.New("endpoint is required")}
	}
	payload, err := json.Marshal(searchPayload{Search: search})
	if err != nil {
		return "", &CallError{Endpoint: endpoint, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	logger := observability.WithContext(ctx, c.logger)
	var lastErr *CallError
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, status, err := c.attempt(ctx, endpoint, payload)
		if err == nil {
			return body, nil
		}
		lastErr = &CallError{Endpoint: endpoint, Status: status, Attempts: attempt, Err: err}
		if !retryable(ctx, status) || attempt == c.maxAttempts {
			break
		}

		delay := c.retryBackoff * time.Duration(1<<(attempt-1))
		logger.WarnContext(ctx, "remote call failed, retrying",
			slog.String("leg", leg),
			slog.Int("attempt", attempt),
			slog.Int("status", status),
			slog.Duration("backoff", delay),
			slog.Any("error", err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr.Err = fmt.Errorf("%w (retry cancelled: %w)", lastErr.Err, ctx.Err())
			return "", lastErr
		}
	}
	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, endpoint string, payload []byte) (string, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID := observability.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set(observability.TraceIDHeader, traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resp.StatusCode, fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body)))
	}
	return string(body), resp.StatusCode, nil
}

// retryable reports whether another attempt may help: transport failures and
// 5xx responses, as long as the caller is still waiting.
func retryable(ctx context.Context, status int) bool {
	if ctx.Err() != nil {
		return false
	}
	return status == 0 || status >= 500
}
