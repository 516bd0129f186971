package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	retryBaseWait  = 100 * time.Millisecond
)

// HTTPTransport posts envelopes over HTTP. Each attempt uses a fresh
// http.Client with keep-alives disabled, so no connection state survives
// between calls.
type HTTPTransport struct {
	Timeout   time.Duration // Per-attempt deadline; 0 means defaultTimeout
	UserAgent string
}

// NewHTTPTransport creates a transport with the given per-attempt timeout.
// Zero selects the default.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{Timeout: timeout}
}

func (t *HTTPTransport) client() *http.Client {
	timeout := t.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// Post sends the payload and returns the response body. Transient
// connection errors are retried with exponential backoff; anything else
// fails on the first attempt.
func (t *HTTPTransport) Post(ctx context.Context, url, contentType string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, &Error{URL: url, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		// The body buffer is consumed per attempt, so build a fresh request.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, &Error{URL: url, Err: err}
		}
		req.Header.Set("Content-Type", contentType)
		if t.UserAgent != "" {
			req.Header.Set("User-Agent", t.UserAgent)
		}

		resp, err := t.client().Do(req)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				continue
			}
			return nil, &Error{URL: url, Err: err}
		}

		data, err := io.ReadAll(resp.Body)
		drainAndClose(resp.Body)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &Error{URL: url, Err: fmt.Errorf("received status code: %d", resp.StatusCode)}
		}
		return data, nil
	}
	return nil, &Error{URL: url, Err: fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)}
}

// drainAndClose reads a body to completion before closing it, so the
// connection can be torn down cleanly even on error paths.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// isRetryable reports whether an error looks like a transient connection
// failure worth another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}
