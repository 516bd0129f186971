package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// Loopback posts envelopes straight into an http.Handler in the same
// process, skipping the network. Useful for tests and for embedding a
// server and its client in one binary.
type Loopback struct {
	Handler http.Handler
}

// NewLoopback wraps a handler (typically a *server.Server).
func NewLoopback(h http.Handler) *Loopback {
	return &Loopback{Handler: h}
}

func (l *Loopback) Post(ctx context.Context, url, contentType string, body []byte) ([]byte, error) {
	if l.Handler == nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("loopback transport has no handler")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	rec := &memoryResponse{status: http.StatusOK, header: http.Header{}}
	l.Handler.ServeHTTP(rec, req)
	if rec.status < 200 || rec.status > 299 {
		return nil, &Error{URL: url, Err: fmt.Errorf("received status code: %d", rec.status)}
	}
	return rec.body.Bytes(), nil
}

// memoryResponse is the minimal in-process http.ResponseWriter.
type memoryResponse struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func (m *memoryResponse) Header() http.Header { return m.header }

func (m *memoryResponse) WriteHeader(status int) { m.status = status }

func (m *memoryResponse) Write(p []byte) (int, error) { return m.body.Write(p) }
