package middleware

import (
	"context"
	"time"

	"xrpc/message"
)

// Timeout bounds each dispatched call. Handlers that overrun keep running
// in their goroutine, but the caller gets a fault immediately.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.Failed(message.Faultf(message.CodeInternal, "call %s timed out", req.Method))
			}
		}
	}
}
