package middleware

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"xrpc/message"
)

// Logging logs every dispatched procedure with a per-call correlation id,
// its duration, and its fault (if any).
func Logging() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			id := uuid.NewString()
			start := time.Now()
			resp := next(ctx, req)
			log.Printf("call=%s method=%s duration=%s", id, req.Method, time.Since(start))
			if resp.Fault != nil {
				log.Printf("call=%s fault=%d %s", id, resp.Fault.Code, resp.Fault.String)
			}
			return resp
		}
	}
}
