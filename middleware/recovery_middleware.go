package middleware

import (
	"context"
	"log"

	"xrpc/message"
)

// Recovery converts a handler panic into an internal fault. Inside a batch
// this keeps one panicking sub-call from taking down its siblings.
func Recovery() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp *message.Response) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in %s: %v", req.Method, r)
					resp = message.Failed(message.Faultf(message.CodeInternal, "internal error in %s", req.Method))
				}
			}()
			return next(ctx, req)
		}
	}
}
