// Package middleware implements the server-side dispatch middleware chain.
//
// A Middleware wraps the dispatch handler in an onion model:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	Execution order: A.before → B.before → C.before → handler → C.after → B.after → A.after
//
// Middlewares see one decoded Request per invocation - inside a batch they
// run once per sub-call, so rate limits and logging count individual
// procedures, not envelopes.
package middleware

import (
	"context"

	"xrpc/message"
)

// HandlerFunc processes one decoded procedure call.
type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. Wrapping happens in reverse order so
// the first middleware in the list is the outermost layer.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
