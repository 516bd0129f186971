package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"xrpc/message"
)

// RateLimit rejects calls beyond r calls/second (token bucket with the
// given burst). Rejections surface as internal faults so batch sub-calls
// stay positionally isolated.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.Failed(message.Faultf(message.CodeInternal, "rate limit exceeded"))
			}
			return next(ctx, req)
		}
	}
}
