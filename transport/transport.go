// Package transport implements the opaque HTTP POST collaborator.
//
// The call engine hands a transport an encoded envelope and gets back the
// peer's encoded envelope; everything HTTP-specific (timeouts, retries,
// connection handling) lives here and is invisible above this boundary.
package transport

import (
	"context"
	"fmt"

	"xrpc/message"
)

// Transport posts one opaque request payload and returns the opaque
// response payload. Implementations block until the round trip completes
// or ctx is done.
type Transport interface {
	Post(ctx context.Context, url, contentType string, body []byte) ([]byte, error)
}

// Error wraps a connectivity failure so callers can test for the transport
// fault kind without caring which HTTP-level condition triggered it.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: POST %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fault converts the transport failure into its protocol fault record.
func (e *Error) Fault() *message.Fault {
	return message.Faultf(message.CodeTransport, "endpoint %s unreachable: %v", e.URL, e.Err)
}
