// Package codec provides the pluggable wire-dialect layer.
//
// A Codec turns Request/Response envelopes into bytes and back for one
// protocol dialect. Dialects register themselves by name at init time and
// are looked up with Get, so dialect selection is a configuration decision
// rather than a code change.
//
// Built-in dialects:
//
//	xmlrpc   - XML-RPC (default)
//	soap     - SOAP 1.1, simplified value-mapping subset
//	jsonrpc  - "Simple RPC": JSON-RPC 2.0 envelopes
package codec

import (
	"sync"

	"xrpc/message"
)

// Dialect names for the built-in codecs.
const (
	DialectXMLRPC  = "xmlrpc"
	DialectSOAP    = "soap"
	DialectJSONRPC = "jsonrpc"
)

// DefaultDialect is used when no dialect is configured.
const DefaultDialect = DialectXMLRPC

// Options is the protocol-encoding option surface shared by client and
// server. The zero value means: default dialect, utf-8, compact output,
// markup-only escaping.
type Options struct {
	Dialect        string // Codec name; "" means DefaultDialect
	Encoding       string // Declared character encoding; "" means utf-8
	Indent         bool   // Pretty-print envelopes
	EscapeNonASCII bool   // Escape non-ASCII runes as numeric character references
}

// Codec encodes and decodes procedure-call envelopes for one dialect.
// DecodeResponse returns a *message.Fault as an ordinary value when the
// peer answered with a fault; only malformed payloads produce errors.
type Codec interface {
	ContentType() string
	EncodeRequest(req *message.Request, opts Options) ([]byte, error)
	DecodeRequest(data []byte) (*message.Request, error)
	EncodeResponse(resp *message.Response, opts Options) ([]byte, error)
	DecodeResponse(data []byte) (any, error)
}

var (
	codecsMu sync.RWMutex
	codecs   = map[string]Codec{}
)

// Register makes a codec available under the given dialect name.
// Registering an existing name overwrites, which lets applications swap a
// built-in dialect for their own implementation.
func Register(name string, c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[name] = c
}

// Get returns the codec for a dialect name. An unknown name fails with a
// CodeCodecUnavailable fault so the condition is reportable over the wire.
func Get(name string) (Codec, error) {
	if name == "" {
		name = DefaultDialect
	}
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	c, ok := codecs[name]
	if !ok {
		return nil, message.Faultf(message.CodeCodecUnavailable, "no codec registered for dialect %q", name)
	}
	return c, nil
}

// Available returns the registered dialect names.
func Available() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	return names
}
