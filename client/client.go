// Package client implements the namespace-proxying RPC client with batched
// multicall support.
//
// Call flow for a single call:
//
//	Namespace.Invoke → Codec.EncodeRequest → Transport.Post
//	  → Codec.DecodeResponse → (auto value decoding) → result or fault
//
// Batch flow:
//
//	client.Namespace("system")            - arms batch scope (depth counter)
//	ns.Invoke("op", args...)                - deferred: returns a *Call
//	system.Invoke("multiCall", calls...)    - enrolls, executes one round trip,
//	                                        binds result i to call i
//
// The batch-scope depth counter lives on the Client and is shared by every
// namespace node spawned from it, so nested namespace traversal during
// batch construction cannot double-count. The whole client assumes
// single-threaded use; the diagnostics buffers in particular are
// overwritten by every call.
package client

import (
	"context"
	"fmt"
	"time"

	"xrpc/codec"
	"xrpc/message"
	"xrpc/transport"
)

// Client is the root of a namespace-proxy tree pointed at one endpoint.
type Client struct {
	baseURL    string
	transport  transport.Transport
	codec      codec.Codec
	opts       codec.Options
	raiseFault bool
	autoDecode bool

	// batchDepth is the session-wide batch-scope counter: one cell per
	// client, shared by reference across all namespace nodes.
	batchDepth int

	lastRequest  []byte
	lastResponse []byte

	root *Namespace
}

// Option configures a Client.
type Option func(*Client)

// WithTransport injects a transport. The default posts over HTTP.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithTimeout configures the default HTTP transport's per-attempt deadline.
// Ignored when a custom transport is injected.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if t, ok := c.transport.(*transport.HTTPTransport); ok {
			t.Timeout = d
		}
	}
}

// WithOptions sets the protocol-encoding options (dialect, encoding,
// verbosity, escaping).
func WithOptions(opts codec.Options) Option {
	return func(c *Client) { c.opts = opts }
}

// WithDialect selects the wire dialect by name.
func WithDialect(name string) Option {
	return func(c *Client) { c.opts.Dialect = name }
}

// ReturnFaults makes remote faults come back as *message.Fault values
// instead of errors, for callers that want to inspect fault records inline.
func ReturnFaults() Option {
	return func(c *Client) { c.raiseFault = false }
}

// WithoutAutoDecode leaves base64 and dateTime values as their wrapper
// types (message.Binary, message.DateTime) instead of converting them to
// []byte and time.Time.
func WithoutAutoDecode() Option {
	return func(c *Client) { c.autoDecode = false }
}

// NewClient creates a client for the endpoint. An unknown dialect fails
// here, at construction: a client without its codec can never encode a
// call.
func NewClient(baseURL string, options ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		transport:  transport.NewHTTPTransport(0),
		raiseFault: true,
		autoDecode: true,
	}
	for _, opt := range options {
		opt(c)
	}
	cd, err := codec.Get(c.opts.Dialect)
	if err != nil {
		return nil, fmt.Errorf("client configuration: %w", err)
	}
	c.codec = cd
	c.root = &Namespace{client: c, children: map[string]*Namespace{}}
	return c, nil
}

// Namespace returns the named child of the root namespace node.
func (c *Client) Namespace(name string) *Namespace {
	return c.root.Child(name)
}

// Call invokes a dotted procedure name in one step, walking the namespace
// tree: Call("a.b.op", x) behaves exactly like Namespace("a").Child("b").
// Invoke("op", x).
func (c *Client) Call(method string, args ...any) (any, error) {
	node, name := c.root.walk(method)
	return node.Invoke(name, args...)
}

// MultiCall executes a batch in one round trip. Arguments follow the batch
// trigger's contract: Call descriptors, descriptor-shaped maps, or a single
// slice of those. Result i corresponds to request i.
func (c *Client) MultiCall(calls ...any) ([]any, error) {
	result, err := c.Namespace("system").Invoke("multiCall", calls...)
	if err != nil {
		return nil, err
	}
	results, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("multicall returned %T, want a result list", result)
	}
	return results, nil
}

// LastRequest returns the raw bytes of the most recent request sent by any
// node of this client. Diagnostic only; not safe under concurrent use.
func (c *Client) LastRequest() []byte { return c.lastRequest }

// LastResponse returns the raw bytes of the most recent response received.
func (c *Client) LastResponse() []byte { return c.lastResponse }

// execute performs one blocking round trip. Timeout and retry policy
// belong to the transport.
func (c *Client) execute(method string, args []any) (any, error) {
	req := &message.Request{Method: method, Params: args}
	body, err := c.codec.EncodeRequest(req, c.opts)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	c.lastRequest = body

	respBody, err := c.transport.Post(context.Background(), c.baseURL, c.codec.ContentType(), body)
	if err != nil {
		return nil, err
	}
	c.lastResponse = respBody

	value, err := c.codec.DecodeResponse(respBody)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if fault, ok := value.(*message.Fault); ok {
		if c.raiseFault {
			return nil, fault
		}
		return fault, nil
	}
	if c.autoDecode {
		return message.AutoDecode(value)
	}
	return value, nil
}
