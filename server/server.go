// Package server implements the method registry dispatcher as an
// http.Handler.
//
// Request processing pipeline:
//
//	HTTP POST body → Codec.DecodeRequest
//	  → system.multicall? → per-element single dispatch (fault isolation)
//	  → Middleware Chain → dispatch (registry lookup → handler invoke)
//	  → Codec.EncodeResponse → HTTP response
//
// Batch envelopes are intercepted here rather than delegated to a
// registered procedure: every sub-call runs through the same middleware
// chain and registry lookup as a single call, and a failing sub-call
// becomes a fault record at its position instead of aborting the batch.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"

	"xrpc/codec"
	"xrpc/message"
	"xrpc/middleware"
	"xrpc/registry"
)

const systemPrefix = "system."

// Server registers procedures and dispatches incoming envelopes.
type Server struct {
	registry    *registry.Registry
	codec       codec.Codec
	opts        codec.Options
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	builtins    map[string]registry.Handler
	documentor  Documentor
	snapshot    []registry.Entry // Manifest snapshot taken at run time, feeds the documentor
	runOnce     sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithOptions sets the protocol-encoding options (dialect, encoding,
// verbosity, escaping). The dialect selects the codec.
func WithOptions(opts codec.Options) Option {
	return func(s *Server) { s.opts = opts }
}

// WithDialect selects the wire dialect by name.
func WithDialect(name string) Option {
	return func(s *Server) { s.opts.Dialect = name }
}

// WithDocumentor overrides the documentation collaborator that handles
// requests with no payload.
func WithDocumentor(d Documentor) Option {
	return func(s *Server) { s.documentor = d }
}

// WithoutDocumentor disables documentation; an empty request then yields a
// no-request-payload fault.
func WithoutDocumentor() Option {
	return func(s *Server) { s.documentor = nil }
}

// NewServer creates a server. An unknown dialect fails here, at
// construction, because a server without its codec can never answer.
func NewServer(options ...Option) (*Server, error) {
	s := &Server{
		registry:   registry.New(),
		documentor: &TextDocumentor{},
	}
	for _, opt := range options {
		opt(s)
	}
	c, err := codec.Get(s.opts.Dialect)
	if err != nil {
		return nil, fmt.Errorf("server configuration: %w", err)
	}
	s.codec = c
	return s, nil
}

// Register registers a service with the method registry. See
// registry.Register for the accepted shapes.
func (s *Server) Register(service any) error {
	return s.registry.Register(service)
}

// Use appends a middleware. Middlewares apply in the order they are added
// and wrap every dispatched call, including batch sub-calls.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Manifest returns the live introspection manifest.
func (s *Server) Manifest() []registry.Entry {
	return s.registry.Manifest()
}

// run builds the middleware chain and takes the documentation snapshot.
// Registrations after this point still dispatch (the registry is shared by
// reference) but are invisible to the documentor until the next run.
func (s *Server) run() {
	s.builtins = map[string]registry.Handler{
		systemPrefix + "listMethods":     s.listMethods,
		systemPrefix + "methodHelp":      s.methodHelp,
		systemPrefix + "methodSignature": s.methodSignature,
		systemPrefix + "describe":        s.describe,
		systemPrefix + "getCapabilities": s.getCapabilities,
	}
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	s.snapshot = s.registry.Manifest()
}

// ServeHTTP handles one envelope per request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.runOnce.Do(s.run)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		if s.documentor != nil {
			s.documentor.ServeDocs(w, r, s.snapshot)
			return
		}
		s.writeResponse(w, message.Failed(message.Faultf(message.CodeNoRequestPayload, "no request payload")))
		return
	}

	req, err := s.codec.DecodeRequest(body)
	if err != nil {
		s.writeResponse(w, message.Failed(message.Faultf(message.CodeInternal, "malformed request: %v", err)))
		return
	}

	var resp *message.Response
	if message.IsMultiCall(req.Method) {
		resp = s.dispatchBatch(r.Context(), req.Params)
	} else {
		resp = s.handler(r.Context(), req)
	}
	s.writeResponse(w, resp)
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *message.Response) {
	data, err := s.codec.EncodeResponse(resp, s.opts)
	if err != nil {
		log.Printf("failed to encode response: %v", err)
		http.Error(w, "response encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", s.codec.ContentType())
	if _, err := w.Write(data); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// dispatch is the innermost handler: registry lookup, builtin fallback,
// handler invocation. Wrapped by the middleware chain.
func (s *Server) dispatch(ctx context.Context, req *message.Request) *message.Response {
	if m, ok := s.registry.Lookup(req.Method); ok {
		return s.invoke(ctx, m.Do, req)
	}
	// Unregistered system.* names fall through to the runtime's own
	// built-ins; they are provided here, not user-registered.
	if strings.HasPrefix(req.Method, systemPrefix) {
		if h, ok := s.builtins[req.Method]; ok {
			return s.invoke(ctx, h, req)
		}
	}
	return message.Failed(message.NotFoundFault(req.Method))
}

// invoke runs one handler with panic containment, so a crashing procedure
// inside a batch cannot abort its siblings.
func (s *Server) invoke(ctx context.Context, h registry.Handler, req *message.Request) (resp *message.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic in %s: %v", req.Method, r)
			resp = message.Failed(message.Faultf(message.CodeInternal, "internal error in %s", req.Method))
		}
	}()
	result, err := h(ctx, req.Params)
	if err != nil {
		if f, ok := err.(*message.Fault); ok {
			return message.Failed(f)
		}
		return message.Failed(message.Faultf(message.CodeInternal, "%v", err))
	}
	return message.Ok(result)
}

// dispatchBatch decodes the batch envelope and runs each sub-call through
// single dispatch. Per the protocol convention a successful sub-result is
// wrapped in a one-element array; a failed one is the fault struct itself.
func (s *Server) dispatchBatch(ctx context.Context, params []any) *message.Response {
	calls, fault := decodeBatch(params)
	if fault != nil {
		return message.Failed(fault)
	}
	results := make([]any, len(calls))
	for i, call := range calls {
		resp := s.handler(ctx, &message.Request{Method: call.MethodName, Params: call.Params})
		if resp.Fault != nil {
			results[i] = resp.Fault
		} else {
			results[i] = []any{resp.Value}
		}
	}
	return message.Ok(results)
}

// decodeBatch normalizes the multicall parameter list into sub-calls. The
// whole batch is rejected before any sub-call runs when an element nests
// another multicall or has no recognizable shape.
func decodeBatch(params []any) ([]message.BatchCall, *message.Fault) {
	// The wire convention is a single array parameter; a flat variadic list
	// of call structs is accepted too.
	elements := params
	if len(params) == 1 {
		if list, ok := params[0].([]any); ok {
			elements = list
		}
	}
	calls := make([]message.BatchCall, 0, len(elements))
	for i, elem := range elements {
		call, ok := batchCall(elem)
		if !ok {
			return nil, message.Faultf(message.CodeInvalidArgument, "batch element %d is not a call descriptor", i)
		}
		if message.IsMultiCall(call.MethodName) {
			return nil, message.Faultf(message.CodeRecursiveBatch, "recursive %s forbidden", message.MultiCallMethod)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func batchCall(elem any) (message.BatchCall, bool) {
	switch v := elem.(type) {
	case message.BatchCall:
		return v, true
	case *message.BatchCall:
		return *v, true
	case map[string]any:
		name, ok := v["methodName"].(string)
		if !ok || name == "" {
			return message.BatchCall{}, false
		}
		params, _ := v["params"].([]any)
		return message.BatchCall{MethodName: name, Params: params}, true
	default:
		return message.BatchCall{}, false
	}
}

// ---- built-ins ----

func (s *Server) listMethods(context.Context, []any) (any, error) {
	sorted := append(s.registry.Names(), message.MultiCallMethod)
	for builtin := range s.builtins {
		sorted = append(sorted, builtin)
	}
	sort.Strings(sorted)
	names := make([]any, 0, len(sorted))
	for _, name := range sorted {
		names = append(names, name)
	}
	return names, nil
}

func (s *Server) methodHelp(_ context.Context, params []any) (any, error) {
	if len(params) != 1 {
		return nil, message.Faultf(message.CodeInvalidArgument, "system.methodHelp takes one method name")
	}
	name, ok := params[0].(string)
	if !ok {
		return nil, message.Faultf(message.CodeInvalidArgument, "system.methodHelp takes a string")
	}
	if m, found := s.registry.Lookup(name); found {
		return m.Help, nil
	}
	return nil, message.NotFoundFault(name)
}

// methodSignature reports declared signatures, type names with the return
// type first. Undeclared signatures answer "undef", following the
// introspection convention.
func (s *Server) methodSignature(_ context.Context, params []any) (any, error) {
	if len(params) != 1 {
		return nil, message.Faultf(message.CodeInvalidArgument, "system.methodSignature takes one method name")
	}
	name, ok := params[0].(string)
	if !ok {
		return nil, message.Faultf(message.CodeInvalidArgument, "system.methodSignature takes a string")
	}
	m, found := s.registry.Lookup(name)
	if !found {
		return nil, message.NotFoundFault(name)
	}
	if len(m.Signature) == 0 {
		return "undef", nil
	}
	sig := make([]any, 0, len(m.Signature))
	for _, t := range m.Signature {
		sig = append(sig, t)
	}
	return []any{sig}, nil
}

// describe returns the machine-readable capability manifest.
func (s *Server) describe(context.Context, []any) (any, error) {
	methods := []any{}
	for _, entry := range s.registry.Manifest() {
		method := map[string]any{
			"name": entry.Name,
			"help": entry.Help,
		}
		if len(entry.Signature) > 0 {
			sig := make([]any, 0, len(entry.Signature))
			for _, t := range entry.Signature {
				sig = append(sig, t)
			}
			method["signature"] = sig
		}
		methods = append(methods, method)
	}
	return map[string]any{"methods": methods}, nil
}

func (s *Server) getCapabilities(context.Context, []any) (any, error) {
	return map[string]any{
		"system.multicall": map[string]any{
			"specUrl":     "http://www.xmlrpc.com/discuss/msgReader$1208",
			"specVersion": 1,
		},
		"introspect": map[string]any{
			"specUrl":     "http://xmlrpc-c.sourceforge.net/introspection.html",
			"specVersion": 1,
		},
	}, nil
}
