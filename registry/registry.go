// Package registry maps namespace-qualified procedure names to invocable
// targets and their metadata.
//
// Registration is explicit: the embedding application supplies capability
// descriptors (name, handler, help text) instead of having the runtime
// reflect over arbitrary objects. Metadata extraction therefore happens at
// build time, and the registry never needs reflection.
//
// The registry is written during setup and read-only during dispatch, so
// dispatch needs no locking.
package registry

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"xrpc/message"
)

// Handler is one invocable procedure target. It receives the decoded
// positional parameters and returns a result value or an error; an error
// that is a *message.Fault keeps its code, anything else becomes an
// application fault.
type Handler func(ctx context.Context, params []any) (any, error)

// Method is a registration-time capability descriptor.
type Method struct {
	Name      string   // Unqualified or dotted name; namespace prefixes come from Register keys
	Help      string   // One-line description, surfaced through introspection
	Signature []string // Type names, return type first; empty means undeclared
	Do        Handler
}

// Entry is one row of the introspection manifest.
type Entry struct {
	Name      string   `json:"name"`
	Help      string   `json:"help"`
	Signature []string `json:"signature,omitempty"`
}

// Registry holds the procedure table.
type Registry struct {
	methods map[string]Method
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{methods: make(map[string]Method)}
}

// Register accepts a single service or a keyed collection of services.
//
// Supported shapes:
//
//	Method / *Method          - one procedure
//	[]Method                  - several procedures
//	map[string]any            - keyed collection: a non-numeric key becomes
//	                            the namespace prefix ("key.") for every
//	                            procedure of that value; a numeric key adds
//	                            the value's procedures unprefixed
//
// Any other shape fails with an unknown-service-type fault. Registering an
// existing name overwrites silently. Names starting with "_" are private
// and skipped.
func (r *Registry) Register(service any) error {
	return r.register("", service)
}

func (r *Registry) register(prefix string, service any) error {
	switch svc := service.(type) {
	case Method:
		r.add(prefix, svc)
		return nil
	case *Method:
		r.add(prefix, *svc)
		return nil
	case []Method:
		for _, m := range svc {
			r.add(prefix, m)
		}
		return nil
	case map[string]any:
		// Deterministic registration order so overwrite behavior is stable.
		keys := make([]string, 0, len(svc))
		for k := range svc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			childPrefix := prefix
			if !isNumeric(k) {
				childPrefix = prefix + k + "."
			}
			if err := r.register(childPrefix, svc[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		return message.Faultf(message.CodeUnknownService, "cannot register service of type %T", service)
	}
}

func (r *Registry) add(prefix string, m Method) {
	if m.Name == "" || strings.HasPrefix(m.Name, "_") || m.Do == nil {
		return
	}
	m.Name = prefix + m.Name
	r.methods[m.Name] = m
}

// Lookup returns the method registered under the qualified name.
func (r *Registry) Lookup(name string) (Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manifest builds the machine-readable capability manifest: one entry per
// registered operation, sorted by name.
func (r *Registry) Manifest() []Entry {
	entries := make([]Entry, 0, len(r.methods))
	for _, name := range r.Names() {
		m := r.methods[name]
		entries = append(entries, Entry{Name: name, Help: m.Help, Signature: m.Signature})
	}
	return entries
}

// Snapshot copies the current procedure table. The server hands snapshots
// to the documentation collaborator so registrations made after a run are
// invisible to it until the next run.
func (r *Registry) Snapshot() *Registry {
	copied := New()
	for name, m := range r.methods {
		copied.methods[name] = m
	}
	return copied
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
