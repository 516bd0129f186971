package client

import (
	"strings"

	"xrpc/message"
)

// BatchNamespace is the reserved namespace segment; entering it arms batch
// scope on the owning client session.
const BatchNamespace = "system"

// Namespace is one node of the client's namespace-proxy tree. Invoking an
// operation on a node qualifies the operation name with the node's dotted
// path. Children are created lazily and cached for the lifetime of the
// client, so repeated access yields the identical node.
type Namespace struct {
	client   *Client
	path     string // "" at the root, "a.b" below
	children map[string]*Namespace
}

// Child returns the named child namespace, creating it on first access.
// Entering the reserved "system" segment increments the session's
// batch-scope counter each time, even when the node itself is cached.
func (n *Namespace) Child(name string) *Namespace {
	if name == BatchNamespace {
		n.client.batchDepth++
	}
	child, ok := n.children[name]
	if !ok {
		child = &Namespace{
			client:   n.client,
			path:     n.qualify(name),
			children: map[string]*Namespace{},
		}
		n.children[name] = child
	}
	return child
}

// Invoke calls the named operation on this node.
//
// Resolution order:
//  1. The batch trigger (system.multiCall) disarms batch scope entirely
//     and executes the batch.
//  2. In batch scope, a call under the system namespace un-arms one level
//     and executes as an ordinary single call: that is how entering
//     "system" without ever triggering the batch falls back cleanly.
//  3. In batch scope, any other call is deferred into a *Call descriptor.
//  4. Otherwise the call executes immediately.
func (n *Namespace) Invoke(name string, args ...any) (any, error) {
	qualified := n.qualify(name)
	if message.IsMultiCall(qualified) {
		n.client.batchDepth = 0
		return n.client.multiCall(args)
	}
	if n.client.batchDepth > 0 {
		if n.underSystem() {
			n.client.batchDepth--
		} else {
			return NewCall(qualified, args...), nil
		}
	}
	return n.client.execute(qualified, args)
}

func (n *Namespace) qualify(name string) string {
	if n.path == "" {
		return name
	}
	return n.path + "." + name
}

func (n *Namespace) underSystem() bool {
	return n.path == BatchNamespace || strings.HasPrefix(n.path, BatchNamespace+".")
}

// walk resolves all but the last segment of a dotted name, returning the
// node to invoke on and the bare operation name.
func (n *Namespace) walk(method string) (*Namespace, string) {
	segments := strings.Split(method, ".")
	node := n
	for _, seg := range segments[:len(segments)-1] {
		node = node.Child(seg)
	}
	return node, segments[len(segments)-1]
}
