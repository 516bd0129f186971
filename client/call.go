package client

import (
	"xrpc/message"
)

// Call is a deferred remote call: created when a procedure is invoked while
// the client session is in batch scope, enrolled into exactly one multicall
// request, and bound to its positional result after the batch executes.
//
// A Call belongs to the batch session that created it. Passing an
// already-enrolled Call into a second multicall is a usage error and is
// rejected, because its index and result slot would go stale.
type Call struct {
	Procedure string // Fully namespace-qualified target name
	Args      []any  // Positional arguments

	index  int            // Position in the batch; -1 until enrolled
	bound  bool           // True once the batch response has been decoded
	result any            // Unwrapped success value
	fault  *message.Fault // Fault record when the sub-call failed
}

// NewCall builds a descriptor directly. Normally descriptors come out of
// namespace invocations made in batch scope; this constructor exists for
// callers that assemble batches by hand.
func NewCall(procedure string, args ...any) *Call {
	return &Call{Procedure: procedure, Args: args, index: -1}
}

// Index returns the batch position assigned at enrollment, or -1 if the
// call has not been enrolled.
func (c *Call) Index() int { return c.index }

// Bound reports whether the batch response has been bound to this call.
func (c *Call) Bound() bool { return c.bound }

// Result returns the bound result. It fails if the batch has not executed
// yet, and returns the fault when this sub-call failed remotely.
func (c *Call) Result() (any, error) {
	if !c.bound {
		return nil, message.Faultf(message.CodeInvalidArgument, "call %s has no result: batch not executed", c.Procedure)
	}
	if c.fault != nil {
		return nil, c.fault
	}
	return c.result, nil
}

func (c *Call) bind(result any) {
	c.result = result
	c.fault = nil
	c.bound = true
}

func (c *Call) bindFault(f *message.Fault) {
	c.fault = f
	c.bound = true
}
