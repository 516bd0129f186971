package client

import (
	"fmt"

	"xrpc/message"
	"xrpc/protocol"
)

// multiCall is the batch trigger: it enrolls the argument descriptors,
// executes the whole batch in one round trip, binds each descriptor's
// result slot, and returns the positionally aligned result list.
//
// Enrollment failures (bad argument shape, descriptor reuse, nested
// trigger) abort before any network activity: a malformed batch could
// never encode correctly.
func (c *Client) multiCall(args []any) (any, error) {
	list := normalizeBatchArgs(args)

	// calls[i] is nil for descriptor-shaped arguments that carry no result
	// slot to bind.
	calls := make([]*Call, 0, len(list))
	wire := make([]any, 0, len(list))
	enroll := func(call *Call, name string, params []any) error {
		if message.IsMultiCall(name) {
			return message.Faultf(message.CodeRecursiveBatch, "cannot nest %s inside a batch", message.MultiCallMethod)
		}
		if call != nil {
			if call.index != -1 {
				return message.Faultf(message.CodeInvalidArgument,
					"call %s already enrolled at index %d; descriptors cannot be reused across batches", call.Procedure, call.index)
			}
			call.index = len(wire)
		}
		calls = append(calls, call)
		wire = append(wire, message.BatchCall{MethodName: name, Params: params})
		return nil
	}

	for i, elem := range list {
		var err error
		switch v := elem.(type) {
		case *Call:
			err = enroll(v, v.Procedure, v.Args)
		case message.BatchCall:
			err = enroll(nil, v.MethodName, v.Params)
		case *message.BatchCall:
			err = enroll(nil, v.MethodName, v.Params)
		case map[string]any:
			name, ok := v["methodName"].(string)
			if !ok || name == "" {
				err = message.Faultf(message.CodeInvalidArgument, "batch argument %d has no methodName", i)
				break
			}
			params, _ := v["params"].([]any)
			err = enroll(nil, name, params)
		default:
			err = message.Faultf(message.CodeInvalidArgument, "batch argument %d (%T) is not a call descriptor", i, elem)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(wire) == 0 {
		return []any{}, nil
	}

	raw, err := c.execute(message.MultiCallMethod, []any{wire})
	if err != nil {
		return nil, err
	}
	if fault, ok := raw.(*message.Fault); ok {
		// Whole-batch fault with fault-raising off: hand the record back.
		return fault, nil
	}
	elements, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("batch response is %T, want a result list", raw)
	}
	if len(elements) != len(wire) {
		return nil, fmt.Errorf("batch response has %d elements, want %d", len(elements), len(wire))
	}

	results := make([]any, len(elements))
	for i, elem := range elements {
		fault := batchElementFault(elem)
		if fault != nil {
			results[i] = fault
			if calls[i] != nil {
				calls[i].bindFault(fault)
			}
			continue
		}
		value := elem
		// Per protocol convention a successful sub-result arrives wrapped
		// in a one-element array.
		if wrapper, ok := elem.([]any); ok && len(wrapper) == 1 {
			value = wrapper[0]
		}
		results[i] = value
		if calls[i] != nil {
			calls[i].bind(value)
		}
	}
	return results, nil
}

// normalizeBatchArgs accepts either variadic descriptors or one sequence of
// them.
func normalizeBatchArgs(args []any) []any {
	if len(args) != 1 {
		return args
	}
	switch v := args[0].(type) {
	case []any:
		return v
	case []*Call:
		list := make([]any, len(v))
		for i, call := range v {
			list[i] = call
		}
		return list
	default:
		return args
	}
}

// batchElementFault recognizes a fault record at a batch response position,
// in both its decoded-struct form and its already-typed form.
func batchElementFault(elem any) *message.Fault {
	switch v := elem.(type) {
	case *message.Fault:
		return v
	case map[string]any:
		if _, ok := v["faultCode"]; !ok {
			return nil
		}
		fault, err := protocol.FaultFromValue(v)
		if err != nil {
			return nil
		}
		return fault
	default:
		return nil
	}
}
