// Package message defines the protocol-level data model shared by client and server.
//
// Request/Response are the "envelope" every dialect codec serializes. A Response
// carries either a Value or a Fault, never both - faults are ordinary protocol
// values at this layer and only become Go errors at the outermost client API.
package message

import "fmt"

// Request carries one decoded procedure call: a fully namespace-qualified
// method name plus positional parameters.
type Request struct {
	Method string // Format: "ns1.ns2.operation", e.g., "math.add"
	Params []any  // Positional arguments, already decoded into native values
}

// Response carries the outcome of one dispatched call.
//
//   - On success: Value holds the result, Fault is nil.
//   - On failure: Fault is non-nil and Value must be ignored.
type Response struct {
	Value any
	Fault *Fault
}

// Ok wraps a success value in a Response.
func Ok(v any) *Response {
	return &Response{Value: v}
}

// Failed wraps a fault in a Response.
func Failed(f *Fault) *Response {
	return &Response{Fault: f}
}

// Batch trigger names. The lowercase spelling is the wire-level standard;
// the camelCase variant circulates in the wild and is accepted everywhere.
const (
	MultiCallMethod    = "system.multicall"
	MultiCallMethodAlt = "system.multiCall"
)

// IsMultiCall reports whether a method name is the batch trigger.
func IsMultiCall(method string) bool {
	return method == MultiCallMethod || method == MultiCallMethodAlt
}

// BatchCall is one element of a multicall request: the wire convention is an
// array of structs, each holding a methodName and its params array.
type BatchCall struct {
	MethodName string `json:"methodName"`
	Params     []any  `json:"params"`
}

// Fault is the structured error value the protocol returns in place of a
// success result. Code values below are stable and part of the public API.
type Fault struct {
	Code   int    `json:"faultCode"`
	String string `json:"faultString"`
}

// Stable fault codes. Registered procedures may return their own application
// codes; these negative values are reserved for the runtime itself.
const (
	CodeProcedureNotFound = -1 // Requested procedure is not registered
	CodeInvalidArgument   = -2 // Malformed batch enrollment or service shape
	CodeRecursiveBatch    = -3 // system.multicall nested inside a batch
	CodeTransport         = -4 // Endpoint unreachable or HTTP-level failure
	CodeCodecUnavailable  = -5 // Unknown protocol dialect requested
	CodeNotATimestamp     = -6 // Value cannot be converted to a timestamp
	CodeUnknownService    = -7 // Registered service has an unsupported shape
	CodeNoRequestPayload  = -8 // Empty request body and no documentor configured
	CodeInternal          = -9 // Handler panic or other runtime failure
)

// Error makes *Fault usable as a Go error where that is convenient
// (middleware, tests). The dispatch boundary itself passes *Fault around as
// a value, per the tagged-result design.
func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.String)
}

// Faultf builds a Fault with a formatted message.
func Faultf(code int, format string, args ...any) *Fault {
	return &Fault{Code: code, String: fmt.Sprintf(format, args...)}
}

// NotFoundFault builds the canonical procedure-not-found fault. The message
// wording is part of the wire contract and must not drift.
func NotFoundFault(method string) *Fault {
	return Faultf(CodeProcedureNotFound, "Procedure %s not found.", method)
}
