package message

import (
	"fmt"
	"time"
)

// Binary wraps raw bytes destined for (or decoded from) the protocol's
// base64 value type. Codecs produce Binary rather than []byte so that the
// caller decides when to unwrap; the client's auto-decode option does it
// automatically.
type Binary []byte

// Bytes returns the underlying bytes.
func (b Binary) Bytes() []byte { return []byte(b) }

// Timestamp wire layouts. XML-RPC uses the ISO 8601 "basic" form without
// dashes; the extended form is accepted on decode because real-world peers
// send both.
const (
	TimeLayout         = "20060102T15:04:05"
	TimeLayoutExtended = "2006-01-02T15:04:05"
)

// DateTime carries the wire representation of a dateTime.iso8601 value.
// Conversion to time.Time is explicit: the wire form has no zone, so the
// caller (or the client's auto-decode pass) chooses when to interpret it.
type DateTime string

// NewDateTime encodes a native time into the wire layout.
func NewDateTime(t time.Time) DateTime {
	return DateTime(t.Format(TimeLayout))
}

// Time parses the wire representation. A value that matches neither
// accepted layout fails with a CodeNotATimestamp fault.
func (d DateTime) Time() (time.Time, error) {
	for _, layout := range []string{TimeLayout, TimeLayoutExtended, time.RFC3339} {
		if t, err := time.Parse(layout, string(d)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, Faultf(CodeNotATimestamp, "value %q is not a timestamp", string(d))
}

// String implements fmt.Stringer.
func (d DateTime) String() string { return string(d) }

// AutoDecode walks a decoded value tree and converts wrapper types to their
// native scalar forms: Binary → []byte, DateTime → time.Time. Containers are
// rewritten in place. Used by the client when auto value decoding is on.
func AutoDecode(v any) (any, error) {
	switch val := v.(type) {
	case Binary:
		return val.Bytes(), nil
	case DateTime:
		return val.Time()
	case []any:
		for i, elem := range val {
			decoded, err := AutoDecode(elem)
			if err != nil {
				return nil, err
			}
			val[i] = decoded
		}
		return val, nil
	case map[string]any:
		for k, elem := range val {
			decoded, err := AutoDecode(elem)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			val[k] = decoded
		}
		return val, nil
	default:
		return v, nil
	}
}
