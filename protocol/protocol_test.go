package protocol

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"xrpc/message"
)

func TestRequestRoundTrip(t *testing.T) {
	params := []any{
		42,
		true,
		"hello <world> & friends",
		2.5,
		nil,
		[]any{1, "two"},
		map[string]any{"k": "v", "n": 7},
	}
	data, err := EncodeRequest("math.add", params, Config{})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}

	method, decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if method != "math.add" {
		t.Errorf("method mismatch: got %q, want %q", method, "math.add")
	}
	if !reflect.DeepEqual(decoded, params) {
		t.Errorf("params mismatch:\n got  %#v\n want %#v", decoded, params)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	data, err := EncodeResponse([]any{1, "ok"}, Config{})
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	value, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if !reflect.DeepEqual(value, []any{1, "ok"}) {
		t.Errorf("value mismatch: got %#v", value)
	}
}

func TestFaultRoundTrip(t *testing.T) {
	data, err := EncodeFault(&message.Fault{Code: -1, String: "Procedure x not found."}, Config{})
	if err != nil {
		t.Fatalf("EncodeFault failed: %v", err)
	}
	value, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	fault, ok := value.(*message.Fault)
	if !ok {
		t.Fatalf("decoded value is %T, want *message.Fault", value)
	}
	if fault.Code != -1 || fault.String != "Procedure x not found." {
		t.Errorf("fault mismatch: %+v", fault)
	}
}

func TestBinaryAndDateTimeValues(t *testing.T) {
	when := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	data, err := EncodeRequest("blob.put", []any{message.Binary("raw\x00bytes"), when}, Config{})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	if !strings.Contains(string(data), "<base64>") {
		t.Errorf("binary value not encoded as base64: %s", data)
	}
	if !strings.Contains(string(data), "<dateTime.iso8601>20240601T12:30:00</dateTime.iso8601>") {
		t.Errorf("time value not encoded as dateTime.iso8601: %s", data)
	}

	_, params, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	bin, ok := params[0].(message.Binary)
	if !ok || string(bin) != "raw\x00bytes" {
		t.Errorf("binary round trip mismatch: %#v", params[0])
	}
	dt, ok := params[1].(message.DateTime)
	if !ok {
		t.Fatalf("timestamp decoded as %T, want message.DateTime", params[1])
	}
	back, err := dt.Time()
	if err != nil {
		t.Fatalf("DateTime conversion failed: %v", err)
	}
	if !back.Equal(when) {
		t.Errorf("timestamp round trip mismatch: got %v, want %v", back, when)
	}
}

func TestBatchCallEncoding(t *testing.T) {
	calls := []any{
		message.BatchCall{MethodName: "echo", Params: []any{1}},
		message.BatchCall{MethodName: "noSuchOp", Params: []any{}},
	}
	data, err := EncodeRequest("system.multicall", []any{calls}, Config{})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	_, params, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	list, ok := params[0].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("batch param decoded as %#v", params[0])
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		t.Fatalf("batch element decoded as %T", list[0])
	}
	if first["methodName"] != "echo" {
		t.Errorf("methodName mismatch: %#v", first)
	}
	if !reflect.DeepEqual(first["params"], []any{1}) {
		t.Errorf("params mismatch: %#v", first["params"])
	}
}

func TestBareValueDecodesAsString(t *testing.T) {
	raw := `<?xml version="1.0"?><methodCall><methodName>op</methodName>` +
		`<params><param><value>plain</value></param></params></methodCall>`
	_, params, err := DecodeRequest([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if len(params) != 1 || params[0] != "plain" {
		t.Errorf("bare value mismatch: %#v", params)
	}
}

func TestEscapeNonASCII(t *testing.T) {
	data, err := EncodeRequest("op", []any{"héllo"}, Config{EscapeNonASCII: true})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	if !strings.Contains(string(data), "h&#xE9;llo") {
		t.Errorf("non-ASCII rune not escaped: %s", data)
	}
	_, params, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if params[0] != "héllo" {
		t.Errorf("escaped value round trip mismatch: %#v", params[0])
	}
}

func TestIndentedOutputStaysParseable(t *testing.T) {
	data, err := EncodeResponse(map[string]any{"a": 1}, Config{Indent: true})
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	value, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if !reflect.DeepEqual(value, map[string]any{"a": 1}) {
		t.Errorf("indented round trip mismatch: %#v", value)
	}
}

func TestDecodeResponseRejectsGarbage(t *testing.T) {
	if _, err := DecodeResponse([]byte("not xml at all")); err == nil {
		t.Errorf("expected error for non-XML payload")
	}
	if _, err := DecodeResponse([]byte(`<?xml version="1.0"?><methodResponse></methodResponse>`)); err == nil {
		t.Errorf("expected error for empty methodResponse")
	}
}
