package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"xrpc/codec"
	"xrpc/message"
	"xrpc/registry"
)

func newTestServer(t *testing.T, options ...Option) *Server {
	t.Helper()
	s, err := NewServer(options...)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	err = s.Register([]registry.Method{
		{
			Name:      "echo",
			Help:      "returns its first argument",
			Signature: []string{"string", "string"},
			Do: func(_ context.Context, params []any) (any, error) {
				return params[0], nil
			},
		},
		{
			Name: "boom",
			Do: func(context.Context, []any) (any, error) {
				panic("kaboom")
			},
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return s
}

// post encodes a request with the server's dialect, posts it through
// ServeHTTP, and decodes the response envelope.
func post(t *testing.T, s *Server, method string, params ...any) any {
	t.Helper()
	c, err := codec.Get("")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	body, err := c.EncodeRequest(&message.Request{Method: method, Params: params}, codec.Options{})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	value, err := c.DecodeResponse(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v\npayload: %s", err, rec.Body.String())
	}
	return value
}

func TestSingleDispatch(t *testing.T) {
	s := newTestServer(t)
	if got := post(t, s, "echo", "hello"); got != "hello" {
		t.Errorf("echo returned %#v", got)
	}
}

func TestDispatchNotFound(t *testing.T) {
	s := newTestServer(t)
	value := post(t, s, "noSuchOp")
	fault, ok := value.(*message.Fault)
	if !ok {
		t.Fatalf("response is %T, want fault", value)
	}
	if fault.Code != message.CodeProcedureNotFound || fault.String != "Procedure noSuchOp not found." {
		t.Errorf("fault mismatch: %+v", fault)
	}
}

func TestBatchDispatchScenario(t *testing.T) {
	s := newTestServer(t)
	value := post(t, s, message.MultiCallMethod, []any{
		message.BatchCall{MethodName: "echo", Params: []any{1}},
		message.BatchCall{MethodName: "noSuchOp", Params: []any{}},
	})
	results, ok := value.([]any)
	if !ok {
		t.Fatalf("batch response is %T", value)
	}
	if len(results) != 2 {
		t.Fatalf("batch response has %d elements, want 2", len(results))
	}
	if !reflect.DeepEqual(results[0], []any{1}) {
		t.Errorf("success wrapper mismatch: %#v", results[0])
	}
	fault, ok := results[1].(map[string]any)
	if !ok {
		t.Fatalf("fault record is %T", results[1])
	}
	if fault["faultCode"] != message.CodeProcedureNotFound {
		t.Errorf("faultCode mismatch: %#v", fault["faultCode"])
	}
	if fault["faultString"] != "Procedure noSuchOp not found." {
		t.Errorf("faultString mismatch: %#v", fault["faultString"])
	}
}

func TestBatchFaultIsolation(t *testing.T) {
	s := newTestServer(t)
	value := post(t, s, message.MultiCallMethod, []any{
		message.BatchCall{MethodName: "boom"},
		message.BatchCall{MethodName: "echo", Params: []any{"still fine"}},
	})
	results := value.([]any)
	if _, ok := results[0].(map[string]any); !ok {
		t.Errorf("panicking sub-call did not produce a fault record: %#v", results[0])
	}
	if !reflect.DeepEqual(results[1], []any{"still fine"}) {
		t.Errorf("sibling sub-call affected: %#v", results[1])
	}
}

func TestBatchRecursionGuard(t *testing.T) {
	s := newTestServer(t)
	value := post(t, s, message.MultiCallMethod, []any{
		message.BatchCall{MethodName: "echo", Params: []any{1}},
		message.BatchCall{MethodName: message.MultiCallMethod, Params: []any{}},
	})
	fault, ok := value.(*message.Fault)
	if !ok {
		t.Fatalf("nested multicall must fail the whole batch, got %#v", value)
	}
	if fault.Code != message.CodeRecursiveBatch {
		t.Errorf("fault code mismatch: %+v", fault)
	}
}

func TestBuiltinListMethods(t *testing.T) {
	s := newTestServer(t)
	value := post(t, s, "system.listMethods")
	names, ok := value.([]any)
	if !ok {
		t.Fatalf("listMethods returned %T", value)
	}
	want := map[string]bool{"echo": false, message.MultiCallMethod: false, "system.listMethods": false}
	for _, n := range names {
		if _, tracked := want[n.(string)]; tracked {
			want[n.(string)] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("listMethods missing %s: %#v", name, names)
		}
	}
}

func TestBuiltinMethodHelp(t *testing.T) {
	s := newTestServer(t)
	if got := post(t, s, "system.methodHelp", "echo"); got != "returns its first argument" {
		t.Errorf("methodHelp returned %#v", got)
	}
}

func TestBuiltinMethodSignature(t *testing.T) {
	s := newTestServer(t)

	value := post(t, s, "system.methodSignature", "echo")
	want := []any{[]any{"string", "string"}}
	if !reflect.DeepEqual(value, want) {
		t.Errorf("methodSignature returned %#v, want %#v", value, want)
	}

	// Methods without a declared signature answer "undef".
	if got := post(t, s, "system.methodSignature", "boom"); got != "undef" {
		t.Errorf("undeclared signature returned %#v", got)
	}
}

func TestBuiltinDescribe(t *testing.T) {
	s := newTestServer(t)
	value := post(t, s, "system.describe")
	manifest, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("describe returned %T", value)
	}
	methods := manifest["methods"].([]any)
	first := methods[0].(map[string]any)
	if first["name"] != "boom" && first["name"] != "echo" {
		t.Errorf("unexpected manifest entry: %#v", first)
	}
}

func TestEmptyBodyServesDocumentation(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "echo") {
		t.Errorf("documentation page does not list procedures: %s", rec.Body.String())
	}
}

func TestEmptyBodyWithoutDocumentor(t *testing.T) {
	s := newTestServer(t, WithoutDocumentor())
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	c, _ := codec.Get("")
	value, err := c.DecodeResponse(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	fault, ok := value.(*message.Fault)
	if !ok || fault.Code != message.CodeNoRequestPayload {
		t.Errorf("want no-request-payload fault, got %#v", value)
	}
}

func TestUnknownDialectFailsConstruction(t *testing.T) {
	if _, err := NewServer(WithDialect("telepathy")); err == nil {
		t.Errorf("expected configuration error for unknown dialect")
	}
}

func TestDocumentationSnapshot(t *testing.T) {
	s := newTestServer(t)
	// First dispatch takes the snapshot.
	post(t, s, "echo", "x")

	s.Register(registry.Method{
		Name: "late",
		Do:   func(context.Context, []any) (any, error) { return nil, nil },
	})

	// Late registration dispatches fine...
	if got := post(t, s, "late"); got != nil {
		t.Errorf("late returned %#v", got)
	}

	// ...but stays invisible to the documentor until the next run.
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), "late") {
		t.Errorf("documentor sees post-snapshot registration")
	}
}
