// Package protocol implements the XML-RPC envelope format.
//
// Every round trip is one envelope: a <methodCall> on the way in and a
// <methodResponse> on the way out. The response body carries either a single
// <params> result or a <fault> struct - never both.
//
// Envelope shapes:
//
//	<methodCall>                      <methodResponse>
//	  <methodName>a.b.op</methodName>   <params><param><value>...</value></param></params>
//	  <params>                        - or -
//	    <param><value>...</value></param>  <fault><value><struct>
//	    ...                                  faultCode / faultString
//	  </params>                          </struct></value></fault>
//	</methodCall>                     </methodResponse>
//
// Value mapping between wire types and Go types:
//
//	int / i4 / i8        ↔ int
//	boolean              ↔ bool
//	string (or bare)     ↔ string
//	double               ↔ float64
//	dateTime.iso8601     ↔ message.DateTime (explicit conversion to time.Time)
//	base64               ↔ message.Binary   (explicit conversion to []byte)
//	nil                  ↔ nil
//	array                ↔ []any
//	struct               ↔ map[string]any
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"xrpc/message"
)

// Config controls envelope rendering. The zero value produces compact
// UTF-8 output, which is what every mainstream peer accepts.
type Config struct {
	Encoding       string // XML declaration encoding attribute; "" means utf-8
	Indent         bool   // Pretty-print with two-space indentation
	EscapeNonASCII bool   // Render non-ASCII runes as numeric character references
}

func (c Config) header() string {
	enc := c.Encoding
	if enc == "" {
		enc = "utf-8"
	}
	return fmt.Sprintf("<?xml version=\"1.0\" encoding=\"%s\"?>", enc)
}

// EncodeRequest renders one <methodCall> envelope.
func EncodeRequest(method string, params []any, cfg Config) ([]byte, error) {
	e := newEncoder(cfg)
	e.open("methodCall")
	e.leaf("methodName", method)
	e.open("params")
	for _, p := range params {
		e.open("param")
		if err := e.value(p); err != nil {
			return nil, err
		}
		e.close("param")
	}
	e.close("params")
	e.close("methodCall")
	return e.bytes(), nil
}

// EncodeResponse renders one successful <methodResponse> envelope.
func EncodeResponse(result any, cfg Config) ([]byte, error) {
	e := newEncoder(cfg)
	e.open("methodResponse")
	e.open("params")
	e.open("param")
	if err := e.value(result); err != nil {
		return nil, err
	}
	e.close("param")
	e.close("params")
	e.close("methodResponse")
	return e.bytes(), nil
}

// EncodeFault renders a <methodResponse> carrying a fault struct.
func EncodeFault(f *message.Fault, cfg Config) ([]byte, error) {
	e := newEncoder(cfg)
	e.open("methodResponse")
	e.open("fault")
	if err := e.value(f); err != nil {
		return nil, err
	}
	e.close("fault")
	e.close("methodResponse")
	return e.bytes(), nil
}

// DecodeRequest parses a <methodCall> envelope into its method name and
// positional parameter values.
func DecodeRequest(data []byte) (string, []any, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	if err := expectStart(d, "methodCall"); err != nil {
		return "", nil, err
	}
	var method string
	var params []any
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "methodName":
			text, err := innerText(d, "methodName")
			if err != nil {
				return "", nil, err
			}
			method = strings.TrimSpace(text)
		case "params":
			params, err = decodeParams(d)
			if err != nil {
				return "", nil, err
			}
		default:
			if err := d.Skip(); err != nil {
				return "", nil, err
			}
		}
	}
	if method == "" {
		return "", nil, fmt.Errorf("methodCall envelope has no methodName")
	}
	return method, params, nil
}

// DecodeResponse parses a <methodResponse> envelope. A fault response is
// returned as a *message.Fault value, not an error: the caller decides
// whether faults should surface as Go errors.
func DecodeResponse(data []byte) (any, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	if err := expectStart(d, "methodResponse"); err != nil {
		return nil, err
	}
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("methodResponse envelope has no params or fault")
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "params":
			params, err := decodeParams(d)
			if err != nil {
				return nil, err
			}
			if len(params) != 1 {
				return nil, fmt.Errorf("methodResponse carries %d params, want 1", len(params))
			}
			return params[0], nil
		case "fault":
			v, err := decodeFirstValue(d, "fault")
			if err != nil {
				return nil, err
			}
			return faultFromValue(v)
		default:
			if err := d.Skip(); err != nil {
				return nil, err
			}
		}
	}
}

// EncodeValue renders a single <value> element outside any envelope. Used by
// dialect codecs that share the value model but wrap it differently (SOAP).
func EncodeValue(v any, cfg Config) ([]byte, error) {
	e := &encoder{cfg: cfg}
	if err := e.value(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// DecodeValueElement parses the body of a <value> element whose start tag
// was just consumed from d. Counterpart of EncodeValue for dialect codecs.
func DecodeValueElement(d *xml.Decoder) (any, error) {
	return decodeValue(d)
}

// FaultFromValue converts a decoded fault struct ({faultCode, faultString})
// into a *message.Fault. Exposed for codecs that share the value model but
// not the XML envelope.
func FaultFromValue(v any) (*message.Fault, error) {
	return faultFromValue(v)
}

func faultFromValue(v any) (*message.Fault, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("fault body is %T, want struct", v)
	}
	f := &message.Fault{}
	if code, ok := m["faultCode"]; ok {
		switch c := code.(type) {
		case int:
			f.Code = c
		case float64:
			f.Code = int(c)
		default:
			return nil, fmt.Errorf("faultCode is %T, want int", code)
		}
	}
	if s, ok := m["faultString"].(string); ok {
		f.String = s
	}
	return f, nil
}

// ---- encoding ----

// encoder builds envelopes by hand rather than via xml.Marshal: the <value>
// element is polymorphic and struct tags cannot express it.
type encoder struct {
	buf   bytes.Buffer
	cfg   Config
	depth int
}

func newEncoder(cfg Config) *encoder {
	e := &encoder{cfg: cfg}
	e.buf.WriteString(cfg.header())
	return e
}

func (e *encoder) bytes() []byte {
	if e.cfg.Indent {
		e.buf.WriteByte('\n')
	}
	return e.buf.Bytes()
}

func (e *encoder) newline() {
	if !e.cfg.Indent {
		return
	}
	e.buf.WriteByte('\n')
	e.buf.WriteString(strings.Repeat("  ", e.depth))
}

func (e *encoder) open(name string) {
	e.newline()
	e.buf.WriteString("<" + name + ">")
	e.depth++
}

func (e *encoder) close(name string) {
	e.depth--
	e.newline()
	e.buf.WriteString("</" + name + ">")
}

func (e *encoder) leaf(name, text string) {
	e.newline()
	e.buf.WriteString("<" + name + ">")
	e.escape(text)
	e.buf.WriteString("</" + name + ">")
}

func (e *encoder) escape(text string) {
	if !e.cfg.EscapeNonASCII {
		xml.EscapeText(&e.buf, []byte(text))
		return
	}
	for _, r := range text {
		if r < 0x80 {
			xml.EscapeText(&e.buf, []byte(string(r)))
		} else {
			fmt.Fprintf(&e.buf, "&#x%X;", r)
		}
	}
}

// value renders one <value> element for any supported Go value.
func (e *encoder) value(v any) error {
	e.open("value")
	if err := e.typedValue(v); err != nil {
		return err
	}
	e.close("value")
	return nil
}

func (e *encoder) typedValue(v any) error {
	switch val := v.(type) {
	case nil:
		e.newline()
		e.buf.WriteString("<nil/>")
	case bool:
		b := "0"
		if val {
			b = "1"
		}
		e.leaf("boolean", b)
	case int:
		e.leaf("int", strconv.Itoa(val))
	case int32:
		e.leaf("int", strconv.FormatInt(int64(val), 10))
	case int64:
		e.leaf("int", strconv.FormatInt(val, 10))
	case float32:
		e.leaf("double", strconv.FormatFloat(float64(val), 'g', -1, 32))
	case float64:
		e.leaf("double", strconv.FormatFloat(val, 'g', -1, 64))
	case string:
		e.leaf("string", val)
	case message.Binary:
		e.leaf("base64", base64.StdEncoding.EncodeToString(val))
	case []byte:
		e.leaf("base64", base64.StdEncoding.EncodeToString(val))
	case message.DateTime:
		e.leaf("dateTime.iso8601", string(val))
	case time.Time:
		e.leaf("dateTime.iso8601", string(message.NewDateTime(val)))
	case *message.Fault:
		e.open("struct")
		e.member("faultCode", val.Code)
		e.member("faultString", val.String)
		e.close("struct")
	case message.BatchCall:
		// The multicall convention encodes each sub-call as a struct.
		e.open("struct")
		e.member("methodName", val.MethodName)
		e.member("params", append([]any{}, val.Params...))
		e.close("struct")
	case *message.BatchCall:
		return e.typedValue(*val)
	case []any:
		e.open("array")
		e.open("data")
		for _, elem := range val {
			if err := e.value(elem); err != nil {
				return err
			}
		}
		e.close("data")
		e.close("array")
	case map[string]any:
		// Sorted members keep output deterministic for tests and diffing.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.open("struct")
		for _, k := range keys {
			if err := e.member(k, val[k]); err != nil {
				return err
			}
		}
		e.close("struct")
	default:
		return fmt.Errorf("cannot encode value of type %T", v)
	}
	return nil
}

func (e *encoder) member(name string, v any) error {
	e.open("member")
	e.leaf("name", name)
	if err := e.value(v); err != nil {
		return err
	}
	e.close("member")
	return nil
}

// ---- decoding ----

// expectStart consumes tokens until the named start element is found.
func expectStart(d *xml.Decoder, name string) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return fmt.Errorf("missing <%s> envelope: %w", name, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local != name {
				return fmt.Errorf("unexpected element <%s>, want <%s>", start.Name.Local, name)
			}
			return nil
		}
	}
}

// innerText reads character data until the named end element.
func innerText(d *xml.Decoder, name string) (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == name {
				return sb.String(), nil
			}
		case xml.StartElement:
			return "", fmt.Errorf("unexpected element <%s> inside <%s>", t.Name.Local, name)
		}
	}
}

// decodeParams parses <param><value>...</value></param>* until </params>.
func decodeParams(d *xml.Decoder) ([]any, error) {
	params := []any{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "param":
				// Fall through to the inner <value>.
			case "value":
				v, err := decodeValue(d)
				if err != nil {
					return nil, err
				}
				params = append(params, v)
			default:
				if err := d.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "params" {
				return params, nil
			}
		}
	}
}

// decodeFirstValue parses the first <value> inside the named element and
// consumes the rest of the element.
func decodeFirstValue(d *xml.Decoder, enclosing string) (any, error) {
	var result any
	found := false
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" && !found {
				result, err = decodeValue(d)
				if err != nil {
					return nil, err
				}
				found = true
			} else if err := d.Skip(); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if t.Name.Local == enclosing {
				if !found {
					return nil, fmt.Errorf("<%s> carries no <value>", enclosing)
				}
				return result, nil
			}
		}
	}
}

// decodeValue parses the body of one <value> element, whose start tag has
// already been consumed. A <value> with bare character data and no type
// element decodes as a string, per the XML-RPC default.
func decodeValue(d *xml.Decoder) (any, error) {
	var text strings.Builder
	var typed any
	haveTyped := false
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			v, err := decodeTyped(d, t.Name.Local)
			if err != nil {
				return nil, err
			}
			typed = v
			haveTyped = true
		case xml.EndElement:
			if t.Name.Local != "value" {
				return nil, fmt.Errorf("unexpected </%s> inside <value>", t.Name.Local)
			}
			if haveTyped {
				return typed, nil
			}
			return text.String(), nil
		}
	}
}

// decodeTyped parses one typed element inside <value>. The start tag has
// been consumed; this reads through the matching end tag.
func decodeTyped(d *xml.Decoder, name string) (any, error) {
	switch name {
	case "int", "i4", "i8":
		text, err := innerText(d, name)
		if err != nil {
			return nil, err
		}
		return strconv.Atoi(strings.TrimSpace(text))
	case "boolean":
		text, err := innerText(d, name)
		if err != nil {
			return nil, err
		}
		switch strings.TrimSpace(text) {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean value %q", text)
	case "double":
		text, err := innerText(d, name)
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(strings.TrimSpace(text), 64)
	case "string":
		return innerText(d, name)
	case "dateTime.iso8601":
		text, err := innerText(d, name)
		if err != nil {
			return nil, err
		}
		return message.DateTime(strings.TrimSpace(text)), nil
	case "base64":
		text, err := innerText(d, name)
		if err != nil {
			return nil, err
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 value: %w", err)
		}
		return message.Binary(raw), nil
	case "nil":
		if err := d.Skip(); err != nil && err != io.EOF {
			return nil, err
		}
		return nil, nil
	case "array":
		return decodeArray(d)
	case "struct":
		return decodeStruct(d)
	default:
		return nil, fmt.Errorf("unknown value type <%s>", name)
	}
}

func decodeArray(d *xml.Decoder) ([]any, error) {
	elems := []any{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "data":
				// Container only; elements follow.
			case "value":
				v, err := decodeValue(d)
				if err != nil {
					return nil, err
				}
				elems = append(elems, v)
			default:
				if err := d.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return elems, nil
			}
		}
	}
}

func decodeStruct(d *xml.Decoder) (map[string]any, error) {
	result := map[string]any{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "member" {
				if err := d.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			name, value, err := decodeMember(d)
			if err != nil {
				return nil, err
			}
			result[name] = value
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return result, nil
			}
		}
	}
}

func decodeMember(d *xml.Decoder) (string, any, error) {
	var name string
	var value any
	for {
		tok, err := d.Token()
		if err != nil {
			return "", nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				text, err := innerText(d, "name")
				if err != nil {
					return "", nil, err
				}
				name = strings.TrimSpace(text)
			case "value":
				value, err = decodeValue(d)
				if err != nil {
					return "", nil, err
				}
			default:
				if err := d.Skip(); err != nil {
					return "", nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "member" {
				return name, value, nil
			}
		}
	}
}
