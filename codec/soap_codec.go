package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"xrpc/message"
	"xrpc/protocol"
)

func init() {
	Register(DialectSOAP, &SOAPCodec{})
}

// soapEnvNS is the SOAP 1.1 envelope namespace.
const soapEnvNS = "http://schemas.xmlsoap.org/soap/envelope/"

// SOAPCodec implements a SOAP 1.1 subset: one method element per Body,
// positional <param> children reusing the XML-RPC value model, and the
// standard Fault element. No WSDL, no complex types, no header blocks -
// full SOAP semantics are out of scope.
type SOAPCodec struct{}

func (*SOAPCodec) ContentType() string { return "text/xml; charset=utf-8" }

func (*SOAPCodec) EncodeRequest(req *message.Request, opts Options) ([]byte, error) {
	var body bytes.Buffer
	fmt.Fprintf(&body, "<m:%s xmlns:m=\"urn:xrpc\">", req.Method)
	for _, p := range req.Params {
		v, err := protocol.EncodeValue(p, xmlConfig(opts))
		if err != nil {
			return nil, err
		}
		body.WriteString("<param>")
		body.Write(v)
		body.WriteString("</param>")
	}
	fmt.Fprintf(&body, "</m:%s>", req.Method)
	return soapEnvelope(body.Bytes(), opts), nil
}

func (*SOAPCodec) DecodeRequest(data []byte) (*message.Request, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	if err := enterBody(d); err != nil {
		return nil, err
	}
	// The first child of Body is the method element; its local name is the
	// qualified procedure name.
	start, err := nextStart(d)
	if err != nil {
		return nil, err
	}
	req := &message.Request{Method: start.Name.Local, Params: []any{}}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "param":
				// The value element follows.
			case "value":
				v, err := protocol.DecodeValueElement(d)
				if err != nil {
					return nil, err
				}
				req.Params = append(req.Params, v)
			default:
				if err := d.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return req, nil
			}
		}
	}
}

func (*SOAPCodec) EncodeResponse(resp *message.Response, opts Options) ([]byte, error) {
	var body bytes.Buffer
	if resp.Fault != nil {
		body.WriteString("<SOAP-ENV:Fault><faultcode>")
		body.WriteString(strconv.Itoa(resp.Fault.Code))
		body.WriteString("</faultcode><faultstring>")
		xml.EscapeText(&body, []byte(resp.Fault.String))
		body.WriteString("</faultstring></SOAP-ENV:Fault>")
		return soapEnvelope(body.Bytes(), opts), nil
	}
	v, err := protocol.EncodeValue(resp.Value, xmlConfig(opts))
	if err != nil {
		return nil, err
	}
	body.WriteString("<m:Response xmlns:m=\"urn:xrpc\"><return>")
	body.Write(v)
	body.WriteString("</return></m:Response>")
	return soapEnvelope(body.Bytes(), opts), nil
}

func (*SOAPCodec) DecodeResponse(data []byte) (any, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	if err := enterBody(d); err != nil {
		return nil, err
	}
	start, err := nextStart(d)
	if err != nil {
		return nil, err
	}
	if start.Name.Local == "Fault" {
		return decodeSOAPFault(d)
	}
	// Success: locate the first <value> under the response element.
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				return protocol.DecodeValueElement(d)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil, fmt.Errorf("SOAP response carries no <value>")
			}
		}
	}
}

func soapEnvelope(body []byte, opts Options) []byte {
	enc := opts.Encoding
	if enc == "" {
		enc = "utf-8"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<?xml version=\"1.0\" encoding=\"%s\"?>", enc)
	fmt.Fprintf(&buf, "<SOAP-ENV:Envelope xmlns:SOAP-ENV=%q><SOAP-ENV:Body>", soapEnvNS)
	buf.Write(body)
	buf.WriteString("</SOAP-ENV:Body></SOAP-ENV:Envelope>")
	return buf.Bytes()
}

// enterBody consumes tokens through the opening SOAP Body element.
func enterBody(d *xml.Decoder) error {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return fmt.Errorf("payload has no SOAP Body")
		}
		if err != nil {
			return err
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "Body" {
			return nil
		}
	}
}

func nextStart(d *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
		if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "Body" {
			return xml.StartElement{}, fmt.Errorf("SOAP Body is empty")
		}
	}
}

func decodeSOAPFault(d *xml.Decoder) (*message.Fault, error) {
	f := &message.Fault{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "faultcode":
				var text string
				if err := d.DecodeElement(&text, &t); err != nil {
					return nil, err
				}
				// SOAP fault codes are QNames in full SOAP; this subset
				// uses the numeric fault code directly.
				if code, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
					f.Code = code
				}
			case "faultstring":
				var text string
				if err := d.DecodeElement(&text, &t); err != nil {
					return nil, err
				}
				f.String = text
			default:
				if err := d.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "Fault" {
				return f, nil
			}
		}
	}
}
