package codec

import (
	"xrpc/message"
	"xrpc/protocol"
)

func init() {
	Register(DialectXMLRPC, &XMLRPCCodec{})
}

// XMLRPCCodec is the default dialect: classic XML-RPC envelopes as
// implemented by the protocol package.
type XMLRPCCodec struct{}

func (*XMLRPCCodec) ContentType() string { return "text/xml" }

func (*XMLRPCCodec) EncodeRequest(req *message.Request, opts Options) ([]byte, error) {
	return protocol.EncodeRequest(req.Method, req.Params, xmlConfig(opts))
}

func (*XMLRPCCodec) DecodeRequest(data []byte) (*message.Request, error) {
	method, params, err := protocol.DecodeRequest(data)
	if err != nil {
		return nil, err
	}
	return &message.Request{Method: method, Params: params}, nil
}

func (*XMLRPCCodec) EncodeResponse(resp *message.Response, opts Options) ([]byte, error) {
	if resp.Fault != nil {
		return protocol.EncodeFault(resp.Fault, xmlConfig(opts))
	}
	return protocol.EncodeResponse(resp.Value, xmlConfig(opts))
}

func (*XMLRPCCodec) DecodeResponse(data []byte) (any, error) {
	return protocol.DecodeResponse(data)
}

func xmlConfig(opts Options) protocol.Config {
	return protocol.Config{
		Encoding:       opts.Encoding,
		Indent:         opts.Indent,
		EscapeNonASCII: opts.EscapeNonASCII,
	}
}
