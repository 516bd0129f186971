package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/rpc/v2/json2"

	"xrpc/message"
)

func init() {
	Register(DialectJSONRPC, &JSONCodec{})
}

// JSONCodec is the "Simple RPC" dialect: JSON-RPC 2.0 envelopes. The client
// half rides on gorilla's json2 helpers; the server half mirrors their wire
// shape. Value typing is JSON-native - numbers decode as float64 and the
// base64/dateTime wrapper types flatten to strings on the wire.
type JSONCodec struct{}

// serverRequest mirrors json2's client request envelope.
type serverRequest struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type serverResponse struct {
	Version string       `json:"jsonrpc"`
	Result  any          `json:"result"`
	Error   *json2.Error `json:"error,omitempty"`
	ID      any          `json:"id"`
}

func (*JSONCodec) ContentType() string { return "application/json" }

func (*JSONCodec) EncodeRequest(req *message.Request, _ Options) ([]byte, error) {
	return json2.EncodeClientRequest(req.Method, req.Params)
}

func (*JSONCodec) DecodeRequest(data []byte) (*message.Request, error) {
	var env serverRequest
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC request: %w", err)
	}
	if env.Method == "" {
		return nil, fmt.Errorf("JSON-RPC request has no method")
	}
	req := &message.Request{Method: env.Method, Params: []any{}}
	if len(env.Params) > 0 {
		if err := json.Unmarshal(env.Params, &req.Params); err != nil {
			// Single non-array argument, per the by-position convention.
			var single any
			if err := json.Unmarshal(env.Params, &single); err != nil {
				return nil, fmt.Errorf("invalid JSON-RPC params: %w", err)
			}
			req.Params = []any{single}
		}
	}
	return req, nil
}

func (*JSONCodec) EncodeResponse(resp *message.Response, _ Options) ([]byte, error) {
	env := serverResponse{Version: "2.0"}
	if resp.Fault != nil {
		env.Error = &json2.Error{
			Code:    json2.ErrorCode(resp.Fault.Code),
			Message: resp.Fault.String,
		}
	} else {
		env.Result = resp.Value
	}
	return json.Marshal(env)
}

func (*JSONCodec) DecodeResponse(data []byte) (any, error) {
	var result any
	err := json2.DecodeClientResponse(bytes.NewReader(data), &result)
	if err == nil {
		return result, nil
	}
	var jerr *json2.Error
	if errors.As(err, &jerr) {
		// Protocol fault, returned as a value per the tagged-result design.
		return &message.Fault{Code: int(jerr.Code), String: jerr.Message}, nil
	}
	if errors.Is(err, json2.ErrNullResult) {
		return nil, nil
	}
	return nil, err
}
