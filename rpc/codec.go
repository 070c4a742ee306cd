package rpc

import "encoding/json"

// codecName replaces connect's builtin protojson codec, so the protocol
// structs travel as plain JSON with Content-Type application/json.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return codecName
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
