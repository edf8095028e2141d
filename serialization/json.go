package serialization

import (
	"encoding/json"
	"fmt"
)

// JSONCodec encodes values as JSON. Numbers decode as float64, so integer
// values do not round-trip with their Go type.
type JSONCodec struct{}

// ContentType implements Codec
func (JSONCodec) ContentType() string {
	return ContentTypeJSON
}

// Encode implements Codec
func (JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode %T: %w", v, err)
	}
	return data, nil
}

// Decode implements Codec
func (JSONCodec) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return v, nil
}
