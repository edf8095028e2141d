package serialization

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func init() {
	// Basic types are pre-registered by encoding/gob; the generic
	// containers are not.
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// gobEnvelope lets any value, nil included, travel as an interface.
type gobEnvelope struct {
	Value any
}

// GobCodec is the default Go-native binary codec. Concrete types carried
// inside interfaces, other than the basic types, []any and map[string]any,
// must be registered with gob.Register by the application. That includes
// mappings keyed by anything but string, such as map[int]any, which are
// rejected on Encode unless registered.
//
// gob does not distinguish an empty slice from a nil one; Decode restores
// every []any inside the decoded value, at any depth of []any and
// map[string]any nesting, as a non-nil slice.
type GobCodec struct{}

// ContentType implements Codec
func (GobCodec) ContentType() string {
	return ContentTypeGob
}

// Encode implements Codec
func (GobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&gobEnvelope{Value: v}); err != nil {
		return nil, fmt.Errorf("gob encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec
func (GobCodec) Decode(data []byte) (any, error) {
	var env gobEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return restoreEmpty(env.Value), nil
}

func restoreEmpty(v any) any {
	switch t := v.(type) {
	case []any:
		if t == nil {
			return []any{}
		}
		for i := range t {
			t[i] = restoreEmpty(t[i])
		}
	case map[string]any:
		for k, e := range t {
			t[k] = restoreEmpty(e)
		}
	}
	return v
}
