// Package serializers provides pluggable converters between application
// values and the generic value shapes dynacache stores. Pick one per cache;
// mixing serializers over the same table produces garbage on read.
package serializers

import (
	"encoding/json"
	"fmt"

	"github.com/rzpsarthak13/dynacache/internal/core"
)

// String formats every value as a string on the way in and returns stored
// values untouched on the way out. Numbers survive as numeric strings, so
// Increment keeps working on values written through it.
type String struct{}

var _ core.Serializer = String{}

func (String) Dumps(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	case []byte:
		return t, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (String) Loads(v any) (any, error) { return v, nil }

// JSON marshals values to a JSON string. Loads unmarshals into the generic
// JSON shapes (map[string]any, []any, float64, string, bool, nil).
type JSON struct{}

var _ core.Serializer = JSON{}

func (JSON) Dumps(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json serialize: %w", err)
	}
	return string(b), nil
}

func (JSON) Loads(v any) (any, error) {
	raw, ok := asBytes(v)
	if !ok {
		return v, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("json deserialize: %w", err)
	}
	return out, nil
}

// asBytes normalizes a stored textual or binary value for decoding.
func asBytes(v any) ([]byte, bool) {
	switch t := v.(type) {
	case string:
		return []byte(t), true
	case []byte:
		return t, true
	default:
		return nil, false
	}
}
