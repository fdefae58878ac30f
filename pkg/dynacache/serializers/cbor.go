package serializers

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/rzpsarthak13/dynacache/internal/core"
)

// CBOR marshals values with CBOR. Like Msgpack, payloads are binary.
type CBOR struct{}

var _ core.Serializer = CBOR{}

func (CBOR) Dumps(v any) (any, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor serialize: %w", err)
	}
	return b, nil
}

func (CBOR) Loads(v any) (any, error) {
	raw, ok := asBytes(v)
	if !ok {
		return v, nil
	}
	var out any
	if err := cbor.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cbor deserialize: %w", err)
	}
	return out, nil
}
