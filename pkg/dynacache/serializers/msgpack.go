package serializers

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rzpsarthak13/dynacache/internal/core"
)

// Msgpack marshals values with MessagePack. Payloads are binary and stored
// under the B attribute tag (or spilled to S3 as-is when oversized).
type Msgpack struct{}

var _ core.Serializer = Msgpack{}

func (Msgpack) Dumps(v any) (any, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack serialize: %w", err)
	}
	return b, nil
}

func (Msgpack) Loads(v any) (any, error) {
	raw, ok := asBytes(v)
	if !ok {
		return v, nil
	}
	var out any
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("msgpack deserialize: %w", err)
	}
	return out, nil
}
