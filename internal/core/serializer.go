package core

// Serializer converts application-level values to and from the generic value
// shapes the cache knows how to store (string, []byte, integers, floats,
// bool, nil). The cache never inspects serialized payloads; it only coerces
// the value a serializer hands back.
type Serializer interface {
	// Dumps converts an application value into a storable value.
	Dumps(v any) (any, error)

	// Loads converts a stored value back into an application value.
	Loads(v any) (any, error)
}
