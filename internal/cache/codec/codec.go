// Package codec provides pluggable serialization for cache payloads.
package codec

// Codec turns cache values into the opaque byte payloads stored in the KV
// store and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}
