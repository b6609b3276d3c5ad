// Package codec converts values to and from the bytes slotkv stores.
// Topology snapshots use Msgpack by default; Typed client helpers accept any Codec.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
