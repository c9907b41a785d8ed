// Package codec serializes stored records to and from bytes.
//
// Every codec here is usable as Codec[record.Record]; Proto is specific to
// record.Record, the others are generic over any value type.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
