// Package compression implements the batch compression codecs: the
// value of the lower 3 bits of record batch Attributes, and matching
// Compressor and Decompressor implementations.
package compression

// https://kafka.apache.org/documentation/#recordbatch
const (
	TypeNone int16 = iota
	TypeGzip
	TypeSnappy
	TypeLz4
	TypeZstd
)

// Nop is the identity codec. Use it to marshal and unmarshal
// uncompressed record batches.
type Nop struct{}

func (*Nop) Compress(b []byte) ([]byte, error)   { return b, nil }
func (*Nop) Decompress(b []byte) ([]byte, error) { return b, nil }
func (*Nop) Type() int16                         { return TypeNone }
