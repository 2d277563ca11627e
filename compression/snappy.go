package compression

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/klauspost/compress/snappy"
)

// Snappy codec. Compresses to the raw snappy block format. Decompresses
// both the block format and the chunked snappy-java framing, which is
// what the Java client produces.
type Snappy struct{}

func (*Snappy) Compress(b []byte) ([]byte, error) {
	return snappy.Encode(nil, b), nil
}

// magic prefix of the snappy-java ("xerial") stream format
var xerialHeader = []byte{130, 'S', 'N', 'A', 'P', 'P', 'Y', 0}

func (*Snappy) Decompress(b []byte) ([]byte, error) {
	if !bytes.HasPrefix(b, xerialHeader) {
		return snappy.Decode(nil, b)
	}
	// 8 byte magic and two int32 version fields, then length prefixed
	// raw snappy blocks
	if len(b) < 16 {
		return nil, errors.New("truncated snappy-java header")
	}
	var out []byte
	for b = b[16:]; len(b) > 0; {
		if len(b) < 4 {
			return nil, errors.New("truncated snappy-java block length")
		}
		n := int(binary.BigEndian.Uint32(b))
		b = b[4:]
		if n < 0 || len(b) < n {
			return nil, errors.New("truncated snappy-java block")
		}
		block, err := snappy.Decode(nil, b[:n])
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		b = b[n:]
	}
	return out, nil
}

func (*Snappy) Type() int16 { return TypeSnappy }
