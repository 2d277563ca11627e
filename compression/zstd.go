package compression

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd codec. Level 0 means zstd.SpeedDefault.
type Zstd struct {
	Level zstd.EncoderLevel
}

func (c *Zstd) Compress(b []byte) ([]byte, error) {
	level := c.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("error creating zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(b, nil), nil
}

func (*Zstd) Decompress(b []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("error creating zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("error zstd decompressing batch: %w", err)
	}
	return out, nil
}

func (*Zstd) Type() int16 { return TypeZstd }
