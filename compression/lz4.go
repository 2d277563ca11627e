package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Lz4 codec (frame format). Level 0 is the fast path, 1 through 9 map
// to the lz4hc levels.
type Lz4 struct {
	Level int
}

func (c *Lz4) level() lz4.CompressionLevel {
	switch c.Level {
	case 1:
		return lz4.Level1
	case 2:
		return lz4.Level2
	case 3:
		return lz4.Level3
	case 4:
		return lz4.Level4
	case 5:
		return lz4.Level5
	case 6:
		return lz4.Level6
	case 7:
		return lz4.Level7
	case 8:
		return lz4.Level8
	case 9:
		return lz4.Level9
	}
	return lz4.Fast
}

func (c *Lz4) Compress(b []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := lz4.NewWriter(buf)
	if err := w.Apply(lz4.CompressionLevelOption(c.level())); err != nil {
		return nil, fmt.Errorf("error configuring lz4 writer: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("error lz4 compressing batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("error flushing lz4 writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (*Lz4) Decompress(b []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
	if err != nil {
		return nil, fmt.Errorf("error lz4 decompressing batch: %w", err)
	}
	return out, nil
}

func (*Lz4) Type() int16 { return TypeLz4 }
