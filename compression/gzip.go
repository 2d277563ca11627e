package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Gzip codec. Level 0 means gzip.DefaultCompression.
type Gzip struct {
	Level int
}

func (c *Gzip) Compress(b []byte) ([]byte, error) {
	level := c.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	buf := new(bytes.Buffer)
	w, err := gzip.NewWriterLevel(buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("error gzipping batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("error flushing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Gzip) Decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("error creating gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error gunzipping batch: %w", err)
	}
	return out, nil
}

func (*Gzip) Type() int16 { return TypeGzip }
