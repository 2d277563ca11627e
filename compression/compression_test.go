package compression

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/snappy"
)

type codec interface {
	Compress([]byte) ([]byte, error)
	Decompress([]byte) ([]byte, error)
	Type() int16
}

func TestUnitRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox "), 100)
	codecs := []codec{&Nop{}, &Gzip{}, &Gzip{Level: 9}, &Snappy{}, &Lz4{}, &Lz4{Level: 9}, &Zstd{}}
	for _, c := range codecs {
		compressed, err := c.Compress(payload)
		if err != nil {
			t.Fatal(c.Type(), err)
		}
		if c.Type() != TypeNone && len(compressed) >= len(payload) {
			t.Fatal(c.Type(), "no compression happened")
		}
		out, err := c.Decompress(compressed)
		if err != nil {
			t.Fatal(c.Type(), err)
		}
		if !bytes.Equal(out, payload) {
			t.Fatal(c.Type(), "round trip mismatch")
		}
	}
}

func TestUnitSnappyJavaFraming(t *testing.T) {
	payload := bytes.Repeat([]byte("m1 m2 m3 "), 50)
	// build a two block snappy-java stream by hand
	buf := append([]byte{}, xerialHeader...)
	buf = append(buf, 0, 0, 0, 1, 0, 0, 0, 1) // version, compat
	for _, chunk := range [][]byte{payload[:100], payload[100:]} {
		block := snappy.Encode(nil, chunk)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(block)))
		buf = append(buf, block...)
	}
	out, err := (&Snappy{}).Decompress(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("framed round trip mismatch")
	}
}

func TestUnitSnappyJavaTruncated(t *testing.T) {
	if _, err := (&Snappy{}).Decompress(xerialHeader); err == nil {
		t.Fatal("want error")
	}
	b := append([]byte{}, xerialHeader...)
	b = append(b, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 200)
	if _, err := (&Snappy{}).Decompress(b); err == nil {
		t.Fatal("want error")
	}
}
