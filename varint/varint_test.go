package varint

import (
	"bytes"
	"math"
	"testing"
)

func TestZigZag64(t *testing.T) {
	tests := []int64{0, 1, -1, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	for _, tt := range tests {
		b := EncodeZigZag64(tt)
		i, _ := DecodeZigZag64(b)
		if i != tt {
			t.Fatal(tt, i)
		}
		//t.Log(tt, b, i)
	}
}

func TestPutZigZag64(t *testing.T) {
	var buf [MaxLen64]byte
	b := PutZigZag64([]byte{0xff}, buf[:], -301)
	if !bytes.Equal(b[1:], EncodeZigZag64(-301)) {
		t.Fatal(b)
	}
	if b[0] != 0xff {
		t.Fatal("dst prefix must be preserved")
	}
}

func TestDecodeVarintTruncated(t *testing.T) {
	b := EncodeZigZag64(math.MaxInt64)
	if _, n := DecodeZigZag64(b[:len(b)-1]); n != 0 {
		t.Fatal(n)
	}
	if _, n := DecodeVarint(nil); n != 0 {
		t.Fatal(n)
	}
}
