package record

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math/rand"
	"testing"
)

func TestUnitMarshal(t *testing.T) {
	tests := []struct {
		r   *Record
		key string
		val string
	}{
		{New(nil, []byte("m1")), "", "m1"},
		{New([]byte("foo"), []byte("m1")), "foo", "m1"},
		{New(nil, nil), "", ""},
	}

	for _, test := range tests {
		b := test.r.Marshal()
		t.Logf("%v %s", b, base64.StdEncoding.EncodeToString(b))
		r, err := Unmarshal(b)
		if err != nil {
			t.Fatal(err)
		}
		if string(r.Key) != test.key {
			t.Fatal(string(r.Key))
		}
		if string(r.Value) != test.val {
			t.Fatal(string(r.Value))
		}
	}
}

func TestUnitMarshalNull(t *testing.T) {
	r, err := Unmarshal(New(nil, nil).Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if r.KeyLen != -1 || r.Key != nil {
		t.Fatal("nil key must marshal as null")
	}
	if r.ValueLen != -1 || r.Value != nil {
		t.Fatal("nil value must marshal as null")
	}
	r, err = Unmarshal(New([]byte{}, []byte{}).Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if r.KeyLen != 0 || r.Key == nil {
		t.Fatal("empty key must stay empty, not null")
	}
}

func TestUnitMarshalHeaders(t *testing.T) {
	in := New([]byte("k"), []byte("v"))
	in.Headers = []Header{
		{Key: "trace-id", Value: []byte("82a5")},
		{Key: "trace-id", Value: []byte("82a6")},
		{Key: "tombstone", Value: nil},
	}
	out, err := Unmarshal(in.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Headers) != 3 {
		t.Fatal(out.Headers)
	}
	if out.Headers[1].Key != "trace-id" || string(out.Headers[1].Value) != "82a6" {
		t.Fatalf("%+v", out.Headers[1])
	}
	if out.Headers[2].Value != nil {
		t.Fatal("null header value must stay null")
	}
}

// recorded from a live broker fetch response
const recordBodyFixture = `EAAABAEEbTMA`

func TestUnitUnmarshal(t *testing.T) {
	b, _ := base64.StdEncoding.DecodeString(recordBodyFixture)
	t.Log(len(b))
	r, err := Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("%+v", r)
	if string(r.Value) != "m3" {
		t.Fatal(string(r.Value))
	}
	if r.KeyLen != -1 {
		t.Fatal(r.KeyLen)
	}
	if r.OffsetDelta != 2 {
		t.Fatal(r.OffsetDelta)
	}
}

func TestUnitUnmarshalTruncated(t *testing.T) {
	full := New([]byte("key"), []byte("value")).Marshal()
	for i := 0; i < len(full); i++ {
		if _, err := Unmarshal(full[:i]); err == nil {
			t.Fatal("want error at", i)
		}
	}
	if _, err := Unmarshal(full); err != nil {
		t.Fatal(err)
	}
}

func TestUnitAppend(t *testing.T) {
	r := New([]byte("foo"), []byte("m1"))
	b := r.Append([]byte{0x01})
	if !bytes.Equal(b[1:], r.Marshal()) {
		t.Fatal(b)
	}
}

func BenchmarkRecord_Marshal(b *testing.B) {
	const messagesN = 1e3
	msgs := make([]*Record, messagesN)
	for i := 0; i < messagesN; i++ {
		key := fmt.Sprintf("key_%d", i)
		val := fmt.Sprintf("value_%d", i)
		r := New([]byte(key), []byte(val))
		r.TimestampDelta = rand.Int63()
		r.OffsetDelta = rand.Int63()
		msgs[i] = r
	}
	buf := make([]byte, 0, 1<<10)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf = msgs[i%messagesN].Append(buf[:0])
	}
}
