// Package record implements functions for marshaling and unmarshaling individual Kafka records.
package record

import (
	"errors"
	"fmt"

	"github.com/mkocikowski/kafkaclient/varint"
)

var ErrTruncated = errors.New("truncated data")

// Unmarshal a single record (magic 2 framing). Input must begin at the
// record length varint; bytes past the declared record length are
// ignored, so the caller can pass the tail of a batch body.
func Unmarshal(b []byte) (*Record, error) {
	r := &Record{}
	var offset, n int
	r.Len, offset = varint.DecodeZigZag64(b)
	if offset == 0 {
		return nil, fmt.Errorf("error decoding record length: %w", ErrTruncated)
	}
	if r.Len < 1 || int64(len(b)-offset) < r.Len {
		return nil, fmt.Errorf("error decoding record body: %w", ErrTruncated)
	}
	b = b[offset : offset+int(r.Len)]
	r.Attributes = int8(b[0])
	offset = 1
	r.TimestampDelta, n = varint.DecodeZigZag64(b[offset:])
	if n == 0 {
		return nil, fmt.Errorf("error decoding record timestamp delta: %w", ErrTruncated)
	}
	offset += n
	r.OffsetDelta, n = varint.DecodeZigZag64(b[offset:])
	if n == 0 {
		return nil, fmt.Errorf("error decoding record offset delta: %w", ErrTruncated)
	}
	offset += n
	r.KeyLen, n = varint.DecodeZigZag64(b[offset:])
	if n == 0 {
		return nil, fmt.Errorf("error decoding record key length: %w", ErrTruncated)
	}
	offset += n
	switch {
	case r.KeyLen > 0:
		if int64(len(b)-offset) < r.KeyLen {
			return nil, fmt.Errorf("error decoding record key: %w", ErrTruncated)
		}
		r.Key = make([]byte, r.KeyLen)
		offset += copy(r.Key, b[offset:])
	case r.KeyLen == 0:
		r.Key = []byte{}
	}
	r.ValueLen, n = varint.DecodeZigZag64(b[offset:])
	if n == 0 {
		return nil, fmt.Errorf("error decoding record value length: %w", ErrTruncated)
	}
	offset += n
	switch {
	case r.ValueLen > 0:
		if int64(len(b)-offset) < r.ValueLen {
			return nil, fmt.Errorf("error decoding record value: %w", ErrTruncated)
		}
		r.Value = make([]byte, r.ValueLen)
		offset += copy(r.Value, b[offset:])
	case r.ValueLen == 0:
		r.Value = []byte{}
	}
	headers, n := varint.DecodeZigZag64(b[offset:])
	if n == 0 || headers < 0 {
		return nil, fmt.Errorf("error decoding record header count: %w", ErrTruncated)
	}
	offset += n
	for i := int64(0); i < headers; i++ {
		var h Header
		keyLen, n := varint.DecodeZigZag64(b[offset:])
		if n == 0 || keyLen < 0 {
			return nil, fmt.Errorf("error decoding record header key length: %w", ErrTruncated)
		}
		offset += n
		if len(b)-offset < int(keyLen) {
			return nil, fmt.Errorf("error decoding record header key: %w", ErrTruncated)
		}
		h.Key = string(b[offset : offset+int(keyLen)])
		offset += int(keyLen)
		valLen, n := varint.DecodeZigZag64(b[offset:])
		if n == 0 {
			return nil, fmt.Errorf("error decoding record header value length: %w", ErrTruncated)
		}
		offset += n
		if valLen >= 0 {
			if int64(len(b)-offset) < valLen {
				return nil, fmt.Errorf("error decoding record header value: %w", ErrTruncated)
			}
			h.Value = make([]byte, valLen)
			offset += copy(h.Value, b[offset:])
		}
		r.Headers = append(r.Headers, h)
	}
	return r, nil
}

// New record with given key and value. Nil key (or value) is marshaled
// as null, which is distinct from empty.
func New(key, value []byte) *Record {
	r := &Record{
		KeyLen:   int64(len(key)),
		Key:      key,
		ValueLen: int64(len(value)),
		Value:    value,
	}
	if key == nil {
		r.KeyLen = -1
	}
	if value == nil {
		r.ValueLen = -1
	}
	return r
}

// Header is a single record header. Header keys are not required to be
// unique within a record.
type Header struct {
	Key   string
	Value []byte
}

type Record struct {
	Len            int64
	Attributes     int8
	TimestampDelta int64
	OffsetDelta    int64
	KeyLen         int64
	Key            []byte
	ValueLen       int64
	Value          []byte
	Headers        []Header
	// TimestampMs is the absolute record timestamp (ms since epoch). It
	// is not part of the record wire format: batch builders use it to
	// compute TimestampDelta, and batch parsers resolve it from the
	// batch timestamps. Zero means "not set".
	TimestampMs int64
}

// Append marshals the record and appends it to dst, returning the
// extended slice. Record Len is not consulted (the length prefix is
// computed from the marshaled body).
func (r *Record) Append(dst []byte) []byte {
	var buf [varint.MaxLen64]byte
	body := r.appendFields(make([]byte, 0, 32+len(r.Key)+len(r.Value)), buf[:])
	dst = varint.PutZigZag64(dst, buf[:], int64(len(body)))
	return append(dst, body...)
}

func (r *Record) appendFields(b, buf []byte) []byte {
	b = append(b, byte(r.Attributes))
	b = varint.PutZigZag64(b, buf, r.TimestampDelta)
	b = varint.PutZigZag64(b, buf, r.OffsetDelta)
	b = varint.PutZigZag64(b, buf, r.KeyLen)
	b = append(b, r.Key...)
	b = varint.PutZigZag64(b, buf, r.ValueLen)
	b = append(b, r.Value...)
	b = varint.PutZigZag64(b, buf, int64(len(r.Headers)))
	for i := range r.Headers {
		h := &r.Headers[i]
		b = varint.PutZigZag64(b, buf, int64(len(h.Key)))
		b = append(b, h.Key...)
		if h.Value == nil {
			b = varint.PutZigZag64(b, buf, -1)
			continue
		}
		b = varint.PutZigZag64(b, buf, int64(len(h.Value)))
		b = append(b, h.Value...)
	}
	return b
}

func (r *Record) Marshal() []byte {
	return r.Append(nil)
}
