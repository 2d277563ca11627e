/*
Package batch implements functions for building, marshaling, and unmarshaling
Kafka record batches.

Producing

When producing messages, call NewBuilder, and Add records to it. Call
Builder.Build and pass the returned Batch to the producer. Release the
reference to Builder when done with it to release references to added records.

Fetching ("consuming")

Fetch result (if successful) will contain RecordSet. Call its Batches method to
get byte slices containing individual batches. Unmarshal each batch
individually. To get individual records, call Batch.Records and then
record.Unmarshal. Passing around batches is much more efficient than passing
individual records, so save record unmarshaling until the very end.
*/
package batch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"reflect"
	"time"

	"github.com/mkocikowski/kafkaclient/compression"
	"github.com/mkocikowski/kafkaclient/record"
	"github.com/mkocikowski/kafkaclient/varint"
	"github.com/mkocikowski/kafkaclient/wire"
)

type Compressor interface {
	Compress([]byte) ([]byte, error)
	Type() int16
}

type Decompressor interface {
	Decompress([]byte) ([]byte, error)
	Type() int16
}

func NewBuilder(now time.Time) *Builder {
	return &Builder{t: now}
}

// Builder is used for building record batches. There is no limit on the number
// of records (up to the user). Not safe for concurrent use.
type Builder struct {
	t       time.Time
	records []*record.Record
}

// Add records to the batch. References to added records are not released on
// call to Build. This means you can add more records and call Build again.
func (b *Builder) Add(records ...*record.Record) {
	b.records = append(b.records, records...)
}

func (b *Builder) AddStrings(values ...string) *Builder {
	for _, s := range values {
		b.records = append(b.records, record.New(nil, []byte(s)))
	}
	return b
}

// NumRecords that have been added to the builder.
func (b *Builder) NumRecords() int {
	return len(b.records)
}

var (
	ErrEmpty     = errors.New("empty batch")
	ErrNilRecord = errors.New("nil record in batch")
)

// Build a record batch (marshal individual records and set batch metadata).
// Call this after adding records to the batch. Returns ErrEmpty if batch has
// no records. Returns ErrNilRecord if any of the records is nil. Marshaled
// records are not compressed (call Batch.Compress). Batch FirstTimestamp is
// the earliest record timestamp and MaxTimestamp the latest; records that do
// not carry a timestamp get the time the builder was created with (or now,
// when the builder was created with the zero time). Record
// TimestampDelta and OffsetDelta are set relative to the batch. Idempotent.
func (b *Builder) Build(now time.Time) (*Batch, error) {
	if len(b.records) == 0 {
		return nil, ErrEmpty
	}
	defaultMs := b.t.UnixNano() / int64(time.Millisecond)
	if b.t.IsZero() {
		defaultMs = now.UnixNano() / int64(time.Millisecond)
	}
	var first, max int64
	for i, r := range b.records {
		if r == nil {
			return nil, ErrNilRecord
		}
		ts := r.TimestampMs
		if ts == 0 {
			ts = defaultMs
		}
		if i == 0 || ts < first {
			first = ts
		}
		if ts > max {
			max = ts
		}
	}
	buf := make([]byte, 0, 1<<10)
	for i, r := range b.records {
		ts := r.TimestampMs
		if ts == 0 {
			ts = defaultMs
		}
		r.TimestampDelta = ts - first
		r.OffsetDelta = int64(i)
		buf = r.Append(buf)
	}
	return &Batch{
		BatchLengthBytes: int32(headerLength + len(buf)),
		Magic:            2,
		Attributes:       compression.TypeNone,
		LastOffsetDelta:  int32(len(b.records) - 1),
		FirstTimestamp:   first,
		MaxTimestamp:     max,
		ProducerId:       -1,
		ProducerEpoch:    -1,
		NumRecords:       int32(len(b.records)),
		MarshaledRecords: buf,
	}, nil
}

var (
	CorruptedBatchError = errors.New("batch crc does not match bytes")
	crc32c              = crc32.MakeTable(crc32.Castagnoli)
)

// headerLength is the number of batch header bytes counted by
// BatchLengthBytes (PartitionLeaderEpoch through NumRecords).
const headerLength = 49

// crcOffset is where the Crc field sits in the marshaled batch. The crc
// covers everything after it.
const crcOffset = 17

// Unmarshal the batch. On error batch is nil. If there is an error, it is most
// likely because the crc failed. In that case there is no way to tell how many
// records there were in the batch (and to adjust offsets accordingly).
func Unmarshal(b []byte) (*Batch, error) {
	buf := bytes.NewBuffer(b)
	batch := &Batch{}
	if err := wire.Read(buf, reflect.ValueOf(batch)); err != nil {
		return nil, err
	}
	batch.MarshaledRecords = buf.Bytes() // the remainder is the record bodies
	crc := crc32.Checksum(b[crcOffset+4:], crc32c)
	if crc != batch.Crc {
		return nil, CorruptedBatchError
	}
	return batch, nil
}

// Batch defines Kafka record batch in wire format. Not safe for concurrent use.
type Batch struct {
	BaseOffset           int64
	BatchLengthBytes     int32
	PartitionLeaderEpoch int32
	Magic                int8 // this should be =2
	Crc                  uint32
	Attributes           int16
	LastOffsetDelta      int32 // NumRecords-1
	FirstTimestamp       int64 // ms since epoch
	MaxTimestamp         int64 // ms since epoch
	ProducerId           int64 // for transactions only see KIP-360
	ProducerEpoch        int16 // for transactions only see KIP-360
	BaseSequence         int32
	NumRecords           int32 // LastOffsetDelta+1
	//
	MarshaledRecords []byte `wire:"omit" json:"-"`
}

func (batch *Batch) CompressionType() int16 {
	return batch.Attributes & 0b111
}

const (
	TimestampCreate    = 0b0000
	TimestampLogAppend = 0b1000
)

func (batch *Batch) TimestampType() int16 {
	return batch.Attributes & 0b1000
}

func (batch *Batch) LastOffset() int64 {
	return batch.BaseOffset + int64(batch.LastOffsetDelta)
}

// RecordTimestamp resolves the absolute timestamp (ms since epoch) of a
// record in this batch. When the broker overwrote timestamps
// (TimestampLogAppend), all records carry the append time.
func (batch *Batch) RecordTimestamp(r *record.Record) int64 {
	if batch.TimestampType() == TimestampLogAppend {
		return batch.MaxTimestamp
	}
	return batch.FirstTimestamp + r.TimestampDelta
}

// Size in bytes of the marshaled batch.
func (batch *Batch) Size() int {
	return 12 + int(batch.BatchLengthBytes)
}

// Marshal batch header and append marshaled records. If you want the batch to
// be compressed call Compress before Marshal. Mutates the batch Crc.
func (batch *Batch) Marshal() RecordSet {
	buf := new(bytes.Buffer)
	if err := wire.Write(buf, reflect.ValueOf(batch)); err != nil {
		panic(err)
	}
	buf.Write(batch.MarshaledRecords)
	b := buf.Bytes()
	batch.Crc = crc32.Checksum(b[crcOffset+4:], crc32c)
	binary.BigEndian.PutUint32(b[crcOffset:], batch.Crc)
	return b
}

// Compress batch records with supplied compressor. Mutates batch on success
// only. Call before Marshal. Not idempotent (on success).
func (batch *Batch) Compress(c Compressor) error {
	b, err := c.Compress(batch.MarshaledRecords)
	if err != nil {
		return fmt.Errorf("error compressing batch records: %w", err)
	}
	batch.BatchLengthBytes = int32(headerLength + len(b))
	batch.Attributes = (batch.Attributes &^ 0b111) | c.Type()
	batch.Crc = 0 // invalidate crc
	batch.MarshaledRecords = b
	return nil
}

// Decompress batch with supplied decompressor. Mutates batch. Call after
// Unmarshal and before Records. Not idempotent.
func (batch *Batch) Decompress(d Decompressor) error {
	b, err := d.Decompress(batch.MarshaledRecords)
	if err != nil {
		return fmt.Errorf("error decompressing record batch: %w", err)
	}
	batch.BatchLengthBytes = int32(headerLength + len(b))
	batch.Attributes = batch.Attributes &^ 0b111
	batch.Crc = 0 // invalidate crc
	batch.MarshaledRecords = b
	return nil
}

// Records retrieves individual records from the batch. If batch records are
// compressed you must call Decompress first. A corrupt or truncated tail is
// dropped.
func (batch *Batch) Records() [][]byte {
	var records [][]byte
	for b := batch.MarshaledRecords; len(b) > 0; {
		length, n := varint.DecodeZigZag64(b)
		if n == 0 || length < 0 {
			break
		}
		end := n + int(length)
		if end > len(b) {
			break
		}
		records = append(records, b[0:end])
		b = b[end:]
	}
	return records
}

// RecordSet is composed of 1 or more record batches. Fetch API calls respond
// with record sets. Byte representation of a record set with only one record
// batch is identical to the record batch.
type RecordSet []byte

// Batches returns the batches in the record set. Because Kafka limits response
// byte sizes, the last record batch in the set may be truncated (bytes will be
// missing from the end). In such case the last batch is discarded.
func (b RecordSet) Batches() [][]byte {
	var batches [][]byte
	var offset int64
	var length int32
	for {
		if len(b) == 0 {
			break
		}
		r := bytes.NewReader(b)
		if err := binary.Read(r, binary.BigEndian, &offset); err != nil {
			break
		}
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			break
		}
		n := int(length + 8 + 4)
		if n <= 12 || len(b) < n {
			break // "incomplete" batch
		}
		batches = append(batches, b[:n])
		b = b[n:]
	}
	return batches
}
