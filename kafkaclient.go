/*
Package kafkaclient is a client runtime for producing to and consuming from
Kafka 2.3+. It implements the full client side stack, from the wire format
up: record batches, synchronous single partition clients, a metadata cache,
and on top of those a multi partition Producer and a group-managed Consumer.


Project Scope

The library focuses on non transactional, at-least-once production and
consumption. Intra partition ordering is preserved end to end: records
produced to a partition are acknowledged in offset order, and records
fetched from a partition are delivered to the caller in offset order. There
are no ordering guarantees across partitions.


Get Started

Read the documentation for the "producer" and "consumer" packages. The
lower level packages ("batch", "client") are useful on their own when you
want single partition building blocks without the runtime on top.


Design Decisions

1. Focus on record batches. Produce and Fetch API calls operate on sets of
record batches. The batch is the unit at which data is partitioned,
compressed, and retried. Building and parsing of batches is separate from
producing and fetching.

2. Synchronous single-partition calls. Each topic partition gets its own
connection to the partition leader, and calls on that connection are
synchronous. One request in flight per partition makes ordering structural
and failure handling simple: an error closes the connection, and the next
call reconnects.

3. Callbacks fire on the caller's goroutine. Background workers (batch
dispatch, fetch loops, group heartbeats) never invoke user code. Delivery
callbacks, rebalance callbacks, and async commit results all surface from
Poll (or a call that drives Poll, like Flush), on the goroutine that made
the call. There is never a concurrent callback invocation.

4. Limited use of data hiding. Configuration is exported struct fields with
defaults applied on first use. Internal structures are exposed where that
makes debugging and metrics collection easier.
*/
package kafkaclient

import (
	"fmt"
	"time"

	"github.com/mkocikowski/kafkaclient/batch"
	"github.com/mkocikowski/kafkaclient/record"
)

var (
	// DialTimeout applies to all connection attempts (bootstrap,
	// partition leaders, group coordinators).
	DialTimeout = 5 * time.Second
	// ConnectionTTL, when >0, caps the lifetime of partition leader
	// connections. A connection older than the TTL is closed and
	// re-established on the next call. Zero means no limit.
	ConnectionTTL time.Duration
)

func NewRecord(key, value []byte) *Record {
	return record.New(key, value)
}

type Record = record.Record

type Header = record.Header

type Batch = batch.Batch

// PartitionAny tells the producer to pick the partition (hash of the
// record key, random when there is no key).
const PartitionAny int32 = -1

// Offset sentinels. Where an API accepts an offset, these request a
// position instead of naming one.
const (
	// OffsetBeginning resolves to the low watermark of the partition.
	OffsetBeginning int64 = -2
	// OffsetEnd resolves to the high watermark of the partition.
	OffsetEnd int64 = -1
	// OffsetStored resolves to the offset committed for the group.
	OffsetStored int64 = -1000
	// OffsetInvalid is the zero value for "no offset": watermark queries
	// on unfetched partitions, commit queries with nothing committed.
	OffsetInvalid int64 = -1001
)

// Record batch timestamp types as reported on consumed messages.
const (
	TimestampNotAvailable int8 = iota
	TimestampCreateTime
	TimestampLogAppendTime
)

// TopicPartition names a partition and optionally a position within it.
// Identity is (Topic, Partition); the remaining fields give the type its
// second job as a per-partition result carrier: commit and assignment
// calls return TopicPartitions with Offset and Err set.
type TopicPartition struct {
	Topic       string
	Partition   int32
	Offset      int64
	Metadata    string
	LeaderEpoch int32 // -1 when not known
	Err         error
}

func (tp TopicPartition) String() string {
	if tp.Err != nil {
		return fmt.Sprintf("%s[%d]@%d(%v)", tp.Topic, tp.Partition, tp.Offset, tp.Err)
	}
	return fmt.Sprintf("%s[%d]@%d", tp.Topic, tp.Partition, tp.Offset)
}

// Message is a single record on its way into (producer) or out of
// (consumer) a partition. Consumers receive read-only copies: mutating a
// message returned by Poll has no effect on the fetch buffers. For
// producers, the message is owned by the runtime from Produce until the
// delivery callback fires, at which point TopicPartition.Offset carries
// the assigned offset (or TopicPartition.Err the failure).
type Message struct {
	TopicPartition TopicPartition
	Key            []byte
	Value          []byte
	Headers        []Header
	Timestamp      time.Time
	TimestampType  int8
}

func (m *Message) String() string {
	return fmt.Sprintf("%v %q", m.TopicPartition, m.Value)
}
