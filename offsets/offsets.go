// Package offsets tracks, per topic partition, the two offsets a consumer
// cares about: the fetch position (offset of the next record to fetch) and
// the committed offset (offset of the next record to consume as recorded
// with the group coordinator). The two move independently: the position
// advances with every fetch, the committed offset only when the user
// commits. The store also caches partition watermarks, which ride along for
// free in every fetch response.
//
// The store is pure state: it makes no api calls. The consumer package feeds
// it and the numbers come out in Lag and Snapshot.
package offsets

import (
	"sync"
	"time"

	"github.com/mkocikowski/kafkaclient"
)

type tp struct {
	topic     string
	partition int32
}

// Watermarks are the partition's low and high water marks: the first offset
// in the log, and the offset the next produced record will get.
type Watermarks struct {
	Low  int64
	High int64
	// At is when the broker reported these values. They are stale the
	// moment they are read, more so as At recedes.
	At time.Time
}

type Store struct {
	sync.Mutex
	positions map[tp]int64
	committed map[tp]int64
	marks     map[tp]Watermarks
}

func NewStore() *Store {
	return &Store{
		positions: make(map[tp]int64),
		committed: make(map[tp]int64),
		marks:     make(map[tp]Watermarks),
	}
}

// SetPosition records the offset of the next record to fetch for the topic
// partition.
func (s *Store) SetPosition(topic string, partition int32, offset int64) {
	s.Lock()
	s.positions[tp{topic, partition}] = offset
	s.Unlock()
}

// Position returns the offset of the next record to fetch, false if the
// partition is not tracked.
func (s *Store) Position(topic string, partition int32) (int64, bool) {
	s.Lock()
	defer s.Unlock()
	offset, ok := s.positions[tp{topic, partition}]
	return offset, ok
}

// CheckCommit says whether committing the offset would be consistent with
// what has been fetched: a consumer must not commit past its fetch position
// (the offset committed is the offset of the next record to consume, so
// committing exactly the position is the common case). Committing a
// partition with no tracked position is allowed: the caller is committing
// offsets it obtained some other way. Returns ERR_LOCAL_STATE on violation.
func (s *Store) CheckCommit(topic string, partition int32, offset int64) error {
	s.Lock()
	defer s.Unlock()
	position, ok := s.positions[tp{topic, partition}]
	if !ok {
		return nil
	}
	if offset > position {
		return &kafkaclient.Error{
			Code:    kafkaclient.ERR_LOCAL_STATE,
			Message: "commit past fetch position",
		}
	}
	return nil
}

// SetCommitted records the committed offset (offset of the next record to
// consume) for the topic partition.
func (s *Store) SetCommitted(topic string, partition int32, offset int64) {
	s.Lock()
	s.committed[tp{topic, partition}] = offset
	s.Unlock()
}

// Committed returns the last recorded committed offset, false if none has
// been recorded.
func (s *Store) Committed(topic string, partition int32) (int64, bool) {
	s.Lock()
	defer s.Unlock()
	offset, ok := s.committed[tp{topic, partition}]
	return offset, ok
}

// SetWatermarks caches the partition watermarks, timestamping them.
func (s *Store) SetWatermarks(topic string, partition int32, low, high int64) {
	s.Lock()
	s.marks[tp{topic, partition}] = Watermarks{Low: low, High: high, At: time.Now().UTC()}
	s.Unlock()
}

// Watermarks returns the cached partition watermarks, false if none are
// cached. For fresh values make a ListOffsets call instead.
func (s *Store) Watermarks(topic string, partition int32) (Watermarks, bool) {
	s.Lock()
	defer s.Unlock()
	w, ok := s.marks[tp{topic, partition}]
	return w, ok
}

// Lag is the difference between the partition high watermark and the fetch
// position: how many records are in the log past the one the consumer will
// fetch next. Returns -1 when the position or the watermarks are not
// tracked. Based on cached watermarks, so a lower bound when producers are
// active.
func (s *Store) Lag(topic string, partition int32) int64 {
	s.Lock()
	defer s.Unlock()
	key := tp{topic, partition}
	position, ok := s.positions[key]
	if !ok {
		return -1
	}
	marks, ok := s.marks[key]
	if !ok {
		return -1
	}
	if lag := marks.High - position; lag >= 0 {
		return lag
	}
	return 0
}

// Drop forgets all state for the topic partition. Called when a partition
// is revoked: the next assignee starts from the committed offset, and stale
// local state must not leak into a future assignment.
func (s *Store) Drop(topic string, partition int32) {
	s.Lock()
	key := tp{topic, partition}
	delete(s.positions, key)
	delete(s.committed, key)
	delete(s.marks, key)
	s.Unlock()
}

// DropAll forgets all state for all partitions.
func (s *Store) DropAll() {
	s.Lock()
	s.positions = make(map[tp]int64)
	s.committed = make(map[tp]int64)
	s.marks = make(map[tp]Watermarks)
	s.Unlock()
}

// Snapshot returns the tracked fetch positions, topic -> partition ->
// offset. The shape is what an offset commit request builder wants.
func (s *Store) Snapshot() map[string]map[int32]int64 {
	s.Lock()
	defer s.Unlock()
	out := make(map[string]map[int32]int64)
	for key, offset := range s.positions {
		if out[key.topic] == nil {
			out[key.topic] = make(map[int32]int64)
		}
		out[key.topic][key.partition] = offset
	}
	return out
}

// Dirty returns positions that have advanced past the recorded committed
// offset, topic -> partition -> position. These are the partitions an auto
// commit needs to flush.
func (s *Store) Dirty() map[string]map[int32]int64 {
	s.Lock()
	defer s.Unlock()
	out := make(map[string]map[int32]int64)
	for key, position := range s.positions {
		if committed, ok := s.committed[key]; ok && committed >= position {
			continue
		}
		if out[key.topic] == nil {
			out[key.topic] = make(map[int32]int64)
		}
		out[key.topic][key.partition] = position
	}
	return out
}
