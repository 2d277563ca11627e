package consumer

import (
	"time"

	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api/OffsetCommit"
	"github.com/mkocikowski/kafkaclient/api/OffsetFetch"
	"github.com/mkocikowski/kafkaclient/metrics"
)

// Commit synchronously commits the current positions (one past the last
// record delivered by Poll) of all partitions that have a position.
// No-op when nothing has been delivered or seeked yet.
func (c *Consumer) Commit() error {
	c.init()
	return c.commitSync(c.positions())
}

// CommitMessage synchronously commits m.Offset+1 for the message's
// partition, marking everything up to and including m as consumed.
func (c *Consumer) CommitMessage(m *kafkaclient.Message) error {
	c.init()
	tps, err := messageCommit(m)
	if err != nil {
		return err
	}
	return c.commitSync(tps)
}

// CommitOffsets synchronously commits the given offsets. Offsets name
// the next record to consume, not the last record consumed. Returns the
// partitions with Err set on the ones that failed.
func (c *Consumer) CommitOffsets(partitions []kafkaclient.TopicPartition) ([]kafkaclient.TopicPartition, error) {
	c.init()
	return c.commitOffsets(partitions)
}

// CommitAsync queues a commit of the current positions. The result
// surfaces through the OnCommit callback on a later Poll.
func (c *Consumer) CommitAsync() error {
	c.init()
	return c.enqueueCommit(c.positions())
}

// CommitMessageAsync queues a commit of m.Offset+1 for the message's
// partition. The result surfaces through OnCommit.
func (c *Consumer) CommitMessageAsync(m *kafkaclient.Message) error {
	c.init()
	tps, err := messageCommit(m)
	if err != nil {
		return err
	}
	return c.enqueueCommit(tps)
}

// CommitOffsetsAsync queues a commit of the given offsets. The result
// surfaces through OnCommit.
func (c *Consumer) CommitOffsetsAsync(partitions []kafkaclient.TopicPartition) error {
	c.init()
	return c.enqueueCommit(copyPartitions(partitions))
}

func (c *Consumer) commitSync(tps []kafkaclient.TopicPartition) error {
	if len(tps) == 0 {
		return nil
	}
	_, err := c.commitOffsets(tps)
	return err
}

func messageCommit(m *kafkaclient.Message) ([]kafkaclient.TopicPartition, error) {
	if m == nil || m.TopicPartition.Topic == "" {
		return nil, &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: "no message"}
	}
	if m.TopicPartition.Err != nil {
		return nil, &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: "message carries an error, not a record"}
	}
	p := m.TopicPartition
	p.Offset++
	return []kafkaclient.TopicPartition{p}, nil
}

// commitOffsets is the shared core of all the commit calls. It
// validates the offsets against the fetch positions (committing past
// what was fetched is refused locally), makes the call under the
// current group generation, and on success records the offsets as
// committed. Retriable broker errors are retried with backoff, up to
// Retries times. Generation errors (the group rebalanced underneath
// the commit) are not retried: the offsets belong to an assignment
// that no longer exists.
func (c *Consumer) commitOffsets(tps []kafkaclient.TopicPartition) ([]kafkaclient.TopicPartition, error) {
	out := copyPartitions(tps)
	if c.GroupId == "" {
		return out, &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "no group id"}
	}
	for _, p := range out {
		if err := c.store.CheckCommit(p.Topic, p.Partition, p.Offset); err != nil {
			metrics.CommitErrors.WithLabelValues(c.GroupId).Inc()
			return out, err
		}
	}
	offsets := make(map[string]map[int32]OffsetCommit.Commit)
	for _, p := range out {
		if offsets[p.Topic] == nil {
			offsets[p.Topic] = make(map[int32]OffsetCommit.Commit)
		}
		offsets[p.Topic][p.Partition] = OffsetCommit.Commit{Offset: p.Offset, Metadata: p.Metadata}
	}
	c.mu.Lock()
	generation, memberId := c.generation, c.memberId
	c.mu.Unlock()
	args := &OffsetCommit.Args{
		GenerationId:    generation,
		MemberId:        memberId,
		RetentionTimeMs: -1,
		Offsets:         offsets,
	}
	var err error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(c.RetryBackoff << (attempt - 1))
		}
		if err = c.commit(args, out); err == nil {
			break
		}
		c.Logger.Debug("commit failed",
			zap.String("group", c.GroupId),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !kafkaclient.Retriable(kafkaclient.Code(err)) {
			break
		}
	}
	if err != nil {
		metrics.CommitErrors.WithLabelValues(c.GroupId).Inc()
		return out, err
	}
	for _, p := range out {
		c.store.SetCommitted(p.Topic, p.Partition, p.Offset)
	}
	metrics.OffsetCommits.WithLabelValues(c.GroupId).Inc()
	return out, nil
}

// commit makes one offset commit call and maps the per partition
// response codes back onto out. Returns the first partition error.
func (c *Consumer) commit(args *OffsetCommit.Args, out []kafkaclient.TopicPartition) error {
	for i := range out {
		out[i].Err = nil
	}
	resp, err := c.group.Commit(args)
	if err != nil {
		return err
	}
	var firstErr error
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if p.ErrorCode == kafkaclient.ERR_NONE {
				continue
			}
			err := &kafkaclient.Error{Code: p.ErrorCode}
			for i := range out {
				if out[i].Topic == t.Name && out[i].Partition == p.PartitionIndex {
					out[i].Err = err
				}
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Consumer) enqueueCommit(tps []kafkaclient.TopicPartition) error {
	if len(tps) == 0 {
		return nil
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "consumer is closed"}
	}
	select {
	case c.commits <- tps:
		return nil
	default:
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_QUEUE_FULL, Message: "commit queue is full"}
	}
}

// committer runs async commits off the caller's goroutine, one at a
// time, in order.
func (c *Consumer) committer() {
	defer c.commitWg.Done()
	for {
		select {
		case <-c.committerDone:
			return
		case tps := <-c.commits:
			result, err := c.commitOffsets(tps)
			c.report(commitEvent{partitions: result, err: err})
		}
	}
}

// report queues a commit result for delivery by Poll. Results are
// droppable: when the caller is not polling they go to the log instead.
func (c *Consumer) report(e commitEvent) {
	select {
	case c.events <- e:
	default:
		c.Logger.Debug("commit result dropped, caller not polling",
			zap.Int("partitions", len(e.partitions)),
			zap.Error(e.err))
	}
}

// positions snapshots the current positions of all partitions that have
// one.
func (c *Consumer) positions() []kafkaclient.TopicPartition {
	var tps []kafkaclient.TopicPartition
	for topic, partitions := range c.store.Snapshot() {
		for partition, offset := range partitions {
			tps = append(tps, kafkaclient.TopicPartition{
				Topic:       topic,
				Partition:   partition,
				Offset:      offset,
				LeaderEpoch: -1,
			})
		}
	}
	return tps
}

// Committed fetches the offsets committed for the group, for the given
// partitions, from the coordinator. Partitions with nothing committed
// get OffsetInvalid. On timeout the coordinator connection is torn down
// and the call fails with ERR_LOCAL_TIMED_OUT; zero or negative timeout
// means wait on the transport.
func (c *Consumer) Committed(partitions []kafkaclient.TopicPartition, timeout time.Duration) ([]kafkaclient.TopicPartition, error) {
	c.init()
	if c.GroupId == "" {
		return nil, &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "no group id"}
	}
	topics := make(map[string][]int32)
	for _, p := range partitions {
		topics[p.Topic] = append(topics[p.Topic], p.Partition)
	}
	var resp *OffsetFetch.Response
	err := callWithTimeout(timeout, func() { c.group.Close() }, func() error {
		r, err := c.group.FetchOffsets(topics)
		if err != nil {
			return err
		}
		if err := r.Err(); err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	committed := make(map[tp]*OffsetFetch.PartitionResponse)
	for i := range resp.Topics {
		t := &resp.Topics[i]
		for j := range t.Partitions {
			committed[tp{t.Name, t.Partitions[j].PartitionIndex}] = &t.Partitions[j]
		}
	}
	out := copyPartitions(partitions)
	for i := range out {
		out[i].Offset = kafkaclient.OffsetInvalid
		p, ok := committed[tp{out[i].Topic, out[i].Partition}]
		if !ok {
			continue
		}
		if p.ErrorCode != kafkaclient.ERR_NONE {
			out[i].Err = &kafkaclient.Error{Code: p.ErrorCode}
			continue
		}
		if p.CommitedOffset >= 0 {
			out[i].Offset = p.CommitedOffset
			out[i].Metadata = p.Metadata
		}
	}
	return out, nil
}
