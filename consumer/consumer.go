/*
Package consumer implements the multi partition consuming runtime: group
membership with partition assignment, per partition fetch loops feeding
a shared bounded queue, offset tracking, and commits.

A Consumer is either subscribed (Subscribe: the group coordinator
assigns partitions, and reassigns them as members come and go) or
assigned (Assign: the caller names the partitions, no group protocol).
Either way each partition gets its own fetch loop with its own
connection to the partition leader, and records flow through a single
bounded queue to Poll.

Everything the caller observes happens on the caller's goroutine, from
inside Poll (or a call that drives it, like Consume): messages, the
rebalance callbacks, async commit results. Background goroutines fetch
and heartbeat but never run user code. A consumer that stops polling
stops acknowledging rebalances, and the coordinator evicts it after the
rebalance timeout; polling regularly is part of the contract.

Positions (the offset after the last record delivered by Poll) drive
commits: Commit and CommitAsync commit positions, CommitMessage commits
one past a specific record. Committing an offset the consumer has not
reached is refused locally with ERR_LOCAL_STATE.
*/
package consumer

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api/ListOffsets"
	"github.com/mkocikowski/kafkaclient/batch"
	"github.com/mkocikowski/kafkaclient/client"
	"github.com/mkocikowski/kafkaclient/client/fetcher"
	"github.com/mkocikowski/kafkaclient/compression"
	"github.com/mkocikowski/kafkaclient/metadata"
	"github.com/mkocikowski/kafkaclient/metrics"
	"github.com/mkocikowski/kafkaclient/offsets"
)

const (
	defaultMinBytes          = 1
	defaultMaxBytes          = 10 << 20
	defaultMaxWaitTimeMs     = 500
	defaultQueueCapacity     = 1000
	defaultHeartbeatInterval = 3 * time.Second
	defaultRetries           = 3
	defaultRetryBackoff      = 100 * time.Millisecond
	// eventBuffer sizes the rebalance/commit event channel. Rebalance
	// events block until queued (they can not be lost); commit results
	// are dropped with a log line when the buffer is full.
	eventBuffer = 64
	// commitBuffer is how many async commits can be pending.
	commitBuffer = 16
)

// RebalanceCb is called, from inside Poll, with the partitions being
// assigned to or revoked from this consumer.
type RebalanceCb func([]kafkaclient.TopicPartition)

// OnCommit is called, from inside Poll, with the result of an auto or
// async commit. The partitions carry the committed offsets, and Err on
// the ones that failed.
type OnCommit func([]kafkaclient.TopicPartition, error)

type tp struct {
	topic     string
	partition int32
}

// Events flowing from the background goroutines to Poll. Only Poll (on
// the caller's goroutine) acts on them.
type assignEvent struct {
	partitions []kafkaclient.TopicPartition
}

type revokeEvent struct {
	partitions []kafkaclient.TopicPartition
	// ack is closed by Poll once the revoke callback ran and the
	// fetchers are stopped; membership waits for it before rejoining.
	ack chan struct{}
}

type commitEvent struct {
	partitions []kafkaclient.TopicPartition
	err        error
}

// Consumer is the multi partition, optionally group managed, consumer
// runtime. Safe default zero values for everything but Bootstrap (and
// GroupId, for Subscribe); configuration fields must not be changed
// after the first method call.
type Consumer struct {
	// Bootstrap is the "host:port" of any broker in the cluster.
	Bootstrap string
	TLS       *tls.Config
	ClientId  string
	// GroupId is required for Subscribe and for commits. A Consumer
	// with no group id can still Assign and fetch.
	GroupId string
	// MinBytes a fetch response should carry; brokers wait up to
	// MaxWaitTimeMs for it to accumulate. Default 1.
	MinBytes int32
	// MaxBytes a fetch response may carry. This caps memory per fetch
	// cycle per partition. Default 10MB.
	MaxBytes int32
	// MaxWaitTimeMs the broker holds a fetch request waiting for
	// MinBytes. Default 500ms.
	MaxWaitTimeMs int32
	// OffsetReset says where to start when there is no committed
	// offset (and after a fetch falls out of the log's retention
	// range): "earliest" (default) or "latest".
	OffsetReset string
	// SessionTimeoutMs: no heartbeat for this long and the coordinator
	// evicts the member. Zero means the group client default (10s).
	SessionTimeoutMs int32
	// RebalanceTimeoutMs: how long the coordinator waits for members
	// to rejoin during a rebalance. Zero means the group client
	// default (60s).
	RebalanceTimeoutMs int32
	// HeartbeatInterval between heartbeats to the coordinator. Must be
	// comfortably under the session timeout. Default 3s.
	HeartbeatInterval time.Duration
	// AutoCommitInterval, when >0, commits advanced positions in the
	// background that often. Results surface through OnCommit. Zero
	// (the default) means commits are explicit.
	AutoCommitInterval time.Duration
	// QueueCapacity bounds the shared fetch queue (in records). Full
	// queue blocks the fetch loops, not the caller. Default 1000.
	QueueCapacity int
	// Retries for commit calls that fail with retriable codes. Zero
	// means default (3), negative means no retries.
	Retries int
	// RetryBackoff before the first commit retry, doubling for each
	// retry after. Also the base backoff of the fetch and join loops
	// (which retry until closed). Default 100ms.
	RetryBackoff time.Duration
	// Decompressors for the compression types fetched records may
	// carry. Defaults to all supported codecs. A batch compressed with
	// anything else fails the partition.
	Decompressors []batch.Decompressor
	// Assignor computes partition assignments when this member leads
	// the group. All members must run the same protocol. Default
	// Range.
	Assignor *Assignor
	// OnCommit receives auto and async commit results. Nil means
	// failed background commits are only logged.
	OnCommit OnCommit
	// Metadata is the cluster metadata cache. Set it to share one
	// cache between clients; nil means the consumer creates its own.
	Metadata *metadata.Cache
	// Logger for runtime events. Nil means no logging.
	Logger *zap.Logger

	once          sync.Once
	mu            sync.Mutex
	group         *client.GroupClient
	store         *offsets.Store
	queue         chan *fetched
	events        chan interface{}
	fetchers      map[tp]*partitionFetcher
	fetchWg       sync.WaitGroup
	assignment    []kafkaclient.TopicPartition
	subscription  []string
	onAssign      RebalanceCb
	onRevoke      RebalanceCb
	memberId      string
	generation    int32
	subscribed    bool
	closed        bool
	memberDone    chan struct{}
	memberWg      sync.WaitGroup
	commits       chan []kafkaclient.TopicPartition
	committerDone chan struct{}
	commitWg      sync.WaitGroup
	decompressors map[int16]batch.Decompressor
}

func (c *Consumer) init() {
	c.once.Do(func() {
		if c.MinBytes == 0 {
			c.MinBytes = defaultMinBytes
		}
		if c.MaxBytes == 0 {
			c.MaxBytes = defaultMaxBytes
		}
		if c.MaxWaitTimeMs == 0 {
			c.MaxWaitTimeMs = defaultMaxWaitTimeMs
		}
		if c.QueueCapacity == 0 {
			c.QueueCapacity = defaultQueueCapacity
		}
		if c.HeartbeatInterval == 0 {
			c.HeartbeatInterval = defaultHeartbeatInterval
		}
		switch {
		case c.Retries == 0:
			c.Retries = defaultRetries
		case c.Retries < 0:
			c.Retries = 0
		}
		if c.RetryBackoff == 0 {
			c.RetryBackoff = defaultRetryBackoff
		}
		if c.Logger == nil {
			c.Logger = zap.NewNop()
		}
		if c.Assignor == nil {
			c.Assignor = Range
		}
		if c.Decompressors == nil {
			c.Decompressors = []batch.Decompressor{
				&compression.Nop{},
				&compression.Gzip{},
				&compression.Snappy{},
				&compression.Lz4{},
				&compression.Zstd{},
			}
		}
		c.decompressors = make(map[int16]batch.Decompressor)
		for _, d := range c.Decompressors {
			c.decompressors[d.Type()] = d
		}
		if c.Metadata == nil {
			c.Metadata = &metadata.Cache{
				Bootstrap: c.Bootstrap,
				TLS:       c.TLS,
				ClientId:  c.ClientId,
				Logger:    c.Logger,
			}
		}
		c.group = &client.GroupClient{
			Bootstrap:          c.Bootstrap,
			TLS:                c.TLS,
			ClientId:           c.ClientId,
			GroupId:            c.GroupId,
			SessionTimeoutMs:   c.SessionTimeoutMs,
			RebalanceTimeoutMs: c.RebalanceTimeoutMs,
			Logger:             c.Logger,
		}
		c.store = offsets.NewStore()
		c.queue = make(chan *fetched, c.QueueCapacity)
		c.events = make(chan interface{}, eventBuffer)
		c.fetchers = make(map[tp]*partitionFetcher)
		c.generation = -1 // "simple" commits until a group is joined
		c.commits = make(chan []kafkaclient.TopicPartition, commitBuffer)
		c.committerDone = make(chan struct{})
		c.commitWg.Add(1)
		go c.committer()
	})
}

func (c *Consumer) resetTarget() int64 {
	if c.OffsetReset == "latest" {
		return kafkaclient.OffsetEnd
	}
	return kafkaclient.OffsetBeginning
}

func validOffsetReset(s string) bool {
	return s == "" || s == "earliest" || s == "latest"
}

// Subscribe joins the group and subscribes to the topics. Partitions
// arrive (and leave) through rebalances: onAssign and onRevoke, when
// not nil, run from inside Poll with the partitions being assigned or
// revoked. Poll must be called regularly for the membership to make
// progress. Subscribing twice, or on a consumer with manually assigned
// partitions, is an error.
func (c *Consumer) Subscribe(topics []string, onAssign, onRevoke RebalanceCb) error {
	c.init()
	if len(topics) == 0 {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: "no topics"}
	}
	if c.GroupId == "" {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: "subscribe needs a group id"}
	}
	if !validOffsetReset(c.OffsetReset) {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: "bad OffsetReset: " + c.OffsetReset}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "consumer is closed"}
	}
	if c.subscribed {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "already subscribed"}
	}
	if len(c.assignment) > 0 {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "partitions are manually assigned"}
	}
	c.subscription = make([]string, len(topics))
	copy(c.subscription, topics)
	c.onAssign, c.onRevoke = onAssign, onRevoke
	c.subscribed = true
	c.memberDone = make(chan struct{})
	c.memberWg.Add(1)
	go c.membership()
	return nil
}

// Unsubscribe leaves the group: stops the membership, runs the revoke
// callback for any held assignment (on this goroutine), and stops the
// fetchers. The consumer can Subscribe or Assign again after.
func (c *Consumer) Unsubscribe() error {
	c.init()
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.subscribed = false
	done := c.memberDone
	c.mu.Unlock()
	close(done)
	c.memberWg.Wait()
	c.drainEvents()
	c.revokeAll()
	c.mu.Lock()
	c.subscription, c.onAssign, c.onRevoke = nil, nil, nil
	c.memberId, c.generation = "", -1
	c.mu.Unlock()
	return nil
}

// Assign starts fetching the given partitions, with no group protocol
// and no rebalance callbacks. Each partition starts at its Offset: an
// explicit offset (note the zero value is offset 0, not a sentinel),
// OffsetStored (the group's committed offset, OffsetReset when there
// is none), OffsetBeginning, or OffsetEnd. Assigning on a subscribed
// consumer, or assigning twice without Unassign, is an error.
func (c *Consumer) Assign(partitions []kafkaclient.TopicPartition) error {
	c.init()
	if len(partitions) == 0 {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: "no partitions"}
	}
	if !validOffsetReset(c.OffsetReset) {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: "bad OffsetReset: " + c.OffsetReset}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "consumer is closed"}
	}
	if c.subscribed {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "subscribed to topics"}
	}
	if len(c.assignment) > 0 {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "already assigned"}
	}
	c.assignment = copyPartitions(partitions)
	c.startFetchersLocked(c.assignment)
	return nil
}

// Unassign stops fetching manually assigned partitions and drops their
// positions. The consumer can Assign or Subscribe again after.
func (c *Consumer) Unassign() error {
	c.init()
	c.mu.Lock()
	subscribed := c.subscribed
	c.mu.Unlock()
	if subscribed {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "subscribed to topics, unsubscribe instead"}
	}
	c.stopFetchers()
	return nil
}

// Assignment returns the currently held partitions, as they were
// assigned.
func (c *Consumer) Assignment() []kafkaclient.TopicPartition {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyPartitions(c.assignment)
}

// Poll services pending events (rebalance callbacks, async commit
// results) and returns the next message, nil if none arrives before
// the timeout. A returned message normally carries a record; when a
// partition failed fatally it carries the partition and the error in
// TopicPartition.Err instead (once per failure; Seek the partition to
// resume it). Zero or negative timeout means do not wait.
func (c *Consumer) Poll(timeout time.Duration) *kafkaclient.Message {
	c.init()
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		// events first: rebalance callbacks gate message flow
		for {
			select {
			case e := <-c.events:
				c.handleEvent(e)
				continue
			default:
			}
			break
		}
		select {
		case x := <-c.queue:
			if m := c.accept(x); m != nil {
				return m
			}
			continue
		default:
		}
		if timeout <= 0 {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		t := time.NewTimer(remaining)
		select {
		case e := <-c.events:
			t.Stop()
			c.handleEvent(e)
		case x := <-c.queue:
			t.Stop()
			if m := c.accept(x); m != nil {
				return m
			}
		case <-t.C:
			return nil
		}
	}
}

// Consume polls until it has n messages or the timeout passes, and
// returns what it got. Like Poll, an empty result is not an error.
func (c *Consumer) Consume(n int, timeout time.Duration) []*kafkaclient.Message {
	c.init()
	if n <= 0 {
		return nil
	}
	deadline := time.Now().Add(timeout)
	var out []*kafkaclient.Message
	for len(out) < n {
		m := c.Poll(time.Until(deadline))
		if m == nil {
			break
		}
		out = append(out, m)
	}
	return out
}

// accept validates a queued entry: the partition must still be held and
// the entry's epoch current (entries fetched before a Seek are
// dropped). Accepting a record advances the partition's position.
func (c *Consumer) accept(x *fetched) *kafkaclient.Message {
	c.mu.Lock()
	f := c.fetchers[x.key]
	c.mu.Unlock()
	if f == nil || atomic.LoadInt64(&f.epoch) != x.epoch {
		return nil
	}
	m := x.msg
	if m.TopicPartition.Err != nil {
		return m
	}
	c.store.SetPosition(x.key.topic, x.key.partition, m.TopicPartition.Offset+1)
	if lag := c.store.Lag(x.key.topic, x.key.partition); lag >= 0 {
		metrics.ConsumerLag.WithLabelValues(x.key.topic, strconv.Itoa(int(x.key.partition))).Set(float64(lag))
	}
	return m
}

func (c *Consumer) handleEvent(e interface{}) {
	switch e := e.(type) {
	case assignEvent:
		c.mu.Lock()
		stale := c.closed || !c.subscribed
		c.mu.Unlock()
		if stale {
			return
		}
		if cb := c.onAssign; cb != nil {
			cb(copyPartitions(e.partitions))
		}
		c.mu.Lock()
		c.assignment = e.partitions
		c.startFetchersLocked(e.partitions)
		c.mu.Unlock()
		metrics.Rebalances.WithLabelValues(c.GroupId).Inc()
	case revokeEvent:
		if cb := c.onRevoke; cb != nil {
			cb(copyPartitions(e.partitions))
		}
		c.stopFetchers()
		close(e.ack)
	case commitEvent:
		if cb := c.OnCommit; cb != nil {
			cb(e.partitions, e.err)
		}
	}
}

func (c *Consumer) drainEvents() {
	for {
		select {
		case e := <-c.events:
			c.handleEvent(e)
		default:
			return
		}
	}
}

// revokeAll runs the revoke callback for whatever is still held and
// stops the fetchers. Used by Unsubscribe and Close, where the revoke
// is not driven by a membership event.
func (c *Consumer) revokeAll() {
	c.mu.Lock()
	held := copyPartitions(c.assignment)
	c.mu.Unlock()
	if len(held) > 0 {
		if cb := c.onRevoke; cb != nil {
			cb(held)
		}
	}
	c.stopFetchers()
}

func (c *Consumer) startFetchersLocked(partitions []kafkaclient.TopicPartition) {
	for _, p := range partitions {
		key := tp{p.Topic, p.Partition}
		if c.fetchers[key] != nil {
			continue
		}
		f := &partitionFetcher{
			consumer: c,
			key:      key,
			client: &fetcher.PartitionFetcher{
				PartitionClient: client.PartitionClient{
					Bootstrap: c.Bootstrap,
					TLS:       c.TLS,
					ClientId:  c.ClientId,
					Topic:     p.Topic,
					Partition: p.Partition,
					Resolver:  c.Metadata,
					Logger:    c.Logger,
				},
				MinBytes:      c.MinBytes,
				MaxBytes:      c.MaxBytes,
				MaxWaitTimeMs: c.MaxWaitTimeMs,
			},
			start: p.Offset,
			seeks: make(chan int64, 1),
			done:  make(chan struct{}),
		}
		c.fetchers[key] = f
		c.fetchWg.Add(1)
		go f.run()
	}
}

// stopFetchers stops all partition fetchers, waits for them to exit,
// and drops the stopped partitions from the offset store. Entries the
// stopped fetchers already queued are dropped by accept.
func (c *Consumer) stopFetchers() {
	c.mu.Lock()
	stopped := c.fetchers
	c.fetchers = make(map[tp]*partitionFetcher)
	c.assignment = nil
	c.mu.Unlock()
	if len(stopped) == 0 {
		return
	}
	for _, f := range stopped {
		close(f.done)
	}
	c.fetchWg.Wait()
	for key := range stopped {
		c.store.Drop(key.topic, key.partition)
	}
}

// Seek repositions an assigned partition. The offset may be explicit or
// one of the Offset* sentinels. Records fetched before the seek but not
// yet delivered are discarded: after Seek, the next Poll message for
// the partition is from the new position.
func (c *Consumer) Seek(p kafkaclient.TopicPartition) error {
	c.init()
	switch {
	case p.Offset >= 0:
	case p.Offset == kafkaclient.OffsetBeginning:
	case p.Offset == kafkaclient.OffsetEnd:
	case p.Offset == kafkaclient.OffsetStored:
	default:
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: fmt.Sprintf("not an offset: %d", p.Offset)}
	}
	c.mu.Lock()
	f := c.fetchers[tp{p.Topic, p.Partition}]
	c.mu.Unlock()
	if f == nil {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: notAssigned(p)}
	}
	// entries from fetch cycles started before this point get dropped
	atomic.AddInt64(&f.epoch, 1)
	// latest seek wins
	select {
	case <-f.seeks:
	default:
	}
	select {
	case f.seeks <- p.Offset:
	case <-f.done:
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: notAssigned(p)}
	}
	return nil
}

// Pause stops fetching the partitions. Records already fetched are
// still delivered by Poll; pausing stops the fetch loops, not the
// queue. No-op on already paused partitions.
func (c *Consumer) Pause(partitions []kafkaclient.TopicPartition) error {
	return c.setPaused(partitions, 1)
}

// Resume restarts fetching of paused partitions, from where they left
// off. No-op on partitions that are not paused.
func (c *Consumer) Resume(partitions []kafkaclient.TopicPartition) error {
	return c.setPaused(partitions, 0)
}

func (c *Consumer) setPaused(partitions []kafkaclient.TopicPartition, v int32) error {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	fs := make([]*partitionFetcher, 0, len(partitions))
	for _, p := range partitions {
		f := c.fetchers[tp{p.Topic, p.Partition}]
		if f == nil {
			return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: notAssigned(p)}
		}
		fs = append(fs, f)
	}
	for _, f := range fs {
		atomic.StoreInt32(&f.paused, v)
	}
	return nil
}

// Position returns, per partition, the offset of the next record to be
// delivered: one past the last record Poll returned (or the resolved
// seek target when nothing was delivered since). Partitions with no
// position get OffsetInvalid.
func (c *Consumer) Position(partitions []kafkaclient.TopicPartition) []kafkaclient.TopicPartition {
	c.init()
	out := copyPartitions(partitions)
	for i := range out {
		if o, ok := c.store.Position(out[i].Topic, out[i].Partition); ok {
			out[i].Offset = o
		} else {
			out[i].Offset = kafkaclient.OffsetInvalid
		}
	}
	return out
}

// GetWatermarkOffsets returns the partition's low and high watermarks.
// Cached reads the values carried on the partition's most recent fetch
// response, and fails with ERR_LOCAL_STATE if there was none. Uncached
// asks the partition leader (two ListOffsets calls on a short lived
// connection); on timeout the connection is torn down and the call
// fails with ERR_LOCAL_TIMED_OUT. An empty partition is (0, 0).
func (c *Consumer) GetWatermarkOffsets(p kafkaclient.TopicPartition, timeout time.Duration, cached bool) (int64, int64, error) {
	c.init()
	if cached {
		w, ok := c.store.Watermarks(p.Topic, p.Partition)
		if !ok {
			return kafkaclient.OffsetInvalid, kafkaclient.OffsetInvalid, &kafkaclient.Error{
				Code:    kafkaclient.ERR_LOCAL_STATE,
				Message: "no watermarks cached, partition not fetched yet",
			}
		}
		return w.Low, w.High, nil
	}
	pc := &client.PartitionClient{
		Bootstrap: c.Bootstrap,
		TLS:       c.TLS,
		ClientId:  c.ClientId,
		Topic:     p.Topic,
		Partition: p.Partition,
		Resolver:  c.Metadata,
		Logger:    c.Logger,
	}
	defer pc.Close()
	var low, high int64
	err := callWithTimeout(timeout, func() { pc.Close() }, func() error {
		l, err := listOffset(pc, p, ListOffsets.Oldest)
		if err != nil {
			return err
		}
		h, err := listOffset(pc, p, ListOffsets.Newest)
		if err != nil {
			return err
		}
		low, high = l, h
		return nil
	})
	if err != nil {
		return kafkaclient.OffsetInvalid, kafkaclient.OffsetInvalid, err
	}
	return low, high, nil
}

func listOffset(pc *client.PartitionClient, p kafkaclient.TopicPartition, timestampMs int64) (int64, error) {
	resp, err := pc.ListOffsets(timestampMs)
	if err != nil {
		return -1, err
	}
	pr := resp.Partition(p.Topic, p.Partition)
	if pr == nil {
		return -1, &kafkaclient.Error{Code: kafkaclient.ERR_UNKNOWN_TOPIC_OR_PARTITION}
	}
	if pr.ErrorCode != kafkaclient.ERR_NONE {
		return -1, &kafkaclient.Error{Code: pr.ErrorCode}
	}
	return pr.Offset, nil
}

// ListTopics returns a snapshot of cluster metadata as reported by a
// bootstrap broker. Topic "" lists all topics.
func (c *Consumer) ListTopics(topic string) (*metadata.ClusterMetadata, error) {
	c.init()
	return c.Metadata.ListTopics(topic)
}

// Close leaves the group (running the revoke callback for any held
// assignment, without a final commit: commit before Close if you need
// one), stops the fetchers and the committer, and closes all
// connections. The consumer can not be used after. Safe to call more
// than once.
func (c *Consumer) Close() error {
	c.init()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subscribed := c.subscribed
	c.subscribed = false
	done := c.memberDone
	c.mu.Unlock()
	if subscribed {
		close(done)
		c.memberWg.Wait()
	}
	c.drainEvents()
	c.revokeAll()
	close(c.committerDone)
	c.commitWg.Wait()
	c.group.Close()
	c.Logger.Debug("consumer closed", zap.String("group", c.GroupId))
	return nil
}

func notAssigned(p kafkaclient.TopicPartition) string {
	return fmt.Sprintf("%s[%d] is not assigned", p.Topic, p.Partition)
}

func copyPartitions(partitions []kafkaclient.TopicPartition) []kafkaclient.TopicPartition {
	out := make([]kafkaclient.TopicPartition, len(partitions))
	copy(out, partitions)
	return out
}

// callWithTimeout bounds a synchronous client call. The clients have no
// per call deadlines; what they do have is "an error closes the
// connection, the next call reconnects". So the timeout tears the
// connection down under the call, failing it promptly, and the
// abandoned call's result is discarded.
func callWithTimeout(timeout time.Duration, kill func(), f func() error) error {
	if timeout <= 0 {
		return f()
	}
	done := make(chan error, 1)
	go func() { done <- f() }()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
		kill()
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_TIMED_OUT}
	}
}
