/*
Package producer implements the multi partition producing runtime. A
Producer partitions incoming messages, buffers them per partition,
batches them under the size and linger limits, and sends the batches
through synchronous single partition clients, one dispatch worker per
partition. Delivery reports surface through Poll (or Flush, which drives
Poll), on the goroutine that makes the call: the runtime never invokes
user code from its own goroutines.

Backpressure is a bounded queue over unresolved messages (produced, but
delivery report not yet run). When the queue is full Produce either
fails fast with ERR_LOCAL_QUEUE_FULL (the default) or blocks until Poll
frees room (BlockOnFull).

Ordering within a partition is structural: a partition's worker keeps at
most one produce request in flight and resolves it, including retries,
before sending the next batch. There is no ordering across partitions.
*/
package producer

import (
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/batch"
	"github.com/mkocikowski/kafkaclient/client"
	cproducer "github.com/mkocikowski/kafkaclient/client/producer"
	"github.com/mkocikowski/kafkaclient/metadata"
	"github.com/mkocikowski/kafkaclient/metrics"
)

const (
	defaultBatchMaxRecords = 1000
	defaultBatchMaxBytes   = 1 << 20
	defaultQueueCapacity   = 10000
	defaultRetries         = 3
	defaultRetryBackoff    = 100 * time.Millisecond
	defaultTimeoutMs       = 30000
)

// OnDelivery is the delivery report callback. It runs on the goroutine
// calling Poll (or Flush, or Close), with the produced message:
// TopicPartition.Offset set on success, TopicPartition.Err set on
// failure. Exactly one report per message.
type OnDelivery func(*kafkaclient.Message)

// Producer is configured by setting its exported fields before the first
// call; defaults are applied on first use and the fields must not be
// changed after. All methods are safe for concurrent use, though the
// intended shape is one goroutine producing and polling.
type Producer struct {
	Bootstrap string // comma separated host:port list, or srv name
	TLS       *tls.Config
	ClientId  string
	// Acks required for produce requests: 1 (leader only) or -1 (all in
	// sync replicas). The zero value gets 1. Acks=0 is not supported:
	// every produce call reads a response.
	Acks int16
	// TimeoutMs is the broker side produce timeout.
	TimeoutMs int32
	// Compressor compresses every outgoing batch. Nil means none.
	Compressor batch.Compressor
	// BatchMaxRecords and BatchMaxBytes cap a single batch. A batch is
	// sent when it reaches either cap or when Linger expires since its
	// first record, whichever comes first. BatchMaxBytes counts key,
	// value and header bytes before compression, approximately.
	BatchMaxRecords int
	BatchMaxBytes   int
	// Linger is how long a non full batch waits for more records. Zero
	// means batches are cut as soon as the partition worker is free,
	// which under load still yields multi record batches.
	Linger time.Duration
	// QueueCapacity caps unresolved messages across all partitions.
	QueueCapacity int
	// BlockOnFull makes Produce block for queue room instead of failing
	// with ERR_LOCAL_QUEUE_FULL. Only useful when some other goroutine
	// drains reports with Poll, otherwise the block can not end.
	BlockOnFull bool
	// Retries is how many times a failed produce request is retried
	// before the batch is failed (only for retriable error codes). Zero
	// means the default of 3; negative means no retries.
	Retries int
	// RetryBackoff is the sleep before the first retry, doubled on each
	// retry after that.
	RetryBackoff time.Duration
	// Partitioner assigns partitions to messages produced with
	// kafkaclient.PartitionAny. Default HashKey.
	Partitioner Partitioner
	// Metadata, when set, is the (possibly shared) metadata cache used
	// for partition counts and leader lookups. When nil the producer
	// creates its own.
	Metadata *metadata.Cache
	// Logger for dispatch events. Nil means no logging.
	Logger *zap.Logger
	//
	once       sync.Once
	mu         sync.Mutex
	closed     bool
	workers    map[tp]*partitionWorker
	wg         sync.WaitGroup
	sem        chan struct{}
	events     chan *produced
	unresolved int64
}

type tp struct {
	topic     string
	partition int32
}

type produced struct {
	msg *kafkaclient.Message
	cb  OnDelivery
}

func (r *produced) size() int {
	n := len(r.msg.Key) + len(r.msg.Value)
	for _, h := range r.msg.Headers {
		n += len(h.Key) + len(h.Value)
	}
	return n + 32 // rough allowance for the record framing
}

func (p *Producer) init() {
	p.once.Do(func() {
		if p.Acks == 0 {
			p.Acks = 1
		}
		if p.TimeoutMs <= 0 {
			p.TimeoutMs = defaultTimeoutMs
		}
		if p.BatchMaxRecords <= 0 {
			p.BatchMaxRecords = defaultBatchMaxRecords
		}
		if p.BatchMaxBytes <= 0 {
			p.BatchMaxBytes = defaultBatchMaxBytes
		}
		if p.QueueCapacity <= 0 {
			p.QueueCapacity = defaultQueueCapacity
		}
		switch {
		case p.Retries == 0:
			p.Retries = defaultRetries
		case p.Retries < 0:
			p.Retries = 0
		}
		if p.RetryBackoff <= 0 {
			p.RetryBackoff = defaultRetryBackoff
		}
		if p.Partitioner == nil {
			p.Partitioner = HashKey
		}
		if p.Logger == nil {
			p.Logger = zap.NewNop()
		}
		if p.Metadata == nil {
			p.Metadata = &metadata.Cache{
				Bootstrap: p.Bootstrap,
				TLS:       p.TLS,
				ClientId:  p.ClientId,
				Logger:    p.Logger,
			}
		}
		p.workers = make(map[tp]*partitionWorker)
		p.sem = make(chan struct{}, p.QueueCapacity)
		// every unresolved message holds a queue slot until its report
		// runs, so there are never more events than the channel holds
		p.events = make(chan *produced, p.QueueCapacity)
	})
}

// Produce enqueues the message and returns. The message belongs to the
// producer from here until its delivery report runs. Messages produced
// with Partition set to kafkaclient.PartitionAny are assigned one by the
// Partitioner; the first produce for a topic resolves its metadata,
// which makes a broker call. Failure to enqueue (no topic, metadata
// lookup failure, producer closed, queue full) is returned; everything
// after that is reported through the callback.
func (p *Producer) Produce(m *kafkaclient.Message, cb OnDelivery) error {
	p.init()
	if m == nil || m.TopicPartition.Topic == "" {
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_INVALID_ARG, Message: "message has no topic"}
	}
	if m.TopicPartition.Partition < 0 {
		partitions, err := p.Metadata.Partitions(m.TopicPartition.Topic)
		if err != nil {
			return fmt.Errorf("error partitioning message: %w", err)
		}
		m.TopicPartition.Partition = p.Partitioner(m.Key, int32(len(partitions)))
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	m.TimestampType = kafkaclient.TimestampCreateTime
	if p.BlockOnFull {
		p.sem <- struct{}{}
	} else {
		select {
		case p.sem <- struct{}{}:
		default:
			return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_QUEUE_FULL}
		}
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_STATE, Message: "producer is closed"}
	}
	w := p.worker(m.TopicPartition.Topic, m.TopicPartition.Partition)
	// can not block: the queue semaphore keeps the number of unresolved
	// messages at or below the channel capacity
	w.in <- &produced{msg: m, cb: cb}
	atomic.AddInt64(&p.unresolved, 1)
	metrics.ProducerQueue.Inc()
	p.mu.Unlock()
	return nil
}

// worker is called with p.mu held.
func (p *Producer) worker(topic string, partition int32) *partitionWorker {
	k := tp{topic: topic, partition: partition}
	if w := p.workers[k]; w != nil {
		return w
	}
	w := &partitionWorker{
		producer: p,
		client: &cproducer.PartitionProducer{
			PartitionClient: client.PartitionClient{
				Bootstrap: p.Bootstrap,
				TLS:       p.TLS,
				ClientId:  p.ClientId,
				Topic:     topic,
				Partition: partition,
				Resolver:  p.Metadata,
				Logger:    p.Logger,
			},
			Acks:      p.Acks,
			TimeoutMs: p.TimeoutMs,
		},
		in: make(chan *produced, p.QueueCapacity),
	}
	p.workers[k] = w
	p.wg.Add(1)
	go w.run()
	return w
}

// Poll runs the delivery callbacks of messages resolved since the last
// Poll, on the calling goroutine, and returns the number of reports
// served. When none are pending it waits up to timeout for the first
// one; zero or negative timeout means no waiting.
func (p *Producer) Poll(timeout time.Duration) int {
	p.init()
	n := p.drain()
	if n > 0 || timeout <= 0 {
		return n
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-p.events:
		p.deliver(d)
	case <-timer.C:
		return 0
	}
	return 1 + p.drain()
}

func (p *Producer) drain() int {
	n := 0
	for {
		select {
		case d := <-p.events:
			p.deliver(d)
			n++
		default:
			return n
		}
	}
}

func (p *Producer) deliver(d *produced) {
	if d.cb != nil {
		d.cb(d.msg)
	}
	atomic.AddInt64(&p.unresolved, -1)
	metrics.ProducerQueue.Dec()
	<-p.sem
}

// Flush drives Poll until every produced message has received its
// delivery report or the timeout elapses. Returns the number of messages
// still unresolved: zero means everything was reported. Negative timeout
// means wait with no limit.
func (p *Producer) Flush(timeout time.Duration) int {
	p.init()
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		p.drain()
		n := atomic.LoadInt64(&p.unresolved)
		if n == 0 {
			return 0
		}
		wait := time.Second
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return int(n)
			}
		}
		timer := time.NewTimer(wait)
		select {
		case d := <-p.events:
			timer.Stop()
			p.deliver(d)
		case <-timer.C:
		}
	}
}

// Len returns the number of messages produced but not yet resolved by a
// delivery report.
func (p *Producer) Len() int {
	return int(atomic.LoadInt64(&p.unresolved))
}

// ListTopics returns a snapshot of cluster metadata as reported by a
// bootstrap broker. Topic "" lists all topics.
func (p *Producer) ListTopics(topic string) (*metadata.ClusterMetadata, error) {
	p.init()
	return p.Metadata.ListTopics(topic)
}

// Close stops the dispatch workers, letting them first send out what
// they hold, closes the leader connections, and runs the remaining
// delivery callbacks. No message produced before Close goes without a
// report. Produce calls racing Close get ERR_LOCAL_STATE. The producer
// can not be used after.
func (p *Producer) Close() error {
	p.init()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, w := range p.workers {
		close(w.in)
	}
	p.mu.Unlock()
	p.wg.Wait()
	for _, w := range p.workers {
		w.client.Close()
	}
	p.drain()
	return nil
}
