package producer

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/compression"
	"github.com/mkocikowski/kafkaclient/mock"
)

func startMockBroker(t *testing.T) *mock.Broker {
	t.Helper()
	b := mock.NewBroker()
	require.NoError(t, b.Start())
	t.Cleanup(b.Close)
	return b
}

func message(topic string, partition int32, value string) *kafkaclient.Message {
	return &kafkaclient.Message{
		TopicPartition: kafkaclient.TopicPartition{Topic: topic, Partition: partition},
		Value:          []byte(value),
	}
}

func TestUnitProducerDelivery(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 1)
	p := &Producer{Bootstrap: b.Addr()}
	defer p.Close()
	var reports []*kafkaclient.Message
	cb := func(m *kafkaclient.Message) { reports = append(reports, m) }
	for i := 0; i < 3; i++ {
		m := message(topic, 0, fmt.Sprintf("record-%d", i))
		m.Key = []byte("key")
		require.NoError(t, p.Produce(m, cb))
	}
	require.Equal(t, 0, p.Flush(5*time.Second))
	require.Len(t, reports, 3)
	for i, m := range reports {
		require.NoError(t, m.TopicPartition.Err)
		require.Equal(t, int64(i), m.TopicPartition.Offset)
		require.Equal(t, kafkaclient.TimestampCreateTime, m.TimestampType)
		require.False(t, m.Timestamp.IsZero())
	}
	require.Equal(t, 0, p.Len())
	require.Equal(t, int64(3), b.HighWatermark(topic, 0))
}

func TestUnitHashKeyPartitioner(t *testing.T) {
	p := HashKey([]byte("monkey"), 16)
	require.Equal(t, p, HashKey([]byte("monkey"), 16))
	require.GreaterOrEqual(t, p, int32(0))
	require.Less(t, p, int32(16))
	require.Equal(t, int32(0), HashKey([]byte("monkey"), 1))
	require.Equal(t, int32(0), HashKey(nil, 0))
	partitions := make(map[int32]bool)
	for i := 0; i < 100; i++ {
		p := HashKey([]byte(fmt.Sprintf("key-%d", i)), 8)
		require.GreaterOrEqual(t, p, int32(0))
		require.Less(t, p, int32(8))
		partitions[p] = true
	}
	require.Greater(t, len(partitions), 1)
	// keyless records get a random partition
	for i := 0; i < 100; i++ {
		p := HashKey(nil, 4)
		require.GreaterOrEqual(t, p, int32(0))
		require.Less(t, p, int32(4))
	}
}

func TestUnitProducerPartitionAny(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 4)
	p := &Producer{Bootstrap: b.Addr()}
	defer p.Close()
	counts := make(map[int32]int)
	cb := func(m *kafkaclient.Message) {
		require.NoError(t, m.TopicPartition.Err)
		counts[m.TopicPartition.Partition]++
	}
	for i := 0; i < 20; i++ {
		m := message(topic, kafkaclient.PartitionAny, fmt.Sprintf("record-%d", i))
		require.NoError(t, p.Produce(m, cb))
	}
	require.Equal(t, 0, p.Flush(5*time.Second))
	total := 0
	for partition, n := range counts {
		require.GreaterOrEqual(t, partition, int32(0))
		require.Less(t, partition, int32(4))
		total += n
	}
	require.Equal(t, 20, total)
	// keyless records spread over the topic's partitions
	require.GreaterOrEqual(t, len(counts), 2)
}

func TestUnitProducerBadInput(t *testing.T) {
	b := startMockBroker(t)
	p := &Producer{Bootstrap: b.Addr()}
	defer p.Close()
	err := p.Produce(nil, nil)
	require.Equal(t, kafkaclient.ERR_LOCAL_INVALID_ARG, kafkaclient.Code(err))
	err = p.Produce(&kafkaclient.Message{}, nil)
	require.Equal(t, kafkaclient.ERR_LOCAL_INVALID_ARG, kafkaclient.Code(err))
	// partitioning needs metadata, which the broker does not have
	topic := fmt.Sprintf("test-%x", rand.Uint32()) // do not create
	err = p.Produce(message(topic, kafkaclient.PartitionAny, "foo"), nil)
	require.Error(t, err)
	require.Equal(t, kafkaclient.ERR_UNKNOWN_TOPIC_OR_PARTITION, kafkaclient.Code(err))
}

func TestUnitProducerQueueFull(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 1)
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	b.Handle(api.Produce, func(*mock.Request) interface{} {
		entered <- struct{}{}
		<-gate
		return nil // close the connection, forcing a retry
	})
	p := &Producer{Bootstrap: b.Addr(), QueueCapacity: 1}
	defer p.Close()
	var reports []*kafkaclient.Message
	cb := func(m *kafkaclient.Message) { reports = append(reports, m) }
	require.NoError(t, p.Produce(message(topic, 0, "foo"), cb))
	// the first message holds the only queue slot until its delivery
	// report runs
	err := p.Produce(message(topic, 0, "bar"), cb)
	require.Equal(t, kafkaclient.ERR_LOCAL_QUEUE_FULL, kafkaclient.Code(err))
	require.Equal(t, 1, p.Len())
	<-entered                  // the first produce request is in flight
	b.Handle(api.Produce, nil) // restore the default handler
	close(gate)                // fail the in-flight request
	require.Equal(t, 0, p.Flush(5*time.Second))
	require.Len(t, reports, 1)
	require.NoError(t, reports[0].TopicPartition.Err)
	require.Equal(t, int64(0), reports[0].TopicPartition.Offset)
	require.Equal(t, 2, b.CountRequests(api.Produce))
}

func TestUnitProducerFlushTimeout(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 1)
	gate := make(chan struct{})
	b.Handle(api.Produce, func(*mock.Request) interface{} {
		<-gate
		return nil
	})
	p := &Producer{Bootstrap: b.Addr()}
	defer p.Close()
	require.NoError(t, p.Produce(message(topic, 0, "foo"), nil))
	require.Equal(t, 1, p.Flush(50*time.Millisecond))
	b.Handle(api.Produce, nil)
	close(gate)
	require.Equal(t, 0, p.Flush(-1)) // negative timeout means no limit
	require.Equal(t, int64(1), b.HighWatermark(topic, 0))
}

func TestUnitProducerRetryLeaderChange(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 1)
	b.ErrorOnce(api.Produce, kafkaclient.ERR_NOT_LEADER_FOR_PARTITION)
	p := &Producer{Bootstrap: b.Addr()}
	defer p.Close()
	var reports []*kafkaclient.Message
	cb := func(m *kafkaclient.Message) { reports = append(reports, m) }
	require.NoError(t, p.Produce(message(topic, 0, "foo"), cb))
	require.Equal(t, 0, p.Flush(5*time.Second))
	require.Len(t, reports, 1)
	require.NoError(t, reports[0].TopicPartition.Err)
	require.Equal(t, int64(0), reports[0].TopicPartition.Offset)
	require.Equal(t, 2, b.CountRequests(api.Produce))
	// the error invalidated cached metadata, the retry re-resolved the
	// leader
	require.GreaterOrEqual(t, b.CountRequests(api.Metadata), 2)
}

func TestUnitProducerNonRetriable(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 1)
	b.ErrorOnce(api.Produce, kafkaclient.ERR_MESSAGE_TOO_LARGE)
	p := &Producer{Bootstrap: b.Addr()}
	defer p.Close()
	var reports []*kafkaclient.Message
	cb := func(m *kafkaclient.Message) { reports = append(reports, m) }
	require.NoError(t, p.Produce(message(topic, 0, "foo"), cb))
	// a failed message still resolves, with Err set on its report
	require.Equal(t, 0, p.Flush(5*time.Second))
	require.Len(t, reports, 1)
	err := reports[0].TopicPartition.Err
	require.Error(t, err)
	require.Equal(t, kafkaclient.ERR_MESSAGE_TOO_LARGE, kafkaclient.Code(err))
	require.Equal(t, 1, b.CountRequests(api.Produce))
}

func TestUnitProducerOrdering(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 1)
	p := &Producer{
		Bootstrap:       b.Addr(),
		BatchMaxRecords: 7,
		Linger:          5 * time.Millisecond,
		Compressor:      &compression.Lz4{},
	}
	defer p.Close()
	var offsets []int64
	cb := func(m *kafkaclient.Message) {
		require.NoError(t, m.TopicPartition.Err)
		offsets = append(offsets, m.TopicPartition.Offset)
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Produce(message(topic, 0, fmt.Sprintf("record-%d", i)), cb))
	}
	require.Equal(t, 0, p.Flush(5*time.Second))
	require.Len(t, offsets, 50)
	for i, o := range offsets {
		require.Equal(t, int64(i), o)
	}
	require.Equal(t, int64(50), b.HighWatermark(topic, 0))
	// 50 records in batches of at most 7
	require.GreaterOrEqual(t, b.CountRequests(api.Produce), 8)
}

func TestUnitProducerCloseResolvesAll(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 1)
	// linger long enough that nothing goes out before Close
	p := &Producer{Bootstrap: b.Addr(), Linger: time.Hour}
	n := 0
	cb := func(m *kafkaclient.Message) {
		require.NoError(t, m.TopicPartition.Err)
		n++
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Produce(message(topic, 0, fmt.Sprintf("record-%d", i)), cb))
	}
	require.NoError(t, p.Close())
	require.Equal(t, 10, n)
	require.Equal(t, int64(10), b.HighWatermark(topic, 0))
	err := p.Produce(message(topic, 0, "after close"), nil)
	require.Equal(t, kafkaclient.ERR_LOCAL_STATE, kafkaclient.Code(err))
}

func TestUnitProducerBlockOnFull(t *testing.T) {
	b := startMockBroker(t)
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	b.CreateTopic(topic, 1)
	p := &Producer{Bootstrap: b.Addr(), QueueCapacity: 1, BlockOnFull: true}
	defer p.Close()
	n := 0
	cb := func(m *kafkaclient.Message) {
		require.NoError(t, m.TopicPartition.Err)
		n++
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			if err := p.Produce(message(topic, 0, fmt.Sprintf("record-%d", i)), cb); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	// the producing goroutine blocks on the full queue until Poll, here,
	// delivers a report and frees a slot
	for {
		select {
		case <-done:
			require.Equal(t, 0, p.Flush(5*time.Second))
			require.Equal(t, 5, n)
			require.Equal(t, int64(5), b.HighWatermark(topic, 0))
			return
		default:
			p.Poll(10 * time.Millisecond)
		}
	}
}
