package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/client"
	"github.com/mkocikowski/kafkaclient/client/producer"
	"github.com/mkocikowski/kafkaclient/mock"
)

func startMockBroker(t *testing.T) *mock.Broker {
	t.Helper()
	b := mock.NewBroker()
	require.NoError(t, b.Start())
	t.Cleanup(b.Close)
	return b
}

func produceStrings(t *testing.T, b *mock.Broker, topic string, partition int32, values ...string) {
	t.Helper()
	p := &producer.PartitionProducer{
		PartitionClient: client.PartitionClient{
			Bootstrap: b.Addr(),
			Topic:     topic,
			Partition: partition,
		},
		Acks:      1,
		TimeoutMs: 1000,
	}
	defer p.Close()
	resp, err := p.ProduceStrings(time.Now(), values...)
	require.NoError(t, err)
	require.Equal(t, kafkaclient.ERR_NONE, resp.ErrorCode)
}

func pollOne(t *testing.T, c *Consumer, timeout time.Duration) *kafkaclient.Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m := c.Poll(100 * time.Millisecond); m != nil {
			return m
		}
	}
	t.Fatal("no message before timeout")
	return nil
}

func TestUnitConsumerSubscribePollCommit(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("events", 1)
	produceStrings(t, b, "events", 0, "a", "b", "c")
	var assigned []kafkaclient.TopicPartition
	c := &Consumer{Bootstrap: b.Addr(), ClientId: "test", GroupId: "g1"}
	defer c.Close()
	err := c.Subscribe([]string{"events"},
		func(tps []kafkaclient.TopicPartition) { assigned = append(assigned, tps...) },
		nil,
	)
	require.NoError(t, err)
	var got []*kafkaclient.Message
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < 3 && time.Now().Before(deadline) {
		if m := c.Poll(100 * time.Millisecond); m != nil {
			require.NoError(t, m.TopicPartition.Err)
			got = append(got, m)
		}
	}
	require.Len(t, got, 3)
	for i, m := range got {
		require.Equal(t, "events", m.TopicPartition.Topic)
		require.Equal(t, int64(i), m.TopicPartition.Offset)
	}
	require.Equal(t, []byte("a"), got[0].Value)
	require.Equal(t, []byte("c"), got[2].Value)
	require.Equal(t, kafkaclient.TimestampCreateTime, got[0].TimestampType)
	require.False(t, got[0].Timestamp.IsZero())
	require.Len(t, assigned, 1)
	require.Equal(t, "events", assigned[0].Topic)
	require.Equal(t, int32(0), assigned[0].Partition)
	// position is one past the last delivered record
	pos := c.Position([]kafkaclient.TopicPartition{{Topic: "events", Partition: 0}})
	require.Equal(t, int64(3), pos[0].Offset)
	// commit the positions, verify on the broker and through Committed
	require.NoError(t, c.Commit())
	require.Equal(t, int64(3), b.CommittedOffset("g1", "events", 0))
	tps, err := c.Committed([]kafkaclient.TopicPartition{{Topic: "events", Partition: 0}}, time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(3), tps[0].Offset)
}

func TestUnitConsumerOffsetResetLatest(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("logs", 1)
	produceStrings(t, b, "logs", 0, "old1", "old2", "old3")
	c := &Consumer{Bootstrap: b.Addr(), GroupId: "g2", OffsetReset: "latest"}
	defer c.Close()
	require.NoError(t, c.Subscribe([]string{"logs"}, nil, nil))
	// nothing committed and the reset policy is latest: the records
	// already in the log stay unread
	require.Nil(t, c.Poll(300*time.Millisecond))
	produceStrings(t, b, "logs", 0, "new")
	m := pollOne(t, c, 5*time.Second)
	require.NoError(t, m.TopicPartition.Err)
	require.Equal(t, int64(3), m.TopicPartition.Offset)
	require.Equal(t, []byte("new"), m.Value)
}

func TestUnitConsumerCommitBeyondFetchRejected(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("audit", 1)
	produceStrings(t, b, "audit", 0, "a", "b", "c")
	c := &Consumer{Bootstrap: b.Addr(), GroupId: "g3"}
	defer c.Close()
	require.NoError(t, c.Subscribe([]string{"audit"}, nil, nil))
	m := pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(0), m.TopicPartition.Offset)
	// the consumer has read up to offset 1; committing 5 would mark
	// records it never saw as consumed
	_, err := c.CommitOffsets([]kafkaclient.TopicPartition{{Topic: "audit", Partition: 0, Offset: 5}})
	require.Error(t, err)
	require.Equal(t, kafkaclient.ERR_LOCAL_STATE, kafkaclient.Code(err))
	require.Equal(t, int64(-1), b.CommittedOffset("g3", "audit", 0))
	// committing the delivered record is fine
	require.NoError(t, c.CommitMessage(m))
	require.Equal(t, int64(1), b.CommittedOffset("g3", "audit", 0))
}

func TestUnitConsumerSeek(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("events", 1)
	produceStrings(t, b, "events", 0, "r0", "r1", "r2", "r3", "r4")
	c := &Consumer{Bootstrap: b.Addr(), GroupId: "g4"}
	defer c.Close()
	require.NoError(t, c.Subscribe([]string{"events"}, nil, nil))
	m := pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(0), m.TopicPartition.Offset)
	// records already fetched for offsets 1+ are discarded: the next
	// message after the seek is the seek target
	require.NoError(t, c.Seek(kafkaclient.TopicPartition{Topic: "events", Partition: 0, Offset: 3}))
	m = pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(3), m.TopicPartition.Offset)
	require.Equal(t, []byte("r3"), m.Value)
	m = pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(4), m.TopicPartition.Offset)
	// sentinels work too
	require.NoError(t, c.Seek(kafkaclient.TopicPartition{Topic: "events", Partition: 0, Offset: kafkaclient.OffsetBeginning}))
	m = pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(0), m.TopicPartition.Offset)
	// seeking a partition that is not assigned is an error
	err := c.Seek(kafkaclient.TopicPartition{Topic: "nope", Partition: 0, Offset: 0})
	require.Equal(t, kafkaclient.ERR_LOCAL_STATE, kafkaclient.Code(err))
}

func TestUnitConsumerRebalanceRevoke(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("tasks", 1)
	produceStrings(t, b, "tasks", 0, "x")
	var events []string
	c := &Consumer{
		Bootstrap:         b.Addr(),
		GroupId:           "g5",
		HeartbeatInterval: 50 * time.Millisecond,
	}
	defer c.Close()
	err := c.Subscribe([]string{"tasks"},
		func([]kafkaclient.TopicPartition) { events = append(events, "assign") },
		func([]kafkaclient.TopicPartition) { events = append(events, "revoke") },
	)
	require.NoError(t, err)
	m := pollOne(t, c, 5*time.Second)
	require.Equal(t, []byte("x"), m.Value)
	require.NoError(t, c.CommitMessage(m))
	gen := b.Generation("g5")
	// the next heartbeat is told the group is rebalancing; the member
	// must revoke everything and rejoin
	b.ErrorOnce(api.Heartbeat, kafkaclient.ERR_REBALANCE_IN_PROGRESS)
	deadline := time.Now().Add(5 * time.Second)
	for len(events) < 3 && time.Now().Before(deadline) {
		c.Poll(50 * time.Millisecond)
	}
	require.Equal(t, []string{"assign", "revoke", "assign"}, events)
	require.Greater(t, b.Generation("g5"), gen)
	// the new assignment picks up at the committed offset
	produceStrings(t, b, "tasks", 0, "y")
	m = pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(1), m.TopicPartition.Offset)
	require.Equal(t, []byte("y"), m.Value)
}

func TestUnitConsumerPauseResume(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("metrics", 1)
	produceStrings(t, b, "metrics", 0, "m0", "m1", "m2")
	c := &Consumer{Bootstrap: b.Addr(), GroupId: "g6"}
	defer c.Close()
	require.NoError(t, c.Subscribe([]string{"metrics"}, nil, nil))
	for i := 0; i < 3; i++ {
		m := pollOne(t, c, 5*time.Second)
		require.Equal(t, int64(i), m.TopicPartition.Offset)
	}
	p := kafkaclient.TopicPartition{Topic: "metrics", Partition: 0}
	require.NoError(t, c.Pause([]kafkaclient.TopicPartition{p}))
	time.Sleep(200 * time.Millisecond) // let the in-flight fetch cycle finish
	produceStrings(t, b, "metrics", 0, "m3")
	require.Nil(t, c.Poll(300*time.Millisecond))
	require.NoError(t, c.Resume([]kafkaclient.TopicPartition{p}))
	m := pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(3), m.TopicPartition.Offset)
	require.Equal(t, []byte("m3"), m.Value)
}

func TestUnitConsumerWatermarks(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("empty", 1)
	b.CreateTopic("filled", 1)
	produceStrings(t, b, "filled", 0, "a", "b", "c")
	c := &Consumer{Bootstrap: b.Addr()}
	defer c.Close()
	// live query on an empty partition is (0, 0)
	low, high, err := c.GetWatermarkOffsets(kafkaclient.TopicPartition{Topic: "empty", Partition: 0}, time.Second, false)
	require.NoError(t, err)
	require.Equal(t, int64(0), low)
	require.Equal(t, int64(0), high)
	low, high, err = c.GetWatermarkOffsets(kafkaclient.TopicPartition{Topic: "filled", Partition: 0}, time.Second, false)
	require.NoError(t, err)
	require.Equal(t, int64(0), low)
	require.Equal(t, int64(3), high)
	// cached values come from fetch responses, so there are none
	// before the partition has been fetched
	_, _, err = c.GetWatermarkOffsets(kafkaclient.TopicPartition{Topic: "filled", Partition: 0}, 0, true)
	require.Equal(t, kafkaclient.ERR_LOCAL_STATE, kafkaclient.Code(err))
	require.NoError(t, c.Assign([]kafkaclient.TopicPartition{{Topic: "filled", Partition: 0, Offset: kafkaclient.OffsetBeginning}}))
	pollOne(t, c, 5*time.Second)
	low, high, err = c.GetWatermarkOffsets(kafkaclient.TopicPartition{Topic: "filled", Partition: 0}, 0, true)
	require.NoError(t, err)
	require.Equal(t, int64(0), low)
	require.Equal(t, int64(3), high)
}

func TestUnitConsumerAsyncCommit(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("events", 1)
	produceStrings(t, b, "events", 0, "a", "b")
	var reported []kafkaclient.TopicPartition
	var reportedErr error
	done := false
	c := &Consumer{
		Bootstrap: b.Addr(),
		GroupId:   "g8",
		OnCommit: func(tps []kafkaclient.TopicPartition, err error) {
			reported, reportedErr, done = tps, err, true
		},
	}
	defer c.Close()
	require.NoError(t, c.Subscribe([]string{"events"}, nil, nil))
	m := pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(0), m.TopicPartition.Offset)
	require.NoError(t, c.CommitMessageAsync(m))
	deadline := time.Now().Add(5 * time.Second)
	for !done && time.Now().Before(deadline) {
		c.Poll(50 * time.Millisecond)
	}
	require.True(t, done)
	require.NoError(t, reportedErr)
	require.Len(t, reported, 1)
	require.Equal(t, int64(1), reported[0].Offset)
	require.NoError(t, reported[0].Err)
	require.Equal(t, int64(1), b.CommittedOffset("g8", "events", 0))
}

func TestUnitConsumerManualAssign(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("raw", 2)
	produceStrings(t, b, "raw", 1, "p1a", "p1b")
	c := &Consumer{Bootstrap: b.Addr()} // no group id
	defer c.Close()
	require.NoError(t, c.Assign([]kafkaclient.TopicPartition{{Topic: "raw", Partition: 1, Offset: kafkaclient.OffsetBeginning}}))
	m := pollOne(t, c, 5*time.Second)
	require.Equal(t, int32(1), m.TopicPartition.Partition)
	require.Equal(t, int64(0), m.TopicPartition.Offset)
	require.Equal(t, []byte("p1a"), m.Value)
	a := c.Assignment()
	require.Len(t, a, 1)
	require.Equal(t, int32(1), a[0].Partition)
	// commits need a group
	err := c.Commit()
	require.Equal(t, kafkaclient.ERR_LOCAL_STATE, kafkaclient.Code(err))
	require.NoError(t, c.Unassign())
	require.Empty(t, c.Assignment())
	// assign again, this time with an explicit offset
	require.NoError(t, c.Assign([]kafkaclient.TopicPartition{{Topic: "raw", Partition: 1, Offset: 1}}))
	m = pollOne(t, c, 5*time.Second)
	require.Equal(t, int64(1), m.TopicPartition.Offset)
	require.Equal(t, []byte("p1b"), m.Value)
}

func TestUnitConsumerCloseLeavesGroup(t *testing.T) {
	b := startMockBroker(t)
	b.CreateTopic("events", 1)
	produceStrings(t, b, "events", 0, "a")
	var revoked []kafkaclient.TopicPartition
	c := &Consumer{Bootstrap: b.Addr(), GroupId: "g10"}
	err := c.Subscribe([]string{"events"}, nil,
		func(tps []kafkaclient.TopicPartition) { revoked = append(revoked, tps...) },
	)
	require.NoError(t, err)
	m := pollOne(t, c, 5*time.Second)
	require.Equal(t, []byte("a"), m.Value)
	require.NotEmpty(t, b.GroupMember("g10"))
	require.NoError(t, c.Close())
	require.Len(t, revoked, 1)
	require.Equal(t, "events", revoked[0].Topic)
	require.Empty(t, b.GroupMember("g10"))
	// closed consumers stay closed
	err = c.Subscribe([]string{"events"}, nil, nil)
	require.Equal(t, kafkaclient.ERR_LOCAL_STATE, kafkaclient.Code(err))
	require.Nil(t, c.Poll(0))
	require.NoError(t, c.Close())
}
