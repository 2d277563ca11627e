package fetcher

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/batch"
	"github.com/mkocikowski/kafkaclient/client"
	"github.com/mkocikowski/kafkaclient/client/producer"
	"github.com/mkocikowski/kafkaclient/mock"
)

func startMockBroker(t *testing.T) *mock.Broker {
	t.Helper()
	b := mock.NewBroker()
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestUnitPartitionFetcher(t *testing.T) {
	broker := startMockBroker(t)
	bootstrap := broker.Addr()
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	if _, err := client.CallCreateTopic(bootstrap, nil, topic, 1, 1); err != nil {
		t.Fatal(err)
	}
	p := &producer.PartitionProducer{
		PartitionClient: client.PartitionClient{
			Bootstrap: bootstrap,
			Topic:     topic,
			Partition: 0,
		},
		Acks:      1,
		TimeoutMs: 1000,
	}
	if _, err := p.ProduceStrings(time.Now(), "foo", "bar"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ProduceStrings(time.Now(), "monkey", "banana"); err != nil {
		t.Fatal(err)
	}
	//
	c := &PartitionFetcher{
		PartitionClient: client.PartitionClient{
			Bootstrap: bootstrap,
			Topic:     topic,
			Partition: 0,
		},
		MinBytes:      1,
		MaxBytes:      10 << 20,
		MaxWaitTimeMs: 1000,
	}
	resp, err := c.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if resp.HighWatermark != 4 {
		t.Fatalf("%+v", resp)
	}
	if c.offset != 0 { // offset is not advanced automatically
		t.Fatalf("%+v", c)
	}
	batches := resp.RecordSet.Batches()
	if len(batches) != 2 {
		t.Fatalf("%+v", resp)
	}
	b, err := batch.Unmarshal(batches[1])
	if err != nil {
		t.Fatal(err)
	}
	if b.BaseOffset != 2 {
		t.Fatalf("%+v", b)
	}
	if b.LastOffsetDelta != 1 {
		t.Fatalf("%+v", b)
	}
	//
	c.offset = 4
	resp, err = c.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	batches = resp.RecordSet.Batches()
	if len(batches) != 0 {
		t.Fatalf("%+v", resp)
	}
	if resp.ErrorCode != kafkaclient.ERR_NONE {
		t.Fatalf("%+v", resp)
	}
	//
	if _, err := p.ProduceStrings(time.Now(), "hello"); err != nil {
		t.Fatal(err)
	}
	resp, err = c.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	batches = resp.RecordSet.Batches()
	if len(batches) != 1 {
		t.Fatalf("%+v", resp)
	}
	//
	c.offset = 10
	resp, _ = c.Fetch()
	if resp.ErrorCode != kafkaclient.ERR_OFFSET_OUT_OF_RANGE {
		t.Fatalf("%+v", resp)
	}
	//
	c.offset = -1
	resp, _ = c.Fetch()
	if resp.ErrorCode != kafkaclient.ERR_OFFSET_OUT_OF_RANGE {
		t.Fatalf("%+v", resp)
	}
	//
	if err := c.Seek(MessageNewest); err != nil {
		t.Fatal(err)
	}
	if c.offset != 5 {
		t.Fatalf("%+v", c)
	}
	resp, _ = c.Fetch()
	if resp.ErrorCode != kafkaclient.ERR_NONE {
		t.Fatalf("%+v", resp)
	}
	batches = resp.RecordSet.Batches()
	if len(batches) != 0 {
		t.Fatalf("%+v", resp)
	}
}

// test that when fetching the newest offset (where the offset is the same as
// the high watermark), if there are no new records ready to be fetched, then
// there is no error, and no error code
func TestUnitPartitionFetcherEmptyPartition(t *testing.T) {
	broker := startMockBroker(t)
	bootstrap := broker.Addr()
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	if _, err := client.CallCreateTopic(bootstrap, nil, topic, 1, 1); err != nil {
		t.Fatal(err)
	}
	//
	c := &PartitionFetcher{
		PartitionClient: client.PartitionClient{
			Bootstrap: bootstrap,
			Topic:     topic,
			Partition: 0,
		},
		MinBytes:      1,
		MaxBytes:      10 << 20,
		MaxWaitTimeMs: 1000,
	}
	resp, err := c.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorCode != kafkaclient.ERR_NONE {
		t.Fatalf("%+v", resp)
	}
	if len(resp.RecordSet) != 0 {
		t.Fatalf("%+v", resp)
	}
}

// after retention trims the log, Seek(MessageOldest) lands on the log start
// offset, not on zero
func TestUnitPartitionFetcherSeekOldest(t *testing.T) {
	broker := startMockBroker(t)
	bootstrap := broker.Addr()
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	if _, err := client.CallCreateTopic(bootstrap, nil, topic, 1, 1); err != nil {
		t.Fatal(err)
	}
	p := &producer.PartitionProducer{
		PartitionClient: client.PartitionClient{
			Bootstrap: bootstrap,
			Topic:     topic,
			Partition: 0,
		},
		Acks:      1,
		TimeoutMs: 1000,
	}
	for i := 0; i < 5; i++ {
		if _, err := p.ProduceStrings(time.Now(), fmt.Sprintf("v%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	broker.SetLogStart(topic, 0, 3)
	c := &PartitionFetcher{
		PartitionClient: client.PartitionClient{
			Bootstrap: bootstrap,
			Topic:     topic,
			Partition: 0,
		},
		MaxBytes:      10 << 20,
		MaxWaitTimeMs: 1000,
	}
	if err := c.Seek(MessageOldest); err != nil {
		t.Fatal(err)
	}
	if c.Offset() != 3 {
		t.Fatal(c.Offset())
	}
	resp, err := c.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if resp.LogStartOffset != 3 {
		t.Fatalf("%+v", resp)
	}
	if len(resp.RecordSet.Batches()) != 2 {
		t.Fatalf("%+v", resp)
	}
}
