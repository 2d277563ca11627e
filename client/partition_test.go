package client

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/api/ListOffsets"
	"github.com/mkocikowski/kafkaclient/api/Metadata"
	"github.com/mkocikowski/kafkaclient/mock"
)

func TestUnitPartitionClientBadBootstrap(t *testing.T) {
	bootstrap := "foo"
	topic := fmt.Sprintf("test-%x", rand.Uint32()) // do not create
	c := &PartitionClient{
		Bootstrap: bootstrap,
		Topic:     topic,
		Partition: 0,
	}
	_, err := c.ListOffsets(0)
	if err == nil {
		t.Fatal("expected 'dial tcp' error")
	}
	if kafkaclient.Code(err) != kafkaclient.ERR_LOCAL_TRANSPORT {
		t.Fatal(err)
	}
	t.Log(err)
}

func TestUnitPartitionClientNoSuchPartition(t *testing.T) {
	b := mock.NewBroker()
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	topic := fmt.Sprintf("test-%x", rand.Uint32()) // do not create
	c := &PartitionClient{
		Bootstrap: b.Addr(),
		Topic:     topic,
		Partition: 0,
	}
	_, err := c.ListOffsets(0)
	if !errors.Is(err, ErrPartitionDoesNotExist) {
		t.Fatal(err)
	}
	if kafkaclient.Code(err) != kafkaclient.ERR_LOCAL_UNKNOWN_PARTITION {
		t.Fatal(err)
	}
}

func TestUnitPartitionClientListOffsets(t *testing.T) {
	b := mock.NewBroker()
	b.CreateTopic("foo", 1)
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	c := &PartitionClient{
		Bootstrap: b.Addr(),
		Topic:     "foo",
		Partition: 0,
	}
	defer c.Close()
	resp, err := c.ListOffsets(ListOffsets.Newest)
	if err != nil {
		t.Fatal(err)
	}
	if offset := resp.Offset("foo", 0); offset != 0 {
		t.Fatal(offset)
	}
	if c.Leader() == nil {
		t.Fatal("expected leader to be resolved")
	}
	if c.Conn() == nil {
		t.Fatal("expected open connection")
	}
}

// the client must close the connection on call error and reconnect on the
// next call
func TestUnitPartitionClientDisconnectOnError(t *testing.T) {
	b := mock.NewBroker()
	b.CreateTopic("foo", 1)
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	c := &PartitionClient{
		Bootstrap: b.Addr(),
		Topic:     "foo",
		Partition: 0,
	}
	defer c.Close()
	if _, err := c.ListOffsets(ListOffsets.Newest); err != nil {
		t.Fatal(err)
	}
	// returning nil from a handler makes the mock close the connection
	// without responding
	b.Handle(api.ListOffsets, func(*mock.Request) interface{} { return nil })
	if _, err := c.ListOffsets(ListOffsets.Newest); err == nil {
		t.Fatal("expected transport error")
	}
	if c.Conn() != nil {
		t.Fatal("expected connection to be closed after error")
	}
	b.Handle(api.ListOffsets, nil) // restore default handler
	if _, err := c.ListOffsets(ListOffsets.Newest); err != nil {
		t.Fatal(err)
	}
	if c.Conn() == nil {
		t.Fatal("expected connection to be re-opened")
	}
}

type staticResolver struct {
	broker *Metadata.Broker
	calls  int
}

func (r *staticResolver) Leader(topic string, partition int32) (*Metadata.Broker, error) {
	r.calls++
	return r.broker, nil
}

// a client with a Resolver must not make metadata calls
func TestUnitPartitionClientResolver(t *testing.T) {
	b := mock.NewBroker()
	b.CreateTopic("foo", 1)
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	meta, err := CallMetadata(b.Addr(), nil, []string{"foo"})
	if err != nil {
		t.Fatal(err)
	}
	resolver := &staticResolver{broker: meta.Leaders("foo")[0]}
	n := b.CountRequests(api.Metadata)
	c := &PartitionClient{
		Topic:     "foo",
		Partition: 0,
		Resolver:  resolver,
	}
	defer c.Close()
	if _, err := c.ListOffsets(ListOffsets.Newest); err != nil {
		t.Fatal(err)
	}
	if resolver.calls != 1 {
		t.Fatal(resolver.calls)
	}
	if got := b.CountRequests(api.Metadata); got != n {
		t.Fatalf("expected no new metadata requests, got %d", got-n)
	}
}

func TestUnitPartitionClientConnMaxIdle(t *testing.T) {
	b := mock.NewBroker()
	b.CreateTopic("foo", 1)
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	c := &PartitionClient{
		Bootstrap:   b.Addr(),
		Topic:       "foo",
		Partition:   0,
		ConnMaxIdle: time.Millisecond,
	}
	defer c.Close()
	if _, err := c.ListOffsets(ListOffsets.Newest); err != nil {
		t.Fatal(err)
	}
	first := c.Conn()
	time.Sleep(10 * time.Millisecond)
	if _, err := c.ListOffsets(ListOffsets.Newest); err != nil {
		t.Fatal(err)
	}
	if c.Conn() == first {
		t.Fatal("expected a new connection after idle timeout")
	}
}
