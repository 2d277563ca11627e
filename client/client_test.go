package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"testing"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/api/CreateTopics"
	"github.com/mkocikowski/kafkaclient/mock"
)

func TestUnitRandomBrokerList(t *testing.T) {
	bootstrap := "kafka-1:9092,kafka-2:9092,kafka-3:9092"
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		b := RandomBroker(bootstrap)
		if !strings.HasPrefix(b, "kafka-") || !strings.HasSuffix(b, ":9092") {
			t.Fatal(b)
		}
		seen[b] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected more than one broker picked: %v", seen)
	}
}

func TestUnitCallApiVersions(t *testing.T) {
	b := mock.NewBroker()
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	r, err := CallApiVersions(b.Addr(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Supports(api.Fetch, 11) {
		t.Fatalf("%+v", r)
	}
}

func TestUnitCallApiVersionsBadHost(t *testing.T) {
	_, err := CallApiVersions("foo", nil)
	if err == nil {
		t.Fatal("expected bad host error")
	}
	if kafkaclient.Code(err) != kafkaclient.ERR_LOCAL_TRANSPORT {
		t.Fatal(err)
	}
	t.Log(err)
}

func TestUnitCallCreateTopic(t *testing.T) {
	b := mock.NewBroker()
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	brokers := b.Addr()
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	var r *CreateTopics.Response
	r, _ = CallCreateTopic(brokers, nil, topic, 1, 2)
	if r.Topics[0].ErrorCode != kafkaclient.ERR_INVALID_REPLICATION_FACTOR {
		t.Fatal(kafkaclient.Descriptions[r.Topics[0].ErrorCode])
	}
	r, _ = CallCreateTopic(brokers, nil, topic, 1, 1)
	if r.Topics[0].ErrorCode != kafkaclient.ERR_NONE {
		t.Fatal(kafkaclient.Descriptions[r.Topics[0].ErrorCode])
	}
	r, _ = CallCreateTopic(brokers, nil, topic, 1, 1)
	if r.Topics[0].ErrorCode != kafkaclient.ERR_TOPIC_ALREADY_EXISTS {
		t.Fatal(kafkaclient.Descriptions[r.Topics[0].ErrorCode])
	}
	if _, err := CallCreateTopic("none:9092", nil, topic, 1, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnitCallMetadata(t *testing.T) {
	b := mock.NewBroker()
	b.CreateTopic("foo", 2)
	b.CreateTopic("bar", 1)
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	r, err := CallMetadata(b.Addr(), nil, nil) // nil topics: all topics
	if err != nil {
		t.Fatal(err)
	}
	if n := len(r.TopicMetadata); n != 2 {
		t.Fatalf("expected 2 topics got %d", n)
	}
	if p := r.Partitions("foo"); len(p) != 2 {
		t.Fatalf("%+v", p)
	}
	r, err = CallMetadata(b.Addr(), nil, []string{"baz"})
	if err != nil {
		t.Fatal(err)
	}
	if code := r.TopicMetadata[0].ErrorCode; code != kafkaclient.ERR_UNKNOWN_TOPIC_OR_PARTITION {
		t.Fatal(code)
	}
}

// respond with a bad correlation id and make sure the client catches it
func TestUnitCallCorrelationMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var size int32
		binary.Read(conn, binary.BigEndian, &size)
		body := make([]byte, size)
		io.ReadFull(conn, body)
		correlationId := binary.BigEndian.Uint32(body[4:8])
		resp := make([]byte, 8)
		binary.BigEndian.PutUint32(resp[0:4], 4)
		binary.BigEndian.PutUint32(resp[4:8], correlationId+1)
		conn.Write(resp)
	}()
	_, err = CallApiVersions(ln.Addr().String(), nil)
	if err == nil {
		t.Fatal("expected correlation id mismatch error")
	}
	if !strings.Contains(err.Error(), "correlation id") {
		t.Fatal(err)
	}
	if kafkaclient.Code(err) != kafkaclient.ERR_LOCAL_TRANSPORT {
		t.Fatal(err)
	}
}
