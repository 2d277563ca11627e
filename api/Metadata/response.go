package Metadata

import (
	"net"
	"strconv"

	"github.com/mkocikowski/kafkaclient"
)

type Response struct {
	ThrottleTimeMs int32
	Brokers        []Broker
	ClusterId      string
	ControllerId   int32
	TopicMetadata  []TopicMetadata
}

type Broker struct {
	NodeId int32
	Host   string
	Port   int32
	Rack   string
}

func (b *Broker) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port)))
}

type TopicMetadata struct {
	ErrorCode         int16
	Topic             string
	IsInternal        bool
	PartitionMetadata []PartitionMetadata
}

func (t *TopicMetadata) Err() error {
	if t.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: t.ErrorCode}
}

type PartitionMetadata struct {
	ErrorCode       int16
	Partition       int32
	Leader          int32
	Replicas        []int32
	Isr             []int32
	OfflineReplicas []int32
}

func (r *Response) Broker(id int32) *Broker {
	for _, b := range r.Brokers {
		if b.NodeId == id {
			return &b
		}
	}
	return nil
}

func (r *Response) Topic(topic string) *TopicMetadata {
	for i := range r.TopicMetadata {
		if r.TopicMetadata[i].Topic == topic {
			return &r.TopicMetadata[i]
		}
	}
	return nil
}

// Partitions returns partition metadata for the topic keyed by
// partition number.
func (r *Response) Partitions(topic string) map[int32]*PartitionMetadata {
	partitions := make(map[int32]*PartitionMetadata)
	for _, t := range r.TopicMetadata {
		if t.Topic != topic {
			continue
		}
		for i := range t.PartitionMetadata {
			p := &t.PartitionMetadata[i]
			partitions[p.Partition] = p
		}
	}
	return partitions
}

// Leaders returns partition leaders for the topic keyed by partition
// number. Partitions with no live leader are absent from the map.
func (r *Response) Leaders(topic string) map[int32]*Broker {
	leaders := make(map[int32]*Broker)
	for _, t := range r.TopicMetadata {
		if t.Topic != topic {
			continue
		}
		for _, p := range t.PartitionMetadata {
			broker := r.Broker(p.Leader)
			if broker != nil {
				leaders[p.Partition] = broker
			}
		}
	}
	return leaders
}
