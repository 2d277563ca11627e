package metadata

import (
	"fmt"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/client"
)

// ClusterMetadata is a point in time description of the cluster as reported
// by a single broker: brokers, topics, partition leadership. Returned by
// ListTopics.
type ClusterMetadata struct {
	ClusterId    string
	ControllerId int32
	Brokers      []BrokerMetadata
	Topics       map[string]*TopicMetadata
}

type BrokerMetadata struct {
	Id   int32
	Host string
	Port int32
	Rack string
}

type TopicMetadata struct {
	Topic      string
	Internal   bool
	Partitions map[int32]*PartitionMetadata
	Err        error
}

type PartitionMetadata struct {
	Id       int32
	Leader   int32
	Replicas []int32
	Isrs     []int32
	Err      error
}

// ListTopics makes a metadata call and returns the full cluster view. Topic
// "" means all topics. This is a describe operation, not a lookup: it always
// goes to a broker, bypassing the cache (partition lookups should use Leader
// and Partitions instead).
func (c *Cache) ListTopics(topic string) (*ClusterMetadata, error) {
	var topics []string
	if topic != "" {
		topics = []string{topic}
	}
	resp, err := client.CallMetadata(c.Bootstrap, c.TLS, topics)
	if err != nil {
		return nil, fmt.Errorf("error making metadata call: %w", err)
	}
	meta := &ClusterMetadata{
		ClusterId:    resp.ClusterId,
		ControllerId: resp.ControllerId,
		Topics:       make(map[string]*TopicMetadata),
	}
	for _, b := range resp.Brokers {
		meta.Brokers = append(meta.Brokers, BrokerMetadata{
			Id:   b.NodeId,
			Host: b.Host,
			Port: b.Port,
			Rack: b.Rack,
		})
	}
	for i := range resp.TopicMetadata {
		t := &resp.TopicMetadata[i]
		topicMeta := &TopicMetadata{
			Topic:      t.Topic,
			Internal:   t.IsInternal,
			Partitions: make(map[int32]*PartitionMetadata),
			Err:        t.Err(),
		}
		for _, p := range t.PartitionMetadata {
			var err error
			if p.ErrorCode != kafkaclient.ERR_NONE {
				err = &kafkaclient.Error{Code: p.ErrorCode}
			}
			topicMeta.Partitions[p.Partition] = &PartitionMetadata{
				Id:       p.Partition,
				Leader:   p.Leader,
				Replicas: p.Replicas,
				Isrs:     p.Isr,
				Err:      err,
			}
		}
		meta.Topics[t.Topic] = topicMeta
	}
	return meta, nil
}
