package ListOffsets

import (
	"github.com/mkocikowski/kafkaclient"
)

type Response struct {
	ThrottleTimeMs int32
	Responses      []TopicResponse
}

type TopicResponse struct {
	Topic      string
	Partitions []PartitionResponse
}

type PartitionResponse struct {
	Partition int32
	ErrorCode int16
	Timestamp int64
	Offset    int64
}

func (p *PartitionResponse) Err() error {
	if p.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: p.ErrorCode}
}

// Partition returns the response for the given topic partition, nil if
// the response does not carry one.
func (r *Response) Partition(topic string, partition int32) *PartitionResponse {
	for _, t := range r.Responses {
		if t.Topic != topic {
			continue
		}
		for i := range t.Partitions {
			if t.Partitions[i].Partition == partition {
				return &t.Partitions[i]
			}
		}
	}
	return nil
}

// Offset for the topic partition, -1 if the response does not carry
// one. Errors are not checked, call Partition if you care.
func (r *Response) Offset(topic string, partition int32) int64 {
	p := r.Partition(topic, partition)
	if p == nil {
		return -1
	}
	return p.Offset
}
