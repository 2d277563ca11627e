package OffsetFetch

import (
	"github.com/mkocikowski/kafkaclient"
)

type Response struct {
	ThrottleTimeMs int32
	Topics         []TopicResponse
	ErrorCode      int16
}

func (r *Response) Err() error {
	if r.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: r.ErrorCode}
}

type TopicResponse struct {
	Name       string
	Partitions []PartitionResponse
}

type PartitionResponse struct {
	PartitionIndex int32
	// CommitedOffset is -1 when there is no commit for the partition.
	CommitedOffset int64
	Metadata       string
	ErrorCode      int16
}

func (p *PartitionResponse) Err() error {
	if p.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: p.ErrorCode}
}
