package OffsetCommit

import (
	"github.com/mkocikowski/kafkaclient"
)

type Response struct {
	Topics []TopicResponse
}

type TopicResponse struct {
	Name       string
	Partitions []PartitionResponse
}

type PartitionResponse struct {
	PartitionIndex int32
	ErrorCode      int16
}

func (p *PartitionResponse) Err() error {
	if p.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: p.ErrorCode}
}
