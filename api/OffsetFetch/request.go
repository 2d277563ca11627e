package OffsetFetch

import (
	"github.com/mkocikowski/kafkaclient/api"
)

// NewRequest for the group's committed offsets: topic -> partitions.
func NewRequest(group string, topics map[string][]int32) *api.Request {
	var t []Topic
	for topic, partitions := range topics {
		t = append(t, Topic{
			Name:             topic,
			PartitionIndexes: partitions,
		})
	}
	return &api.Request{
		ApiKey:     api.OffsetFetch,
		ApiVersion: 3,
		Body: Request{
			GroupId: group,
			Topics:  t,
		},
	}
}

type Request struct {
	GroupId string
	Topics  []Topic
}

type Topic struct {
	Name             string
	PartitionIndexes []int32
}
