package OffsetCommit

import (
	"github.com/mkocikowski/kafkaclient/api"
)

type Args struct {
	GroupId string
	// GenerationId and MemberId validate group membership at the
	// coordinator. For "simple" (non group) commits set GenerationId to
	// -1 and MemberId to "".
	GenerationId    int32
	MemberId        string
	RetentionTimeMs int64
	// Offsets to commit: topic -> partition -> offset. The offset is
	// the offset of the next record to be consumed, not the last record
	// consumed.
	Offsets map[string]map[int32]Commit
}

type Commit struct {
	Offset   int64
	Metadata string
}

func NewRequest(args *Args) *api.Request {
	var topics []Topic
	for topic, partitions := range args.Offsets {
		t := Topic{Name: topic}
		for partition, commit := range partitions {
			t.Partitions = append(t.Partitions, Partition{
				PartitionIndex:   partition,
				CommitedOffset:   commit.Offset,
				CommitedMetadata: commit.Metadata,
			})
		}
		topics = append(topics, t)
	}
	return &api.Request{
		ApiKey:     api.OffsetCommit,
		ApiVersion: 2,
		Body: Request{
			GroupId:         args.GroupId,
			GenerationId:    args.GenerationId,
			MemberId:        args.MemberId,
			RetentionTimeMs: args.RetentionTimeMs,
			Topics:          topics,
		},
	}
}

type Request struct {
	GroupId         string
	GenerationId    int32
	MemberId        string
	RetentionTimeMs int64
	Topics          []Topic
}

type Topic struct {
	Name       string
	Partitions []Partition
}

type Partition struct {
	PartitionIndex   int32
	CommitedOffset   int64
	CommitedMetadata string
}
