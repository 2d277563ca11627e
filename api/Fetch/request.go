package Fetch

import (
	"github.com/mkocikowski/kafkaclient/api"
)

type Args struct {
	ClientId           string
	Topic              string
	Partition          int32
	Offset             int64
	CurrentLeaderEpoch int32 // -1 when not known
	MinBytes           int32
	MaxBytes           int32
	MaxWaitTimeMs      int32
}

func NewRequest(args *Args) *api.Request {
	p := Partition{
		Partition:          args.Partition,
		CurrentLeaderEpoch: args.CurrentLeaderEpoch,
		FetchOffset:        args.Offset,
		LogStartOffset:     -1,
		PartitionMaxBytes:  args.MaxBytes,
	}
	t := Topic{
		Topic:      args.Topic,
		Partitions: []Partition{p},
	}
	return &api.Request{
		ApiKey:        api.Fetch,
		ApiVersion:    11,
		CorrelationId: 0,
		ClientId:      args.ClientId,
		Body: Request{
			ReplicaId:     -1,
			MaxWaitTimeMs: args.MaxWaitTimeMs,
			MinBytes:      args.MinBytes,
			MaxBytes:      args.MaxBytes,
			// session id 0 with epoch -1 makes every fetch a full
			// (sessionless) fetch
			SessionId:       0,
			SessionEpoch:    -1,
			Topics:          []Topic{t},
			ForgottenTopics: []ForgottenTopic{},
		},
	}
}

type Request struct {
	ReplicaId       int32
	MaxWaitTimeMs   int32
	MinBytes        int32
	MaxBytes        int32
	IsolationLevel  int8 // 0: read_uncommitted
	SessionId       int32
	SessionEpoch    int32
	Topics          []Topic
	ForgottenTopics []ForgottenTopic
	RackId          string
}

type Topic struct {
	Topic      string
	Partitions []Partition
}

type Partition struct {
	Partition          int32
	CurrentLeaderEpoch int32
	FetchOffset        int64
	LogStartOffset     int64
	PartitionMaxBytes  int32
}

type ForgottenTopic struct {
	Topic      string
	Partitions []int32
}
