// Package fetcher implements a single partition Kafka fetcher. A "fetcher", in
// my nomenclature, is different from a "consumer" in that it does no offset
// management of its own: it doesn't even advance the offset on successfully
// reading a fetch response. The reason for this is that there are many nuanced
// error scenarios (example: fetch response successful; 3rd out of 5 returned
// batches is corrupted) and so it makes sense to push the error handling logic
// (and the logic responsible for advancing and storing offsets) to a higher
// level library or even to the user.
package fetcher

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api/Fetch"
	"github.com/mkocikowski/kafkaclient/batch"
	"github.com/mkocikowski/kafkaclient/client"
)

func parseResponse(r *Fetch.Response) (*Response, error) {
	if n := len(r.TopicResponses); n != 1 {
		return nil, fmt.Errorf("unexpected number of topic responses: %d", n)
	}
	topicResponse := &(r.TopicResponses[0])
	if n := len(topicResponse.PartitionResponses); n != 1 {
		return nil, fmt.Errorf("unexpected number of partition responses: %d", n)
	}
	partitionResponse := &(topicResponse.PartitionResponses[0])
	return &Response{
		ThrottleTimeMs: r.ThrottleTimeMs,
		Topic:          topicResponse.Topic,
		Partition:      partitionResponse.Partition,
		ErrorCode:      partitionResponse.ErrorCode,
		LogStartOffset: partitionResponse.LogStartOffset,
		HighWatermark:  partitionResponse.HighWatermark,
		RecordSet:      batch.RecordSet(partitionResponse.RecordSet),
	}, nil
}

type Response struct {
	Topic          string
	Partition      int32
	ThrottleTimeMs int32
	ErrorCode      int16
	LogStartOffset int64
	HighWatermark  int64
	RecordSet      batch.RecordSet `json:"-"`
}

type Fetcher interface {
	Fetch() (*Response, error)
	Seeker
	io.Closer
}

type Seeker interface {
	Seek(time.Time) error
	Offset() int64
	SetOffset(int64)
}

type SeekCloser interface {
	Seeker
	io.Closer
}

type PartitionFetcher struct {
	sync.Mutex
	client.PartitionClient
	offset int64
	//
	MinBytes      int32
	MaxBytes      int32
	MaxWaitTimeMs int32
}

// Sentinel values for Seek. MessageNewest seeks to the offset one past the
// last record in the partition (the next record produced will get that
// offset). MessageOldest seeks to the first record in the partition (which,
// on compacted or retention expired topics, is not necessarily offset 0).
var (
	MessageNewest = time.Unix(0, -1e6)
	MessageOldest = time.Unix(0, -2e6)
)

// Seek moves the fetcher's offset to the earliest offset with a timestamp at
// or past the argument, by making a ListOffsets call to the partition leader.
// Use MessageNewest and MessageOldest to seek to the partition high and low
// watermark.
func (c *PartitionFetcher) Seek(offset time.Time) error {
	c.Lock()
	defer c.Unlock()
	o := offset.UnixNano() / int64(time.Millisecond)
	resp, err := c.PartitionClient.ListOffsets(o)
	if err != nil {
		return err
	}
	p := resp.Partition(c.Topic, c.Partition)
	if p == nil {
		return fmt.Errorf("topic partition missing from ListOffsets response")
	}
	if p.ErrorCode != kafkaclient.ERR_NONE {
		return &kafkaclient.Error{Code: p.ErrorCode}
	}
	c.offset = p.Offset
	return nil
}

func (c *PartitionFetcher) Offset() int64 {
	c.Lock()
	defer c.Unlock()
	return c.offset
}

func (c *PartitionFetcher) SetOffset(offset int64) {
	c.Lock()
	c.offset = offset
	c.Unlock()
}

func fetch(c *client.PartitionClient, args *Fetch.Args) (*Response, error) {
	resp, err := c.Fetch(args)
	if err != nil {
		return nil, err
	}
	return parseResponse(resp)
}

// Fetch records starting at the fetcher's current offset. The offset is not
// advanced: call SetOffset once you have processed the response.
func (c *PartitionFetcher) Fetch() (*Response, error) {
	c.Lock()
	defer c.Unlock()
	args := &Fetch.Args{
		ClientId:           c.ClientId,
		Topic:              c.Topic,
		Partition:          c.Partition,
		Offset:             c.offset,
		CurrentLeaderEpoch: -1,
		MinBytes:           c.MinBytes,
		MaxBytes:           c.MaxBytes,
		MaxWaitTimeMs:      c.MaxWaitTimeMs,
	}
	resp, err := fetch(&(c.PartitionClient), args)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
