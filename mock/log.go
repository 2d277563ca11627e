package mock

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/api/ApiVersions"
	"github.com/mkocikowski/kafkaclient/api/CreateTopics"
	"github.com/mkocikowski/kafkaclient/api/Fetch"
	"github.com/mkocikowski/kafkaclient/api/ListOffsets"
	"github.com/mkocikowski/kafkaclient/api/Metadata"
	"github.com/mkocikowski/kafkaclient/api/Produce"
	"github.com/mkocikowski/kafkaclient/batch"
)

// segment is one produced record set, with the broker assigned base offset
// patched into its bytes.
type segment struct {
	base      int64
	count     int64
	recordSet []byte
}

type partitionLog struct {
	logStart int64
	high     int64 // offset the next produced record will get
	segments []segment
}

// produce validates the record set (it must parse as a record batch, crc
// included), assigns it the next base offset, and appends it to the log.
func (l *partitionLog) produce(recordSet []byte) (int64, error) {
	b, err := batch.Unmarshal(recordSet)
	if err != nil {
		return -1, fmt.Errorf("error parsing produced record set: %w", err)
	}
	stored := make([]byte, len(recordSet))
	copy(stored, recordSet)
	base := l.high
	binary.BigEndian.PutUint64(stored[0:8], uint64(base))
	l.segments = append(l.segments, segment{
		base:      base,
		count:     int64(b.NumRecords),
		recordSet: stored,
	})
	l.high += int64(b.NumRecords)
	return base, nil
}

// read returns the concatenated record sets of all segments at or past the
// offset. Per the protocol the response may begin before the requested
// offset (the whole containing segment is returned), and the client is
// responsible for skipping records it did not ask for.
func (l *partitionLog) read(offset int64, maxBytes int32) ([]byte, int16) {
	if offset < l.logStart || offset > l.high {
		return nil, kafkaclient.ERR_OFFSET_OUT_OF_RANGE
	}
	var out []byte
	for _, s := range l.segments {
		if s.base+s.count <= offset {
			continue
		}
		if len(out) > 0 && maxBytes > 0 && len(out)+len(s.recordSet) > int(maxBytes) {
			break
		}
		out = append(out, s.recordSet...)
	}
	return out, kafkaclient.ERR_NONE
}

// CreateTopic adds a topic with the given number of partitions, all led by
// the mock broker. Nop if the topic already exists.
func (b *Broker) CreateTopic(topic string, numPartitions int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createTopic(topic, numPartitions)
}

// createTopic is called with b.mu held.
func (b *Broker) createTopic(topic string, numPartitions int32) bool {
	if _, ok := b.topics[topic]; ok {
		return false
	}
	partitions := make(map[int32]*partitionLog)
	for i := int32(0); i < numPartitions; i++ {
		partitions[i] = &partitionLog{}
	}
	b.topics[topic] = partitions
	return true
}

// HighWatermark returns the high watermark (next offset) for the topic
// partition, -1 if it does not exist.
func (b *Broker) HighWatermark(topic string, partition int32) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.partition(topic, partition)
	if l == nil {
		return -1
	}
	return l.high
}

// SetLogStart trims the partition log: records below offset are no longer
// returned and fetches below it get OFFSET_OUT_OF_RANGE. Emulates retention
// kicking in.
func (b *Broker) SetLogStart(topic string, partition int32, offset int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l := b.partition(topic, partition); l != nil {
		l.logStart = offset
		var kept []segment
		for _, s := range l.segments {
			if s.base+s.count <= offset {
				continue
			}
			kept = append(kept, s)
		}
		l.segments = kept
	}
}

// partition is called with b.mu held.
func (b *Broker) partition(topic string, partition int32) *partitionLog {
	partitions := b.topics[topic]
	if partitions == nil {
		return nil
	}
	return partitions[partition]
}

func (b *Broker) handleApiVersions(req *Request) interface{} {
	resp := &ApiVersions.Response{}
	for k := int16(0); k <= api.DeleteGroups; k++ {
		resp.ApiKeys = append(resp.ApiKeys, ApiVersions.ApiKeyVersion{
			ApiKey:     k,
			MinVersion: 0,
			MaxVersion: 11,
		})
	}
	return resp
}

func (b *Broker) handleMetadata(req *Request) interface{} {
	r := &Metadata.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	injected, hasInjected := b.popError(api.Metadata)
	host, port := b.host()
	resp := &Metadata.Response{
		Brokers:      []Metadata.Broker{{NodeId: 1, Host: host, Port: port}},
		ClusterId:    "mock",
		ControllerId: 1,
	}
	topics := r.Topics
	if topics == nil {
		for topic := range b.topics {
			topics = append(topics, topic)
		}
		sort.Strings(topics)
	}
	for _, topic := range topics {
		t := Metadata.TopicMetadata{Topic: topic}
		switch {
		case hasInjected:
			t.ErrorCode = injected
		case b.topics[topic] == nil:
			t.ErrorCode = kafkaclient.ERR_UNKNOWN_TOPIC_OR_PARTITION
		default:
			var ids []int32
			for id := range b.topics[topic] {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, id := range ids {
				t.PartitionMetadata = append(t.PartitionMetadata, Metadata.PartitionMetadata{
					Partition: id,
					Leader:    1,
					Replicas:  []int32{1},
					Isr:       []int32{1},
				})
			}
		}
		resp.TopicMetadata = append(resp.TopicMetadata, t)
	}
	return resp
}

func (b *Broker) handleCreateTopics(req *Request) interface{} {
	r := &CreateTopics.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	resp := &CreateTopics.Response{}
	for _, t := range r.Topics {
		topicResp := CreateTopics.TopicResponse{Name: t.Name}
		switch {
		case t.ReplicationFactor > 1:
			// single node "cluster"
			topicResp.ErrorCode = kafkaclient.ERR_INVALID_REPLICATION_FACTOR
		case !b.createTopic(t.Name, t.NumPartitions):
			topicResp.ErrorCode = kafkaclient.ERR_TOPIC_ALREADY_EXISTS
		}
		resp.Topics = append(resp.Topics, topicResp)
	}
	return resp
}

func (b *Broker) handleProduce(req *Request) interface{} {
	r := &Produce.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	injected, hasInjected := b.popError(api.Produce)
	resp := &Produce.Response{}
	for _, t := range r.TopicData {
		tr := Produce.TopicResponse{Topic: t.Topic}
		for _, d := range t.Data {
			pr := Produce.PartitionResponse{
				Partition:     d.Partition,
				BaseOffset:    -1,
				LogAppendTime: -1,
			}
			l := b.partition(t.Topic, d.Partition)
			switch {
			case hasInjected:
				pr.ErrorCode = injected
			case r.Acks < -1 || r.Acks > 1:
				pr.ErrorCode = kafkaclient.ERR_INVALID_REQUIRED_ACKS
			case l == nil:
				pr.ErrorCode = kafkaclient.ERR_UNKNOWN_TOPIC_OR_PARTITION
			default:
				base, err := l.produce(d.RecordSet)
				if err != nil {
					pr.ErrorCode = kafkaclient.ERR_CORRUPT_MESSAGE
				} else {
					pr.BaseOffset = base
					pr.LogStartOffset = l.logStart
				}
			}
			tr.PartitionResponses = append(tr.PartitionResponses, pr)
		}
		resp.TopicResponses = append(resp.TopicResponses, tr)
	}
	return resp
}

func (b *Broker) handleFetch(req *Request) interface{} {
	r := &Fetch.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	injected, hasInjected := b.popError(api.Fetch)
	resp := &Fetch.Response{}
	for _, t := range r.Topics {
		tr := Fetch.TopicResponse{Topic: t.Topic}
		for _, p := range t.Partitions {
			pr := Fetch.PartitionResponse{
				Partition:            p.Partition,
				LastStableOffset:     -1,
				PreferredReadReplica: -1,
			}
			l := b.partition(t.Topic, p.Partition)
			switch {
			case hasInjected:
				pr.ErrorCode = injected
			case l == nil:
				pr.ErrorCode = kafkaclient.ERR_UNKNOWN_TOPIC_OR_PARTITION
			default:
				recordSet, code := l.read(p.FetchOffset, p.PartitionMaxBytes)
				pr.ErrorCode = code
				pr.RecordSet = recordSet
				pr.HighWatermark = l.high
				pr.LogStartOffset = l.logStart
			}
			tr.PartitionResponses = append(tr.PartitionResponses, pr)
		}
		resp.TopicResponses = append(resp.TopicResponses, tr)
	}
	return resp
}

func (b *Broker) handleListOffsets(req *Request) interface{} {
	r := &ListOffsets.RequestBody{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	injected, hasInjected := b.popError(api.ListOffsets)
	resp := &ListOffsets.Response{}
	for _, t := range r.Topics {
		tr := ListOffsets.TopicResponse{Topic: t.Topic}
		for _, p := range t.Partitions {
			pr := ListOffsets.PartitionResponse{
				Partition: p.Partition,
				Timestamp: -1,
				Offset:    -1,
			}
			l := b.partition(t.Topic, p.Partition)
			switch {
			case hasInjected:
				pr.ErrorCode = injected
			case l == nil:
				pr.ErrorCode = kafkaclient.ERR_UNKNOWN_TOPIC_OR_PARTITION
			case p.Timestamp == ListOffsets.Newest:
				pr.Offset = l.high
			default:
				// the mock does not index record timestamps, any
				// timestamp other than Newest resolves to the log start
				pr.Offset = l.logStart
			}
			tr.Partitions = append(tr.Partitions, pr)
		}
		resp.Responses = append(resp.Responses, tr)
	}
	return resp
}
