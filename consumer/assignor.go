package consumer

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/wire"
)

// https://cwiki.apache.org/confluence/display/KAFKA/Kafka+Client-side+Assignment+Proposal

// protocolType identifies members of "regular" consumer groups to the
// coordinator. Connect workers use "connect", consumers use "consumer".
const protocolType = "consumer"

// Subscription is the member metadata blob carried on join group
// requests: the topics the member wants, plus opaque user data. This is
// version 0 of the consumer protocol; the coordinator does not parse
// it, only the group leader does.
type Subscription struct {
	Version  int16
	Topics   []string
	UserData []byte
}

func (s *Subscription) Marshal() []byte {
	buf := new(bytes.Buffer)
	if err := wire.Write(buf, reflect.ValueOf(s)); err != nil {
		panic(fmt.Sprintf("error marshaling subscription: %v", err))
	}
	return buf.Bytes()
}

func UnmarshalSubscription(b []byte) (*Subscription, error) {
	s := &Subscription{}
	if err := wire.Read(bytes.NewBuffer(b), reflect.ValueOf(s)); err != nil {
		return nil, fmt.Errorf("error parsing subscription: %w", err)
	}
	return s, nil
}

// MemberAssignment is the per member blob the leader sends in its sync
// group request, and which every member gets back from the coordinator.
type MemberAssignment struct {
	Version  int16
	Topics   []AssignedTopic
	UserData []byte
}

type AssignedTopic struct {
	Topic      string
	Partitions []int32
}

func (a *MemberAssignment) Marshal() []byte {
	buf := new(bytes.Buffer)
	if err := wire.Write(buf, reflect.ValueOf(a)); err != nil {
		panic(fmt.Sprintf("error marshaling member assignment: %v", err))
	}
	return buf.Bytes()
}

// UnmarshalAssignment parses the assignment blob from a sync group
// response. Members the leader assigned nothing to get a zero length
// blob; that parses to an empty assignment.
func UnmarshalAssignment(b []byte) (*MemberAssignment, error) {
	if len(b) == 0 {
		return &MemberAssignment{}, nil
	}
	a := &MemberAssignment{}
	if err := wire.Read(bytes.NewBuffer(b), reflect.ValueOf(a)); err != nil {
		return nil, fmt.Errorf("error parsing member assignment: %w", err)
	}
	return a, nil
}

// TopicPartitions flattens the assignment, sorted by topic then
// partition. Offsets are set to OffsetStored: group assigned partitions
// resume from their committed offsets.
func (a *MemberAssignment) TopicPartitions() []kafkaclient.TopicPartition {
	var out []kafkaclient.TopicPartition
	for _, t := range a.Topics {
		for _, p := range t.Partitions {
			out = append(out, kafkaclient.TopicPartition{
				Topic:       t.Topic,
				Partition:   p,
				Offset:      kafkaclient.OffsetStored,
				LeaderEpoch: -1,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Partition < out[j].Partition
	})
	return out
}

// Assignor computes the group's partition assignment. Only the group
// leader runs it. The members argument maps member id to that member's
// subscribed topics; partitions maps each subscribed topic to its
// partition ids. The result maps member id to topic to partitions; a
// member never gets partitions of a topic it is not subscribed to.
// All members of a group must use the same assignor (the coordinator
// rejects mixed protocols).
type Assignor struct {
	// Name is the protocol name sent to the coordinator on join.
	Name string
	Assign func(members map[string][]string, partitions map[string][]int32) map[string]map[string][]int32
}

// Range is the default assignor. For each topic, its partitions are
// split into contiguous ranges, one per subscribed member in member id
// order, with the leftovers going to the first members. Consumers with
// the same rank get the same partition ids across topics, which keeps
// co-partitioned topics on the same member.
var Range = &Assignor{Name: "range", Assign: rangeAssign}

func rangeAssign(members map[string][]string, partitions map[string][]int32) map[string]map[string][]int32 {
	out := make(map[string]map[string][]int32)
	for _, topic := range sortedTopics(partitions) {
		subscribed := subscribedMembers(members, topic)
		if len(subscribed) == 0 {
			continue
		}
		parts := partitions[topic]
		per := len(parts) / len(subscribed)
		extra := len(parts) % len(subscribed)
		i := 0
		for rank, member := range subscribed {
			n := per
			if rank < extra {
				n++
			}
			if n == 0 {
				continue
			}
			assign(out, member, topic, parts[i:i+n]...)
			i += n
		}
	}
	return out
}

// RoundRobin deals topic partitions out one at a time, in (topic,
// partition) order, over the members in member id order, skipping
// members not subscribed to the partition's topic. Balances partition
// counts better than Range when members subscribe to many topics.
var RoundRobin = &Assignor{Name: "roundrobin", Assign: roundRobinAssign}

func roundRobinAssign(members map[string][]string, partitions map[string][]int32) map[string]map[string][]int32 {
	memberIds := make([]string, 0, len(members))
	for id := range members {
		memberIds = append(memberIds, id)
	}
	sort.Strings(memberIds)
	subs := make(map[string]map[string]bool) // member -> topics
	for id, topics := range members {
		subs[id] = make(map[string]bool)
		for _, t := range topics {
			subs[id][t] = true
		}
	}
	out := make(map[string]map[string][]int32)
	i := 0
	for _, topic := range sortedTopics(partitions) {
		if len(subscribedMembers(members, topic)) == 0 {
			continue
		}
		for _, p := range partitions[topic] {
			for !subs[memberIds[i%len(memberIds)]][topic] {
				i++
			}
			assign(out, memberIds[i%len(memberIds)], topic, p)
			i++
		}
	}
	return out
}

func assign(out map[string]map[string][]int32, member, topic string, partitions ...int32) {
	if out[member] == nil {
		out[member] = make(map[string][]int32)
	}
	out[member][topic] = append(out[member][topic], partitions...)
}

func sortedTopics(partitions map[string][]int32) []string {
	topics := make([]string, 0, len(partitions))
	for t := range partitions {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func subscribedMembers(members map[string][]string, topic string) []string {
	var out []string
	for id, topics := range members {
		for _, t := range topics {
			if t == topic {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
