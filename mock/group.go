package mock

import (
	"fmt"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/api/FindCoordinator"
	"github.com/mkocikowski/kafkaclient/api/Heartbeat"
	"github.com/mkocikowski/kafkaclient/api/JoinGroup"
	"github.com/mkocikowski/kafkaclient/api/LeaveGroup"
	"github.com/mkocikowski/kafkaclient/api/OffsetCommit"
	"github.com/mkocikowski/kafkaclient/api/OffsetFetch"
	"github.com/mkocikowski/kafkaclient/api/SyncGroup"
)

// group holds coordinator state. The mock coordinates one member per group:
// each join bumps the generation and makes the joining member the leader.
// That is enough to exercise the full join-sync-heartbeat-commit cycle and
// the error paths (wrong member, stale generation, injected rebalance).
type group struct {
	generation  int32
	memberSeq   int
	memberId    string
	protocol    string
	assignments map[string][]byte
}

type commit struct {
	offset   int64
	metadata string
}

// Generation returns the group's current generation, 0 if the group does not
// exist.
func (b *Broker) Generation(groupId string) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.groups[groupId]
	if g == nil {
		return 0
	}
	return g.generation
}

// GroupMember returns the group's current member id, "" if none.
func (b *Broker) GroupMember(groupId string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.groups[groupId]
	if g == nil {
		return ""
	}
	return g.memberId
}

// CommittedOffset returns the offset committed for the topic partition by
// the group, -1 if there is none.
func (b *Broker) CommittedOffset(groupId, topic string, partition int32) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.commits[groupId][topic][partition]
	if !ok {
		return -1
	}
	return c.offset
}

func (b *Broker) handleFindCoordinator(req *Request) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	host, port := b.host()
	resp := &FindCoordinator.Response{NodeId: 1, Host: host, Port: port}
	if code, ok := b.popError(api.FindCoordinator); ok {
		resp.ErrorCode = code
		resp.ErrorMessage = "injected"
	}
	return resp
}

func (b *Broker) handleJoinGroup(req *Request) interface{} {
	r := &JoinGroup.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, ok := b.popError(api.JoinGroup); ok {
		return &JoinGroup.Response{ErrorCode: code}
	}
	g := b.groups[r.GroupId]
	if g == nil {
		g = &group{assignments: make(map[string][]byte)}
		b.groups[r.GroupId] = g
	}
	memberId := r.MemberId
	if memberId == "" {
		g.memberSeq++
		prefix := req.ClientId
		if prefix == "" {
			prefix = "member"
		}
		memberId = fmt.Sprintf("%s-%d", prefix, g.memberSeq)
	} else if memberId != g.memberId {
		return &JoinGroup.Response{ErrorCode: kafkaclient.ERR_UNKNOWN_MEMBER_ID}
	}
	if len(r.Protocols) == 0 {
		return &JoinGroup.Response{ErrorCode: kafkaclient.ERR_INCONSISTENT_GROUP_PROTOCOL}
	}
	g.generation++
	g.memberId = memberId
	g.protocol = r.Protocols[0].Name
	return &JoinGroup.Response{
		GenerationId: g.generation,
		ProtocolName: g.protocol,
		LeaderId:     memberId,
		MemberId:     memberId,
		Members: []JoinGroup.Member{
			{MemberId: memberId, Metadata: r.Protocols[0].Metadata},
		},
	}
}

// checkMember is called with b.mu held. Returns the error code for a group
// call carrying the member and generation, ERR_NONE if they are current.
func (b *Broker) checkMember(groupId, memberId string, generation int32) int16 {
	g := b.groups[groupId]
	if g == nil || g.memberId != memberId {
		return kafkaclient.ERR_UNKNOWN_MEMBER_ID
	}
	if g.generation != generation {
		return kafkaclient.ERR_ILLEGAL_GENERATION
	}
	return kafkaclient.ERR_NONE
}

func (b *Broker) handleSyncGroup(req *Request) interface{} {
	r := &SyncGroup.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, ok := b.popError(api.SyncGroup); ok {
		return &SyncGroup.Response{ErrorCode: code}
	}
	if code := b.checkMember(r.GroupId, r.MemberId, r.GenerationId); code != kafkaclient.ERR_NONE {
		return &SyncGroup.Response{ErrorCode: code}
	}
	g := b.groups[r.GroupId]
	for _, a := range r.Assignments {
		g.assignments[a.MemberId] = a.Assignment
	}
	assignment := g.assignments[r.MemberId]
	if assignment == nil {
		assignment = []byte{}
	}
	return &SyncGroup.Response{Assignment: assignment}
}

func (b *Broker) handleHeartbeat(req *Request) interface{} {
	r := &Heartbeat.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, ok := b.popError(api.Heartbeat); ok {
		return &Heartbeat.Response{ErrorCode: code}
	}
	return &Heartbeat.Response{
		ErrorCode: b.checkMember(r.GroupId, r.MemberId, r.GenerationId),
	}
}

func (b *Broker) handleLeaveGroup(req *Request) interface{} {
	r := &LeaveGroup.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, ok := b.popError(api.LeaveGroup); ok {
		return &LeaveGroup.Response{ErrorCode: code}
	}
	g := b.groups[r.GroupId]
	if g == nil || g.memberId != r.MemberId {
		return &LeaveGroup.Response{ErrorCode: kafkaclient.ERR_UNKNOWN_MEMBER_ID}
	}
	g.memberId = ""
	g.generation++
	return &LeaveGroup.Response{}
}

func (b *Broker) handleOffsetCommit(req *Request) interface{} {
	r := &OffsetCommit.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	injected, hasInjected := b.popError(api.OffsetCommit)
	memberCode := kafkaclient.ERR_NONE
	if r.GenerationId != -1 {
		memberCode = b.checkMember(r.GroupId, r.MemberId, r.GenerationId)
	}
	resp := &OffsetCommit.Response{}
	for _, t := range r.Topics {
		tr := OffsetCommit.TopicResponse{Name: t.Name}
		for _, p := range t.Partitions {
			code := memberCode
			if hasInjected {
				code = injected
			}
			if code == kafkaclient.ERR_NONE {
				if b.commits[r.GroupId] == nil {
					b.commits[r.GroupId] = make(map[string]map[int32]commit)
				}
				if b.commits[r.GroupId][t.Name] == nil {
					b.commits[r.GroupId][t.Name] = make(map[int32]commit)
				}
				b.commits[r.GroupId][t.Name][p.PartitionIndex] = commit{
					offset:   p.CommitedOffset,
					metadata: p.CommitedMetadata,
				}
			}
			tr.Partitions = append(tr.Partitions, OffsetCommit.PartitionResponse{
				PartitionIndex: p.PartitionIndex,
				ErrorCode:      code,
			})
		}
		resp.Topics = append(resp.Topics, tr)
	}
	return resp
}

func (b *Broker) handleOffsetFetch(req *Request) interface{} {
	r := &OffsetFetch.Request{}
	if err := req.Unmarshal(r); err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	injected, hasInjected := b.popError(api.OffsetFetch)
	resp := &OffsetFetch.Response{}
	if hasInjected {
		resp.ErrorCode = injected
		return resp
	}
	for _, t := range r.Topics {
		tr := OffsetFetch.TopicResponse{Name: t.Name}
		for _, p := range t.PartitionIndexes {
			pr := OffsetFetch.PartitionResponse{
				PartitionIndex: p,
				CommitedOffset: -1,
			}
			if c, ok := b.commits[r.GroupId][t.Name][p]; ok {
				pr.CommitedOffset = c.offset
				pr.Metadata = c.metadata
			}
			tr.Partitions = append(tr.Partitions, pr)
		}
		resp.Topics = append(resp.Topics, tr)
	}
	return resp
}
