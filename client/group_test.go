package client

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api/JoinGroup"
	"github.com/mkocikowski/kafkaclient/api/OffsetCommit"
	"github.com/mkocikowski/kafkaclient/api/SyncGroup"
	"github.com/mkocikowski/kafkaclient/mock"
)

func startMockBroker(t *testing.T) *mock.Broker {
	t.Helper()
	b := mock.NewBroker()
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestUnitGroupClientJoin(t *testing.T) {
	b := startMockBroker(t)
	c := &GroupClient{
		Bootstrap: b.Addr(),
		GroupId:   fmt.Sprintf("test-group-%x", rand.Uint32()),
	}
	req := &JoinGroupRequest{
		ProtocolType: "consumer",
		Protocols:    []JoinGroup.Protocol{{Name: "range", Metadata: []byte{}}},
	}
	resp, err := c.Join(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorCode != kafkaclient.ERR_NONE {
		t.Fatalf("%+v", resp)
	}
	if resp.GenerationId != 1 {
		t.Fatalf("%+v", resp)
	}
	if resp.MemberId == "" {
		t.Fatalf("%+v", resp)
	}
	if !resp.Leader() {
		t.Fatalf("%+v", resp)
	}
	// rejoining with the assigned member id bumps the generation
	req.MemberId = resp.MemberId
	resp, err = c.Join(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.GenerationId != 2 {
		t.Fatalf("%+v", resp)
	}
}

func TestUnitGroupClientSyncAndHeartbeat(t *testing.T) {
	b := startMockBroker(t)
	c := &GroupClient{
		Bootstrap: b.Addr(),
		GroupId:   fmt.Sprintf("test-group-%x", rand.Uint32()),
	}
	join, err := c.Join(&JoinGroupRequest{
		ProtocolType: "consumer",
		Protocols:    []JoinGroup.Protocol{{Name: "range", Metadata: []byte{}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	req := &SyncGroupRequest{
		MemberId:     join.MemberId,
		GenerationId: join.GenerationId,
		Assignments: []SyncGroup.Assignment{
			{
				MemberId:   join.MemberId,
				Assignment: []byte("foo"),
			},
		},
	}
	resp, err := c.Sync(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorCode != kafkaclient.ERR_NONE {
		t.Fatalf("%+v", resp)
	}
	if string(resp.Assignment) != "foo" {
		t.Fatalf("%+v", resp)
	}
	for i := 0; i < 10; i++ {
		if resp, _ := c.Heartbeat(join.MemberId, join.GenerationId); resp.ErrorCode != kafkaclient.ERR_NONE {
			t.Fatalf("%+v", resp)
		}
	}
	// heartbeat with a stale generation must be rejected
	if resp, _ := c.Heartbeat(join.MemberId, join.GenerationId+1); resp.ErrorCode != kafkaclient.ERR_ILLEGAL_GENERATION {
		t.Fatalf("%+v", resp)
	}
}

func TestUnitGroupClientSyncUnknownMemberId(t *testing.T) {
	b := startMockBroker(t)
	c := &GroupClient{
		Bootstrap: b.Addr(),
		GroupId:   fmt.Sprintf("test-group-%x", rand.Uint32()),
	}
	resp, err := c.Sync(&SyncGroupRequest{Assignments: []SyncGroup.Assignment{}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorCode != kafkaclient.ERR_UNKNOWN_MEMBER_ID {
		t.Fatalf("%+v", resp)
	}
}

func TestUnitGroupClientLeave(t *testing.T) {
	b := startMockBroker(t)
	groupId := fmt.Sprintf("test-group-%x", rand.Uint32())
	c := &GroupClient{
		Bootstrap: b.Addr(),
		GroupId:   groupId,
	}
	join, err := c.Join(&JoinGroupRequest{
		ProtocolType: "consumer",
		Protocols:    []JoinGroup.Protocol{{Name: "range", Metadata: []byte{}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Leave(join.MemberId); err != nil {
		t.Fatal(err)
	}
	if member := b.GroupMember(groupId); member != "" {
		t.Fatal(member)
	}
	// the member is gone, its heartbeats must be rejected
	resp, err := c.Heartbeat(join.MemberId, join.GenerationId)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorCode != kafkaclient.ERR_UNKNOWN_MEMBER_ID {
		t.Fatalf("%+v", resp)
	}
}

func TestUnitGroupOffsets(t *testing.T) {
	b := startMockBroker(t)
	c := &GroupClient{
		Bootstrap: b.Addr(),
		GroupId:   fmt.Sprintf("test-group-%x", rand.Uint32()),
	}
	topic := fmt.Sprintf("test-%x", rand.Uint32())
	// no offset commited: -1 and no error
	offset, err := c.FetchOffset(topic, 0)
	if err != nil {
		t.Fatal(err)
	}
	if offset != -1 {
		t.Fatal(offset)
	}
	if err := c.CommitOffset(topic, 0, 42, -1); err != nil {
		t.Fatal(err)
	}
	offset, err = c.FetchOffset(topic, 0)
	if err != nil {
		t.Fatal(err)
	}
	if offset != 42 {
		t.Fatal(offset)
	}
	// many partitions in one call
	if err := c.CommitOffsets(topic, map[int32]OffsetCommit.Commit{
		1: {Offset: 7, Metadata: "m"},
		2: {Offset: 9},
	}, -1); err != nil {
		t.Fatal(err)
	}
	resp, err := c.FetchOffsets(map[string][]int32{topic: {0, 1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	got := map[int32]int64{}
	for _, tr := range resp.Topics {
		for _, p := range tr.Partitions {
			got[p.PartitionIndex] = p.CommitedOffset
		}
	}
	want := map[int32]int64{0: 42, 1: 7, 2: 9, 3: -1}
	for partition, offset := range want {
		if got[partition] != offset {
			t.Fatalf("partition %d: want %d got %d", partition, offset, got[partition])
		}
	}
}

// generation aware commits must be fenced by the coordinator
func TestUnitGroupCommitFencing(t *testing.T) {
	b := startMockBroker(t)
	groupId := fmt.Sprintf("test-group-%x", rand.Uint32())
	c := &GroupClient{
		Bootstrap: b.Addr(),
		GroupId:   groupId,
	}
	join, err := c.Join(&JoinGroupRequest{
		ProtocolType: "consumer",
		Protocols:    []JoinGroup.Protocol{{Name: "range", Metadata: []byte{}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	commit := func(generation int32, member string) int16 {
		resp, err := c.Commit(&OffsetCommit.Args{
			GenerationId:    generation,
			MemberId:        member,
			RetentionTimeMs: -1,
			Offsets: map[string]map[int32]OffsetCommit.Commit{
				"foo": {0: {Offset: 1}},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		return resp.Topics[0].Partitions[0].ErrorCode
	}
	if code := commit(join.GenerationId, join.MemberId); code != kafkaclient.ERR_NONE {
		t.Fatal(kafkaclient.Descriptions[code])
	}
	if code := commit(join.GenerationId+1, join.MemberId); code != kafkaclient.ERR_ILLEGAL_GENERATION {
		t.Fatal(kafkaclient.Descriptions[code])
	}
	if code := commit(join.GenerationId, "impostor"); code != kafkaclient.ERR_UNKNOWN_MEMBER_ID {
		t.Fatal(kafkaclient.Descriptions[code])
	}
	if offset := b.CommittedOffset(groupId, "foo", 0); offset != 1 {
		t.Fatal(offset)
	}
}
