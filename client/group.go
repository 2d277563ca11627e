package client

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

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

func CallFindCoordinator(bootstrap string, tlsConfig *tls.Config, groupId string) (*FindCoordinator.Response, error) {
	req := FindCoordinator.NewRequest(groupId)
	resp := &FindCoordinator.Response{}
	return resp, connectAndCall(bootstrap, tlsConfig, req, resp)
}

func GetGroupCoordinator(bootstrap string, tlsConfig *tls.Config, groupId string) (string, error) {
	resp, err := CallFindCoordinator(bootstrap, tlsConfig, groupId)
	if err != nil {
		return "", fmt.Errorf("error making FindCoordinator call: %w", err)
	}
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("error response from FindCoordinator call: %w", err)
	}
	return resp.Addr(), nil
}

// https://cwiki.apache.org/confluence/display/KAFKA/Kafka+Client-side+Assignment+Proposal

const (
	defaultSessionTimeoutMs   = 10000
	defaultRebalanceTimeoutMs = 60000
)

// GroupClient maintains a connection to the group coordinator. The
// coordinator is resolved (through a FindCoordinator call to a bootstrap
// broker) on the first API call. On call error the connection is closed and
// will be re-opened (re-resolving the coordinator, which may have moved) on
// the next call. Interpreting error codes in Kafka responses, and retries, are
// up to the user. All GroupClient calls are safe for concurrent use.
type GroupClient struct {
	sync.Mutex
	Bootstrap string
	TLS       *tls.Config
	ClientId  string
	GroupId   string
	// SessionTimeoutMs: if the coordinator gets no heartbeat from the
	// member for this long it evicts the member and starts a rebalance.
	// Zero means use the default (10s).
	SessionTimeoutMs int32
	// RebalanceTimeoutMs: how long the coordinator waits for members to
	// rejoin during a rebalance before evicting the stragglers. Zero
	// means use the default (60s).
	RebalanceTimeoutMs int32
	// Logger for connection lifecycle events. Nil means no logging.
	Logger      *zap.Logger
	conn        net.Conn
	coordinator string
}

func (c *GroupClient) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *GroupClient) connect() error {
	if c.conn != nil {
		return nil
	}
	addr, err := GetGroupCoordinator(c.Bootstrap, c.TLS, c.GroupId)
	if err != nil {
		return err
	}
	c.conn, err = dial(addr, c.TLS)
	if err != nil {
		return fmt.Errorf("error connecting to group coordinator: %w", transportError(err))
	}
	c.coordinator = addr
	c.logger().Debug("connected to group coordinator",
		zap.String("group", c.GroupId),
		zap.String("coordinator", addr),
	)
	return nil
}

func (c *GroupClient) disconnect() error {
	if c.conn == nil {
		return nil
	}
	c.conn.Close()
	c.conn = nil
	return nil
}

// Close the connection to the group coordinator. Nop if no active connection.
func (c *GroupClient) Close() error {
	c.Lock()
	defer c.Unlock()
	c.disconnect()
	return nil
}

// Coordinator returns the address of the most recently resolved group
// coordinator, "" if none has been resolved yet.
func (c *GroupClient) Coordinator() string {
	c.Lock()
	defer c.Unlock()
	return c.coordinator
}

func (c *GroupClient) request(req *api.Request, v interface{}) error {
	c.Lock()
	defer c.Unlock()
	if err := c.connect(); err != nil {
		return err
	}
	if req.ClientId == "" {
		req.ClientId = c.ClientId
	}
	err := call(c.conn, req, v)
	if err != nil {
		c.disconnect()
	}
	return err
}

type JoinGroupRequest struct {
	MemberId     string
	ProtocolType string
	Protocols    []JoinGroup.Protocol
}

// Join sends the JoinGroup request. On first join MemberId should be "": the
// coordinator responds with the member id to use in all subsequent calls. The
// member listed as the leader in the response is responsible for computing
// partition assignments and sending them in the Sync call.
func (c *GroupClient) Join(req *JoinGroupRequest) (*JoinGroup.Response, error) {
	sessionTimeout := c.SessionTimeoutMs
	if sessionTimeout == 0 {
		sessionTimeout = defaultSessionTimeoutMs
	}
	rebalanceTimeout := c.RebalanceTimeoutMs
	if rebalanceTimeout == 0 {
		rebalanceTimeout = defaultRebalanceTimeoutMs
	}
	r := JoinGroup.NewRequest(&JoinGroup.Args{
		GroupId:            c.GroupId,
		MemberId:           req.MemberId,
		SessionTimeoutMs:   sessionTimeout,
		RebalanceTimeoutMs: rebalanceTimeout,
		ProtocolType:       req.ProtocolType,
		Protocols:          req.Protocols,
	})
	resp := &JoinGroup.Response{}
	return resp, c.request(r, resp)
}

type SyncGroupRequest struct {
	MemberId     string
	GenerationId int32
	// Assignments are set only by the group leader. Followers send none
	// and get their own assignment back in the response.
	Assignments []SyncGroup.Assignment
}

func (c *GroupClient) Sync(req *SyncGroupRequest) (*SyncGroup.Response, error) {
	r := SyncGroup.NewRequest(c.GroupId, req.MemberId, req.GenerationId, req.Assignments)
	resp := &SyncGroup.Response{}
	return resp, c.request(r, resp)
}

func (c *GroupClient) Heartbeat(memberId string, generationId int32) (*Heartbeat.Response, error) {
	req := Heartbeat.NewRequest(c.GroupId, memberId, generationId)
	resp := &Heartbeat.Response{}
	return resp, c.request(req, resp)
}

// Leave tells the coordinator that the member is leaving the group. This
// triggers an immediate rebalance, instead of the group hanging until the
// member's session times out.
func (c *GroupClient) Leave(memberId string) error {
	req := LeaveGroup.NewRequest(c.GroupId, memberId)
	resp := &LeaveGroup.Response{}
	if err := c.request(req, resp); err != nil {
		return fmt.Errorf("error making leave group call: %w", err)
	}
	return resp.Err()
}

func parseOffsetFetchResponse(r *OffsetFetch.Response) (int64, error) {
	if err := r.Err(); err != nil {
		return -1, err
	}
	if n := len(r.Topics); n != 1 {
		return -1, fmt.Errorf("unexpected number of topic responses: %d", n)
	}
	t := r.Topics[0]
	if n := len(t.Partitions); n != 1 {
		return -1, fmt.Errorf("unexpected number of topic partition responses: %d", n)
	}
	p := t.Partitions[0]
	if p.ErrorCode != kafkaclient.ERR_NONE {
		return -1, &kafkaclient.Error{Code: p.ErrorCode}
	}
	return p.CommitedOffset, nil
}

// FetchOffset fetches the last commited offset for a single topic partition.
// If the topic partition does not exist, or there is no offset commited for
// it, returns -1 and no error.
func (c *GroupClient) FetchOffset(topic string, partition int32) (int64, error) {
	req := OffsetFetch.NewRequest(c.GroupId, map[string][]int32{topic: {partition}})
	resp := &OffsetFetch.Response{}
	if err := c.request(req, resp); err != nil {
		return -1, fmt.Errorf("error making fetch offsets call: %w", err)
	}
	return parseOffsetFetchResponse(resp)
}

// FetchOffsets fetches commited offsets for many topic partitions in one
// call. Partitions with no commited offset have CommitedOffset -1 in the
// response. Interpreting per partition error codes is up to the caller.
func (c *GroupClient) FetchOffsets(topics map[string][]int32) (*OffsetFetch.Response, error) {
	req := OffsetFetch.NewRequest(c.GroupId, topics)
	resp := &OffsetFetch.Response{}
	if err := c.request(req, resp); err != nil {
		return nil, fmt.Errorf("error making fetch offsets call: %w", err)
	}
	return resp, nil
}

// parseOffsetCommitResponse returns an error if there are no partitions in
// the response, or at least one of them has an error.
func parseOffsetCommitResponse(r *OffsetCommit.Response) error {
	if n := len(r.Topics); n < 1 {
		return fmt.Errorf("no topics in commit response")
	}
	for _, t := range r.Topics {
		if n := len(t.Partitions); n < 1 {
			return &kafkaclient.Error{Code: kafkaclient.ERR_INVALID_PARTITIONS}
		}
		for _, p := range t.Partitions {
			if p.ErrorCode != kafkaclient.ERR_NONE {
				return &kafkaclient.Error{Code: p.ErrorCode}
			}
		}
	}
	return nil
}

// CommitOffset commits the offset for a single partition. The offset must be
// the offset of the next record to be consumed, not the last record consumed.
// This is a "simple" commit, not associated with any group generation. For
// generation aware commits use Commit.
func (c *GroupClient) CommitOffset(topic string, partition int32, offset, retentionMs int64) error {
	offsets := map[int32]OffsetCommit.Commit{
		partition: {Offset: offset},
	}
	return c.CommitOffsets(topic, offsets, retentionMs)
}

// CommitOffsets commits offsets for a set of partitions at once. This is a
// "simple" commit, not associated with any group generation. For generation
// aware commits use Commit.
func (c *GroupClient) CommitOffsets(topic string, offsets map[int32]OffsetCommit.Commit, retentionMs int64) error {
	resp, err := c.Commit(&OffsetCommit.Args{
		GenerationId:    -1,
		RetentionTimeMs: retentionMs,
		Offsets:         map[string]map[int32]OffsetCommit.Commit{topic: offsets},
	})
	if err != nil {
		return err
	}
	return parseOffsetCommitResponse(resp)
}

// Commit sends the OffsetCommit request and returns the full response, so
// that the caller can inspect per partition error codes. The GroupId in args
// is set by the client. Set args GenerationId to -1 and MemberId to "" for
// commits not associated with a group generation (the coordinator then skips
// the membership check).
func (c *GroupClient) Commit(args *OffsetCommit.Args) (*OffsetCommit.Response, error) {
	args.GroupId = c.GroupId
	req := OffsetCommit.NewRequest(args)
	resp := &OffsetCommit.Response{}
	if err := c.request(req, resp); err != nil {
		return nil, fmt.Errorf("error making commit offsets call: %w", err)
	}
	return resp, nil
}
