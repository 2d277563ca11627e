package consumer

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api/JoinGroup"
	"github.com/mkocikowski/kafkaclient/api/SyncGroup"
	"github.com/mkocikowski/kafkaclient/client"
)

// joinBackoffCap bounds the backoff between failed join rounds. Like
// fetching, group membership retries forever: a consumer that lost its
// group keeps trying to get back in until it is closed.
const joinBackoffCap = 5 * time.Second

// membership is the group protocol side of a subscribed consumer: the
// join, sync, heartbeat cycle, running until Unsubscribe or Close. It
// emits rebalance events into the consumer's event channel and the
// caller's next Poll runs the callbacks and starts or stops partition
// fetchers. This loop never touches fetchers and never runs user code.
//
// Rebalancing is eager: on any sign of a rebalance the member emits a
// revoke for everything it holds, waits for the caller's Poll to
// acknowledge it (fetchers stopped, revoke callback done), and only
// then rejoins. A caller that stops polling therefore stalls its own
// rejoin, and the coordinator evicts it after the rebalance timeout.
func (c *Consumer) membership() {
	defer c.memberWg.Done()
	var memberId string
	var assigned []kafkaclient.TopicPartition
	defer func() {
		if memberId == "" {
			return
		}
		if err := c.group.Leave(memberId); err != nil {
			c.Logger.Debug("error leaving group", zap.String("group", c.GroupId), zap.Error(err))
		} else {
			c.Logger.Debug("left group", zap.String("group", c.GroupId))
		}
	}()
	for {
		if len(assigned) > 0 {
			ack := make(chan struct{})
			if !c.emit(revokeEvent{partitions: assigned, ack: ack}) {
				return
			}
			select {
			case <-ack:
			case <-c.memberDone:
				return
			}
			assigned = nil
		}
		generation, own, ok := c.join(&memberId)
		if !ok {
			return
		}
		c.mu.Lock()
		c.memberId = memberId
		c.generation = generation
		c.mu.Unlock()
		c.Logger.Info("joined group",
			zap.String("group", c.GroupId),
			zap.String("member", memberId),
			zap.Int32("generation", generation),
			zap.Int("partitions", len(own)))
		if !c.emit(assignEvent{partitions: own}) {
			return
		}
		assigned = own
		if !c.heartbeat(memberId, generation) {
			return
		}
	}
}

// emit delivers a rebalance event to the caller. Blocks until the event
// is queued; returns false when the consumer is closing.
func (c *Consumer) emit(e interface{}) bool {
	select {
	case c.events <- e:
		return true
	case <-c.memberDone:
		return false
	}
}

// join runs join+sync rounds, with backoff, until one succeeds or the
// consumer is closed. The member id survives rebalances but is reset
// when the coordinator stops recognizing it. On the leader it also
// computes the assignment for the whole group.
func (c *Consumer) join(memberId *string) (int32, []kafkaclient.TopicPartition, bool) {
	c.mu.Lock()
	topics := make([]string, len(c.subscription))
	copy(topics, c.subscription)
	c.mu.Unlock()
	protocols := []JoinGroup.Protocol{{
		Name:     c.Assignor.Name,
		Metadata: (&Subscription{Topics: topics}).Marshal(),
	}}
	backoff := c.RetryBackoff
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if !c.pause(backoff) {
				return 0, nil, false
			}
			if backoff *= 2; backoff > joinBackoffCap {
				backoff = joinBackoffCap
			}
		}
		resp, err := c.group.Join(&client.JoinGroupRequest{
			MemberId:     *memberId,
			ProtocolType: protocolType,
			Protocols:    protocols,
		})
		if err != nil {
			// transport: the group client re-resolves the coordinator
			// on the next call
			c.Logger.Debug("join failed", zap.String("group", c.GroupId), zap.Error(err))
			continue
		}
		switch resp.ErrorCode {
		case kafkaclient.ERR_NONE:
		case kafkaclient.ERR_UNKNOWN_MEMBER_ID:
			*memberId = ""
			continue
		default:
			c.noteGroupError("join", resp.ErrorCode)
			continue
		}
		*memberId = resp.MemberId
		var assignments []SyncGroup.Assignment
		if resp.Leader() {
			if assignments, err = c.assignments(resp); err != nil {
				c.Logger.Debug("leader could not compute assignments", zap.Error(err))
				continue
			}
		}
		sresp, err := c.group.Sync(&client.SyncGroupRequest{
			MemberId:     *memberId,
			GenerationId: resp.GenerationId,
			Assignments:  assignments,
		})
		if err != nil {
			c.Logger.Debug("sync failed", zap.String("group", c.GroupId), zap.Error(err))
			continue
		}
		if sresp.ErrorCode != kafkaclient.ERR_NONE {
			if sresp.ErrorCode == kafkaclient.ERR_UNKNOWN_MEMBER_ID {
				*memberId = ""
			}
			c.noteGroupError("sync", sresp.ErrorCode)
			continue
		}
		own, err := UnmarshalAssignment(sresp.Assignment)
		if err != nil {
			c.Logger.Debug("bad assignment from leader", zap.Error(err))
			continue
		}
		return resp.GenerationId, own.TopicPartitions(), true
	}
}

func (c *Consumer) noteGroupError(call string, code int16) {
	if kafkaclient.Retriable(code) || code == kafkaclient.ERR_REBALANCE_IN_PROGRESS {
		c.Logger.Debug(call+" rejected", zap.String("group", c.GroupId),
			zap.Error(&kafkaclient.Error{Code: code}))
		return
	}
	// non retriable (authorization, protocol mismatch): keep trying at
	// the capped backoff, but make noise about it
	c.Logger.Error(call+" rejected", zap.String("group", c.GroupId),
		zap.Error(&kafkaclient.Error{Code: code}))
}

// assignments decodes every member's subscription, resolves partitions
// for the union of subscribed topics, and runs the assignor. Called on
// the group leader only.
func (c *Consumer) assignments(resp *JoinGroup.Response) ([]SyncGroup.Assignment, error) {
	members := make(map[string][]string)
	topics := make(map[string]bool)
	for _, m := range resp.Members {
		s, err := UnmarshalSubscription(m.Metadata)
		if err != nil {
			return nil, err
		}
		members[m.MemberId] = s.Topics
		for _, t := range s.Topics {
			topics[t] = true
		}
	}
	partitions := make(map[string][]int32)
	for topic := range topics {
		p, err := c.Metadata.Partitions(topic)
		if err != nil {
			return nil, err
		}
		partitions[topic] = p
	}
	assigned := c.Assignor.Assign(members, partitions)
	out := make([]SyncGroup.Assignment, 0, len(members))
	for memberId := range members {
		a := &MemberAssignment{}
		for _, topic := range sortedTopics(assigned[memberId]) {
			a.Topics = append(a.Topics, AssignedTopic{
				Topic:      topic,
				Partitions: assigned[memberId][topic],
			})
		}
		out = append(out, SyncGroup.Assignment{MemberId: memberId, Assignment: a.Marshal()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberId < out[j].MemberId })
	return out, nil
}

// heartbeat keeps the membership alive, and drives auto commit when
// that is on. Returns true when the group needs rejoining, false when
// the consumer is closing. Transport errors are not fatal here: the
// group client reconnects on the next tick, and if the coordinator
// evicted us in the meantime the response code says so.
func (c *Consumer) heartbeat(memberId string, generation int32) bool {
	ticker := time.NewTicker(c.HeartbeatInterval)
	defer ticker.Stop()
	var autoC <-chan time.Time
	if c.AutoCommitInterval > 0 {
		auto := time.NewTicker(c.AutoCommitInterval)
		defer auto.Stop()
		autoC = auto.C
	}
	for {
		select {
		case <-c.memberDone:
			return false
		case <-autoC:
			c.autoCommit()
		case <-ticker.C:
			resp, err := c.group.Heartbeat(memberId, generation)
			if err != nil {
				c.Logger.Debug("heartbeat failed", zap.String("group", c.GroupId), zap.Error(err))
				continue
			}
			switch resp.ErrorCode {
			case kafkaclient.ERR_NONE:
			case kafkaclient.ERR_REBALANCE_IN_PROGRESS:
				c.Logger.Debug("rebalance started", zap.String("group", c.GroupId))
				return true
			default:
				// ILLEGAL_GENERATION, UNKNOWN_MEMBER_ID: the group
				// moved on without us, rejoin
				c.Logger.Debug("heartbeat rejected", zap.String("group", c.GroupId),
					zap.Error(&kafkaclient.Error{Code: resp.ErrorCode}))
				return true
			}
		}
	}
}

// autoCommit commits the positions that advanced since the last commit.
// Runs on the membership goroutine; results are reported through the
// event channel so OnCommit still fires from Poll.
func (c *Consumer) autoCommit() {
	dirty := c.store.Dirty()
	if len(dirty) == 0 {
		return
	}
	var tps []kafkaclient.TopicPartition
	for topic, partitions := range dirty {
		for partition, offset := range partitions {
			tps = append(tps, kafkaclient.TopicPartition{
				Topic: topic, Partition: partition, Offset: offset, LeaderEpoch: -1,
			})
		}
	}
	result, err := c.commitOffsets(tps)
	if err != nil {
		c.Logger.Debug("auto commit failed", zap.String("group", c.GroupId), zap.Error(err))
	}
	c.report(commitEvent{partitions: result, err: err})
}

// pause sleeps, cut short when the consumer is closing.
func (c *Consumer) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.memberDone:
		return false
	case <-t.C:
		return true
	}
}
