package JoinGroup

// https://cwiki.apache.org/confluence/display/KAFKA/Kafka+Client-side+Assignment+Proposal

import (
	"github.com/mkocikowski/kafkaclient/api"
)

type Args struct {
	GroupId  string
	MemberId string
	// SessionTimeoutMs: if the coordinator gets no heartbeat for this
	// long it evicts the member and starts a rebalance.
	SessionTimeoutMs int32
	// RebalanceTimeoutMs: how long the coordinator waits for all
	// members to rejoin once a rebalance starts.
	RebalanceTimeoutMs int32
	ProtocolType       string
	Protocols          []Protocol
}

func NewRequest(args *Args) *api.Request {
	return &api.Request{
		ApiKey:     api.JoinGroup,
		ApiVersion: 2,
		Body: Request{
			GroupId:            args.GroupId,
			SessionTimeoutMs:   args.SessionTimeoutMs,
			RebalanceTimeoutMs: args.RebalanceTimeoutMs,
			MemberId:           args.MemberId,
			ProtocolType:       args.ProtocolType,
			Protocols:          args.Protocols,
		},
	}
}

type Request struct {
	GroupId            string
	SessionTimeoutMs   int32
	RebalanceTimeoutMs int32
	MemberId           string
	ProtocolType       string
	Protocols          []Protocol
}

type Protocol struct {
	Name     string
	Metadata []byte
}
