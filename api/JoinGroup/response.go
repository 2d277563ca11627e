package JoinGroup

import (
	"github.com/mkocikowski/kafkaclient"
)

type Response struct {
	ThrottleTimeMs int32
	ErrorCode      int16
	GenerationId   int32
	ProtocolName   string
	LeaderId       string
	MemberId       string
	Members        []Member // empty unless this member is the leader
}

type Member struct {
	MemberId string
	Metadata []byte
}

// Leader says whether this member was elected the group leader and has
// to compute partition assignments for all members.
func (r *Response) Leader() bool {
	return r.LeaderId == r.MemberId && r.MemberId != ""
}

func (r *Response) Err() error {
	if r.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: r.ErrorCode}
}
