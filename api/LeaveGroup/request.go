package LeaveGroup

import (
	"github.com/mkocikowski/kafkaclient/api"
)

// NewRequest tells the coordinator the member is leaving the group on
// purpose. This triggers an immediate rebalance instead of waiting for
// the session timeout to expire.
func NewRequest(group, member string) *api.Request {
	return &api.Request{
		ApiKey:     api.LeaveGroup,
		ApiVersion: 1,
		Body: Request{
			GroupId:  group,
			MemberId: member,
		},
	}
}

type Request struct {
	GroupId  string
	MemberId string
}
