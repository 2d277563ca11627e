package LeaveGroup

import (
	"github.com/mkocikowski/kafkaclient"
)

type Response struct {
	ThrottleTimeMs int32
	ErrorCode      int16
}

func (r *Response) Err() error {
	if r.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: r.ErrorCode}
}
