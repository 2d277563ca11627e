package FindCoordinator

import (
	"net"
	"strconv"

	"github.com/mkocikowski/kafkaclient"
)

type Response struct {
	ThrottleTimeMs int32
	ErrorCode      int16
	ErrorMessage   string
	NodeId         int32
	Host           string
	Port           int32
}

func (r *Response) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

func (r *Response) Err() error {
	if r.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: r.ErrorCode, Message: r.ErrorMessage}
}
