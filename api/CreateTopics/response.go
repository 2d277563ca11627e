package CreateTopics

import (
	"github.com/mkocikowski/kafkaclient"
)

type Response struct {
	ThrottleTimeMs int32
	Topics         []TopicResponse
}

func (r *Response) Err() error {
	for _, t := range r.Topics {
		if t.ErrorCode != kafkaclient.ERR_NONE {
			return &kafkaclient.Error{Code: t.ErrorCode, Message: t.ErrorMessage}
		}
	}
	return nil
}

type TopicResponse struct {
	Name         string
	ErrorCode    int16
	ErrorMessage string
}
