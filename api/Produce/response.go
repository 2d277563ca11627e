package Produce

import (
	"bytes"
	"reflect"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/wire"
)

func UnmarshalResponse(b []byte) (*Response, error) {
	r := &Response{}
	buf := bytes.NewBuffer(b)
	err := wire.Read(buf, reflect.ValueOf(r))
	return r, err
}

type Response struct {
	TopicResponses []TopicResponse
	ThrottleTimeMs int32
}

func (r *Response) PartitionResponse() *PartitionResponse {
	defer func() { recover() }()
	return &(r.TopicResponses[0].PartitionResponses[0])
}

type TopicResponse struct {
	Topic              string
	PartitionResponses []PartitionResponse
}

type PartitionResponse struct {
	Partition      int32
	ErrorCode      int16
	BaseOffset     int64
	LogAppendTime  int64
	LogStartOffset int64
}

func (p *PartitionResponse) Err() error {
	if p.ErrorCode == kafkaclient.ERR_NONE {
		return nil
	}
	return &kafkaclient.Error{Code: p.ErrorCode}
}
