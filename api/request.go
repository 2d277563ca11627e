package api

import (
	"bytes"
	"encoding/binary"
	"reflect"

	"github.com/mkocikowski/kafkaclient/wire"
)

// https://kafka.apache.org/protocol
// https://kafka.apache.org/documentation/#messageformat

type Request struct {
	ApiKey        int16
	ApiVersion    int16
	CorrelationId int32
	ClientId      string
	Body          interface{}
}

// Bytes returns the marshaled request prefixed with its length.
func (r *Request) Bytes() []byte {
	tmp := new(bytes.Buffer)
	wire.Write(tmp, reflect.ValueOf(r))
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, int32(tmp.Len()))
	tmp.WriteTo(buf)
	return buf.Bytes()
}
