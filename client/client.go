// Package client has code for making api calls to brokers. It implements the
// PartitionClient which maintains a connection to a single partition leader
// (producers and consumers are built on top of that) and the GroupClient which
// maintains a connection to the group coordinator (for group membership and
// for offset management). Clients are synchronous and all code executes in the
// calling goroutine.
package client

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/api/ApiVersions"
	"github.com/mkocikowski/kafkaclient/api/CreateTopics"
	"github.com/mkocikowski/kafkaclient/api/Metadata"
)

// LookupSrv returns a list of host:port strings in the order returned by the
// srv lookup call.
func LookupSrv(name string) ([]string, error) {
	_, srvs, err := net.LookupSRV("", "", name)
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, srv := range srvs {
		host := net.JoinHostPort(srv.Target, strconv.Itoa(int(srv.Port)))
		addrs = append(addrs, host)
	}
	return addrs, nil
}

// RandomBroker picks the host to bootstrap from. If name is a comma separated
// list of host:port pairs one of them is returned at random. Otherwise name is
// resolved through a call to LookupSrv and a random host:port from the result
// is returned. If LookupSrv fails it returns name unmodified (so you can pass
// "localhost:9092" for example).
func RandomBroker(name string) string {
	if hosts := strings.Split(name, ","); len(hosts) > 1 {
		return strings.TrimSpace(hosts[rand.Intn(len(hosts))])
	}
	addrs, err := LookupSrv(name)
	if err != nil {
		return name
	}
	if len(addrs) == 0 { // is this possible?
		return name
	}
	rand.Shuffle(len(addrs), func(i, j int) {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	})
	return addrs[0]
}

// dial makes a plaintext connection when tlsConfig is nil, TLS otherwise. All
// connection attempts time out after kafkaclient.DialTimeout.
func dial(addr string, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: kafkaclient.DialTimeout}
	if tlsConfig != nil {
		return tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	}
	return dialer.Dial("tcp", addr)
}

func connect(bootstrap string, tlsConfig *tls.Config) (net.Conn, error) {
	return dial(RandomBroker(bootstrap), tlsConfig)
}

// correlationSequence is shared by all connections in the process. Correlation
// ids need to be unique only within a connection but a process wide counter
// makes them unique across connections, which helps when reading captures.
var correlationSequence int32

func transportError(err error) error {
	return &kafkaclient.Error{Code: kafkaclient.ERR_LOCAL_TRANSPORT, Message: err.Error()}
}

// call assigns the request a correlation id, sends the request, reads the
// response, and checks that the response echoes the request's correlation id.
// Any failure is wrapped in ERR_LOCAL_TRANSPORT: when call fails the
// connection is in an undefined state and must not be reused.
func call(conn io.ReadWriter, req *api.Request, v interface{}) error {
	req.CorrelationId = atomic.AddInt32(&correlationSequence, 1)
	out := bufio.NewWriter(conn)
	if _, err := out.Write(req.Bytes()); err != nil {
		return fmt.Errorf("error sending %T request: %w", req.Body, transportError(err))
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("error finalizing %T request: %w", req.Body, transportError(err))
	}
	resp, err := api.Read(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("error reading %T response: %w", req.Body, transportError(err))
	}
	if id := resp.CorrelationId(); id != req.CorrelationId {
		err := fmt.Errorf("expected correlation id %d got %d", req.CorrelationId, id)
		return fmt.Errorf("error reading %T response: %w", req.Body, transportError(err))
	}
	if err := resp.Unmarshal(v); err != nil {
		return fmt.Errorf("error unmarshaling %T response: %w", req.Body, transportError(err))
	}
	return nil
}

func connectAndCall(bootstrap string, tlsConfig *tls.Config, req *api.Request, v interface{}) error {
	conn, err := connect(bootstrap, tlsConfig)
	if err != nil {
		return fmt.Errorf("error connecting to %v: %w", bootstrap, transportError(err))
	}
	defer conn.Close()
	return call(conn, req, v)
}

func CallApiVersions(bootstrap string, tlsConfig *tls.Config) (*ApiVersions.Response, error) {
	req := ApiVersions.NewRequest()
	resp := &ApiVersions.Response{}
	return resp, connectAndCall(bootstrap, tlsConfig, req, resp)
}

// CallMetadata requests metadata for the listed topics. Nil topics means "all
// topics".
func CallMetadata(bootstrap string, tlsConfig *tls.Config, topics []string) (*Metadata.Response, error) {
	req := Metadata.NewRequest(topics)
	resp := &Metadata.Response{}
	return resp, connectAndCall(bootstrap, tlsConfig, req, resp)
}

func CallCreateTopic(bootstrap string, tlsConfig *tls.Config, topic string, numPartitions int32, replicationFactor int16) (*CreateTopics.Response, error) {
	req := CreateTopics.NewRequest(topic, numPartitions, replicationFactor, []CreateTopics.Config{})
	resp := &CreateTopics.Response{}
	return resp, connectAndCall(bootstrap, tlsConfig, req, resp)
}
