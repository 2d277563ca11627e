// Package mock implements a single node in-process Kafka broker, real enough
// to test clients against without a cluster: it listens on a real socket,
// speaks the wire protocol, stores produced record sets in memory, tracks
// committed offsets, and coordinates groups (one member at a time). What it
// is not: a broker. There is no persistence, no replication, no multi member
// rebalancing, and only the api versions this module's clients speak.
//
//	b := mock.NewBroker()
//	b.CreateTopic("foo", 3)
//	if err := b.Start(); err != nil { ... }
//	defer b.Close()
//	c := &client.PartitionClient{Bootstrap: b.Addr(), Topic: "foo"}
//
// Handlers for individual api keys can be replaced with Handle, and single
// error responses injected with ErrorOnce, to exercise client retry paths.
package mock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"

	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/wire"
)

// Request is a parsed request header plus the raw request body. Handlers
// call Unmarshal to parse the body into the api package request struct for
// their key.
type Request struct {
	ApiKey        int16
	ApiVersion    int16
	CorrelationId int32
	ClientId      string
	body          *bytes.Reader
}

func (r *Request) Unmarshal(v interface{}) error {
	return wire.Read(r.body, reflect.ValueOf(v))
}

// Handler builds the response body for a request. Returning nil makes the
// broker close the connection without responding, which is how tests
// simulate transport failures.
type Handler func(*Request) interface{}

type Broker struct {
	mu       sync.Mutex
	ln       net.Listener
	wg       sync.WaitGroup
	conns    map[net.Conn]bool
	handlers map[int16]Handler
	defaults map[int16]Handler
	errors   map[int16][]int16 // pending one-shot error codes by api key
	requests []int16           // api keys in order received
	topics   map[string]map[int32]*partitionLog
	groups   map[string]*group
	commits  map[string]map[string]map[int32]commit
}

func NewBroker() *Broker {
	b := &Broker{
		conns:    make(map[net.Conn]bool),
		handlers: make(map[int16]Handler),
		errors:   make(map[int16][]int16),
		topics:   make(map[string]map[int32]*partitionLog),
		groups:   make(map[string]*group),
		commits:  make(map[string]map[string]map[int32]commit),
	}
	b.defaults = map[int16]Handler{
		api.ApiVersions:     b.handleApiVersions,
		api.Metadata:        b.handleMetadata,
		api.CreateTopics:    b.handleCreateTopics,
		api.Produce:         b.handleProduce,
		api.Fetch:           b.handleFetch,
		api.ListOffsets:     b.handleListOffsets,
		api.FindCoordinator: b.handleFindCoordinator,
		api.JoinGroup:       b.handleJoinGroup,
		api.SyncGroup:       b.handleSyncGroup,
		api.Heartbeat:       b.handleHeartbeat,
		api.LeaveGroup:      b.handleLeaveGroup,
		api.OffsetCommit:    b.handleOffsetCommit,
		api.OffsetFetch:     b.handleOffsetFetch,
	}
	for k, h := range b.defaults {
		b.handlers[k] = h
	}
	return b
}

func (b *Broker) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("error starting mock broker listener: %w", err)
	}
	b.ln = ln
	b.wg.Add(1)
	go b.acceptLoop()
	return nil
}

// Addr returns the host:port the broker listens on. Pass it as Bootstrap.
func (b *Broker) Addr() string {
	return b.ln.Addr().String()
}

func (b *Broker) Close() {
	b.ln.Close()
	b.mu.Lock()
	for conn := range b.conns {
		conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// Handle replaces the handler for the api key. Passing nil restores the
// default handler.
func (b *Broker) Handle(apiKey int16, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h == nil {
		h = b.defaults[apiKey]
	}
	b.handlers[apiKey] = h
}

// ErrorOnce makes the next response for the api key carry the error code (in
// the response's partition or top level error field, depending on the api).
// Queued codes are consumed in order, one per request.
func (b *Broker) ErrorOnce(apiKey int16, code int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors[apiKey] = append(b.errors[apiKey], code)
}

// popError is called by default handlers while they hold b.mu.
func (b *Broker) popError(apiKey int16) (int16, bool) {
	pending := b.errors[apiKey]
	if len(pending) == 0 {
		return 0, false
	}
	code := pending[0]
	b.errors[apiKey] = pending[1:]
	return code, true
}

// Requests returns the api keys of all requests received so far, in order.
func (b *Broker) Requests() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]int16, len(b.requests))
	copy(keys, b.requests)
	return keys
}

// CountRequests returns how many requests for the api key have been
// received.
func (b *Broker) CountRequests(apiKey int16) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range b.requests {
		if k == apiKey {
			n++
		}
	}
	return n
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns[conn] = true
		b.mu.Unlock()
		b.wg.Add(1)
		go b.serve(conn)
	}
}

func (b *Broker) serve(conn net.Conn) {
	defer b.wg.Done()
	defer func() {
		conn.Close()
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
	}()
	for {
		req, err := readRequest(conn)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, req.ApiKey)
		h := b.handlers[req.ApiKey]
		b.mu.Unlock()
		if h == nil {
			return
		}
		resp := h(req)
		if resp == nil {
			return
		}
		if err := respond(conn, req.CorrelationId, resp); err != nil {
			return
		}
	}
}

func readRequest(conn net.Conn) (*Request, error) {
	var size int32
	if err := binary.Read(conn, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	if size < 8 {
		return nil, fmt.Errorf("request size %d too small", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, err
	}
	r := bytes.NewReader(body)
	req := &Request{body: r}
	binary.Read(r, binary.BigEndian, &req.ApiKey)
	binary.Read(r, binary.BigEndian, &req.ApiVersion)
	binary.Read(r, binary.BigEndian, &req.CorrelationId)
	var n int16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("error reading client id length: %w", err)
	}
	if n > 0 {
		clientId := make([]byte, n)
		if _, err := io.ReadFull(r, clientId); err != nil {
			return nil, fmt.Errorf("error reading client id: %w", err)
		}
		req.ClientId = string(clientId)
	}
	return req, nil
}

func respond(conn net.Conn, correlationId int32, v interface{}) error {
	body := new(bytes.Buffer)
	binary.Write(body, binary.BigEndian, correlationId)
	if err := wire.Write(body, reflect.ValueOf(v)); err != nil {
		return fmt.Errorf("error marshaling mock response: %w", err)
	}
	framed := new(bytes.Buffer)
	binary.Write(framed, binary.BigEndian, int32(body.Len()))
	body.WriteTo(framed)
	_, err := conn.Write(framed.Bytes())
	return err
}

func (b *Broker) host() (string, int32) {
	host, port, _ := net.SplitHostPort(b.ln.Addr().String())
	var p int32
	fmt.Sscanf(port, "%d", &p)
	return host, p
}
