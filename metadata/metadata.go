// Package metadata implements a cache of cluster metadata. The cache answers
// "who is the leader for this topic partition" and "what partitions does this
// topic have" from memory, refreshing entries from a bootstrap broker when
// they expire or when they have been invalidated. Producers and consumers
// share one cache (it implements client.LeaderResolver) so that a whole
// process makes one metadata call per topic per TTL instead of one per
// partition client per reconnect.
//
// A cached entry can always be wrong: the cluster does not notify clients
// when leadership moves. Callers find out by making a call to the old leader
// and getting an error code such as NOT_LEADER_FOR_PARTITION. The contract is
// that on any error for which kafkaclient.StaleMetadata is true the caller
// invalidates the topic and retries. The next lookup refreshes.
package metadata

import (
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api/Metadata"
	"github.com/mkocikowski/kafkaclient/client"
	"github.com/mkocikowski/kafkaclient/metrics"
)

// DefaultTTL bounds how long a topic entry is served from cache when
// Cache.TTL is not set. Same default as the java client's
// metadata.max.age.ms.
const DefaultTTL = 5 * time.Minute

// Cache lazily fetches and caches per topic metadata. The zero value with
// Bootstrap set is ready to use. All calls are safe for concurrent use. A
// refresh (cache miss, expired or invalidated entry) holds the cache lock
// across the metadata call, so concurrent lookups for other topics block
// until it completes; the first caller through does the work and the rest
// get the fresh entry.
type Cache struct {
	sync.Mutex
	Bootstrap string // comma separated host:port list, or srv name
	TLS       *tls.Config
	ClientId  string
	// TTL after which a cached topic entry is refreshed on next access.
	// Zero means DefaultTTL.
	TTL time.Duration
	// Logger for refresh events. Nil means no logging.
	Logger *zap.Logger
	topics map[string]*topicEntry
}

type topicEntry struct {
	fetched    time.Time
	stale      bool
	partitions map[int32]*Metadata.PartitionMetadata
	leaders    map[int32]*Metadata.Broker
}

func (c *Cache) ttl() time.Duration {
	if c.TTL == 0 {
		return DefaultTTL
	}
	return c.TTL
}

func (c *Cache) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// refresh is called with the cache lock held.
func (c *Cache) refresh(topic string) (*topicEntry, error) {
	metrics.MetadataRefreshes.Inc()
	resp, err := client.CallMetadata(c.Bootstrap, c.TLS, []string{topic})
	if err != nil {
		return nil, fmt.Errorf("error making metadata call: %w", err)
	}
	t := resp.Topic(topic)
	if t == nil {
		return nil, &kafkaclient.Error{
			Code:    kafkaclient.ERR_LOCAL_UNKNOWN_TOPIC,
			Message: topic,
		}
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("error in metadata response for topic %q: %w", topic, err)
	}
	if c.topics == nil {
		c.topics = make(map[string]*topicEntry)
	}
	e := &topicEntry{
		fetched:    time.Now().UTC(),
		partitions: resp.Partitions(topic),
		leaders:    resp.Leaders(topic),
	}
	c.topics[topic] = e
	c.logger().Debug("refreshed topic metadata",
		zap.String("topic", topic),
		zap.Int("partitions", len(e.partitions)),
	)
	return e, nil
}

// entry is called with the cache lock held. On refresh error the old entry
// (if any) stays in the map but the error is returned: serving metadata
// known to be stale would just turn one clear error into a confusing one
// downstream.
func (c *Cache) entry(topic string) (*topicEntry, error) {
	if e := c.topics[topic]; e != nil && !e.stale && time.Since(e.fetched) < c.ttl() {
		return e, nil
	}
	return c.refresh(topic)
}

// Leader returns the cached leader of the topic partition, refreshing the
// cache as needed. Implements client.LeaderResolver: set a shared Cache as
// the Resolver on PartitionClients.
func (c *Cache) Leader(topic string, partition int32) (*Metadata.Broker, error) {
	c.Lock()
	defer c.Unlock()
	e, err := c.entry(topic)
	if err != nil {
		return nil, err
	}
	if p := e.partitions[partition]; p == nil {
		return nil, client.ErrPartitionDoesNotExist
	}
	leader := e.leaders[partition]
	if leader == nil {
		return nil, client.ErrNoLeaderForPartition
	}
	return leader, nil
}

// Partitions returns the sorted ids of the topic's partitions, refreshing
// the cache as needed.
func (c *Cache) Partitions(topic string) ([]int32, error) {
	c.Lock()
	defer c.Unlock()
	e, err := c.entry(topic)
	if err != nil {
		return nil, err
	}
	partitions := make([]int32, 0, len(e.partitions))
	for p := range e.partitions {
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
	return partitions, nil
}

// Invalidate marks the topic's cache entry stale so that the next lookup
// refreshes it. Call it when a broker response indicates the cached
// leadership is out of date (kafkaclient.StaleMetadata). Invalidating a
// topic with no cache entry is a nop.
func (c *Cache) Invalidate(topic string) {
	c.Lock()
	defer c.Unlock()
	if e := c.topics[topic]; e != nil {
		e.stale = true
		metrics.MetadataInvalidations.Inc()
	}
}

// InvalidateAll marks every cached entry stale.
func (c *Cache) InvalidateAll() {
	c.Lock()
	defer c.Unlock()
	for _, e := range c.topics {
		e.stale = true
	}
}

// Age returns how long ago the topic's entry was fetched, and false if there
// is no entry.
func (c *Cache) Age(topic string) (time.Duration, bool) {
	c.Lock()
	defer c.Unlock()
	e := c.topics[topic]
	if e == nil {
		return 0, false
	}
	return time.Since(e.fetched), true
}
