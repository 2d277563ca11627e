package consumer

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/batch"
	"github.com/mkocikowski/kafkaclient/client/fetcher"
	"github.com/mkocikowski/kafkaclient/compression"
	"github.com/mkocikowski/kafkaclient/metrics"
	"github.com/mkocikowski/kafkaclient/record"
)

// fetchIdleWait is the pause after a fetch cycle that yields no
// records (and while the partition is paused). Brokers long poll fetch
// requests for up to MaxWaitTimeMs, so against a real cluster an empty
// response already took its time.
const fetchIdleWait = 100 * time.Millisecond

// fetchBackoffCap bounds the exponential backoff between failed fetch
// cycles. Fetching retries forever; it is the position in the log that
// must not be lost, not the request.
const fetchBackoffCap = time.Second

// fetched is a single record (or a fetch error) on its way from a
// partition fetcher to Poll. Entries whose epoch is stale by delivery
// time (a seek happened after their fetch cycle started) are dropped.
type fetched struct {
	msg   *kafkaclient.Message
	key   tp
	epoch int64
}

// partitionFetcher is the background half of one assigned partition.
// It resolves the starting offset, then fetches in a loop, unpacking
// record batches into the consumer's shared queue. It never runs user
// code; all its output goes through the queue.
type partitionFetcher struct {
	consumer *Consumer
	key      tp
	client   *fetcher.PartitionFetcher
	// start is the requested initial position: an explicit offset or
	// one of the Offset* sentinels.
	start  int64
	epoch  int64 // bumped by Seek, read atomically
	paused int32
	seeks  chan int64 // capacity 1, the latest requested target wins
	done   chan struct{}
}

func (f *partitionFetcher) run() {
	defer f.consumer.fetchWg.Done()
	defer f.client.Close()
	target := f.start
	resolved := false
	errors := 0
	for {
		select {
		case <-f.done:
			return
		case o := <-f.seeks:
			target, resolved = o, false
		default:
		}
		if !resolved {
			err := f.position(target)
			if err == nil {
				resolved = true
				errors = 0
				continue
			}
			if f.noteError(err) {
				errors++
				if !f.wait(f.backoff(errors)) {
					return
				}
				continue
			}
			o, ok := f.surfaceAndPark(err)
			if !ok {
				return
			}
			target, resolved = o, false
			continue
		}
		if atomic.LoadInt32(&f.paused) == 1 {
			if !f.wait(fetchIdleWait) {
				return
			}
			continue
		}
		n, err := f.fetch()
		if err == nil {
			errors = 0
			if n == 0 && !f.wait(fetchIdleWait) {
				return
			}
			continue
		}
		if kafkaclient.Code(err) == kafkaclient.ERR_OFFSET_OUT_OF_RANGE {
			// retention (or a bad explicit offset) moved the log away
			// from the cursor: fall back to the reset policy
			f.consumer.Logger.Debug("fetch offset out of range",
				zap.String("topic", f.key.topic),
				zap.Int32("partition", f.key.partition),
				zap.Int64("offset", f.client.Offset()))
			target, resolved = f.consumer.resetTarget(), false
			continue
		}
		if f.noteError(err) {
			errors++
			if !f.wait(f.backoff(errors)) {
				return
			}
			continue
		}
		o, ok := f.surfaceAndPark(err)
		if !ok {
			return
		}
		target, resolved = o, false
	}
}

// position points the fetcher at the target offset, resolving sentinels
// (committed offset for the group, log start, log end) into concrete
// offsets, and records the result as the partition's position.
func (f *partitionFetcher) position(target int64) error {
	c := f.consumer
	if target == kafkaclient.OffsetStored {
		if c.GroupId != "" {
			committed, err := c.group.FetchOffset(f.key.topic, f.key.partition)
			if err != nil {
				return fmt.Errorf("error fetching committed offset: %w", err)
			}
			if committed >= 0 {
				target = committed
			}
		}
		if target == kafkaclient.OffsetStored {
			// nothing committed for this partition
			target = c.resetTarget()
		}
	}
	switch {
	case target == kafkaclient.OffsetBeginning:
		if err := f.client.Seek(fetcher.MessageOldest); err != nil {
			return err
		}
	case target == kafkaclient.OffsetEnd:
		if err := f.client.Seek(fetcher.MessageNewest); err != nil {
			return err
		}
	case target >= 0:
		f.client.SetOffset(target)
	default:
		return &kafkaclient.Error{
			Code:    kafkaclient.ERR_LOCAL_INVALID_ARG,
			Message: fmt.Sprintf("not an offset: %d", target),
		}
	}
	c.store.SetPosition(f.key.topic, f.key.partition, f.client.Offset())
	c.Logger.Debug("partition positioned",
		zap.String("topic", f.key.topic),
		zap.Int32("partition", f.key.partition),
		zap.Int64("offset", f.client.Offset()))
	return nil
}

// fetch runs one fetch cycle: request, unpack batches, push records at
// or past the cursor into the queue, advance the cursor. Returns the
// number of records pushed. On error the cursor stays on the record
// after the last complete batch, so a retry loses nothing.
func (f *partitionFetcher) fetch() (int, error) {
	c := f.consumer
	cycle := atomic.LoadInt64(&f.epoch)
	cursor := f.client.Offset()
	resp, err := f.client.Fetch()
	if err != nil {
		return 0, err
	}
	if resp.ErrorCode != kafkaclient.ERR_NONE {
		return 0, &kafkaclient.Error{Code: resp.ErrorCode}
	}
	c.store.SetWatermarks(f.key.topic, f.key.partition, resp.LogStartOffset, resp.HighWatermark)
	n := 0
	for _, raw := range resp.RecordSet.Batches() {
		b, err := batch.Unmarshal(raw)
		if err != nil {
			return n, &kafkaclient.Error{Code: kafkaclient.ERR_CORRUPT_MESSAGE, Message: err.Error()}
		}
		if ct := b.CompressionType(); ct != compression.TypeNone {
			d := c.decompressors[ct]
			if d == nil {
				return n, fmt.Errorf("no decompressor for compression type %d", ct)
			}
			if err := b.Decompress(d); err != nil {
				return n, &kafkaclient.Error{Code: kafkaclient.ERR_CORRUPT_MESSAGE, Message: err.Error()}
			}
		}
		for _, rb := range b.Records() {
			r, err := record.Unmarshal(rb)
			if err != nil {
				return n, &kafkaclient.Error{Code: kafkaclient.ERR_CORRUPT_MESSAGE, Message: err.Error()}
			}
			offset := b.BaseOffset + r.OffsetDelta
			if offset < cursor {
				// responses are served at batch granularity and can
				// start before the requested offset
				continue
			}
			tsType := kafkaclient.TimestampCreateTime
			if b.TimestampType() == batch.TimestampLogAppend {
				tsType = kafkaclient.TimestampLogAppendTime
			}
			m := &kafkaclient.Message{
				TopicPartition: kafkaclient.TopicPartition{
					Topic:       f.key.topic,
					Partition:   f.key.partition,
					Offset:      offset,
					LeaderEpoch: -1,
				},
				Key:           r.Key,
				Value:         r.Value,
				Headers:       r.Headers,
				Timestamp:     time.Unix(0, b.RecordTimestamp(r)*int64(time.Millisecond)),
				TimestampType: tsType,
			}
			if !f.push(m, cycle) {
				return n, nil
			}
			n++
		}
		f.client.SetOffset(b.LastOffset() + 1)
	}
	if n > 0 {
		metrics.RecordsFetched.WithLabelValues(f.key.topic).Add(float64(n))
	}
	return n, nil
}

func (f *partitionFetcher) push(m *kafkaclient.Message, epoch int64) bool {
	select {
	case f.consumer.queue <- &fetched{msg: m, key: f.key, epoch: epoch}:
		return true
	case <-f.done:
		return false
	}
}

// noteError logs the failure, invalidates cached metadata when the
// error says the cluster moved underneath us, and reports whether the
// cycle is worth retrying.
func (f *partitionFetcher) noteError(err error) bool {
	code := kafkaclient.Code(err)
	metrics.FetchErrors.WithLabelValues(f.key.topic).Inc()
	f.consumer.Logger.Debug("fetch failed",
		zap.String("topic", f.key.topic),
		zap.Int32("partition", f.key.partition),
		zap.Error(err))
	if kafkaclient.StaleMetadata(code) {
		f.consumer.Metadata.Invalidate(f.key.topic)
		f.client.Close()
	}
	return kafkaclient.Retriable(code)
}

// surfaceAndPark delivers the error to the caller as a message with
// TopicPartition.Err set, then stops fetching until a seek repositions
// the partition. Returns the seek target, false when the consumer is
// closing.
func (f *partitionFetcher) surfaceAndPark(err error) (int64, bool) {
	f.consumer.Logger.Warn("partition parked",
		zap.String("topic", f.key.topic),
		zap.Int32("partition", f.key.partition),
		zap.Error(err))
	m := &kafkaclient.Message{
		TopicPartition: kafkaclient.TopicPartition{
			Topic:       f.key.topic,
			Partition:   f.key.partition,
			Offset:      f.client.Offset(),
			LeaderEpoch: -1,
			Err:         err,
		},
	}
	f.push(m, atomic.LoadInt64(&f.epoch))
	select {
	case <-f.done:
		return 0, false
	case o := <-f.seeks:
		return o, true
	}
}

func (f *partitionFetcher) backoff(errors int) time.Duration {
	d := f.consumer.RetryBackoff
	for i := 1; i < errors && d < fetchBackoffCap; i++ {
		d *= 2
	}
	if d > fetchBackoffCap {
		d = fetchBackoffCap
	}
	return d
}

func (f *partitionFetcher) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-f.done:
		return false
	case <-t.C:
		return true
	}
}
