package producer

import (
	"time"

	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/batch"
	cproducer "github.com/mkocikowski/kafkaclient/client/producer"
	"github.com/mkocikowski/kafkaclient/metrics"
	"github.com/mkocikowski/kafkaclient/record"
)

// partitionWorker owns the connection to one partition leader and the
// dispatch loop feeding it. At most one produce request is in flight at
// a time, and a batch is fully resolved (acknowledged, or failed after
// retries) before the next one is cut. That is what makes intra
// partition ordering hold across retries.
type partitionWorker struct {
	producer *Producer
	client   *cproducer.PartitionProducer
	in       chan *produced
}

func (w *partitionWorker) run() {
	defer w.producer.wg.Done()
	for {
		first, ok := <-w.in
		if !ok {
			return
		}
		records := []*produced{first}
		size := first.size()
		timer := time.NewTimer(w.producer.Linger)
	gather:
		for len(records) < w.producer.BatchMaxRecords && size < w.producer.BatchMaxBytes {
			select {
			case r, ok := <-w.in:
				if !ok {
					break gather
				}
				records = append(records, r)
				size += r.size()
			case <-timer.C:
				break gather
			}
		}
		timer.Stop()
		w.produce(records)
	}
}

func messageRecord(m *kafkaclient.Message) *record.Record {
	r := record.New(m.Key, m.Value)
	r.Headers = m.Headers
	if !m.Timestamp.IsZero() {
		r.TimestampMs = m.Timestamp.UnixNano() / int64(time.Millisecond)
	}
	return r
}

func (w *partitionWorker) produce(records []*produced) {
	now := time.Now()
	builder := batch.NewBuilder(now)
	for _, r := range records {
		builder.Add(messageRecord(r.msg))
	}
	b, err := builder.Build(now)
	if err == nil && w.producer.Compressor != nil {
		err = b.Compress(w.producer.Compressor)
	}
	if err != nil {
		w.fail(records, err)
		return
	}
	resp, err := w.send(b)
	if err != nil {
		w.fail(records, err)
		return
	}
	w.ack(records, resp)
}

// send the batch, retrying retriable failures with exponential backoff.
// Stale metadata codes additionally invalidate the topic's cache entry
// and close the connection, so that the retry reconnects to whoever
// leads the partition now.
func (w *partitionWorker) send(b *batch.Batch) (*cproducer.Response, error) {
	topic := w.client.Topic
	var lastErr error
	for attempt := 0; attempt <= w.producer.Retries; attempt++ {
		if attempt > 0 {
			metrics.ProduceRetries.WithLabelValues(topic).Inc()
			time.Sleep(w.producer.RetryBackoff << (attempt - 1))
		}
		resp, err := w.client.Produce(b)
		code := kafkaclient.Code(err)
		if err == nil {
			if resp.ErrorCode == kafkaclient.ERR_NONE {
				return resp, nil
			}
			code = resp.ErrorCode
			err = &kafkaclient.Error{Code: code}
		}
		lastErr = err
		w.producer.Logger.Debug("produce request failed",
			zap.String("topic", topic),
			zap.Int32("partition", w.client.Partition),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if kafkaclient.StaleMetadata(code) {
			w.producer.Metadata.Invalidate(topic)
			w.client.Close()
		}
		if !kafkaclient.Retriable(code) {
			break
		}
	}
	return nil, lastErr
}

func (w *partitionWorker) ack(records []*produced, resp *cproducer.Response) {
	appendTime := resp.LogAppendTime > 0
	for i, r := range records {
		r.msg.TopicPartition.Offset = resp.BaseOffset + int64(i)
		if appendTime {
			r.msg.Timestamp = time.Unix(0, resp.LogAppendTime*int64(time.Millisecond))
			r.msg.TimestampType = kafkaclient.TimestampLogAppendTime
		}
		w.producer.events <- r
	}
	metrics.RecordsProduced.WithLabelValues(w.client.Topic).Add(float64(len(records)))
	metrics.BatchRecords.Observe(float64(len(records)))
}

func (w *partitionWorker) fail(records []*produced, err error) {
	w.producer.Logger.Error("record batch failed",
		zap.String("topic", w.client.Topic),
		zap.Int32("partition", w.client.Partition),
		zap.Int("records", len(records)),
		zap.Error(err),
	)
	for _, r := range records {
		r.msg.TopicPartition.Err = err
		w.producer.events <- r
	}
	metrics.RecordsFailed.WithLabelValues(w.client.Topic).Add(float64(len(records)))
}
