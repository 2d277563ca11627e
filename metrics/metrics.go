// Package metrics defines the prometheus collectors updated by the
// producer and consumer runtimes and by the metadata cache. Collectors
// register with the default prometheus registry so they show up on any
// promhttp endpoint the embedding process already serves; Handler is
// there for processes that do not have one (see cmd/kcl).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsProduced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafkaclient_producer_records_total",
		Help: "Records acknowledged by partition leaders",
	}, []string{"topic"})

	RecordsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafkaclient_producer_record_failures_total",
		Help: "Records that failed delivery, after retries",
	}, []string{"topic"})

	ProduceRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafkaclient_producer_retries_total",
		Help: "Produce requests retried after a retriable error",
	}, []string{"topic"})

	BatchRecords = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kafkaclient_producer_batch_records",
		Help:    "Records per produced batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ProducerQueue = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kafkaclient_producer_queue_depth",
		Help: "Records produced but not yet resolved by a delivery report",
	})

	RecordsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafkaclient_consumer_records_total",
		Help: "Records fetched from partition leaders",
	}, []string{"topic"})

	FetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafkaclient_consumer_fetch_errors_total",
		Help: "Fetch calls that returned an error or an error code",
	}, []string{"topic"})

	ConsumerLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kafkaclient_consumer_lag_records",
		Help: "High watermark minus next offset to read, per partition",
	}, []string{"topic", "partition"})

	OffsetCommits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafkaclient_consumer_commits_total",
		Help: "Offset commit requests acknowledged by the coordinator",
	}, []string{"group"})

	CommitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafkaclient_consumer_commit_errors_total",
		Help: "Offset commit requests that failed",
	}, []string{"group"})

	Rebalances = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafkaclient_consumer_rebalances_total",
		Help: "Completed join+sync rounds",
	}, []string{"group"})

	MetadataRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kafkaclient_metadata_refreshes_total",
		Help: "Topic metadata refreshes (TTL expiry or invalidation)",
	})

	MetadataInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kafkaclient_metadata_invalidations_total",
		Help: "Explicit cache invalidations (stale metadata error codes)",
	})
)

func init() {
	prometheus.MustRegister(
		RecordsProduced, RecordsFailed, ProduceRetries, BatchRecords, ProducerQueue,
		RecordsFetched, FetchErrors, ConsumerLag, OffsetCommits, CommitErrors, Rebalances,
		MetadataRefreshes, MetadataInvalidations,
	)
}

// Handler serves the default prometheus registry in exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
