// Package metrics defines Prometheus metrics for appstore-iap. A batch run is
// a short-lived process, so metrics are exported by writing a textfile for
// the node_exporter textfile collector instead of serving /metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "asc_iap"

// App Store Connect API metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total number of App Store Connect API requests.",
	}, []string{"method", "resource", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Duration of App Store Connect API requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "resource"})

	APIRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_rate_limit_remaining",
		Help:      "Remaining requests in the hourly quota as reported by the X-Rate-Limit header.",
	})

	APIQuotaExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_quota_exhausted_total",
		Help:      "Total number of requests refused locally because the hourly quota was used up.",
	})

	TokensSignedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_signed_total",
		Help:      "Total number of API tokens signed.",
	})
)

// Screenshot upload metrics.
var (
	UploadOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_operations_total",
		Help:      "Total number of presigned upload operations by outcome.",
	}, []string{"outcome"})

	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Total bytes sent to presigned upload URLs.",
	})
)

// Batch metrics.
var (
	BatchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_items_total",
		Help:      "Total number of batch items processed by status.",
	}, []string{"status"})

	BatchItemDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_item_duration_seconds",
		Help:      "Duration of a single price's creation pipeline in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	BatchLastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "batch_last_run_timestamp_seconds",
		Help:      "Unix time the last batch run finished.",
	})
)

// Fake App Store Connect server metrics.
var (
	MockRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mock",
		Name:      "requests_total",
		Help:      "Total number of requests served by the fake App Store Connect server.",
	}, []string{"method", "path", "status"})

	MockRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "mock",
		Name:      "request_duration_seconds",
		Help:      "Duration of requests served by the fake App Store Connect server.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// WriteTextfile writes every registered metric to path in the Prometheus
// text exposition format. The write is atomic (temp file + rename).
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
