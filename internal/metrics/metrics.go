// Package metrics exposes Prometheus collectors for the relay pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal       *prometheus.CounterVec
	pagesSkippedTotal       *prometheus.CounterVec
	articlesPublishedTotal  *prometheus.CounterVec
	articlesIngestedTotal   *prometheus.CounterVec
	deliveriesTotal         *prometheus.CounterVec
	deliveryAttemptsTotal   prometheus.Counter
	rateLimitDelaySeconds   *prometheus.HistogramVec
	queueRedeliveriesTotal  prometheus.Counter
	discoveryPassesTotal    prometheus.Counter
	discoveryPassDurationMs prometheus.Histogram

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsrelay_pages_fetched_total",
				Help: "Pages fetched from the source site, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		pagesSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsrelay_pages_skipped_total",
				Help: "Pages or articles skipped, labeled by reason.",
			},
			[]string{"reason"},
		)
		articlesPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsrelay_articles_published_total",
				Help: "Article drafts published to the queue, labeled by category.",
			},
			[]string{"category"},
		)
		articlesIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsrelay_articles_ingested_total",
				Help: "Queue messages processed by the ingest consumer, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		deliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsrelay_deliveries_total",
				Help: "Channel deliveries resolved, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		deliveryAttemptsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newsrelay_delivery_attempts_total",
				Help: "Individual channel delivery attempts, including retries.",
			},
		)
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsrelay_rate_limit_delay_seconds",
				Help:    "Delay introduced by the rate limiter, labeled by host.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
		queueRedeliveriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newsrelay_queue_redeliveries_total",
				Help: "Queue messages seen with a delivery attempt greater than one.",
			},
		)
		discoveryPassesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newsrelay_discovery_passes_total",
				Help: "Completed discovery passes over the category tree.",
			},
		)
		discoveryPassDurationMs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "newsrelay_discovery_pass_duration_ms",
				Help:    "Duration of a discovery pass in milliseconds.",
				Buckets: prometheus.ExponentialBuckets(100, 2, 12),
			},
		)
	})
}

// PageFetched records a fetch outcome ("ok" or "error").
func PageFetched(outcome string) {
	if pagesFetchedTotal != nil {
		pagesFetchedTotal.WithLabelValues(outcome).Inc()
	}
}

// PageSkipped records a skipped page or article with a reason.
func PageSkipped(reason string) {
	if pagesSkippedTotal != nil {
		pagesSkippedTotal.WithLabelValues(reason).Inc()
	}
}

// ArticlePublished records a draft published to the queue.
func ArticlePublished(category string) {
	if articlesPublishedTotal != nil {
		articlesPublishedTotal.WithLabelValues(category).Inc()
	}
}

// ArticleIngested records a consumer outcome ("inserted", "duplicate", "invalid", "error").
func ArticleIngested(outcome string) {
	if articlesIngestedTotal != nil {
		articlesIngestedTotal.WithLabelValues(outcome).Inc()
	}
}

// DeliveryResolved records a terminal delivery outcome ("delivered", "failed").
func DeliveryResolved(outcome string) {
	if deliveriesTotal != nil {
		deliveriesTotal.WithLabelValues(outcome).Inc()
	}
}

// DeliveryAttempted records a single channel send attempt.
func DeliveryAttempted() {
	if deliveryAttemptsTotal != nil {
		deliveryAttemptsTotal.Inc()
	}
}

// ObserveRateLimitDelay records time spent waiting on the rate limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	if rateLimitDelaySeconds != nil {
		rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
	}
}

// QueueRedelivered records a message observed beyond its first delivery.
func QueueRedelivered() {
	if queueRedeliveriesTotal != nil {
		queueRedeliveriesTotal.Inc()
	}
}

// DiscoveryPassFinished records one completed pass and its duration.
func DiscoveryPassFinished(d time.Duration) {
	if discoveryPassesTotal != nil {
		discoveryPassesTotal.Inc()
	}
	if discoveryPassDurationMs != nil {
		discoveryPassDurationMs.Observe(float64(d.Milliseconds()))
	}
}
