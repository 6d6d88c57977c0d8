package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CatalogMetrics tracks C1 catalog-client call outcomes.
type CatalogMetrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	CacheResult  *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// LockMetrics tracks C3 lock-service acquisitions.
type LockMetrics struct {
	AcquireTotal   *prometheus.CounterVec
	AcquireLatency prometheus.Histogram
}

// RetryQueueMetrics tracks C4 retry-queue activity.
type RetryQueueMetrics struct {
	RecordedTotal     prometheus.Counter
	DeadLetteredTotal prometheus.Counter
	ClearedTotal      prometheus.Counter
	DueGauge          prometheus.Gauge
}

// EnrichmentMetrics tracks C5/C6/C7 end-to-end outcomes.
type EnrichmentMetrics struct {
	ProcessedTotal *prometheus.CounterVec
	Duration       prometheus.Histogram
}

// NewCatalogMetrics creates catalog-client metrics for a service, registered
// against prometheus.DefaultRegisterer.
func NewCatalogMetrics(serviceName string) *CatalogMetrics {
	return NewCatalogMetricsWith(prometheus.DefaultRegisterer, serviceName)
}

// NewCatalogMetricsWith creates catalog-client metrics against an explicit
// registerer, so tests can pass a fresh prometheus.NewRegistry() instead of
// colliding with the process-wide default.
func NewCatalogMetricsWith(reg prometheus.Registerer, serviceName string) *CatalogMetrics {
	f := promauto.With(reg)
	return &CatalogMetrics{
		CallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_catalog_call_attempts_total",
				Help: "Total catalog API call attempts by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		CallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_catalog_call_duration_seconds",
				Help:    "Catalog API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		CacheResult: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_catalog_cache_result_total",
				Help: "Catalog cache lookups by endpoint and hit/miss",
			},
			[]string{"endpoint", "result"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: serviceName + "_catalog_breaker_state",
				Help: "Circuit breaker state per endpoint (0=closed,1=open,2=half-open)",
			},
			[]string{"endpoint"},
		),
	}
}

// NewLockMetrics creates lock-service metrics for a service, registered
// against prometheus.DefaultRegisterer.
func NewLockMetrics(serviceName string) *LockMetrics {
	return NewLockMetricsWith(prometheus.DefaultRegisterer, serviceName)
}

func NewLockMetricsWith(reg prometheus.Registerer, serviceName string) *LockMetrics {
	f := promauto.With(reg)
	return &LockMetrics{
		AcquireTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_lock_acquire_total",
				Help: "Lock acquisition attempts by result",
			},
			[]string{"result"},
		),
		AcquireLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    serviceName + "_lock_acquire_duration_seconds",
				Help:    "Time spent waiting to acquire a per-order lock",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// NewRetryQueueMetrics creates retry-queue metrics for a service, registered
// against prometheus.DefaultRegisterer.
func NewRetryQueueMetrics(serviceName string) *RetryQueueMetrics {
	return NewRetryQueueMetricsWith(prometheus.DefaultRegisterer, serviceName)
}

func NewRetryQueueMetricsWith(reg prometheus.Registerer, serviceName string) *RetryQueueMetrics {
	f := promauto.With(reg)
	return &RetryQueueMetrics{
		RecordedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_retry_recorded_total",
				Help: "Total failures recorded to the retry queue",
			},
		),
		DeadLetteredTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_retry_dead_lettered_total",
				Help: "Total messages promoted to the dead-letter sink",
			},
		),
		ClearedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_retry_cleared_total",
				Help: "Total retry entries cleared after a successful attempt",
			},
		),
		DueGauge: f.NewGauge(
			prometheus.GaugeOpts{
				Name: serviceName + "_retry_due_current",
				Help: "Number of retry entries due at the last scheduler tick",
			},
		),
	}
}

// NewEnrichmentMetrics creates enrichment-pipeline metrics for a service,
// registered against prometheus.DefaultRegisterer.
func NewEnrichmentMetrics(serviceName string) *EnrichmentMetrics {
	return NewEnrichmentMetricsWith(prometheus.DefaultRegisterer, serviceName)
}

func NewEnrichmentMetricsWith(reg prometheus.Registerer, serviceName string) *EnrichmentMetrics {
	f := promauto.With(reg)
	return &EnrichmentMetrics{
		ProcessedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_orders_processed_total",
				Help: "Total orders processed by outcome",
			},
			[]string{"outcome"},
		),
		Duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    serviceName + "_enrichment_duration_seconds",
				Help:    "End-to-end enrichment duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordCall records a catalog-client call outcome.
func (m *CatalogMetrics) RecordCall(endpoint, outcome string, duration time.Duration) {
	m.CallsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.CallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
