package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the extraction scheduler.
type Metrics struct {
	Registry                 *prometheus.Registry
	ProductsTotal            *prometheus.CounterVec
	ExtractionDuration       prometheus.Histogram
	RetriesTotal             prometheus.Counter
	BatchesTotal             prometheus.Counter
	PersistenceFailuresTotal prometheus.Counter
	ValidationTotal          *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_products_total",
			Help: "Total extraction attempts by outcome.",
		},
		[]string{"outcome"},
	)
	extractionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extractor_extraction_duration_seconds",
			Help:    "Duration of successful product extractions.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_retries_total",
			Help: "Total number of retry attempts executed.",
		},
	)
	batches := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_batches_total",
			Help: "Total number of extraction batches completed.",
		},
	)
	persistenceFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_persistence_failures_total",
			Help: "Total number of artifact writes that failed.",
		},
	)
	validation := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_validation_total",
			Help: "Total validated results by status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(products, extractionDuration, retries, batches, persistenceFailures, validation)

	return &Metrics{
		Registry:                 registry,
		ProductsTotal:            products,
		ExtractionDuration:       extractionDuration,
		RetriesTotal:             retries,
		BatchesTotal:             batches,
		PersistenceFailuresTotal: persistenceFailures,
		ValidationTotal:          validation,
	}
}

// IncProduct increments the products total counter for an outcome label.
func (m *Metrics) IncProduct(outcome string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(outcome).Inc()
}

// ObserveExtraction records a successful extraction duration.
func (m *Metrics) ObserveExtraction(d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncBatches increments the batches counter.
func (m *Metrics) IncBatches() {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
}

// IncPersistenceFailure increments the failed-write counter.
func (m *Metrics) IncPersistenceFailure() {
	if m == nil {
		return
	}
	m.PersistenceFailuresTotal.Inc()
}

// IncValidation increments the validation counter for a status label.
func (m *Metrics) IncValidation(status string) {
	if m == nil {
		return
	}
	m.ValidationTotal.WithLabelValues(status).Inc()
}
