package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document pipeline.
type Metrics struct {
	// Terminal processing outcomes by document type and status
	ProcessOutcome *prometheus.CounterVec

	// Extraction attempts by result ("ok", "error", "low_confidence")
	ExtractionAttempts *prometheus.CounterVec

	// Full processing latency from claim to terminal status
	ProcessLatency prometheus.Histogram
}

// New creates a new Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		ProcessOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caregate_document_process_outcomes_total",
			Help: "Terminal document processing outcomes by type and status",
		}, []string{"type", "status"}),

		ExtractionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caregate_document_extraction_attempts_total",
			Help: "Extraction service calls by result",
		}, []string{"result"}),

		ProcessLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "caregate_document_process_duration_seconds",
			Help:    "Duration of document processing including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// IncrementOutcome records a terminal processing outcome.
func (m *Metrics) IncrementOutcome(docType, status string) {
	if m != nil {
		m.ProcessOutcome.WithLabelValues(docType, status).Inc()
	}
}

// IncrementExtraction records one extraction call result.
func (m *Metrics) IncrementExtraction(result string) {
	if m != nil {
		m.ExtractionAttempts.WithLabelValues(result).Inc()
	}
}

// ObserveProcessLatency records how long one document took to finish.
func (m *Metrics) ObserveProcessLatency(d time.Duration) {
	if m != nil {
		m.ProcessLatency.Observe(d.Seconds())
	}
}
