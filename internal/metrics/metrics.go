package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enrichment pipeline.
type Metrics struct {
	// Enriched receipts by approval status
	ReceiptOutcome *prometheus.CounterVec

	// Enriched receipts by assigned category
	CategoryAssigned *prometheus.CounterVec

	// Distribution of overall confidence scores
	OverallConfidence prometheus.Histogram

	// Failed calls to the document analysis service
	OCRFailures prometheus.Counter

	// Full analyze latency including the OCR call
	AnalyzeLatency prometheus.Histogram
}

// New creates a new Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReceiptOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_enricher_receipts_total",
			Help: "Total enriched receipts by approval status",
		}, []string{"status"}),

		CategoryAssigned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_enricher_categories_total",
			Help: "Total enriched receipts by assigned category",
		}, []string{"category"}),

		OverallConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_enricher_overall_confidence",
			Help:    "Overall confidence score of enriched receipts",
			Buckets: []float64{10, 25, 50, 70, 80, 90, 95, 100},
		}),

		OCRFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipt_enricher_ocr_failures_total",
			Help: "Total failed document analysis calls",
		}),

		AnalyzeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_enricher_analyze_duration_seconds",
			Help:    "Duration of a full analyze call including document analysis",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40},
		}),
	}
}

// ObserveReceipt records the outcome of one enriched receipt.
func (m *Metrics) ObserveReceipt(status, category string, confidence int) {
	if m != nil {
		m.ReceiptOutcome.WithLabelValues(status).Inc()
		m.CategoryAssigned.WithLabelValues(category).Inc()
		m.OverallConfidence.Observe(float64(confidence))
	}
}

// IncrementOCRFailure records a failed document analysis call.
func (m *Metrics) IncrementOCRFailure() {
	if m != nil {
		m.OCRFailures.Inc()
	}
}

// ObserveAnalyzeLatency records the total analyze duration.
func (m *Metrics) ObserveAnalyzeLatency(d time.Duration) {
	if m != nil {
		m.AnalyzeLatency.Observe(d.Seconds())
	}
}
