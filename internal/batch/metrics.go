package batch

import (
	"fmt"

	"eutrials/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the batch counters on their own registry.
type Metrics struct {
	Registry      *prometheus.Registry
	documents     *prometheus.CounterVec
	issues        prometheus.Counter
	storageWrites *prometheus.CounterVec
	duration      prometheus.Histogram
}

// NewMetrics creates and registers the batch metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trials_documents_total",
				Help: "Documents processed, by terminal state.",
			},
			[]string{"state"},
		),
		issues: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trials_validation_issues_total",
				Help: "Validation issues reported across all documents.",
			},
		),
		storageWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trials_storage_writes_total",
				Help: "Storage writes attempted, by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trials_document_duration_seconds",
				Help:    "Time to take one document to a terminal state.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
	}

	m.Registry.MustRegister(m.documents, m.issues, m.storageWrites, m.duration)

	return m
}

// Observe records one document result.
func (m *Metrics) Observe(res models.FileResult) {
	m.documents.WithLabelValues(string(res.State)).Inc()
	m.issues.Add(float64(len(res.Issues)))
	m.duration.Observe(res.Duration.Seconds())

	if !res.Storage.Enabled {
		return
	}

	outcome := "success"
	if !res.Storage.Success {
		outcome = "failure"
	}

	m.storageWrites.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the metrics in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}

	return nil
}
