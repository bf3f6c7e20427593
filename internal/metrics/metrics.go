// Package metrics holds the pipeline's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "curator"

// Document outcomes.
const (
	OutcomeUnique     = "unique"
	OutcomeDuplicate  = "duplicate"
	OutcomeLowQuality = "low_quality"
)

// Pipeline stages.
const (
	StagePreprocess = "preprocess"
	StageKeywords   = "keywords"
)

// Pipeline is an owned set of collectors. A nil *Pipeline records nothing.
type Pipeline struct {
	documentsProcessed *prometheus.CounterVec
	documentFailures   *prometheus.CounterVec
	batchDuration      *prometheus.HistogramVec
	commitFailures     *prometheus.CounterVec
	keywordsExtracted  prometheus.Counter
}

func NewPipeline(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		documentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents preprocessed, by outcome",
		}, []string{"outcome"}),

		documentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_failures_total",
			Help:      "Documents skipped after a processing failure",
		}, []string{"stage"}),

		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one batch including commit",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		commitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_commit_failures_total",
			Help:      "Batches rolled back at commit",
		}, []string{"stage"}),

		keywordsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keywords_extracted_total",
			Help:      "Documents that received a keyword list",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.documentsProcessed, m.documentFailures,
			m.batchDuration, m.commitFailures,
			m.keywordsExtracted,
		)
	}
	return m
}

func (m *Pipeline) DocumentsProcessed(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.documentsProcessed.WithLabelValues(outcome).Add(float64(n))
}

func (m *Pipeline) DocumentFailed(stage string) {
	if m == nil {
		return
	}
	m.documentFailures.WithLabelValues(stage).Inc()
}

func (m *Pipeline) ObserveBatch(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Pipeline) CommitFailed(stage string) {
	if m == nil {
		return
	}
	m.commitFailures.WithLabelValues(stage).Inc()
}

func (m *Pipeline) KeywordsExtracted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.keywordsExtracted.Add(float64(n))
}
