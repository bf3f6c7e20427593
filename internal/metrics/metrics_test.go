package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewPipeline(reg)

	m.DocumentsProcessed(OutcomeUnique, 2)
	m.DocumentsProcessed(OutcomeDuplicate, 1)
	m.DocumentsProcessed(OutcomeLowQuality, 0)
	m.DocumentFailed(StagePreprocess)
	m.CommitFailed(StageKeywords)
	m.KeywordsExtracted(3)
	m.KeywordsExtracted(0)
	m.ObserveBatch(StagePreprocess, 120*time.Millisecond)

	if got := testutil.ToFloat64(m.documentsProcessed.WithLabelValues(OutcomeUnique)); got != 2 {
		t.Fatalf("expected 2 unique documents, got %v", got)
	}
	if got := testutil.ToFloat64(m.documentsProcessed.WithLabelValues(OutcomeDuplicate)); got != 1 {
		t.Fatalf("expected 1 duplicate document, got %v", got)
	}
	if got := testutil.ToFloat64(m.documentFailures.WithLabelValues(StagePreprocess)); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.commitFailures.WithLabelValues(StageKeywords)); got != 1 {
		t.Fatalf("expected 1 commit failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.keywordsExtracted); got != 3 {
		t.Fatalf("expected 3 keyword documents, got %v", got)
	}
	if got := testutil.CollectAndCount(m.documentsProcessed); got != 2 {
		t.Fatalf("expected two outcome series, got %d", got)
	}
	if got := testutil.CollectAndCount(m.batchDuration); got != 1 {
		t.Fatalf("expected one batch duration series, got %d", got)
	}
}

func TestNilPipelineIsNoop(t *testing.T) {
	t.Parallel()

	var m *Pipeline
	m.DocumentsProcessed(OutcomeUnique, 1)
	m.DocumentFailed(StagePreprocess)
	m.ObserveBatch(StagePreprocess, time.Second)
	m.CommitFailed(StagePreprocess)
	m.KeywordsExtracted(1)
}

func TestDoubleRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewPipeline(reg)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	NewPipeline(reg)
}
