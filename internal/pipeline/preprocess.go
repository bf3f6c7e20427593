package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"horse.fit/curator/internal/boilerplate"
	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/metrics"
)

// QualityFlagPrefix marks rejected documents; the boilerplate reason
// follows it.
const QualityFlagPrefix = "low_quality/"

type PreprocessResult struct {
	Selected    int
	Processed   int
	Duplicates  int
	LowQuality  int
	Failed      int
	Trimmed     int
	PoolSize    int
	PoolSkipped int
}

type outcome struct {
	update  db.PreprocessUpdate
	trimmed bool
	kind    string
	done    bool
}

// ProcessPending preprocesses up to limit documents lacking cleaned content
// and commits the whole batch at once. Documents in the batch are compared
// against a pool snapshot taken before the batch, never against each other.
// On cancellation or commit failure nothing is written and the documents
// stay eligible for the next run.
func (s *Service) ProcessPending(ctx context.Context, limit int) (PreprocessResult, error) {
	if err := s.ready(); err != nil {
		return PreprocessResult{}, err
	}
	if limit <= 0 {
		return PreprocessResult{}, nil
	}
	started := time.Now()

	docs, err := s.store.ListUnprocessedDocuments(ctx, limit)
	if err != nil {
		return PreprocessResult{}, fmt.Errorf("list unprocessed documents: %w", err)
	}
	result := PreprocessResult{Selected: len(docs)}
	if len(docs) == 0 {
		return result, nil
	}

	poolRows, err := s.store.ListRecencyPool(ctx, s.opts.RecencyPoolSize)
	if err != nil {
		return result, fmt.Errorf("list recency pool: %w", err)
	}
	pool := NewRecencyPool(poolRows)
	result.PoolSize = pool.Size()
	result.PoolSkipped = pool.Skipped()
	if pool.Skipped() > 0 {
		s.logger.Warn().Int("skipped", pool.Skipped()).Msg("skipped unreadable pool fingerprints")
	}

	processedAt := s.now().UTC()
	outcomes := make([]outcome, len(docs))
	s.forEach(ctx, len(docs),
		func(i int) {
			outcomes[i] = s.preprocessDocument(docs[i], pool, processedAt)
		},
		func(i int, cause any) {
			s.logger.Warn().
				Int64("document_id", docs[i].DocumentID).
				Str("panic", fmt.Sprint(cause)).
				Msg("preprocess document failed; leaving it for the next batch")
		},
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("preprocess batch abandoned: %w", err)
	}

	updates := make([]db.PreprocessUpdate, 0, len(docs))
	counts := make(map[string]int, 3)
	for _, o := range outcomes {
		if !o.done {
			result.Failed++
			s.metrics.DocumentFailed(metrics.StagePreprocess)
			continue
		}
		updates = append(updates, o.update)
		counts[o.kind]++
		if o.trimmed {
			result.Trimmed++
		}
	}

	if err := s.store.ApplyPreprocessBatch(ctx, updates); err != nil {
		s.metrics.CommitFailed(metrics.StagePreprocess)
		result.Failed += len(updates)
		return result, &BatchCommitError{Stage: metrics.StagePreprocess, Documents: len(updates), Err: err}
	}

	result.Processed = len(updates)
	result.Duplicates = counts[metrics.OutcomeDuplicate]
	result.LowQuality = counts[metrics.OutcomeLowQuality]
	for kind, n := range counts {
		s.metrics.DocumentsProcessed(kind, n)
	}
	s.metrics.ObserveBatch(metrics.StagePreprocess, time.Since(started))

	s.logger.Info().
		Int("selected", result.Selected).
		Int("processed", result.Processed).
		Int("duplicates", result.Duplicates).
		Int("low_quality", result.LowQuality).
		Int("failed", result.Failed).
		Int("pool_size", result.PoolSize).
		Msg("preprocess batch committed")

	return result, nil
}

func (s *Service) preprocessDocument(doc db.PendingDocument, pool *RecencyPool, processedAt time.Time) outcome {
	cleaned, _ := s.normalizer.Normalize(rawSource(doc))
	cleaned, trimmed := boilerplate.TrimBoiler(cleaned)

	o := outcome{
		trimmed: trimmed,
		done:    true,
		update: db.PreprocessUpdate{
			DocumentID:     doc.DocumentID,
			CleanedContent: cleaned,
			ProcessedAt:    processedAt,
		},
	}

	if verdict := boilerplate.Classify(cleaned); verdict.LowQuality {
		flag := QualityFlagPrefix + verdict.Reason
		o.update.QualityFlag = &flag
		o.kind = metrics.OutcomeLowQuality
		if s.opts.FingerprintLowQuality {
			o.update.Fingerprint = nonZero(s.fingerprints.Fingerprint(cleaned, doc.Title))
		}
		return o
	}

	fp := s.fingerprints.Fingerprint(cleaned, doc.Title)
	o.update.Fingerprint = nonZero(fp)
	o.update.Language = s.detectLanguage(doc, cleaned)

	lengthHint := utf8.RuneCountInString(cleaned)
	if matchID, ok := pool.Match(doc.DocumentID, doc.Source, fp, lengthHint, s.opts.ExplicitThreshold); ok {
		o.update.IsDuplicate = true
		o.update.DuplicateOf = &matchID
		o.kind = metrics.OutcomeDuplicate
		return o
	}
	o.kind = metrics.OutcomeUnique
	return o
}

// rawSource picks the content body, then the summary, then the title.
func rawSource(doc db.PendingDocument) string {
	for _, candidate := range []*string{doc.ContentRaw, doc.SummaryRaw} {
		if candidate != nil && strings.TrimSpace(*candidate) != "" {
			return *candidate
		}
	}
	return doc.Title
}

func (s *Service) detectLanguage(doc db.PendingDocument, cleaned string) *string {
	if s.detector == nil {
		return nil
	}
	if doc.Language != nil && strings.TrimSpace(*doc.Language) != "" {
		return nil
	}
	code := s.detector.DetectISO6391(cleaned)
	if code == "" {
		return nil
	}
	return &code
}

func nonZero(fp uint64) *uint64 {
	if fp == 0 {
		return nil
	}
	return &fp
}
