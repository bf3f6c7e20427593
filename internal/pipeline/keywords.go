package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/metrics"
)

type KeywordResult struct {
	Selected  int
	Extracted int
	Empty     int
	Failed    int
}

// ExtractKeywordsPending extracts keywords for up to limit preprocessed
// documents that have none yet. Low-quality documents are never selected;
// duplicates only when KeywordIncludeDuplicates is set.
func (s *Service) ExtractKeywordsPending(ctx context.Context, limit int) (KeywordResult, error) {
	if err := s.ready(); err != nil {
		return KeywordResult{}, err
	}
	if limit <= 0 {
		return KeywordResult{}, nil
	}
	started := time.Now()

	targets, err := s.store.ListKeywordTargets(ctx, limit, s.opts.KeywordIncludeDuplicates)
	if err != nil {
		return KeywordResult{}, fmt.Errorf("list keyword targets: %w", err)
	}
	result := KeywordResult{Selected: len(targets)}
	if len(targets) == 0 {
		return result, nil
	}

	extractedAt := s.now().UTC()
	updates := make([]*db.KeywordUpdate, len(targets))
	s.forEach(ctx, len(targets),
		func(i int) {
			target := targets[i]
			if target.CleanedContent == nil {
				return
			}
			updates[i] = &db.KeywordUpdate{
				DocumentID:  target.DocumentID,
				Keywords:    s.extract(target),
				ExtractedAt: extractedAt,
			}
		},
		func(i int, cause any) {
			s.logger.Warn().
				Int64("document_id", targets[i].DocumentID).
				Str("panic", fmt.Sprint(cause)).
				Msg("keyword extraction failed; leaving it for the next batch")
		},
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("keyword batch abandoned: %w", err)
	}

	batch := make([]db.KeywordUpdate, 0, len(updates))
	for _, u := range updates {
		if u == nil {
			result.Failed++
			s.metrics.DocumentFailed(metrics.StageKeywords)
			continue
		}
		if len(u.Keywords) == 0 {
			result.Empty++
		}
		batch = append(batch, *u)
	}

	if err := s.store.ApplyKeywordBatch(ctx, batch); err != nil {
		s.metrics.CommitFailed(metrics.StageKeywords)
		result.Failed += len(batch)
		result.Empty = 0
		return result, &BatchCommitError{Stage: metrics.StageKeywords, Documents: len(batch), Err: err}
	}

	result.Extracted = len(batch)
	s.metrics.KeywordsExtracted(result.Extracted)
	s.metrics.ObserveBatch(metrics.StageKeywords, time.Since(started))

	s.logger.Info().
		Int("selected", result.Selected).
		Int("extracted", result.Extracted).
		Int("empty", result.Empty).
		Int("failed", result.Failed).
		Msg("keyword batch committed")

	return result, nil
}

// ExtractKeywordsFor extracts and stores keywords for one document,
// replacing any earlier list.
func (s *Service) ExtractKeywordsFor(ctx context.Context, documentID int64) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	target, err := s.store.GetKeywordTarget(ctx, documentID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", documentID, ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("load document %d: %w", documentID, err)
	}
	if target.CleanedContent == nil {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrNotPreprocessed)
	}

	phrases := s.extract(target)
	update := db.KeywordUpdate{DocumentID: documentID, Keywords: phrases, ExtractedAt: s.now().UTC()}
	if err := s.store.ApplyKeywordBatch(ctx, []db.KeywordUpdate{update}); err != nil {
		s.metrics.CommitFailed(metrics.StageKeywords)
		return nil, &BatchCommitError{Stage: metrics.StageKeywords, Documents: 1, Err: err}
	}
	s.metrics.KeywordsExtracted(1)
	return phrases, nil
}

func (s *Service) extract(target db.KeywordTarget) []string {
	phrases := s.keywords.Extract(*target.CleanedContent, target.Title, s.opts.KeywordTopK)
	if phrases == nil {
		return []string{}
	}
	return phrases
}
