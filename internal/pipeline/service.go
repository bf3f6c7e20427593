// Package pipeline runs the preprocess and keyword passes over stored
// documents.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/fingerprint"
	"horse.fit/curator/internal/keywords"
	"horse.fit/curator/internal/metrics"
	"horse.fit/curator/internal/textclean"
)

const (
	DefaultRecencyPoolSize = 1500
	DefaultKeywordTopK     = keywords.DefaultTopK
)

// Store is the persistence the passes need. *db.Pool implements it.
type Store interface {
	ListUnprocessedDocuments(ctx context.Context, limit int) ([]db.PendingDocument, error)
	ListRecencyPool(ctx context.Context, limit int) ([]db.PoolEntry, error)
	ApplyPreprocessBatch(ctx context.Context, updates []db.PreprocessUpdate) error
	ListKeywordTargets(ctx context.Context, limit int, includeDuplicates bool) ([]db.KeywordTarget, error)
	GetKeywordTarget(ctx context.Context, documentID int64) (db.KeywordTarget, error)
	ApplyKeywordBatch(ctx context.Context, updates []db.KeywordUpdate) error
}

type Normalizer interface {
	Normalize(raw string) (string, bool)
}

type KeywordExtractor interface {
	Extract(text, title string, topK int) []string
}

type LanguageDetector interface {
	DetectISO6391(text string) string
}

// Options configures a Service. Zero values fall back to defaults; a nil
// Detector disables language detection.
type Options struct {
	Normalizer Normalizer
	Keywords   KeywordExtractor
	Detector   LanguageDetector
	Metrics    *metrics.Pipeline

	Workers int

	RecencyPoolSize       int
	FingerprintLowQuality bool
	ExplicitThreshold     *int

	KeywordTopK              int
	KeywordIncludeDuplicates bool

	Now func() time.Time
}

type Service struct {
	store        Store
	logger       zerolog.Logger
	normalizer   Normalizer
	fingerprints *fingerprint.Engine
	keywords     KeywordExtractor
	detector     LanguageDetector
	metrics      *metrics.Pipeline
	opts         Options
	now          func() time.Time
}

func NewService(store Store, logger zerolog.Logger, opts Options) *Service {
	if opts.Normalizer == nil {
		opts.Normalizer = textclean.New(textclean.Options{})
	}
	if opts.Keywords == nil {
		opts.Keywords = keywords.NewExtractor()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.RecencyPoolSize <= 0 {
		opts.RecencyPoolSize = DefaultRecencyPoolSize
	}
	if opts.KeywordTopK <= 0 {
		opts.KeywordTopK = DefaultKeywordTopK
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		store:        store,
		logger:       logger,
		normalizer:   opts.Normalizer,
		fingerprints: fingerprint.NewEngine(),
		keywords:     opts.Keywords,
		detector:     opts.Detector,
		metrics:      opts.Metrics,
		opts:         opts,
		now:          now,
	}
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return fmt.Errorf("pipeline service is not initialized")
	}
	return nil
}

// forEach runs fn for every index on the worker pool. A panic in fn is
// recovered and reported through failed; it never stops other indexes.
// Once ctx is done, indexes not yet started are skipped.
func (s *Service) forEach(ctx context.Context, n int, fn func(i int), failed func(i int, cause any)) {
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			defer func() {
				if cause := recover(); cause != nil {
					failed(i, cause)
				}
			}()
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
