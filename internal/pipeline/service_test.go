package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/fingerprint"
	"horse.fit/curator/internal/metrics"
	"horse.fit/curator/internal/textclean"
)

const fedBody = "The Federal Reserve raised its benchmark interest rate by a quarter point on Wednesday, " +
	"extending a campaign that policymakers say is needed to cool stubborn inflation. " +
	"Officials signaled that further increases remain possible if price pressures fail to ease over the summer. " +
	"Markets had largely expected the move, and Treasury yields drifted lower after the announcement as traders " +
	"priced in a slower pace of tightening. Several regional bank presidents dissented, arguing that credit " +
	"conditions have already tightened enough to weigh on hiring and investment. Mortgage lenders warned that " +
	"housing affordability could deteriorate further, while small business groups urged caution ahead of the " +
	"holiday season."

const appleBody = "Apple unveiled a new laptop chip on Tuesday, promising faster graphics, longer battery life and better " +
	"machine learning performance for creative professionals. The company said the processor uses a refined " +
	"manufacturing process that packs billions more transistors into the same footprint. Analysts expect the " +
	"launch to pressure rival chipmakers, who have struggled to match the efficiency gains. Developers will get " +
	"early access to new tools next month, and the first machines ship before the end of the quarter. Retail " +
	"partners reported strong preorder interest across Europe and Asia, though supply constraints may limit " +
	"availability in some markets."

const spamBody = "Subscribe now to read more. Click here for full access."

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	pending []db.PendingDocument
	pool    []db.PoolEntry
	targets []db.KeywordTarget

	applyErr        error
	keywordApplyErr error

	applied          [][]db.PreprocessUpdate
	keywordBatches   [][]db.KeywordUpdate
	keywordListCalls []bool
}

func (s *stubStore) ListUnprocessedDocuments(_ context.Context, limit int) ([]db.PendingDocument, error) {
	if limit < len(s.pending) {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *stubStore) ListRecencyPool(_ context.Context, limit int) ([]db.PoolEntry, error) {
	if limit < len(s.pool) {
		return s.pool[:limit], nil
	}
	return s.pool, nil
}

func (s *stubStore) ApplyPreprocessBatch(_ context.Context, updates []db.PreprocessUpdate) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, updates)
	return nil
}

func (s *stubStore) ListKeywordTargets(_ context.Context, _ int, includeDuplicates bool) ([]db.KeywordTarget, error) {
	s.keywordListCalls = append(s.keywordListCalls, includeDuplicates)
	return s.targets, nil
}

func (s *stubStore) GetKeywordTarget(_ context.Context, documentID int64) (db.KeywordTarget, error) {
	for _, target := range s.targets {
		if target.DocumentID == documentID {
			return target, nil
		}
	}
	return db.KeywordTarget{}, db.ErrNoRows
}

func (s *stubStore) ApplyKeywordBatch(_ context.Context, updates []db.KeywordUpdate) error {
	if s.keywordApplyErr != nil {
		return s.keywordApplyErr
	}
	s.keywordBatches = append(s.keywordBatches, updates)
	return nil
}

func (s *stubStore) updateFor(t *testing.T, id int64) db.PreprocessUpdate {
	t.Helper()

	if len(s.applied) != 1 {
		t.Fatalf("expected exactly one applied batch, got %d", len(s.applied))
	}
	for _, u := range s.applied[0] {
		if u.DocumentID == id {
			return u
		}
	}
	t.Fatalf("document %d missing from applied batch", id)
	return db.PreprocessUpdate{}
}

type stubDetector struct{ code string }

func (d stubDetector) DetectISO6391(string) string { return d.code }

type panicNormalizer struct{ inner Normalizer }

func (n panicNormalizer) Normalize(raw string) (string, bool) {
	if raw == "PANIC" {
		panic("boom")
	}
	return n.inner.Normalize(raw)
}

func strPtr(v string) *string { return &v }

func poolRow(id int64, source string, fp uint64) db.PoolEntry {
	return db.PoolEntry{DocumentID: id, Source: source, Fingerprint: strconv.FormatUint(fp, 10)}
}

func newTestService(store Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	return NewService(store, zerolog.Nop(), opts)
}

func TestProcessPendingMarksNearDuplicateFromSameSource(t *testing.T) {
	t.Parallel()

	original := fingerprint.Compute(fedBody, "Fed raises rates again")
	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 20, Source: "wire-a", Title: "Fed raises interest rates again", ContentRaw: strPtr("<p>" + fedBody + "</p><p>Click here</p>")},
			{DocumentID: 21, Source: "wire-a", Title: "Apple unveils new chip", ContentRaw: strPtr(appleBody)},
		},
		pool: []db.PoolEntry{poolRow(10, "wire-a", original)},
	}

	result, err := newTestService(store, Options{}).ProcessPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if result.Selected != 2 || result.Processed != 2 || result.Duplicates != 1 || result.LowQuality != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	dup := store.updateFor(t, 20)
	if !dup.IsDuplicate || dup.DuplicateOf == nil || *dup.DuplicateOf != 10 {
		t.Fatalf("expected document 20 to duplicate 10, got %+v", dup)
	}
	if dup.CleanedContent != fedBody {
		t.Fatalf("unexpected cleaned content: %q", dup.CleanedContent)
	}
	if dup.Fingerprint == nil || fingerprint.Distance(*dup.Fingerprint, original) > fingerprint.AdaptiveThreshold(len(fedBody)) {
		t.Fatalf("expected a nearby fingerprint, got %v", dup.Fingerprint)
	}
	if !dup.ProcessedAt.Equal(fixedNow) {
		t.Fatalf("expected processed_at from injected clock, got %s", dup.ProcessedAt)
	}

	unique := store.updateFor(t, 21)
	if unique.IsDuplicate || unique.DuplicateOf != nil || unique.QualityFlag != nil {
		t.Fatalf("expected document 21 to be unique, got %+v", unique)
	}
}

func TestProcessPendingExplicitThresholdOverridesAdaptive(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 20, Source: "wire-a", Title: "Fed raises interest rates again", ContentRaw: strPtr(fedBody)},
		},
		pool: []db.PoolEntry{poolRow(10, "wire-a", fingerprint.Compute(fedBody, "Fed raises rates again"))},
	}
	strict := 2

	result, err := newTestService(store, Options{ExplicitThreshold: &strict}).ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if result.Duplicates != 0 {
		t.Fatalf("expected strict threshold to reject the match, got %+v", result)
	}
}

func TestProcessPendingPrefersOwnSourcePartition(t *testing.T) {
	t.Parallel()

	fp := fingerprint.Compute(fedBody, "Fed raises rates again")
	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 50, Source: "wire-a", Title: "Fed raises rates again", ContentRaw: strPtr(fedBody)},
			{DocumentID: 51, Source: "wire-c", Title: "Fed raises rates again", ContentRaw: strPtr(fedBody)},
		},
		pool: []db.PoolEntry{
			poolRow(40, "wire-b", fp),
			poolRow(30, "wire-a", fp),
		},
	}

	if _, err := newTestService(store, Options{}).ProcessPending(context.Background(), 10); err != nil {
		t.Fatalf("process pending: %v", err)
	}

	if got := store.updateFor(t, 50); got.DuplicateOf == nil || *got.DuplicateOf != 30 {
		t.Fatalf("expected same-source match 30, got %+v", got.DuplicateOf)
	}
	if got := store.updateFor(t, 51); got.DuplicateOf == nil || *got.DuplicateOf != 40 {
		t.Fatalf("expected newest global match 40, got %+v", got.DuplicateOf)
	}
}

func TestProcessPendingSameBatchBlindSpot(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 2, Source: "wire-a", Title: "Fed raises rates again", ContentRaw: strPtr(fedBody)},
			{DocumentID: 1, Source: "wire-a", Title: "Fed raises rates again", ContentRaw: strPtr(fedBody)},
		},
	}

	result, err := newTestService(store, Options{}).ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if result.Duplicates != 0 || result.Processed != 2 {
		t.Fatalf("documents in one batch must not match each other, got %+v", result)
	}
}

func TestProcessPendingSkipsCorruptPoolFingerprints(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 9, Source: "wire-a", Title: "Fed raises rates again", ContentRaw: strPtr(fedBody)},
		},
		pool: []db.PoolEntry{
			{DocumentID: 8, Source: "wire-a", Fingerprint: "not-a-number"},
			{DocumentID: 7, Source: "wire-a", Fingerprint: "-12"},
			{DocumentID: 6, Source: "wire-a", Fingerprint: "0"},
			{DocumentID: 5, Source: "wire-a", Fingerprint: "18446744073709551616"},
			poolRow(4, "wire-a", fingerprint.Compute(fedBody, "Fed raises rates again")),
		},
	}

	result, err := newTestService(store, Options{}).ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if result.PoolSkipped != 4 || result.PoolSize != 1 {
		t.Fatalf("unexpected pool accounting: %+v", result)
	}
	if got := store.updateFor(t, 9); got.DuplicateOf == nil || *got.DuplicateOf != 4 {
		t.Fatalf("expected match against the readable entry, got %+v", got.DuplicateOf)
	}
}

func TestProcessPendingLowQualityPolicy(t *testing.T) {
	t.Parallel()

	for _, fingerprintLowQuality := range []bool{false, true} {
		fingerprintLowQuality := fingerprintLowQuality
		t.Run("fingerprint="+strconv.FormatBool(fingerprintLowQuality), func(t *testing.T) {
			t.Parallel()

			cleaned, _ := textclean.Normalize(spamBody)
			store := &stubStore{
				pending: []db.PendingDocument{
					{DocumentID: 3, Source: "wire-a", Title: "Offer", ContentRaw: strPtr(spamBody)},
				},
				pool: []db.PoolEntry{poolRow(1, "wire-a", fingerprint.Compute(cleaned, "Offer"))},
			}

			svc := newTestService(store, Options{FingerprintLowQuality: fingerprintLowQuality, Detector: stubDetector{code: "en"}})
			result, err := svc.ProcessPending(context.Background(), 10)
			if err != nil {
				t.Fatalf("process pending: %v", err)
			}
			if result.LowQuality != 1 || result.Duplicates != 0 {
				t.Fatalf("unexpected result: %+v", result)
			}

			got := store.updateFor(t, 3)
			if got.QualityFlag == nil || !strings.HasPrefix(*got.QualityFlag, QualityFlagPrefix) {
				t.Fatalf("expected quality flag, got %v", got.QualityFlag)
			}
			if got.IsDuplicate || got.DuplicateOf != nil {
				t.Fatalf("low-quality documents are never compared, got %+v", got)
			}
			if got.Language != nil {
				t.Fatalf("low-quality documents skip language detection, got %q", *got.Language)
			}
			if fingerprintLowQuality != (got.Fingerprint != nil) {
				t.Fatalf("fingerprint presence %v does not follow policy %v", got.Fingerprint != nil, fingerprintLowQuality)
			}
		})
	}
}

func TestProcessPendingContentFallbacks(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 1, Source: "s", Title: "Fed", SummaryRaw: strPtr(fedBody), ContentRaw: strPtr("   ")},
			{DocumentID: 2, Source: "s", Title: "Only a title"},
			{DocumentID: 3, Source: "s", Title: "Teaser", ContentRaw: strPtr("Here's what you know: " + appleBody)},
		},
	}

	result, err := newTestService(store, Options{}).ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if result.Trimmed != 1 || result.LowQuality != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := store.updateFor(t, 1); got.CleanedContent != fedBody || got.QualityFlag != nil {
		t.Fatalf("expected summary fallback, got %+v", got)
	}
	if got := store.updateFor(t, 2); got.CleanedContent != "Only a title" || got.QualityFlag == nil {
		t.Fatalf("expected title fallback rejected as low quality, got %+v", got)
	}
	if got := store.updateFor(t, 3); got.CleanedContent != appleBody {
		t.Fatalf("expected teaser lead trimmed, got %q", got.CleanedContent)
	}
}

func TestProcessPendingDetectsMissingLanguage(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 1, Source: "s", Title: "Fed", ContentRaw: strPtr(fedBody)},
			{DocumentID: 2, Source: "s", Title: "Apple", ContentRaw: strPtr(appleBody), Language: strPtr("ko")},
		},
	}

	if _, err := newTestService(store, Options{Detector: stubDetector{code: "en"}}).ProcessPending(context.Background(), 10); err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if got := store.updateFor(t, 1); got.Language == nil || *got.Language != "en" {
		t.Fatalf("expected detected language, got %v", got.Language)
	}
	if got := store.updateFor(t, 2); got.Language != nil {
		t.Fatalf("expected existing language to be kept, got %q", *got.Language)
	}
}

func TestProcessPendingCommitFailureLeavesNoState(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.NewPipeline(reg)
	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 1, Source: "s", Title: "Fed", ContentRaw: strPtr(fedBody)},
			{DocumentID: 2, Source: "s", Title: "Apple", ContentRaw: strPtr(appleBody)},
		},
		applyErr: errors.New("connection reset"),
	}

	result, err := newTestService(store, Options{Metrics: m}).ProcessPending(context.Background(), 10)
	if !errors.Is(err, ErrBatchCommit) {
		t.Fatalf("expected batch commit error, got %v", err)
	}
	var commitErr *BatchCommitError
	if !errors.As(err, &commitErr) || commitErr.Documents != 2 || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if result.Processed != 0 || result.Failed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.applied) != 0 {
		t.Fatalf("expected nothing applied")
	}

	expected := `
# HELP curator_batch_commit_failures_total Batches rolled back at commit
# TYPE curator_batch_commit_failures_total counter
curator_batch_commit_failures_total{stage="preprocess"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "curator_batch_commit_failures_total"); err != nil {
		t.Fatalf("unexpected commit failure metric: %v", err)
	}
}

func TestProcessPendingRecoversPanicPerDocument(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 1, Source: "s", Title: "Fed", ContentRaw: strPtr(fedBody)},
			{DocumentID: 2, Source: "s", Title: "Broken", ContentRaw: strPtr("PANIC")},
			{DocumentID: 3, Source: "s", Title: "Apple", ContentRaw: strPtr(appleBody)},
		},
	}
	svc := newTestService(store, Options{Normalizer: panicNormalizer{inner: textclean.New(textclean.Options{})}})

	result, err := svc.ProcessPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if result.Processed != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	for _, u := range store.applied[0] {
		if u.DocumentID == 2 {
			t.Fatalf("panicking document must stay unprocessed")
		}
	}
}

type cancelNormalizer struct {
	cancel context.CancelFunc
	inner  Normalizer
}

func (n cancelNormalizer) Normalize(raw string) (string, bool) {
	n.cancel()
	return n.inner.Normalize(raw)
}

func TestProcessPendingCancellationCommitsNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &stubStore{
		pending: []db.PendingDocument{
			{DocumentID: 1, Source: "s", Title: "Fed", ContentRaw: strPtr(fedBody)},
			{DocumentID: 2, Source: "s", Title: "Apple", ContentRaw: strPtr(appleBody)},
		},
	}
	svc := newTestService(store, Options{
		Workers:    1,
		Normalizer: cancelNormalizer{cancel: cancel, inner: textclean.New(textclean.Options{})},
	})

	_, err := svc.ProcessPending(ctx, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if len(store.applied) != 0 {
		t.Fatalf("expected no commit after cancellation")
	}
}

func TestProcessPendingEmptyBatch(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	result, err := newTestService(store, Options{}).ProcessPending(context.Background(), 10)
	if err != nil || result.Selected != 0 {
		t.Fatalf("unexpected empty batch result: %+v, %v", result, err)
	}
	if len(store.applied) != 0 {
		t.Fatalf("expected no commit for an empty batch")
	}
}

func TestExtractKeywordsPending(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		targets: []db.KeywordTarget{
			{DocumentID: 1, Title: "Apple unveils new chip", CleanedContent: strPtr("It is the Apple chip announcement. We had the Apple chip announcement and then the Apple chip announcement again.")},
			{DocumentID: 2, Title: "", CleanedContent: strPtr("the of and")},
		},
	}
	svc := newTestService(store, Options{KeywordIncludeDuplicates: true})

	result, err := svc.ExtractKeywordsPending(context.Background(), 50)
	if err != nil {
		t.Fatalf("extract keywords: %v", err)
	}
	if result.Selected != 2 || result.Extracted != 2 || result.Empty != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.keywordListCalls) != 1 || !store.keywordListCalls[0] {
		t.Fatalf("expected duplicates flag to reach the store, got %v", store.keywordListCalls)
	}

	byID := map[int64]db.KeywordUpdate{}
	for _, u := range store.keywordBatches[0] {
		byID[u.DocumentID] = u
	}
	if got := byID[1].Keywords; len(got) == 0 || got[0] != "Apple chip announcement" {
		t.Fatalf("unexpected keywords for document 1: %q", got)
	}
	if got := byID[2].Keywords; got == nil || len(got) != 0 {
		t.Fatalf("expected an empty, non-nil keyword list, got %#v", got)
	}
	if !byID[1].ExtractedAt.Equal(fixedNow) {
		t.Fatalf("expected extracted_at from injected clock, got %s", byID[1].ExtractedAt)
	}
}

func TestExtractKeywordsFor(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		targets: []db.KeywordTarget{
			{DocumentID: 7, Title: "Central bank holds rates", CleanedContent: strPtr("The central bank held rates steady as the labor market cooled.")},
			{DocumentID: 8, Title: "Pending"},
		},
	}
	svc := newTestService(store, Options{KeywordTopK: 2})

	phrases, err := svc.ExtractKeywordsFor(context.Background(), 7)
	if err != nil {
		t.Fatalf("extract keywords for 7: %v", err)
	}
	if len(phrases) == 0 || len(phrases) > 2 {
		t.Fatalf("expected 1-2 phrases, got %q", phrases)
	}
	if len(store.keywordBatches) != 1 || store.keywordBatches[0][0].DocumentID != 7 {
		t.Fatalf("expected one stored keyword update, got %+v", store.keywordBatches)
	}

	if _, err := svc.ExtractKeywordsFor(context.Background(), 99); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := svc.ExtractKeywordsFor(context.Background(), 8); !errors.Is(err, ErrNotPreprocessed) {
		t.Fatalf("expected ErrNotPreprocessed, got %v", err)
	}
}

func TestExtractKeywordsCommitFailure(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		targets: []db.KeywordTarget{
			{DocumentID: 1, Title: "Fed", CleanedContent: strPtr(fedBody)},
		},
		keywordApplyErr: errors.New("deadlock detected"),
	}

	result, err := newTestService(store, Options{}).ExtractKeywordsPending(context.Background(), 10)
	var commitErr *BatchCommitError
	if !errors.As(err, &commitErr) || commitErr.Stage != metrics.StageKeywords {
		t.Fatalf("expected keyword commit error, got %v", err)
	}
	if result.Extracted != 0 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestNilServiceIsRejected(t *testing.T) {
	t.Parallel()

	var svc *Service
	if _, err := svc.ProcessPending(context.Background(), 1); err == nil {
		t.Fatalf("expected nil service to fail")
	}
	if _, err := svc.ExtractKeywordsFor(context.Background(), 1); err == nil {
		t.Fatalf("expected nil service to fail")
	}
}
