package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PendingDocument is a row the preprocess pass has not touched yet.
type PendingDocument struct {
	DocumentID int64
	Source     string
	Title      string
	SummaryRaw *string
	ContentRaw *string
	Language   *string
}

// PoolEntry is a fingerprinted document. Fingerprint is the stored decimal
// text and may be corrupt.
type PoolEntry struct {
	DocumentID  int64
	Source      string
	Fingerprint string
}

// PreprocessUpdate carries every derived column the preprocess pass writes
// for one document.
type PreprocessUpdate struct {
	DocumentID     int64
	CleanedContent string
	Fingerprint    *uint64
	IsDuplicate    bool
	DuplicateOf    *int64
	QualityFlag    *string
	Language       *string
	ProcessedAt    time.Time
}

// KeywordTarget is a preprocessed document waiting for keywords.
type KeywordTarget struct {
	DocumentID     int64
	Title          string
	CleanedContent *string
}

type KeywordUpdate struct {
	DocumentID  int64
	Keywords    []string
	ExtractedAt time.Time
}

type InsertDocumentParams struct {
	Source       string
	SourceItemID string
	URL          *string
	Title        string
	SummaryRaw   *string
	ContentRaw   *string
	PublishedAt  *time.Time
	Language     *string
}

// ListUnprocessedDocuments returns up to limit documents without cleaned
// content, newest first.
func (p *Pool) ListUnprocessedDocuments(ctx context.Context, limit int) ([]PendingDocument, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	d.document_id,
	d.source,
	d.title,
	d.summary_raw,
	d.content_raw,
	d.language
FROM documents d
WHERE d.cleaned_content IS NULL
ORDER BY d.document_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed documents: %w", err)
	}
	defer rows.Close()

	docs := make([]PendingDocument, 0, limit)
	for rows.Next() {
		var doc PendingDocument
		if err := rows.Scan(
			&doc.DocumentID,
			&doc.Source,
			&doc.Title,
			&doc.SummaryRaw,
			&doc.ContentRaw,
			&doc.Language,
		); err != nil {
			return nil, fmt.Errorf("scan unprocessed document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unprocessed document rows: %w", err)
	}
	return docs, nil
}

// ListRecencyPool returns up to limit fingerprinted documents, newest first.
func (p *Pool) ListRecencyPool(ctx context.Context, limit int) ([]PoolEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	d.document_id,
	d.source,
	d.fingerprint
FROM documents d
WHERE d.fingerprint IS NOT NULL
ORDER BY d.document_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query recency pool: %w", err)
	}
	defer rows.Close()

	entries := make([]PoolEntry, 0, limit)
	for rows.Next() {
		var entry PoolEntry
		if err := rows.Scan(&entry.DocumentID, &entry.Source, &entry.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan recency pool row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recency pool rows: %w", err)
	}
	return entries, nil
}

// ApplyPreprocessBatch writes every update in one transaction. Rows that
// gained cleaned content since they were selected are left alone.
func (p *Pool) ApplyPreprocessBatch(ctx context.Context, updates []PreprocessUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	const q = `
UPDATE documents
SET
	cleaned_content = $2,
	fingerprint = $3,
	is_duplicate = $4,
	duplicate_of = $5,
	quality_flag = $6,
	language = COALESCE(language, $7),
	preprocessed_at = $8,
	updated_at = $8
WHERE document_id = $1
  AND cleaned_content IS NULL
`

	return p.WithTx(ctx, func(tx *Tx) error {
		for _, u := range updates {
			var fingerprint *string
			if u.Fingerprint != nil {
				text := strconv.FormatUint(*u.Fingerprint, 10)
				fingerprint = &text
			}
			if _, err := tx.Exec(ctx, q,
				u.DocumentID,
				u.CleanedContent,
				fingerprint,
				u.IsDuplicate,
				u.DuplicateOf,
				u.QualityFlag,
				u.Language,
				u.ProcessedAt.UTC(),
			); err != nil {
				return fmt.Errorf("update document %d: %w", u.DocumentID, err)
			}
		}
		return nil
	})
}

// ListKeywordTargets returns preprocessed documents without keywords,
// newest first. Low-quality rows are never returned.
func (p *Pool) ListKeywordTargets(ctx context.Context, limit int, includeDuplicates bool) ([]KeywordTarget, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	d.document_id,
	d.title,
	d.cleaned_content
FROM documents d
WHERE d.cleaned_content IS NOT NULL
  AND d.keywords IS NULL
  AND d.quality_flag IS NULL
  AND ($2 OR d.is_duplicate = FALSE)
ORDER BY d.document_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit, includeDuplicates)
	if err != nil {
		return nil, fmt.Errorf("query keyword targets: %w", err)
	}
	defer rows.Close()

	targets := make([]KeywordTarget, 0, limit)
	for rows.Next() {
		var target KeywordTarget
		if err := rows.Scan(&target.DocumentID, &target.Title, &target.CleanedContent); err != nil {
			return nil, fmt.Errorf("scan keyword target row: %w", err)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword target rows: %w", err)
	}
	return targets, nil
}

// GetKeywordTarget loads one document regardless of keyword state. It
// returns ErrNoRows when the id is unknown.
func (p *Pool) GetKeywordTarget(ctx context.Context, documentID int64) (KeywordTarget, error) {
	const q = `
SELECT
	d.document_id,
	d.title,
	d.cleaned_content
FROM documents d
WHERE d.document_id = $1
`

	var target KeywordTarget
	if err := p.QueryRow(ctx, q, documentID).Scan(&target.DocumentID, &target.Title, &target.CleanedContent); err != nil {
		if IsNoRows(err) {
			return KeywordTarget{}, ErrNoRows
		}
		return KeywordTarget{}, fmt.Errorf("query keyword target %d: %w", documentID, err)
	}
	return target, nil
}

// ApplyKeywordBatch stores keyword lists in one transaction. An empty list
// is stored as [] so the document is not selected again.
func (p *Pool) ApplyKeywordBatch(ctx context.Context, updates []KeywordUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	const q = `
UPDATE documents
SET
	keywords = $2::jsonb,
	keywords_extracted_at = $3,
	updated_at = $3
WHERE document_id = $1
`

	return p.WithTx(ctx, func(tx *Tx) error {
		for _, u := range updates {
			keywords := u.Keywords
			if keywords == nil {
				keywords = []string{}
			}
			encoded, err := json.Marshal(keywords)
			if err != nil {
				return fmt.Errorf("marshal keywords for document %d: %w", u.DocumentID, err)
			}
			if _, err := tx.Exec(ctx, q, u.DocumentID, string(encoded), u.ExtractedAt.UTC()); err != nil {
				return fmt.Errorf("update keywords for document %d: %w", u.DocumentID, err)
			}
		}
		return nil
	})
}

// InsertDocuments inserts payload rows in one transaction, skipping rows
// whose (source, source_item_id) already exists. It returns the number of
// new rows.
func (p *Pool) InsertDocuments(ctx context.Context, params []InsertDocumentParams) (int, error) {
	if len(params) == 0 {
		return 0, nil
	}

	const q = `
INSERT INTO documents (
	source,
	source_item_id,
	url,
	title,
	summary_raw,
	content_raw,
	published_at,
	language
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (source, source_item_id) DO NOTHING
RETURNING document_id
`

	inserted := 0
	err := p.WithTx(ctx, func(tx *Tx) error {
		for _, row := range params {
			var id int64
			err := tx.QueryRow(ctx, q,
				row.Source,
				row.SourceItemID,
				row.URL,
				row.Title,
				row.SummaryRaw,
				row.ContentRaw,
				row.PublishedAt,
				row.Language,
			).Scan(&id)
			if IsNoRows(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("insert document %s/%s: %w", row.Source, row.SourceItemID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
