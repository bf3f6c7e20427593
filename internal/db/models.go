package db

import (
	"encoding/json"
	"time"
)

// Document maps the documents table. Derived columns stay NULL until the
// preprocess and keyword passes fill them.
type Document struct {
	DocumentID          int64           `gorm:"column:document_id;primaryKey;autoIncrement"`
	Source              string          `gorm:"column:source;type:text;not null"`
	SourceItemID        string          `gorm:"column:source_item_id;type:text;not null"`
	URL                 *string         `gorm:"column:url;type:text"`
	Title               string          `gorm:"column:title;type:text;not null;default:''"`
	SummaryRaw          *string         `gorm:"column:summary_raw;type:text"`
	ContentRaw          *string         `gorm:"column:content_raw;type:text"`
	PublishedAt         *time.Time      `gorm:"column:published_at;type:timestamptz"`
	Language            *string         `gorm:"column:language;type:text"`
	CleanedContent      *string         `gorm:"column:cleaned_content;type:text"`
	Fingerprint         *string         `gorm:"column:fingerprint;type:text"`
	IsDuplicate         bool            `gorm:"column:is_duplicate;type:boolean;not null;default:false"`
	DuplicateOf         *int64          `gorm:"column:duplicate_of;type:bigint"`
	QualityFlag         *string         `gorm:"column:quality_flag;type:text"`
	Keywords            json.RawMessage `gorm:"column:keywords;type:jsonb"`
	PreprocessedAt      *time.Time      `gorm:"column:preprocessed_at;type:timestamptz"`
	KeywordsExtractedAt *time.Time      `gorm:"column:keywords_extracted_at;type:timestamptz"`
	CreatedAt           time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Document) TableName() string { return "documents" }
