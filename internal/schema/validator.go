// Package payloadschema validates document payloads before they are
// inserted.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaName = "document.schema.json"

//go:embed document.schema.json
var documentSchemaJSON string

// Document is one validated payload.
type Document struct {
	Source       string  `json:"source"`
	SourceItemID string  `json:"source_item_id"`
	Title        string  `json:"title"`
	URL          *string `json:"url,omitempty"`
	SummaryRaw   *string `json:"summary_raw,omitempty"`
	ContentRaw   *string `json:"content_raw,omitempty"`
	PublishedAt  *string `json:"published_at,omitempty"`
	Language     *string `json:"language,omitempty"`
}

// Validator holds the compiled document schema. It is safe for concurrent
// use.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	if err := compiler.AddResource(schemaName, strings.NewReader(documentSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateDocumentPayload validates a single JSON object.
func (v *Validator) ValidateDocumentPayload(payload []byte) (*Document, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}
	return v.validateValue(value)
}

// ValidateDocumentPayloads accepts either one object or an array of
// objects. Errors name the failing array index.
func (v *Validator) ValidateDocumentPayloads(payload []byte) ([]Document, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	items, isArray := value.([]any)
	if !isArray {
		doc, err := v.validateValue(value)
		if err != nil {
			return nil, err
		}
		return []Document{*doc}, nil
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("payload array is empty")
	}
	docs := make([]Document, 0, len(items))
	for i, item := range items {
		doc, err := v.validateValue(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (v *Validator) validateValue(value any) (*Document, error) {
	if err := v.schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PublishedTime parses published_at, returning nil when it is absent.
func (d *Document) PublishedTime() (*time.Time, error) {
	if d == nil || d.PublishedAt == nil || strings.TrimSpace(*d.PublishedAt) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*d.PublishedAt))
	if err != nil {
		return nil, fmt.Errorf("published_at must be RFC3339: %w", err)
	}
	utc := parsed.UTC()
	return &utc, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func validateSemantics(doc *Document) error {
	required := []struct {
		field string
		value string
	}{
		{field: "source", value: doc.Source},
		{field: "source_item_id", value: doc.SourceItemID},
		{field: "title", value: doc.Title},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s must not be empty", r.field)
		}
	}

	if doc.URL != nil {
		trimmed := strings.TrimSpace(*doc.URL)
		if trimmed == "" {
			return fmt.Errorf("url must not be empty")
		}
		if _, err := url.ParseRequestURI(trimmed); err != nil {
			return fmt.Errorf("url is not a valid URI: %w", err)
		}
	}
	if _, err := doc.PublishedTime(); err != nil {
		return err
	}
	return nil
}
