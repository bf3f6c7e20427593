package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/curator/internal/cli"
	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/language"
	payloadschema "horse.fit/curator/internal/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	payloadFile := fs.String("payload-file", "", "Path to a JSON file holding one document or an array of documents")
	dir := fs.String("dir", "", "Directory of .json document files (used when --payload-file is empty)")
	recursive := fs.Bool("recursive", true, "Recursively scan --dir")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files, err := ingestFiles(*payloadFile, *dir, *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
		return 2
	}

	validator, err := payloadschema.NewValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 1
	}

	var params []db.InsertDocumentParams
	for _, path := range files {
		docs, err := readPayloadFile(validator, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid payload %s: %v\n", path, err)
			return 2
		}
		rows, err := buildInsertParams(docs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid payload %s: %v\n", path, err)
			return 2
		}
		params = append(params, rows...)
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	inserted, err := pool.InsertDocuments(ctx, params)
	if err != nil {
		logger.Error().Err(err).Int("documents", len(params)).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("files", len(files)).
		Int("documents", len(params)).
		Int("inserted", inserted).
		Msg("ingest completed")
	fmt.Printf("ingest files=%d documents=%d inserted=%d skipped=%d\n", len(files), len(params), inserted, len(params)-inserted)
	return 0
}

func ingestFiles(payloadFile, dir string, recursive bool) ([]string, error) {
	if path := strings.TrimSpace(payloadFile); path != "" {
		return []string{path}, nil
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("one of --payload-file or --dir is required")
	}
	files, err := collectJSONFiles(dir, recursive)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .json files found under %s", strings.TrimSpace(dir))
	}
	return files, nil
}

func buildInsertParams(docs []payloadschema.Document) ([]db.InsertDocumentParams, error) {
	out := make([]db.InsertDocumentParams, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		publishedAt, err := doc.PublishedTime()
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", doc.Source, doc.SourceItemID, err)
		}
		out = append(out, db.InsertDocumentParams{
			Source:       strings.TrimSpace(doc.Source),
			SourceItemID: strings.TrimSpace(doc.SourceItemID),
			URL:          optionalTrimmed(doc.URL),
			Title:        strings.TrimSpace(doc.Title),
			SummaryRaw:   doc.SummaryRaw,
			ContentRaw:   doc.ContentRaw,
			PublishedAt:  publishedAt,
			Language:     normalizedLanguage(doc.Language),
		})
	}
	return out, nil
}

func optionalTrimmed(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizedLanguage(value *string) *string {
	if value == nil {
		return nil
	}
	code := language.NormalizeCode(*value)
	if code == "" {
		return nil
	}
	return &code
}
