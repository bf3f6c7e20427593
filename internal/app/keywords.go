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
)

func runKeywords(args []string) int {
	fs := flag.NewFlagSet("keywords", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	limit := fs.Int("limit", 0, "Maximum documents to extract keywords for (0 uses KEYWORD_BATCH_SIZE)")
	documentID := fs.Int64("document-id", 0, "Extract keywords for a single document and print them")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 0")
		return 2
	}
	if *documentID < 0 {
		fmt.Fprintln(os.Stderr, "--document-id must be > 0")
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}
	if *limit == 0 {
		*limit = cfg.KeywordBatchSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("keywords command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := newPipelineService(cfg, pool, logger, nil)

	if *documentID > 0 {
		phrases, err := svc.ExtractKeywordsFor(ctx, *documentID)
		if err != nil {
			logger.Error().Err(err).Int64("document_id", *documentID).Msg("keyword extraction failed")
			fmt.Fprintf(os.Stderr, "Keywords failed: %v\n", err)
			return 1
		}
		fmt.Printf("document_id=%d keywords=%d\n", *documentID, len(phrases))
		if len(phrases) > 0 {
			fmt.Println(strings.Join(phrases, "\n"))
		}
		return 0
	}

	result, err := svc.ExtractKeywordsPending(ctx, *limit)
	if err != nil {
		logger.Error().Err(err).Int("limit", *limit).Msg("keyword extraction failed")
		fmt.Fprintf(os.Stderr, "Keywords failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"keywords selected=%d extracted=%d empty=%d failed=%d limit=%d\n",
		result.Selected,
		result.Extracted,
		result.Empty,
		result.Failed,
		*limit,
	)
	return 0
}
