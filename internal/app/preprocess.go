package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/curator/internal/cli"
	"horse.fit/curator/internal/db"
)

func runPreprocess(args []string) int {
	fs := flag.NewFlagSet("preprocess", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	limit := fs.Int("limit", 0, "Maximum pending documents to preprocess (0 uses PREPROCESS_BATCH_SIZE)")

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

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}
	if *limit == 0 {
		*limit = cfg.PreprocessBatchSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("preprocess command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := newPipelineService(cfg, pool, logger, nil)
	result, err := svc.ProcessPending(ctx, *limit)
	if err != nil {
		logger.Error().Err(err).Int("limit", *limit).Msg("preprocess failed")
		fmt.Fprintf(os.Stderr, "Preprocess failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"preprocess selected=%d processed=%d duplicates=%d low_quality=%d failed=%d trimmed=%d pool=%d pool_skipped=%d limit=%d\n",
		result.Selected,
		result.Processed,
		result.Duplicates,
		result.LowQuality,
		result.Failed,
		result.Trimmed,
		result.PoolSize,
		result.PoolSkipped,
		*limit,
	)
	return 0
}
