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
	"horse.fit/curator/internal/pipeline"
)

type batchRunner interface {
	ProcessPending(ctx context.Context, limit int) (pipeline.PreprocessResult, error)
	ExtractKeywordsPending(ctx context.Context, limit int) (pipeline.KeywordResult, error)
}

type cycleLimits struct {
	Preprocess int
	Keywords   int
	MaxCycles  int
}

type cycleSummary struct {
	Cycles     int
	Processed  int
	Duplicates int
	LowQuality int
	Keywords   int
	Failed     int
	Drained    bool
}

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	maxCycles := fs.Int("max-cycles", 10, "Maximum preprocess + keywords rounds (0 runs until drained)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *maxCycles < 0 {
		fmt.Fprintln(os.Stderr, "--max-cycles must be >= 0")
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("process command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := newPipelineService(cfg, pool, logger, nil)
	summary, err := runCycles(ctx, svc, cycleLimits{
		Preprocess: cfg.PreprocessBatchSize,
		Keywords:   cfg.KeywordBatchSize,
		MaxCycles:  *maxCycles,
	})
	if err != nil {
		logger.Error().Err(err).Int("cycles", summary.Cycles).Msg("process failed")
		fmt.Fprintf(os.Stderr, "Process failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("cycles", summary.Cycles).
		Int("processed", summary.Processed).
		Int("keywords", summary.Keywords).
		Bool("drained", summary.Drained).
		Msg("process completed")
	printCycleSummary(summary)
	return 0
}

// runCycles alternates preprocess and keyword batches until both passes
// come back short or a round makes no progress.
func runCycles(ctx context.Context, runner batchRunner, limits cycleLimits) (cycleSummary, error) {
	var summary cycleSummary
	for limits.MaxCycles == 0 || summary.Cycles < limits.MaxCycles {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		pre, err := runner.ProcessPending(ctx, limits.Preprocess)
		if err != nil {
			return summary, fmt.Errorf("preprocess: %w", err)
		}
		kw, err := runner.ExtractKeywordsPending(ctx, limits.Keywords)
		if err != nil {
			return summary, fmt.Errorf("keywords: %w", err)
		}

		summary.Cycles++
		summary.Processed += pre.Processed
		summary.Duplicates += pre.Duplicates
		summary.LowQuality += pre.LowQuality
		summary.Keywords += kw.Extracted + kw.Empty
		summary.Failed += pre.Failed + kw.Failed

		short := pre.Selected < limits.Preprocess && kw.Selected < limits.Keywords
		stalled := pre.Processed == 0 && kw.Extracted+kw.Empty == 0
		if short || stalled {
			summary.Drained = true
			break
		}
	}
	return summary, nil
}

func printCycleSummary(summary cycleSummary) {
	fmt.Printf(
		"process cycles=%d processed=%d duplicates=%d low_quality=%d keywords=%d failed=%d drained=%t\n",
		summary.Cycles,
		summary.Processed,
		summary.Duplicates,
		summary.LowQuality,
		summary.Keywords,
		summary.Failed,
		summary.Drained,
	)
}
