package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/curator/internal/cli"
	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/opsapi"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	interval := fs.Duration("interval", 30*time.Second, "Delay between process rounds")
	cycleTimeout := fs.Duration("cycle-timeout", 5*time.Minute, "Timeout for one process round")
	listen := fs.String("listen", "127.0.0.1:9464", "Address for /healthz and /metrics (empty disables)")
	shutdownTimeout := fs.Duration("shutdown-timeout", 5*time.Second, "Ops server graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "--interval must be > 0")
		return 2
	}
	if *cycleTimeout <= 0 {
		fmt.Fprintln(os.Stderr, "--cycle-timeout must be > 0")
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("watch command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc := newPipelineService(cfg, pool, logger, reg)
	limits := cycleLimits{Preprocess: cfg.PreprocessBatchSize, Keywords: cfg.KeywordBatchSize}

	g, gctx := errgroup.WithContext(ctx)
	if addr := strings.TrimSpace(*listen); addr != "" {
		srv := opsapi.NewServer(pool, reg, logger, opsapi.Options{Addr: addr, ShutdownTimeout: *shutdownTimeout})
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}
	g.Go(func() error {
		return watchLoop(gctx, svc, limits, *interval, *cycleTimeout, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("watch stopped with error")
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}

	logger.Info().Msg("watch stopped")
	return 0
}

// watchLoop runs one drain per tick. Round failures are logged and retried
// on the next tick; only cancellation ends the loop.
func watchLoop(ctx context.Context, runner batchRunner, limits cycleLimits, interval, cycleTimeout time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		roundCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
		summary, err := runCycles(roundCtx, runner, limits)
		cancel()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logger.Error().Err(err).Int("cycles", summary.Cycles).Msg("process round failed")
		case summary.Processed+summary.Keywords > 0:
			logger.Info().
				Int("cycles", summary.Cycles).
				Int("processed", summary.Processed).
				Int("duplicates", summary.Duplicates).
				Int("keywords", summary.Keywords).
				Msg("process round completed")
		default:
			logger.Debug().Msg("process round found no pending documents")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
