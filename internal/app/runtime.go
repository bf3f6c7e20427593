package app

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"horse.fit/curator/internal/cli"
	"horse.fit/curator/internal/config"
	"horse.fit/curator/internal/keywords"
	"horse.fit/curator/internal/langdetect"
	"horse.fit/curator/internal/logging"
	"horse.fit/curator/internal/metrics"
	"horse.fit/curator/internal/pipeline"
	"horse.fit/curator/internal/textclean"
)

// loadRuntime loads the .env file, config and logger shared by every
// database-backed command. A non-zero code means the command should exit.
func loadRuntime(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), 1
	}
	return cfg, logger, 0
}

func newPipelineService(cfg *config.Config, store pipeline.Store, logger zerolog.Logger, reg prometheus.Registerer) *pipeline.Service {
	opts := pipeline.Options{
		Normalizer:               textclean.New(textclean.Options{ReadabilityFullPages: cfg.ReadabilityFullPages}),
		Keywords:                 keywords.NewExtractor(),
		Metrics:                  metrics.NewPipeline(reg),
		Workers:                  cfg.Workers(),
		RecencyPoolSize:          cfg.RecencyPoolSize,
		FingerprintLowQuality:    cfg.FingerprintLowQuality,
		ExplicitThreshold:        cfg.ExplicitThreshold(),
		KeywordTopK:              cfg.KeywordTopK,
		KeywordIncludeDuplicates: cfg.KeywordIncludeDuplicates,
	}
	if cfg.DetectLanguage {
		opts.Detector = langdetect.New()
	}
	return pipeline.NewService(store, logger, opts)
}
