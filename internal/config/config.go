package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	PreprocessBatchSize   int  `envconfig:"PREPROCESS_BATCH_SIZE" default:"100"`
	RecencyPoolSize       int  `envconfig:"RECENCY_POOL_SIZE" default:"1500"`
	PreprocessWorkers     int  `envconfig:"PREPROCESS_WORKERS" default:"0"`
	FingerprintLowQuality bool `envconfig:"FINGERPRINT_LOW_QUALITY" default:"false"`
	DedupThreshold        int  `envconfig:"DEDUP_THRESHOLD" default:"0"`
	ReadabilityFullPages  bool `envconfig:"READABILITY_FULL_PAGES" default:"false"`
	DetectLanguage        bool `envconfig:"DETECT_LANGUAGE" default:"true"`

	KeywordBatchSize         int  `envconfig:"KEYWORD_BATCH_SIZE" default:"50"`
	KeywordTopK              int  `envconfig:"KEYWORD_TOP_K" default:"8"`
	KeywordIncludeDuplicates bool `envconfig:"KEYWORD_INCLUDE_DUPLICATES" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.PreprocessBatchSize < 1 {
		return fmt.Errorf("PREPROCESS_BATCH_SIZE must be >= 1")
	}
	if c.RecencyPoolSize < 1 {
		return fmt.Errorf("RECENCY_POOL_SIZE must be >= 1")
	}
	if c.PreprocessWorkers < 0 {
		return fmt.Errorf("PREPROCESS_WORKERS must be >= 0")
	}
	if c.DedupThreshold < 0 || c.DedupThreshold > 64 {
		return fmt.Errorf("DEDUP_THRESHOLD must be between 0 and 64")
	}
	if c.KeywordBatchSize < 1 {
		return fmt.Errorf("KEYWORD_BATCH_SIZE must be >= 1")
	}
	if c.KeywordTopK < 1 {
		return fmt.Errorf("KEYWORD_TOP_K must be >= 1")
	}
	return nil
}

// Workers resolves PREPROCESS_WORKERS, where 0 means one worker per CPU.
func (c *Config) Workers() int {
	if c == nil || c.PreprocessWorkers <= 0 {
		return runtime.NumCPU()
	}
	return c.PreprocessWorkers
}

// ExplicitThreshold returns the configured Hamming threshold, or nil when
// the length-adaptive threshold should apply.
func (c *Config) ExplicitThreshold() *int {
	if c == nil || c.DedupThreshold <= 0 {
		return nil
	}
	threshold := c.DedupThreshold
	return &threshold
}
