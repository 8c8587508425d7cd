// Package config provides configuration loading for tokcompress.
package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/tokcompress/internal/codebook"
	"github.com/tokcompress/internal/logging"
)

// Config is the full tokcompress configuration.
type Config struct {
	Compress CompressConfig `koanf:"compress"`
	Shard    ShardConfig    `koanf:"shard"`
	Logging  logging.Config `koanf:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// CompressConfig mirrors codebook.Params.
type CompressConfig struct {
	InitialVocabSize int   `koanf:"initial_vocab_size"`
	MaxCodebookSize  int   `koanf:"max_codebook_size"`
	MaxSubtokens     int   `koanf:"max_subtokens"`
	MaxOutSeqLength  int   `koanf:"max_out_seq_length"`
	EOTTokenID       int   `koanf:"eot_token_id"`
	DisabledIDs      []int `koanf:"disabled_ids"`
	Workers          int   `koanf:"workers"`
}

// ShardConfig controls the .bin shard pipeline.
type ShardConfig struct {
	OutDir string `koanf:"out_dir"`
	// PadTokenID fills short windows. Negative means "use the eot id".
	PadTokenID int  `koanf:"pad_token_id"`
	Parallel   int  `koanf:"parallel"`
	Progress   bool `koanf:"progress"`
}

// MetricsConfig controls Prometheus output.
type MetricsConfig struct {
	// Textfile, when set, receives the metrics in text exposition format after a run.
	Textfile string `koanf:"textfile"`
}

// Default returns the configuration used for GPT-2 tokenized fineweb shards.
func Default() *Config {
	return &Config{
		Compress: CompressConfig{
			InitialVocabSize: 50257,
			MaxCodebookSize:  1024,
			MaxSubtokens:     4,
			MaxOutSeqLength:  1024,
			EOTTokenID:       50256,
			Workers:          1,
		},
		Shard: ShardConfig{
			OutDir:     ".",
			PadTokenID: -1,
			Parallel:   1,
		},
		Logging: *logging.NewDefaultConfig(),
	}
}

// Params converts the compress section into codebook parameters.
func (c *Config) Params() codebook.Params {
	return codebook.Params{
		InitialVocabSize: c.Compress.InitialVocabSize,
		MaxCodebookSize:  c.Compress.MaxCodebookSize,
		MaxOutSeqLength:  c.Compress.MaxOutSeqLength,
		MaxSubtokens:     c.Compress.MaxSubtokens,
		EOTTokenID:       c.Compress.EOTTokenID,
		DisabledIDs:      c.Compress.DisabledIDs,
		Workers:          c.Compress.Workers,
	}
}

// PadID resolves the pad token id.
func (c *Config) PadID() int {
	if c.Shard.PadTokenID < 0 {
		return c.Compress.EOTTokenID
	}
	return c.Shard.PadTokenID
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("compress: %w", err))
	}
	if c.Compress.Workers < 0 {
		errs = append(errs, fmt.Errorf("compress.workers must be >= 0, got %d", c.Compress.Workers))
	}

	// shard payloads are uint16
	if top := c.Compress.InitialVocabSize + c.Compress.MaxCodebookSize; top > math.MaxUint16+1 {
		errs = append(errs, fmt.Errorf("compress: code ids up to %d do not fit in uint16 shards", top-1))
	}
	if c.Compress.EOTTokenID > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("compress.eot_token_id %d does not fit in uint16 shards", c.Compress.EOTTokenID))
	}
	if c.Shard.PadTokenID > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("shard.pad_token_id %d does not fit in uint16 shards", c.Shard.PadTokenID))
	}
	if c.Shard.Parallel < 1 {
		errs = append(errs, fmt.Errorf("shard.parallel must be >= 1, got %d", c.Shard.Parallel))
	}
	if c.Shard.OutDir == "" {
		errs = append(errs, fmt.Errorf("shard.out_dir cannot be empty"))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	return errors.Join(errs...)
}
