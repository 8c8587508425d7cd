package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokcompress/internal/config"
	"github.com/tokcompress/internal/logging"
	"github.com/tokcompress/internal/shard"
)

type compressOptions struct {
	outDir           string
	initialVocabSize int
	maxCodebookSize  int
	maxSubtokens     int
	maxOutSeqLength  int
	eotTokenID       int
	padTokenID       int
	disabledIDs      []int
	workers          int
	parallel         int
	progress         bool
	metricsOut       string
}

func newCompressCmd(root *rootOptions) *cobra.Command {
	opts := &compressOptions{}

	cmd := &cobra.Command{
		Use:   "compress <shard.bin>...",
		Short: "Compress .bin shards into compressed_ and codebooks_ files",
		Long: `Compress one or more .bin shards.

For every input shard <name>, two files are written to the output directory:
  compressed_<name>  a .bin shard of fixed-length windows
  codebooks_<name>   one flattened codebook per window, uint16 little-endian

Examples:
  # Compress the validation shard with the GPT-2 defaults
  tokcompress compress fineweb10B/fineweb_val_000000.bin

  # Longer codes, four shards at a time, metrics for the textfile collector
  tokcompress compress --max-subtokens 8 --parallel 4 \
    --metrics-out /var/lib/node_exporter/tokcompress.prom fineweb10B/*.bin`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			return runCompress(cmd, cfg, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out-dir", "o", "", "output directory (default: config shard.out_dir)")
	f.IntVar(&opts.initialVocabSize, "initial-vocab-size", 0, "first id available for codes")
	f.IntVar(&opts.maxCodebookSize, "max-codebook-size", 0, "codebook entries per window")
	f.IntVar(&opts.maxSubtokens, "max-subtokens", 0, "longest token run a code can stand for")
	f.IntVar(&opts.maxOutSeqLength, "max-out-seq-length", 0, "compressed ids per window")
	f.IntVar(&opts.eotTokenID, "eot-token-id", 0, "end-of-text token id")
	f.IntVar(&opts.padTokenID, "pad-token-id", 0, "token used to pad short windows (default: eot)")
	f.IntSliceVar(&opts.disabledIDs, "disabled-ids", nil, "token ids that never appear inside a code")
	f.IntVar(&opts.workers, "workers", 0, "goroutines counting candidates inside one window")
	f.IntVar(&opts.parallel, "parallel", 0, "shards compressed concurrently")
	f.BoolVar(&opts.progress, "progress", false, "show a progress bar per shard")
	f.StringVar(&opts.metricsOut, "metrics-out", "", "write Prometheus metrics to this file when done")
	return cmd
}

// apply overrides cfg with the flags that were set explicitly.
func (o *compressOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("out-dir") {
		cfg.Shard.OutDir = o.outDir
	}
	if f.Changed("initial-vocab-size") {
		cfg.Compress.InitialVocabSize = o.initialVocabSize
	}
	if f.Changed("max-codebook-size") {
		cfg.Compress.MaxCodebookSize = o.maxCodebookSize
	}
	if f.Changed("max-subtokens") {
		cfg.Compress.MaxSubtokens = o.maxSubtokens
	}
	if f.Changed("max-out-seq-length") {
		cfg.Compress.MaxOutSeqLength = o.maxOutSeqLength
	}
	if f.Changed("eot-token-id") {
		cfg.Compress.EOTTokenID = o.eotTokenID
	}
	if f.Changed("pad-token-id") {
		cfg.Shard.PadTokenID = o.padTokenID
	}
	if f.Changed("disabled-ids") {
		cfg.Compress.DisabledIDs = o.disabledIDs
	}
	if f.Changed("workers") {
		cfg.Compress.Workers = o.workers
	}
	if f.Changed("parallel") {
		cfg.Shard.Parallel = o.parallel
	}
	if f.Changed("progress") {
		cfg.Shard.Progress = o.progress
	}
	if f.Changed("metrics-out") {
		cfg.Metrics.Textfile = o.metricsOut
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func runCompress(cmd *cobra.Command, cfg *config.Config, files []string) (err error) {
	if cfg.Logging.Output == nil {
		cfg.Logging.Output = cmd.ErrOrStderr()
	}
	log, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithRunID(ctx, uuid.NewString())

	reg := prometheus.NewRegistry()
	p := &shard.Processor{
		Config:         cfg,
		Logger:         log,
		Metrics:        shard.NewMetrics(reg),
		ProgressWriter: cmd.ErrOrStderr(),
	}

	if cfg.Metrics.Textfile != "" {
		defer func() {
			if werr := shard.WriteTextfile(cfg.Metrics.Textfile, reg); werr != nil {
				log.Warn(ctx, "failed to write metrics textfile",
					zap.String("path", cfg.Metrics.Textfile), zap.Error(werr))
			}
		}()
	}

	log.Info(ctx, "starting",
		zap.Int("shards", len(files)),
		zap.Int("max_codebook_size", cfg.Compress.MaxCodebookSize),
		zap.Int("max_subtokens", cfg.Compress.MaxSubtokens),
		zap.Int("max_out_seq_length", cfg.Compress.MaxOutSeqLength),
		zap.Int("parallel", cfg.Shard.Parallel))

	stats, err := p.ProcessAll(ctx, files)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, st := range stats {
		ratio := 0.0
		if st.CompressedSize > 0 {
			ratio = float64(st.SourceTokens) / float64(st.CompressedSize)
		}
		fmt.Fprintf(out, "%s: %d tokens -> %d windows (%d ids, %.3fx), %d codebook entries\n",
			st.Input, st.SourceTokens, st.Windows, st.CompressedSize, ratio, st.Entries)
	}
	return nil
}
