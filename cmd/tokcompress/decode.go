package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokcompress/internal/logging"
	"github.com/tokcompress/internal/shard"
)

func newDecodeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <compressed.bin> <codebooks.bin> <out.bin>",
		Short: "Rebuild the source shard from a compressed shard and its codebooks",
		Long: `Decode expands every window of a compressed shard with its codebook and
writes the original tokens as a plain .bin shard.

Examples:
  tokcompress decode compressed_fineweb_val_000000.bin codebooks_fineweb_val_000000.bin val.bin`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Logging.Output == nil {
				cfg.Logging.Output = cmd.ErrOrStderr()
			}
			log, err := logging.NewLogger(&cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx := logging.WithShard(cmd.Context(), args[0])
			tokens, err := shard.DecodeFile(ctx, args[0], args[1])
			if err != nil {
				log.Error(ctx, "decode failed", zap.Error(err))
				return err
			}
			if err := shard.WriteShardFile(args[2], shard.NewHeader(len(tokens)), tokens); err != nil {
				return fmt.Errorf("write %s: %w", args[2], err)
			}

			log.Info(ctx, "decoded", zap.Int("tokens", len(tokens)), zap.String("out", args[2]))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tokens\n", args[2], len(tokens))
			return nil
		},
	}
}
