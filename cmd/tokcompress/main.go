// Package main implements the tokcompress CLI for compressing .bin token shards.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tokcompress/internal/config"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are flags shared by every sub-command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tokcompress",
		Short: "Compress tokenized .bin shards with per-window codebooks",
		Long: `tokcompress rewrites GPT-2 style .bin token shards into fixed-length windows.
Each window carries its own codebook of recurring token runs, so a window of
max_out_seq_length ids stands for up to max_out_seq_length*max_subtokens tokens.

Configuration is read from defaults, then the --config YAML file, then
TOKCOMPRESS_* environment variables, then command-line flags.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(newCompressCmd(opts))
	root.AddCommand(newDecodeCmd(opts))
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig loads configuration and applies the root flags on top.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tokcompress version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("tokcompress %s\n", version)
		},
	}
}
