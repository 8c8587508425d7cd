package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tokcompress/internal/shard"
)

func newInspectCmd() *cobra.Command {
	var codebooksPath string

	cmd := &cobra.Command{
		Use:   "inspect <shard.bin>",
		Short: "Validate a shard and print its header",
		Long: `Inspect reads a plain or compressed .bin shard, checks the magic number,
version and payload length, and prints the header fields.

With --codebooks, the codebook file of a compressed shard is checked against
the header layout and the number of entries in use is reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := shard.ReadShardFile(args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "file\t%s\n", args[0])
			fmt.Fprintf(tw, "tokens\t%d\n", s.Header.Tokens())
			fmt.Fprintf(tw, "compressed\t%t\n", s.Header.IsCompressed())
			if s.Header.IsCompressed() {
				l := s.Header.Layout()
				fmt.Fprintf(tw, "windows\t%d\n", l.Windows)
				fmt.Fprintf(tw, "source_tokens\t%d\n", l.SourceTokens)
				fmt.Fprintf(tw, "initial_vocab_size\t%d\n", l.InitialVocabSize)
				fmt.Fprintf(tw, "max_codebook_size\t%d\n", l.MaxCodebookSize)
				fmt.Fprintf(tw, "max_subtokens\t%d\n", l.MaxSubtokens)
				fmt.Fprintf(tw, "max_out_seq_length\t%d\n", l.MaxOutSeqLength)
				fmt.Fprintf(tw, "eot_token_id\t%d\n", l.EOTTokenID)
				fmt.Fprintf(tw, "pad_token_id\t%d\n", l.PadTokenID)
			}

			if codebooksPath != "" {
				entries, err := countEntries(s.Header.Layout(), codebooksPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "codebook_entries\t%d\n", entries)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&codebooksPath, "codebooks", "", "codebooks file to check against the header")
	return cmd
}

func countEntries(l shard.Layout, path string) (int, error) {
	if l.MaxSubtokens < 2 {
		return 0, fmt.Errorf("--codebooks needs a compressed shard")
	}
	flat, err := shard.ReadTokensFile(path)
	if err != nil {
		return 0, err
	}
	bookSize := l.MaxCodebookSize * l.MaxSubtokens
	if len(flat) != l.Windows*bookSize {
		return 0, fmt.Errorf("%s: %w: %d ids for %d windows of %d", path, shard.ErrTruncated, len(flat), l.Windows, bookSize)
	}

	total := 0
	for i := 0; i < l.Windows; i++ {
		book, err := shard.UnflattenCodebook(flat[i*bookSize:(i+1)*bookSize], l.MaxSubtokens, l.EOTTokenID)
		if err != nil {
			return 0, fmt.Errorf("window %d: %w", i, err)
		}
		total += len(book)
	}
	return total, nil
}
