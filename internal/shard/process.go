package shard

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokcompress/internal/codebook"
	"github.com/tokcompress/internal/config"
	"github.com/tokcompress/internal/logging"
)

const (
	compressedPrefix = "compressed_"
	codebooksPrefix  = "codebooks_"
)

// OutputPaths returns where ProcessFile writes the compressed shard and codebooks
// for the shard at in.
func OutputPaths(in, outDir string) (compressed, codebooks string) {
	base := filepath.Base(in)
	return filepath.Join(outDir, compressedPrefix+base), filepath.Join(outDir, codebooksPrefix+base)
}

// FileStats summarizes one processed shard.
type FileStats struct {
	Input          string
	Compressed     string
	Codebooks      string
	SourceTokens   int
	Windows        int
	Entries        int
	CompressedSize int
}

// Processor compresses .bin shards. Logger and Metrics may be nil.
type Processor struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *Metrics

	// ProgressWriter receives progress bars when Config.Shard.Progress is set.
	// Nil means stderr.
	ProgressWriter io.Writer
}

func (p *Processor) logger() *logging.Logger {
	if p.Logger == nil {
		return logging.NewNop()
	}
	return p.Logger
}

// ProcessAll compresses files into Config.Shard.OutDir, Config.Shard.Parallel at a
// time. The first failure cancels the remaining shards.
func (p *Processor) ProcessAll(ctx context.Context, files []string) ([]*FileStats, error) {
	if err := os.MkdirAll(p.Config.Shard.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create out dir: %w", err)
	}

	stats := make([]*FileStats, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Config.Shard.Parallel, 1))

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			st, err := p.ProcessFile(ctx, file, p.Config.Shard.OutDir)
			if err != nil {
				return err
			}
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// ProcessFile compresses the shard at in and writes compressed_<name> and
// codebooks_<name> into outDir.
func (p *Processor) ProcessFile(ctx context.Context, in, outDir string) (st *FileStats, err error) {
	ctx = logging.WithShard(ctx, filepath.Base(in))
	log := p.logger().Named("shard").With(zap.String("input", in))
	start := time.Now()

	defer func() {
		p.Metrics.RecordDuration(time.Since(start).Seconds())
		if err != nil {
			p.Metrics.RecordFailure(err)
			log.Error(ctx, "shard failed",
				zap.String("kind", string(codebook.KindOf(err))),
				zap.Error(err))
		}
	}()

	src, err := ReadShardFile(in)
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", in, err)
	}

	w, err := NewWindower(p.Config.Params(), p.Config.PadID())
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", in, err)
	}

	log.Info(ctx, "compressing shard", zap.Int("tokens", len(src.Tokens)))

	ids, book, windows, err := p.compressTokens(ctx, log, w, src.Tokens, filepath.Base(in))
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", in, err)
	}

	h := src.Header
	h.SetLayout(Layout{
		Windows:          windows,
		MaxCodebookSize:  w.Params.MaxCodebookSize,
		MaxSubtokens:     w.Params.MaxSubtokens,
		MaxOutSeqLength:  w.Params.MaxOutSeqLength,
		SourceTokens:     len(src.Tokens),
		PadTokenID:       w.PadTokenID,
		EOTTokenID:       w.Params.EOTTokenID,
		InitialVocabSize: w.Params.InitialVocabSize,
	})

	compressedPath, codebooksPath := OutputPaths(in, outDir)
	if err := WriteShardFile(compressedPath, h, ids); err != nil {
		return nil, fmt.Errorf("write %s: %w", compressedPath, err)
	}
	if err := WriteTokensFile(codebooksPath, book); err != nil {
		return nil, fmt.Errorf("write %s: %w", codebooksPath, err)
	}

	st = &FileStats{
		Input:          in,
		Compressed:     compressedPath,
		Codebooks:      codebooksPath,
		SourceTokens:   len(src.Tokens),
		Windows:        windows,
		CompressedSize: len(ids),
	}
	for i := 0; i < len(book); i += w.Params.MaxSubtokens {
		if book[i] != w.Params.EOTTokenID {
			st.Entries++
		}
	}

	log.Info(ctx, "shard compressed",
		zap.Int("windows", windows),
		zap.Int("compressed_ids", len(ids)),
		zap.Int("codebook_entries", st.Entries),
		zap.Duration("elapsed", time.Since(start)))
	return st, nil
}

func (p *Processor) compressTokens(ctx context.Context, log *logging.Logger, w *Windower, tokens []int, name string) (ids, book []int, windows int, err error) {
	var bar *progressbar.ProgressBar
	if p.Config.Shard.Progress {
		bar = p.newBar(len(tokens), name)
		defer bar.Finish()
	}

	for offset := 0; offset < len(tokens); {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}

		win, err := w.Next(ctx, tokens, offset)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("window %d at offset %d: %w", windows, offset, err)
		}
		padded, flat := w.Pad(win.Result)
		ids = append(ids, padded...)
		book = append(book, flat...)

		log.Trace(ctx, "window",
			zap.Int("offset", offset),
			zap.Int("consumed", win.Consumed),
			zap.Int("compressed", len(win.Result.CompressedIDs)),
			zap.Int("entries", len(win.Result.Codebook)))
		p.Metrics.RecordWindow(win, len(padded))

		offset += win.Consumed
		windows++
		if bar != nil {
			_ = bar.Add(win.Consumed)
		}
	}
	return ids, book, windows, nil
}

func (p *Processor) newBar(total int, name string) *progressbar.ProgressBar {
	out := p.ProgressWriter
	if out == nil {
		out = os.Stderr
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("tok"),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	)
}

// DecodeFile rebuilds the source tokens of a compressed shard from it and its
// codebooks file.
func DecodeFile(ctx context.Context, compressedPath, codebooksPath string) ([]int, error) {
	src, err := ReadShardFile(compressedPath)
	if err != nil {
		return nil, err
	}
	flat, err := ReadTokensFile(codebooksPath)
	if err != nil {
		return nil, err
	}

	tokens, err := DecodeWindows(ctx, src.Header.Layout(), src.Tokens, flat)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", compressedPath, err)
	}
	return tokens, nil
}

// DecodeWindows reverses the windowing described by l.
func DecodeWindows(ctx context.Context, l Layout, ids, flat []int) ([]int, error) {
	if l.MaxSubtokens < 2 || l.MaxOutSeqLength < 1 {
		return nil, fmt.Errorf("%w: not a compressed shard layout", codebook.ErrInvalidInput)
	}
	if len(ids) != l.Windows*l.MaxOutSeqLength {
		return nil, fmt.Errorf("%w: %d ids for %d windows of %d", ErrTruncated, len(ids), l.Windows, l.MaxOutSeqLength)
	}
	bookSize := l.MaxCodebookSize * l.MaxSubtokens
	if len(flat) != l.Windows*bookSize {
		return nil, fmt.Errorf("%w: %d codebook ids for %d windows of %d", ErrTruncated, len(flat), l.Windows, bookSize)
	}

	out := make([]int, 0, l.SourceTokens)
	for i := 0; i < l.Windows; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		win := UnpadWindow(ids[i*l.MaxOutSeqLength:(i+1)*l.MaxOutSeqLength], l.PadTokenID)
		book, err := UnflattenCodebook(flat[i*bookSize:(i+1)*bookSize], l.MaxSubtokens, l.EOTTokenID)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		dec, err := codebook.Decode(win, book, l.InitialVocabSize)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		out = append(out, dec...)
	}

	// only the last window may end in pad tokens
	if len(out) > l.SourceTokens {
		return nil, fmt.Errorf("%w: decoded %d tokens, header says %d", codebook.ErrInvalidInput, len(out), l.SourceTokens)
	}
	for len(out) < l.SourceTokens {
		out = append(out, l.PadTokenID)
	}
	return out, nil
}
