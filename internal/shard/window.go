package shard

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tokcompress/internal/codebook"
)

// ErrAmbiguousPadding is returned when a window would consist of pad tokens only,
// which the decoder could not tell apart from padding.
var ErrAmbiguousPadding = errors.New("window holds only pad tokens")

// Window is one compressed window of a shard.
type Window struct {
	// Result is the unpadded compression of ids[offset : offset+Consumed].
	Result *codebook.Result
	// Consumed is the number of input tokens the window covers.
	Consumed int
}

// Windower cuts a token stream into windows whose compressed form fits
// Params.MaxOutSeqLength, each with its own codebook.
type Windower struct {
	Params     codebook.Params
	PadTokenID int

	builder codebook.Builder
}

// NewWindower checks that p and pad fit the uint16 shard layout.
func NewWindower(p codebook.Params, pad int) (*Windower, error) {
	p.WithPositions = false
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if top := p.InitialVocabSize + p.MaxCodebookSize; top > math.MaxUint16+1 {
		return nil, fmt.Errorf("%w: code ids up to %d do not fit in uint16", codebook.ErrInvalidInput, top-1)
	}
	if pad < 0 || pad > math.MaxUint16 {
		return nil, fmt.Errorf("%w: pad token %d does not fit in uint16", codebook.ErrInvalidInput, pad)
	}
	if p.IsCode(pad, p.MaxCodebookSize) {
		return nil, fmt.Errorf("%w: pad token %d collides with code ids", codebook.ErrInvalidInput, pad)
	}
	return &Windower{Params: p, PadTokenID: pad}, nil
}

// Next compresses the longest prefix of ids[offset:] it can fit into one window.
// The prefix length is found by binary search between MaxOutSeqLength input
// tokens, which always fit, and MaxOutSeqLength*MaxSubtokens, the most a full
// window can stand for.
//
// A window other than the last never ends in a pad token: trailing pad tokens are
// left for the next window so that stripping the padding stays lossless. Dropping
// them can push the shorter prefix over budget, so the search is repeated below
// the trimmed length until a window fits without trailing padding.
func (w *Windower) Next(ctx context.Context, ids []int, offset int) (*Window, error) {
	remaining := len(ids) - offset
	if offset < 0 || remaining <= 0 {
		return nil, fmt.Errorf("%w: offset %d outside %d tokens", codebook.ErrInvalidInput, offset, len(ids))
	}

	limit := min(remaining, w.spanLimit())
	for {
		res, n, err := w.longestFit(ctx, ids[offset:offset+limit])
		if err != nil {
			return nil, err
		}
		if offset+n == len(ids) || !endsWith(res.CompressedIDs, w.PadTokenID) {
			return &Window{Result: res, Consumed: n}, nil
		}

		trimmed := n
		for trimmed > 0 && ids[offset+trimmed-1] == w.PadTokenID {
			trimmed--
		}
		if trimmed == 0 {
			return nil, fmt.Errorf("%w: %d tokens at offset %d", ErrAmbiguousPadding, n, offset)
		}
		// strictly shrinks, so the loop ends
		limit = trimmed
	}
}

// spanLimit is MaxOutSeqLength*MaxSubtokens, clamped instead of overflowing.
func (w *Windower) spanLimit() int {
	maxOut, sub := w.Params.MaxOutSeqLength, w.Params.MaxSubtokens
	if maxOut > math.MaxInt/sub {
		return math.MaxInt
	}
	return maxOut * sub
}

// longestFit returns the compression of the longest prefix of span that fits one
// window, with that prefix length.
func (w *Windower) longestFit(ctx context.Context, span []int) (*codebook.Result, int, error) {
	lo := min(len(span), w.Params.MaxOutSeqLength)
	best, err := w.compress(ctx, span[:lo])
	if err != nil {
		return nil, 0, err
	}

	// compressed length is not monotonic in the prefix length, so the full
	// span is tried before searching
	hi := len(span)
	if hi > lo {
		res, err := w.compress(ctx, span)
		switch {
		case errors.Is(err, codebook.ErrInfeasibleBudget):
			hi--
		case err != nil:
			return nil, 0, err
		default:
			lo, best = hi, res
		}
	}
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		res, err := w.compress(ctx, span[:mid])
		switch {
		case errors.Is(err, codebook.ErrInfeasibleBudget):
			hi = mid - 1
		case err != nil:
			return nil, 0, err
		default:
			lo, best = mid, res
		}
	}
	return best, lo, nil
}

func (w *Windower) compress(ctx context.Context, ids []int) (*codebook.Result, error) {
	return w.builder.Compress(ctx, ids, w.Params)
}

// Pad lays a window out for storage: the compressed ids padded to MaxOutSeqLength
// with the pad token, and the codebook flattened to MaxCodebookSize*MaxSubtokens
// with every entry padded by the eot token.
func (w *Windower) Pad(res *codebook.Result) (ids []int, book []int) {
	ids = make([]int, w.Params.MaxOutSeqLength)
	n := copy(ids, res.CompressedIDs)
	for i := n; i < len(ids); i++ {
		ids[i] = w.PadTokenID
	}
	return ids, FlattenCodebook(res.Codebook, w.Params.MaxCodebookSize, w.Params.MaxSubtokens, w.Params.EOTTokenID)
}

// FlattenCodebook writes book into a fixed size*sub grid filled with fill.
func FlattenCodebook(book [][]int, size, sub, fill int) []int {
	flat := make([]int, size*sub)
	for i := range flat {
		flat[i] = fill
	}
	for i, entry := range book {
		copy(flat[i*sub:(i+1)*sub], entry)
	}
	return flat
}

// UnflattenCodebook reverses FlattenCodebook. Entries hold at least two tokens and
// never contain fill, so the first row that is all fill ends the codebook.
func UnflattenCodebook(flat []int, sub, fill int) ([][]int, error) {
	if sub < 2 || len(flat)%sub != 0 {
		return nil, fmt.Errorf("%w: codebook of %d ids is not a multiple of %d", ErrTruncated, len(flat), sub)
	}

	var book [][]int
	for i := 0; i < len(flat); i += sub {
		row := trimTrailing(flat[i:i+sub], fill)
		if len(row) == 0 {
			break
		}
		book = append(book, append([]int(nil), row...))
	}
	return book, nil
}

// UnpadWindow strips the trailing pad tokens Pad added.
func UnpadWindow(ids []int, pad int) []int {
	return trimTrailing(ids, pad)
}

func trimTrailing(ids []int, v int) []int {
	n := len(ids)
	for n > 0 && ids[n-1] == v {
		n--
	}
	return ids[:n]
}

func endsWith(ids []int, v int) bool {
	return len(ids) > 0 && ids[len(ids)-1] == v
}
