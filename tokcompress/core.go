// Package tokcompress compresses token id streams into a shorter stream plus a
// small codebook of recurring runs.
package tokcompress

import (
	"context"

	"github.com/tokcompress/internal/codebook"
)

type (
	Params = codebook.Params
	Result = codebook.Result
)

var (
	ErrInvalidInput     = codebook.ErrInvalidInput
	ErrInfeasibleBudget = codebook.ErrInfeasibleBudget
)

// Compressor interface
type Compressor interface {
	/*
		Compress rewrites ids in terms of a freshly built codebook. The returned slices are
		owned by the caller. On error no partial result is returned.
	*/
	Compress(ids []int) (*Result, error)

	/*
		Decode expands a compressed stream produced by Compress back into the original ids
		using the codebook that came with it.
	*/
	Decode(compressed []int, book [][]int) ([]int, error)
}

// Codec binds a fixed set of Params to the Compressor interface.
type Codec struct {
	params  Params
	builder codebook.Builder
}

// NewCodec validates p and returns a Codec for it.
func NewCodec(p Params) (*Codec, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Codec{params: p}, nil
}

// Params returns the parameters the codec was built with.
func (c *Codec) Params() Params { return c.params }

func (c *Codec) Compress(ids []int) (*Result, error) {
	return c.builder.Compress(context.Background(), ids, c.params)
}

// CompressContext is Compress with cancellation.
func (c *Codec) CompressContext(ctx context.Context, ids []int) (*Result, error) {
	return c.builder.Compress(ctx, ids, c.params)
}

func (c *Codec) Decode(compressed []int, book [][]int) ([]int, error) {
	return codebook.Decode(compressed, book, c.params.InitialVocabSize)
}

// Compress builds a codebook for ids under p.
func Compress(ids []int, p Params) (*Result, error) {
	return codebook.Compress(ids, p)
}

// CompressContext is Compress with cancellation.
func CompressContext(ctx context.Context, ids []int, p Params) (*Result, error) {
	return codebook.CompressContext(ctx, ids, p)
}

// Decode expands code ids in compressed using book.
func Decode(compressed []int, book [][]int, initialVocabSize int) ([]int, error) {
	return codebook.Decode(compressed, book, initialVocabSize)
}
