// Package codebook builds a codebook of recurring token runs and rewrites a token
// stream in terms of it.
//
// Selection is greedy: the candidate run with the highest saving
// (occurrences-1)*(length-1) is promoted first, ties going to shorter runs and then
// to the earliest occurrence. Occurrences are counted left to right without overlap
// and only over positions no earlier entry has consumed. The stream is then
// rewritten longest-match-first inside each EOT-delimited segment.
package codebook

import (
	"context"
	"fmt"
	"slices"
)

var defaultBuilder Builder

// Compress runs the builder with a background context.
func Compress(ids []int, p Params) (*Result, error) {
	return defaultBuilder.Compress(context.Background(), ids, p)
}

// CompressContext is Compress with cancellation between counting shards and
// selection rounds.
func CompressContext(ctx context.Context, ids []int, p Params) (*Result, error) {
	return defaultBuilder.Compress(ctx, ids, p)
}

// Compress builds a codebook for ids and returns the rewritten stream. It never
// returns a partial result: on error the Result is nil.
func (b *Builder) Compress(ctx context.Context, ids []int, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.validateIDs(ids); err != nil {
		return nil, err
	}

	if p.MaxCodebookSize == 0 {
		return passthrough(ids, p)
	}

	sc := b.acquireScratch(len(ids))
	defer b.releaseScratch(sc)

	sc.segs = splitSegments(ids, p.EOTTokenID, sc.segs)

	table, err := collectCandidates(ctx, ids, sc.segs, p.MaxSubtokens, p.Workers, p.disabledSet())
	if err != nil {
		return nil, err
	}

	sel := &selector{
		used:  sc.used,
		cands: table.cands,
		heap:  sc.heap,
	}
	picked, err := sel.run(ctx, p.MaxCodebookSize)
	if err != nil {
		return nil, err
	}

	entries := make([][]int, len(picked))
	for i, ci := range picked {
		c := &table.cands[ci]
		first := c.starts[0]
		entries[i] = slices.Clone(ids[first : first+c.length])
	}

	hits := make([]bool, len(entries))
	out := rewrite(ids, sc.segs, NewSeqLookup(entries), hits)
	out, book, positions := finalize(out, entries, hits, p)

	if len(out) > p.MaxOutSeqLength {
		return nil, fmt.Errorf("%w: compressed length %d exceeds max out seq length %d",
			ErrInfeasibleBudget, len(out), p.MaxOutSeqLength)
	}

	return &Result{
		CompressedIDs: out,
		Codebook:      book,
		Positions:     positions,
	}, nil
}

func passthrough(ids []int, p Params) (*Result, error) {
	if len(ids) > p.MaxOutSeqLength {
		return nil, fmt.Errorf("%w: %d tokens exceed max out seq length %d with an empty codebook",
			ErrInfeasibleBudget, len(ids), p.MaxOutSeqLength)
	}
	res := &Result{
		CompressedIDs: slices.Clone(ids),
		Codebook:      [][]int{},
	}
	if p.WithPositions {
		res.Positions = []int{}
	}
	return res, nil
}
