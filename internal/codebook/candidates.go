package codebook

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// candidate is one distinct token run with every position it starts at.
type candidate struct {
	key    string
	length int
	starts []int // ascending
}

// candidateTable keeps candidates in first-seen order so ids are stable.
type candidateTable struct {
	cands []candidate
	index map[string]int
}

func newCandidateTable(sizeHint int) *candidateTable {
	return &candidateTable{
		cands: make([]candidate, 0, sizeHint),
		index: make(map[string]int, sizeHint),
	}
}

func (t *candidateTable) add(key []byte, length, pos int) {
	if i, ok := t.index[string(key)]; ok {
		t.cands[i].starts = append(t.cands[i].starts, pos)
		return
	}
	k := string(key)
	t.index[k] = len(t.cands)
	t.cands = append(t.cands, candidate{key: k, length: length, starts: []int{pos}})
}

// merge appends other's occurrences. other must cover positions after every
// position already in t so starts stay sorted.
func (t *candidateTable) merge(other *candidateTable) {
	for _, c := range other.cands {
		if i, ok := t.index[c.key]; ok {
			t.cands[i].starts = append(t.cands[i].starts, c.starts...)
			continue
		}
		t.index[c.key] = len(t.cands)
		t.cands = append(t.cands, c)
	}
}

// scanSegments enumerates every run of 2..maxSub tokens inside segs that holds no
// disabled token.
func scanSegments(ids []int, segs []span, maxSub int, disabled tokenSet) *candidateTable {
	hint := 0
	for _, s := range segs {
		hint += s.len()
	}
	t := newCandidateTable(hint)

	var key []byte
	for _, s := range segs {
		for i := s.start; i < s.end-1; i++ {
			if disabled.contains(ids[i]) {
				continue
			}
			for l := 2; l <= maxSub && i+l <= s.end; l++ {
				// every longer run from i contains this token too
				if disabled.contains(ids[i+l-1]) {
					break
				}
				key = packKey(key[:0], ids[i:i+l])
				t.add(key, l, i)
			}
		}
	}
	return t
}

// collectCandidates counts candidates over all segments, sharding the scan across
// workers goroutines. Shards are merged in segment order, which yields the same
// table as a single sequential scan.
func collectCandidates(ctx context.Context, ids []int, segs []span, maxSub, workers int, disabled tokenSet) (*candidateTable, error) {
	shards := partitionSegments(segs, workers)
	if len(shards) == 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return scanSegments(ids, shards[0], maxSub, disabled), nil
	}

	tables := make([]*candidateTable, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tables[i] = scanSegments(ids, shard, maxSub, disabled)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := tables[0]
	for _, t := range tables[1:] {
		merged.merge(t)
	}
	return merged, nil
}
