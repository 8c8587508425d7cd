package codebook

import (
	"context"

	"github.com/tokcompress/internal/utils"
)

// selector promotes candidates into the codebook greedily. used is the occupancy
// arena: a position is consumed once an accepted entry covers it. epoch counts
// accepted entries; a heap entry scored at an older epoch may be stale.
type selector struct {
	used  []bool
	cands []candidate
	heap  utils.CandQueue
	epoch int
}

// score walks c's occurrences left to right and counts the non-overlapping ones
// that lie entirely on free positions.
func (s *selector) score(c *candidate) (score, first int) {
	occ := 0
	first = -1
	lastEnd := -1
	for _, p := range c.starts {
		if p < lastEnd || !s.free(p, c.length) {
			continue
		}
		if first < 0 {
			first = p
		}
		occ++
		lastEnd = p + c.length
	}
	if occ < 2 {
		return 0, first
	}
	return (occ - 1) * (c.length - 1), first
}

func (s *selector) free(p, length int) bool {
	for _, u := range s.used[p : p+length] {
		if u {
			return false
		}
	}
	return true
}

// commit consumes the occurrences score counted for c.
func (s *selector) commit(c *candidate) {
	lastEnd := -1
	for _, p := range c.starts {
		if p < lastEnd || !s.free(p, c.length) {
			continue
		}
		for i := p; i < p+c.length; i++ {
			s.used[i] = true
		}
		lastEnd = p + c.length
	}
	s.epoch++
}

// run returns the indices of accepted candidates in selection order.
//
// Scores never increase as positions get consumed and the first free occurrence
// never moves left, so a heap entry's key is an upper bound of its current key.
// When an entry scored at the current epoch reaches the top it is therefore the
// true best and is accepted; stale entries are rescored and pushed back.
func (s *selector) run(ctx context.Context, limit int) ([]int, error) {
	for i := range s.cands {
		c := &s.cands[i]
		if len(c.starts) < 2 {
			continue
		}
		sc, first := s.score(c)
		if sc <= 0 {
			continue
		}
		s.heap.Push(utils.Cand{Score: sc, Len: c.length, FirstPos: first, ID: i, Epoch: s.epoch})
	}

	var picked []int
	for len(picked) < limit {
		top, ok := s.heap.Pop()
		if !ok {
			break
		}

		c := &s.cands[top.ID]
		if top.Epoch != s.epoch {
			sc, first := s.score(c)
			if sc > 0 {
				s.heap.Push(utils.Cand{Score: sc, Len: c.length, FirstPos: first, ID: top.ID, Epoch: s.epoch})
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.commit(c)
		picked = append(picked, top.ID)
	}
	return picked, nil
}
