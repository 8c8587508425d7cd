package codebook

// rewrite substitutes entries into ids segment by segment, always taking the
// longest entry that starts at the current position. Substituted slots are written
// as -(entry+1) so unused entries can be pruned before final ids are assigned.
// EOT tokens are copied through untouched.
func rewrite(ids []int, segs []span, lookup *SeqLookup, hits []bool) []int {
	out := make([]int, 0, len(ids))
	pos := 0
	for _, s := range segs {
		// EOTs between the previous segment and this one
		out = append(out, ids[pos:s.start]...)

		i := s.start
		for i < s.end {
			idx, l, ok := lookup.Longest(ids[i:s.end])
			if !ok {
				out = append(out, ids[i])
				i++
				continue
			}
			hits[idx] = true
			out = append(out, -(idx + 1))
			i += l
		}
		pos = s.end
	}
	return append(out, ids[pos:]...)
}

// finalize drops entries the rewrite never used, renumbers the survivors in their
// original order and resolves the placeholder slots in out to code ids. Dropping an
// unused entry cannot change any longest-match decision, so out stays valid.
func finalize(out []int, entries [][]int, hits []bool, p Params) ([]int, [][]int, []int) {
	remap := make([]int, len(entries))
	kept := make([][]int, 0, len(entries))
	for i, e := range entries {
		if !hits[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, e)
	}

	var positions []int
	if p.WithPositions {
		positions = make([]int, 0)
	}
	for i, id := range out {
		if id >= 0 {
			continue
		}
		out[i] = p.CodeID(remap[-id-1])
		if p.WithPositions {
			positions = append(positions, i)
		}
	}
	return out, kept, positions
}
