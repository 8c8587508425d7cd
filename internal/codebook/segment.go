package codebook

// span is a half-open run [start, end) of ids between EOT markers.
type span struct {
	start int
	end   int
}

func (s span) len() int { return s.end - s.start }

// splitSegments returns the maximal EOT-free runs of ids in order. EOT positions
// belong to no segment, so segments plus EOT markers tile ids exactly. Empty runs
// (adjacent EOTs, leading or trailing EOT) are dropped.
func splitSegments(ids []int, eot int, out []span) []span {
	out = out[:0]
	start := 0
	for i, id := range ids {
		if id != eot {
			continue
		}
		if i > start {
			out = append(out, span{start: start, end: i})
		}
		start = i + 1
	}
	if start < len(ids) {
		out = append(out, span{start: start, end: len(ids)})
	}
	return out
}

// partitionSegments groups consecutive segments into at most n shards of roughly
// equal token count. Order is preserved.
func partitionSegments(segs []span, n int) [][]span {
	if n <= 1 || len(segs) <= 1 {
		return [][]span{segs}
	}
	if n > len(segs) {
		n = len(segs)
	}

	total := 0
	for _, s := range segs {
		total += s.len()
	}
	target := (total + n - 1) / n

	shards := make([][]span, 0, n)
	from, acc := 0, 0
	for i, s := range segs {
		acc += s.len()
		if acc >= target && len(shards) < n-1 {
			shards = append(shards, segs[from:i+1])
			from, acc = i+1, 0
		}
	}
	if from < len(segs) {
		shards = append(shards, segs[from:])
	}
	return shards
}
