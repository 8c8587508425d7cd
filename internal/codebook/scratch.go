package codebook

import (
	"sync"

	"github.com/tokcompress/internal/utils"
)

// buildScratch holds per-call buffers that do not escape into the Result.
type buildScratch struct {
	used []bool // occupancy arena, one slot per input position
	segs []span
	heap *utils.CandHeap
}

// Builder runs Compress calls. The zero value is ready to use and safe for
// concurrent use; it only pools scratch memory between calls.
type Builder struct {
	scratchPool sync.Pool
}

func (b *Builder) acquireScratch(n int) *buildScratch {
	v := b.scratchPool.Get()
	var sc *buildScratch
	if v == nil {
		sc = &buildScratch{heap: utils.NewCandHeap()}
	} else {
		sc = v.(*buildScratch)
	}
	sc.prepare(n)
	return sc
}

func (b *Builder) releaseScratch(sc *buildScratch) {
	b.scratchPool.Put(sc)
}

func (sc *buildScratch) prepare(n int) {
	sc.used = ensureBoolCapacity(sc.used, n)
	clear(sc.used)
	sc.segs = sc.segs[:0]
	sc.heap.Reset()
}

func ensureBoolCapacity(buf []bool, n int) []bool {
	if cap(buf) < n {
		return make([]bool, n)
	}
	return buf[:n]
}
