package utils

const initialHeapCap = 64

// Cand is a scored candidate subsequence waiting to be promoted into the codebook.
type Cand struct {
	Score    int // higher wins
	Len      int // shorter wins on equal score
	FirstPos int // earliest free occurrence; lower wins on tie
	ID       int // index into the caller's candidate table
	Epoch    int // arena epoch the score was computed at
}

// CandQueue is what the selector needs from a priority queue.
type CandQueue interface {
	Push(c Cand)
	Pop() (Cand, bool)
}

// CandHeap is a binary max-heap over Cand using the selection order
// (score desc, length asc, first position asc, id asc).
type CandHeap struct {
	items []Cand
}

func NewCandHeap() *CandHeap {
	return &CandHeap{items: make([]Cand, 0, initialHeapCap)}
}

func (h *CandHeap) Len() int {
	return len(h.items)
}

// Before reports whether a is selected ahead of b.
func Before(a, b Cand) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Len != b.Len {
		return a.Len < b.Len
	}
	if a.FirstPos != b.FirstPos {
		return a.FirstPos < b.FirstPos
	}
	return a.ID < b.ID
}

func (h *CandHeap) Push(c Cand) {
	h.items = append(h.items, c)
	h.up(len(h.items) - 1)
}

func (h *CandHeap) Pop() (Cand, bool) {
	if len(h.items) == 0 {
		return Cand{}, false
	}

	n := len(h.items) - 1
	h.items[0], h.items[n] = h.items[n], h.items[0]

	result := h.items[n]
	h.items = h.items[:n]

	if len(h.items) > 0 {
		h.down(0)
	}

	return result, true
}

func (h *CandHeap) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !Before(h.items[i], h.items[parent]) {
			break
		}
		h.items[parent], h.items[i] = h.items[i], h.items[parent]
		i = parent
	}
}

func (h *CandHeap) down(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		right := 2*i + 2
		best := i

		if left < n && Before(h.items[left], h.items[best]) {
			best = left
		}
		if right < n && Before(h.items[right], h.items[best]) {
			best = right
		}
		if best == i {
			break
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}

// Reset empties the heap and keeps its backing array for the next build.
func (h *CandHeap) Reset() {
	h.items = h.items[:0]
}
