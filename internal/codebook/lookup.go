package codebook

import "encoding/binary"

// packKey appends a compact, collision-free encoding of run to buf. Token ids are
// non-negative so uvarint is enough; the length prefix keeps runs of different
// lengths apart.
func packKey(buf []byte, run []int) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(run)))
	for _, id := range run {
		buf = binary.AppendUvarint(buf, uint64(id))
	}
	return buf
}

// SeqLookup resolves token runs to codebook entry indices using a hybrid approach:
//   - a first-token bitset rejects most positions without hashing
//   - a map keyed by the packed run for the rest
type SeqLookup struct {
	firstTok tokenSet
	byKey    map[string]int
	minLen   int
	maxLen   int
	keyBuf   []byte
}

// NewSeqLookup indexes entries; entry i resolves to i.
func NewSeqLookup(entries [][]int) *SeqLookup {
	firsts := make([]int, 0, len(entries))
	byKey := make(map[string]int, len(entries))
	minLen, maxLen := 0, 0

	var buf []byte
	for i, e := range entries {
		if len(e) == 0 {
			continue
		}
		buf = packKey(buf[:0], e)
		byKey[string(buf)] = i
		firsts = append(firsts, e[0])
		if minLen == 0 || len(e) < minLen {
			minLen = len(e)
		}
		if len(e) > maxLen {
			maxLen = len(e)
		}
	}

	return &SeqLookup{
		firstTok: newTokenSet(firsts),
		byKey:    byKey,
		minLen:   minLen,
		maxLen:   maxLen,
		keyBuf:   buf[:0],
	}
}

// Lookup returns the entry index whose run equals run exactly.
func (sl *SeqLookup) Lookup(run []int) (int, bool) {
	if len(run) < sl.minLen || len(run) > sl.maxLen || !sl.firstTok.contains(run[0]) {
		return 0, false
	}
	sl.keyBuf = packKey(sl.keyBuf[:0], run)
	idx, ok := sl.byKey[string(sl.keyBuf)]
	return idx, ok
}

// Longest returns the longest entry that is a prefix of window, with its length.
func (sl *SeqLookup) Longest(window []int) (idx, length int, ok bool) {
	if len(window) == 0 || len(sl.byKey) == 0 || !sl.firstTok.contains(window[0]) {
		return 0, 0, false
	}
	hi := sl.maxLen
	if hi > len(window) {
		hi = len(window)
	}
	for l := hi; l >= sl.minLen; l-- {
		if idx, ok := sl.Lookup(window[:l]); ok {
			return idx, l, true
		}
	}
	return 0, 0, false
}
