package codebook

import (
	"fmt"
	"math"
)

// Params are the knobs of a single Compress call.
type Params struct {
	// InitialVocabSize is the first id available for codes. Every input token other
	// than EOTTokenID must be below it.
	InitialVocabSize int
	// MaxCodebookSize caps the number of entries. Zero disables compression.
	MaxCodebookSize int
	// MaxOutSeqLength is a hard ceiling on len(CompressedIDs).
	MaxOutSeqLength int
	// MaxSubtokens is the longest run a single code may stand for (>= 2).
	MaxSubtokens int
	// EOTTokenID marks segment boundaries; no entry spans it.
	EOTTokenID int
	// DisabledIDs never appear inside an entry. Nil means no restriction.
	DisabledIDs []int
	// WithPositions fills Result.Positions.
	WithPositions bool
	// Workers shards candidate counting across goroutines. Values <= 1 count
	// sequentially. The result does not depend on it.
	Workers int
}

// Result is the output of Compress.
type Result struct {
	CompressedIDs []int
	// Codebook[i] is the token run for code id InitialVocabSize+i.
	Codebook [][]int
	// Positions lists the indices of CompressedIDs that hold a code id. Nil unless
	// Params.WithPositions was set.
	Positions []int
}

// CodeID returns the id assigned to codebook entry i.
func (p Params) CodeID(i int) int {
	return p.InitialVocabSize + i
}

// IsCode reports whether id falls in the code id range of a codebook of size n.
func (p Params) IsCode(id, n int) bool {
	return id >= p.InitialVocabSize && id < p.InitialVocabSize+n
}

// Validate checks the limits alone, without looking at any token stream.
func (p Params) Validate() error {
	if p.InitialVocabSize < 0 {
		return fmt.Errorf("%w: initial vocab size must be >= 0, got %d", ErrInvalidInput, p.InitialVocabSize)
	}
	if p.MaxCodebookSize < 0 {
		return fmt.Errorf("%w: max codebook size must be >= 0, got %d", ErrInvalidInput, p.MaxCodebookSize)
	}
	if p.MaxOutSeqLength < 1 {
		return fmt.Errorf("%w: max out seq length must be >= 1, got %d", ErrInvalidInput, p.MaxOutSeqLength)
	}
	if p.MaxSubtokens < 2 {
		return fmt.Errorf("%w: max subtokens must be >= 2, got %d", ErrInvalidInput, p.MaxSubtokens)
	}
	if p.EOTTokenID < 0 {
		return fmt.Errorf("%w: eot token id must be >= 0, got %d", ErrInvalidInput, p.EOTTokenID)
	}
	if p.InitialVocabSize > math.MaxInt-p.MaxCodebookSize {
		return fmt.Errorf("%w: initial vocab size %d plus max codebook size %d overflows",
			ErrInvalidInput, p.InitialVocabSize, p.MaxCodebookSize)
	}
	// an eot inside the code range would decode ambiguously
	if p.IsCode(p.EOTTokenID, p.MaxCodebookSize) {
		return fmt.Errorf("%w: eot token id %d collides with code ids [%d, %d)",
			ErrInvalidInput, p.EOTTokenID, p.InitialVocabSize, p.InitialVocabSize+p.MaxCodebookSize)
	}
	for _, id := range p.DisabledIDs {
		if id < 0 {
			return fmt.Errorf("%w: disabled id must be >= 0, got %d", ErrInvalidInput, id)
		}
	}
	return nil
}

// validateIDs checks the token stream against p. p itself must already be valid.
func (p Params) validateIDs(ids []int) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: ids is empty", ErrInvalidInput)
	}
	for i, id := range ids {
		if id < 0 {
			return fmt.Errorf("%w: negative token %d at index %d", ErrInvalidInput, id, i)
		}
		if id >= p.InitialVocabSize && id != p.EOTTokenID {
			return fmt.Errorf("%w: token %d at index %d is outside the initial vocab (size %d)",
				ErrInvalidInput, id, i, p.InitialVocabSize)
		}
	}
	return nil
}

// disabledSet returns the disabled ids that can occur inside a segment. Anything
// at or above InitialVocabSize is rejected by validateIDs or is the eot, so it never
// reaches an entry and is left out of the bitset.
func (p Params) disabledSet() tokenSet {
	var ids []int
	for _, id := range p.DisabledIDs {
		if id < p.InitialVocabSize {
			ids = append(ids, id)
		}
	}
	return newTokenSet(ids)
}

// tokenSet is a dense bitset over token ids.
type tokenSet struct {
	bits []uint64
}

func newTokenSet(ids []int) tokenSet {
	maxID := -1
	for _, id := range ids {
		if id > maxID {
			maxID = id
		}
	}
	if maxID < 0 {
		return tokenSet{}
	}

	s := tokenSet{bits: make([]uint64, maxID/64+1)}
	for _, id := range ids {
		s.bits[id/64] |= 1 << (uint(id) % 64)
	}
	return s
}

func (s tokenSet) contains(id int) bool {
	w := id / 64
	if id < 0 || w >= len(s.bits) {
		return false
	}
	return s.bits[w]&(1<<(uint(id)%64)) != 0
}
