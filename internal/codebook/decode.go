package codebook

import "fmt"

// Decode expands every code id in compressed using codebook. Ids outside
// [initialVocabSize, initialVocabSize+len(codebook)) are copied as-is. Entries may
// reference codes of earlier entries; such references are expanded recursively.
func Decode(compressed []int, codebook [][]int, initialVocabSize int) ([]int, error) {
	if len(compressed) == 0 {
		return nil, nil
	}

	expanded, err := expandCodebook(codebook, initialVocabSize)
	if err != nil {
		return nil, err
	}

	total := 0
	for i, id := range compressed {
		if id < 0 {
			return nil, fmt.Errorf("%w: negative id %d at index %d", ErrInvalidInput, id, i)
		}
		if k := id - initialVocabSize; k >= 0 && k < len(expanded) {
			total += len(expanded[k])
		} else {
			total++
		}
	}

	out := make([]int, 0, total)
	for _, id := range compressed {
		if k := id - initialVocabSize; k >= 0 && k < len(expanded) {
			out = append(out, expanded[k]...)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// expandCodebook flattens each entry into original tokens. Entry i may only refer
// to entries j < i, which rules out cycles.
func expandCodebook(codebook [][]int, initialVocabSize int) ([][]int, error) {
	expanded := make([][]int, len(codebook))
	for i, entry := range codebook {
		if len(entry) < 2 {
			return nil, fmt.Errorf("%w: codebook entry %d has %d tokens", ErrInvalidInput, i, len(entry))
		}
		var flat []int
		for _, id := range entry {
			if id < 0 {
				return nil, fmt.Errorf("%w: codebook entry %d holds negative id %d", ErrInvalidInput, i, id)
			}
			k := id - initialVocabSize
			switch {
			case k < 0 || k >= len(codebook):
				flat = append(flat, id)
			case k < i:
				flat = append(flat, expanded[k]...)
			default:
				return nil, fmt.Errorf("%w: codebook entry %d refers to code %d which is not defined before it",
					ErrInvalidInput, i, id)
			}
		}
		expanded[i] = flat
	}
	return expanded, nil
}
