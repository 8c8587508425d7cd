package shard

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokcompress/internal/codebook"
)

func smallParams() codebook.Params {
	return codebook.Params{
		InitialVocabSize: 10,
		MaxCodebookSize:  2,
		MaxOutSeqLength:  4,
		MaxSubtokens:     2,
		EOTTokenID:       9,
	}
}

// windowAll runs the windower over ids and decodes the padded layout back.
func windowAll(t *testing.T, w *Windower, ids []int) ([]*Window, []int) {
	t.Helper()
	ctx := context.Background()

	var (
		wins []*Window
		flat []int
		book []int
	)
	for off := 0; off < len(ids); {
		win, err := w.Next(ctx, ids, off)
		require.NoError(t, err)
		require.Positive(t, win.Consumed)
		require.LessOrEqual(t, len(win.Result.CompressedIDs), w.Params.MaxOutSeqLength)

		padded, b := w.Pad(win.Result)
		flat = append(flat, padded...)
		book = append(book, b...)
		wins = append(wins, win)
		off += win.Consumed
	}

	l := Layout{
		Windows:          len(wins),
		MaxCodebookSize:  w.Params.MaxCodebookSize,
		MaxSubtokens:     w.Params.MaxSubtokens,
		MaxOutSeqLength:  w.Params.MaxOutSeqLength,
		SourceTokens:     len(ids),
		PadTokenID:       w.PadTokenID,
		EOTTokenID:       w.Params.EOTTokenID,
		InitialVocabSize: w.Params.InitialVocabSize,
	}
	decoded, err := DecodeWindows(ctx, l, flat, book)
	require.NoError(t, err)
	return wins, decoded
}

func TestWindower_PacksMoreThanOneWindowOfTokens(t *testing.T) {
	p := smallParams()
	p.MaxCodebookSize = 1
	w, err := NewWindower(p, 9)
	require.NoError(t, err)

	ids := []int{1, 2, 1, 2, 1, 2, 1, 2}
	win, err := w.Next(context.Background(), ids, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, win.Consumed)
	assert.Equal(t, []int{10, 10, 10, 10}, win.Result.CompressedIDs)
	assert.Equal(t, [][]int{{1, 2}}, win.Result.Codebook)
}

func TestWindower_DefersTrailingPad(t *testing.T) {
	w, err := NewWindower(smallParams(), 9)
	require.NoError(t, err)

	ids := []int{1, 2, 3, 9, 4, 5, 6, 7}
	wins, decoded := windowAll(t, w, ids)

	require.Len(t, wins, 3)
	assert.Equal(t, 3, wins[0].Consumed)
	assert.Equal(t, []int{1, 2, 3}, wins[0].Result.CompressedIDs)
	assert.Equal(t, []int{9, 4, 5, 6}, wins[1].Result.CompressedIDs)
	assert.Equal(t, []int{7}, wins[2].Result.CompressedIDs)
	assert.Equal(t, ids, decoded)
}

func TestWindower_FinalWindowMayEndInPad(t *testing.T) {
	w, err := NewWindower(smallParams(), 9)
	require.NoError(t, err)

	ids := []int{1, 2, 3, 9}
	wins, decoded := windowAll(t, w, ids)
	require.Len(t, wins, 1)
	assert.Equal(t, ids, decoded)

	ids = []int{1, 2, 3, 4, 9}
	wins, decoded = windowAll(t, w, ids)
	require.Len(t, wins, 2)
	assert.Equal(t, ids, decoded)
}

func TestWindower_AmbiguousPadding(t *testing.T) {
	w, err := NewWindower(smallParams(), 9)
	require.NoError(t, err)

	_, err = w.Next(context.Background(), []int{9, 9, 9, 9, 9, 9, 9, 9, 1}, 0)
	assert.ErrorIs(t, err, ErrAmbiguousPadding)
}

// Dropping the trailing pads of the best prefix leaves a shorter prefix that no
// longer fits, so the windower has to search again below it.
func TestWindower_TrimmedPrefixSearchedAgain(t *testing.T) {
	p := codebook.Params{
		InitialVocabSize: 10,
		MaxCodebookSize:  2,
		MaxOutSeqLength:  5,
		MaxSubtokens:     3,
		EOTTokenID:       9,
	}
	w, err := NewWindower(p, 0)
	require.NoError(t, err)

	ids := []int{0, 3, 1, 0, 0, 1, 0, 0, 0, 0, 2, 0}
	wins, decoded := windowAll(t, w, ids)

	require.Len(t, wins, 3)
	assert.Equal(t, 3, wins[0].Consumed)
	assert.Equal(t, []int{0, 3, 1}, wins[0].Result.CompressedIDs)
	assert.Equal(t, 8, wins[1].Consumed)
	assert.Equal(t, []int{10, 1, 10, 10, 2}, wins[1].Result.CompressedIDs)
	assert.Equal(t, [][]int{{0, 0}}, wins[1].Result.Codebook)
	assert.Equal(t, 1, wins[2].Consumed)
	for _, win := range wins[:len(wins)-1] {
		assert.NotEqual(t, 0, win.Result.CompressedIDs[len(win.Result.CompressedIDs)-1])
	}
	assert.Equal(t, ids, decoded)
}

func TestWindower_NonEOTPad(t *testing.T) {
	p := smallParams()
	p.DisabledIDs = []int{0}
	w, err := NewWindower(p, 0)
	require.NoError(t, err)

	ids := []int{1, 2, 0, 0, 3, 4, 0, 5, 6, 7, 8, 0}
	_, decoded := windowAll(t, w, ids)
	assert.Equal(t, ids, decoded)
}

func TestWindower_RandomRoundTrip(t *testing.T) {
	p := codebook.Params{
		InitialVocabSize: 16,
		MaxCodebookSize:  6,
		MaxOutSeqLength:  12,
		MaxSubtokens:     3,
		EOTTokenID:       15,
	}
	w, err := NewWindower(p, 15)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		ids := make([]int, 50+rng.Intn(200))
		for i := range ids {
			if i > 0 && ids[i-1] != 15 && rng.Intn(20) == 0 {
				ids[i] = 15
				continue
			}
			ids[i] = rng.Intn(4)
		}

		wins, decoded := windowAll(t, w, ids)
		assert.Equal(t, ids, decoded, "trial %d", trial)

		for i, win := range wins[:len(wins)-1] {
			assert.False(t, endsWith(win.Result.CompressedIDs, 15), "trial %d window %d ends in pad", trial, i)
		}
	}
}

func TestWindower_InvalidTokens(t *testing.T) {
	w, err := NewWindower(smallParams(), 9)
	require.NoError(t, err)

	_, err = w.Next(context.Background(), []int{1, 12, 3}, 0)
	assert.ErrorIs(t, err, codebook.ErrInvalidInput)

	_, err = w.Next(context.Background(), []int{1, 2}, 2)
	assert.ErrorIs(t, err, codebook.ErrInvalidInput)
}

func TestNewWindower_Errors(t *testing.T) {
	p := smallParams()
	p.InitialVocabSize = 65530
	p.MaxCodebookSize = 10
	_, err := NewWindower(p, 9)
	assert.ErrorIs(t, err, codebook.ErrInvalidInput)

	_, err = NewWindower(smallParams(), 70000)
	assert.ErrorIs(t, err, codebook.ErrInvalidInput)

	_, err = NewWindower(smallParams(), 10)
	assert.ErrorIs(t, err, codebook.ErrInvalidInput, "pad in code range")

	p = smallParams()
	p.MaxSubtokens = 1
	_, err = NewWindower(p, 9)
	assert.ErrorIs(t, err, codebook.ErrInvalidInput)
}

func TestPadAndUnflatten(t *testing.T) {
	p := smallParams()
	p.MaxSubtokens = 3
	w, err := NewWindower(p, 9)
	require.NoError(t, err)

	ids, flat := w.Pad(&codebook.Result{
		CompressedIDs: []int{10, 3},
		Codebook:      [][]int{{1, 2}},
	})
	assert.Equal(t, []int{10, 3, 9, 9}, ids)
	assert.Equal(t, []int{1, 2, 9, 9, 9, 9}, flat)

	assert.Equal(t, []int{10, 3}, UnpadWindow(ids, 9))

	book, err := UnflattenCodebook(flat, 3, 9)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}}, book)

	_, err = UnflattenCodebook(flat[:5], 3, 9)
	assert.ErrorIs(t, err, ErrTruncated)
}
