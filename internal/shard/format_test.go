package shard

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadShard_RoundTrip(t *testing.T) {
	h := NewHeader(0)
	h.SetLayout(Layout{
		Windows:          2,
		MaxCodebookSize:  4,
		MaxSubtokens:     3,
		MaxOutSeqLength:  8,
		SourceTokens:     21,
		PadTokenID:       50256,
		EOTTokenID:       50256,
		InitialVocabSize: 50257,
	})
	tokens := []int{0, 1, 50256, 65535, 300}

	var buf bytes.Buffer
	require.NoError(t, WriteShard(&buf, h, tokens))
	assert.Equal(t, HeaderSize+2*len(tokens), buf.Len())

	s, err := ReadShard(&buf)
	require.NoError(t, err)
	assert.Equal(t, tokens, s.Tokens)
	assert.Equal(t, len(tokens), s.Header.Tokens())
	assert.True(t, s.Header.IsCompressed())
	assert.Equal(t, Layout{
		Windows:          2,
		MaxCodebookSize:  4,
		MaxSubtokens:     3,
		MaxOutSeqLength:  8,
		SourceTokens:     21,
		PadTokenID:       50256,
		EOTTokenID:       50256,
		InitialVocabSize: 50257,
	}, s.Header.Layout())
}

func TestReadShard_PlainHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteShard(&buf, Header{}, []int{7, 8}))

	s, err := ReadShard(&buf)
	require.NoError(t, err)
	assert.Equal(t, Magic, s.Header[0])
	assert.Equal(t, Version, s.Header[1])
	assert.False(t, s.Header.IsCompressed())
}

func TestReadShard_Errors(t *testing.T) {
	valid := func() []byte {
		var buf bytes.Buffer
		require.NoError(t, WriteShard(&buf, NewHeader(0), []int{1, 2, 3}))
		return buf.Bytes()
	}

	t.Run("bad magic", func(t *testing.T) {
		raw := valid()
		binary.LittleEndian.PutUint32(raw[0:], 1234)
		_, err := ReadShard(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("version", func(t *testing.T) {
		raw := valid()
		binary.LittleEndian.PutUint32(raw[4:], 2)
		_, err := ReadShard(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := ReadShard(bytes.NewReader(valid()[:100]))
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("short payload", func(t *testing.T) {
		raw := valid()
		_, err := ReadShard(bytes.NewReader(raw[:len(raw)-1]))
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ReadShard(bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrTruncated)
	})
}

func TestWriteShard_TokenRange(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteShard(&buf, NewHeader(0), []int{1, 65536}), ErrTokenRange)
	assert.ErrorIs(t, WriteShard(&buf, NewHeader(0), []int{-1}), ErrTokenRange)
}

func TestShardFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fineweb_val_000000.bin")

	tokens := make([]int, 70000)
	for i := range tokens {
		tokens[i] = i % 50257
	}
	require.NoError(t, WriteShardFile(path, NewHeader(0), tokens))

	s, err := ReadShardFile(path)
	require.NoError(t, err)
	assert.Equal(t, tokens, s.Tokens)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed away")

	raw := filepath.Join(dir, "codebooks.bin")
	require.NoError(t, WriteTokensFile(raw, []int{3, 2, 1}))
	got, err := ReadTokensFile(raw)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, got)

	require.NoError(t, os.WriteFile(raw, []byte{1, 2, 3}, 0o644))
	_, err = ReadTokensFile(raw)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadShardFile(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)
}
