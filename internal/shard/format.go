// Package shard reads and writes .bin token shards and compresses them window by
// window into fixed-size compressed shards plus per-window codebooks.
package shard

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

const (
	// HeaderInts is the number of int32 slots in a shard header.
	HeaderInts = 256
	// HeaderSize is the header length in bytes.
	HeaderSize = HeaderInts * 4

	Magic   int32 = 20240520
	Version int32 = 1
)

// header slots
const (
	slotMagic = iota
	slotVersion
	slotTokens
	slotWindows
	slotCodebookSize
	slotSubtokens
	slotOutSeqLength
	slotSourceTokens
	slotPadTokenID
	slotEOTTokenID
	slotVocabSize
)

var (
	ErrBadMagic           = errors.New("magic number mismatch")
	ErrUnsupportedVersion = errors.New("unsupported shard version")
	ErrTruncated          = errors.New("truncated shard")
	ErrTokenRange         = errors.New("token does not fit in uint16")
)

// Header is the fixed 256 x int32 little-endian shard header.
type Header [HeaderInts]int32

// NewHeader returns a plain shard header for tokens tokens.
func NewHeader(tokens int) Header {
	var h Header
	h[slotMagic] = Magic
	h[slotVersion] = Version
	h[slotTokens] = int32(tokens)
	return h
}

func (h *Header) Tokens() int { return int(h[slotTokens]) }

func (h *Header) Windows() int { return int(h[slotWindows]) }

func (h *Header) MaxCodebookSize() int { return int(h[slotCodebookSize]) }

func (h *Header) MaxSubtokens() int { return int(h[slotSubtokens]) }

func (h *Header) MaxOutSeqLength() int { return int(h[slotOutSeqLength]) }

// SourceTokens is the token count of the shard a compressed shard was built from.
func (h *Header) SourceTokens() int { return int(h[slotSourceTokens]) }

func (h *Header) PadTokenID() int { return int(h[slotPadTokenID]) }

func (h *Header) EOTTokenID() int { return int(h[slotEOTTokenID]) }

func (h *Header) InitialVocabSize() int { return int(h[slotVocabSize]) }

// IsCompressed reports whether the header describes a compressed shard.
func (h *Header) IsCompressed() bool {
	return h[slotSubtokens] > 0 && h[slotOutSeqLength] > 0
}

// Layout records the windowing layout of a compressed shard.
type Layout struct {
	Windows          int
	MaxCodebookSize  int
	MaxSubtokens     int
	MaxOutSeqLength  int
	SourceTokens     int
	PadTokenID       int
	EOTTokenID       int
	InitialVocabSize int
}

// SetLayout marks h as a compressed shard.
func (h *Header) SetLayout(l Layout) {
	h[slotWindows] = int32(l.Windows)
	h[slotCodebookSize] = int32(l.MaxCodebookSize)
	h[slotSubtokens] = int32(l.MaxSubtokens)
	h[slotOutSeqLength] = int32(l.MaxOutSeqLength)
	h[slotSourceTokens] = int32(l.SourceTokens)
	h[slotPadTokenID] = int32(l.PadTokenID)
	h[slotEOTTokenID] = int32(l.EOTTokenID)
	h[slotVocabSize] = int32(l.InitialVocabSize)
}

// Layout returns the windowing layout stored in h.
func (h *Header) Layout() Layout {
	return Layout{
		Windows:          h.Windows(),
		MaxCodebookSize:  h.MaxCodebookSize(),
		MaxSubtokens:     h.MaxSubtokens(),
		MaxOutSeqLength:  h.MaxOutSeqLength(),
		SourceTokens:     h.SourceTokens(),
		PadTokenID:       h.PadTokenID(),
		EOTTokenID:       h.EOTTokenID(),
		InitialVocabSize: h.InitialVocabSize(),
	}
}

func (h *Header) validate() error {
	if h[slotMagic] != Magic {
		return fmt.Errorf("%w: got %d", ErrBadMagic, h[slotMagic])
	}
	if h[slotVersion] != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h[slotVersion])
	}
	if h[slotTokens] < 0 {
		return fmt.Errorf("negative token count %d", h[slotTokens])
	}
	return nil
}

// Shard is a decoded .bin file.
type Shard struct {
	Header Header
	Tokens []int
}

// ReadShard reads a header and exactly Header.Tokens() uint16 tokens from r.
func ReadShard(r io.Reader) (*Shard, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, readErr("header", err)
	}

	s := &Shard{}
	for i := range s.Header {
		s.Header[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	if err := s.Header.validate(); err != nil {
		return nil, err
	}

	tokens, err := readTokens(r, s.Header.Tokens())
	if err != nil {
		return nil, err
	}
	s.Tokens = tokens
	return s, nil
}

// ReadShardFile reads the shard at path.
func ReadShardFile(path string) (*Shard, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ReadShard(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// WriteShard writes h followed by tokens. The token count slot is set from
// len(tokens).
func WriteShard(w io.Writer, h Header, tokens []int) error {
	h[slotTokens] = int32(len(tokens))
	if h[slotMagic] == 0 {
		h[slotMagic] = Magic
		h[slotVersion] = Version
	}

	buf := make([]byte, 0, HeaderSize)
	for _, v := range h {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return writeTokens(w, tokens)
}

// WriteShardFile writes a shard to path atomically.
func WriteShardFile(path string, h Header, tokens []int) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return WriteShard(w, h, tokens)
	})
}

// ReadTokensFile reads a headerless uint16 payload, as used by codebook files.
func ReadTokensFile(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%s: %w: odd payload length %d", path, ErrTruncated, len(data))
	}

	tokens := make([]int, len(data)/2)
	for i := range tokens {
		tokens[i] = int(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return tokens, nil
}

// WriteTokensFile writes tokens as a headerless uint16 payload.
func WriteTokensFile(path string, tokens []int) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return writeTokens(w, tokens)
	})
}

func readTokens(r io.Reader, n int) ([]int, error) {
	const chunk = 1 << 16

	tokens := make([]int, 0, n)
	buf := make([]byte, min(n, chunk)*2)
	for len(tokens) < n {
		want := min(n-len(tokens), chunk) * 2
		if _, err := io.ReadFull(r, buf[:want]); err != nil {
			return nil, readErr(fmt.Sprintf("payload at token %d of %d", len(tokens), n), err)
		}
		for i := 0; i < want; i += 2 {
			tokens = append(tokens, int(binary.LittleEndian.Uint16(buf[i:])))
		}
	}
	return tokens, nil
}

func writeTokens(w io.Writer, tokens []int) error {
	const chunk = 1 << 16

	buf := make([]byte, 0, min(len(tokens), chunk)*2)
	for i, t := range tokens {
		if t < 0 || t > math.MaxUint16 {
			return fmt.Errorf("%w: %d at index %d", ErrTokenRange, t, i)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(t))
		if len(buf) == cap(buf) {
			if _, err := w.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		_, err := w.Write(buf)
		return err
	}
	return nil
}

func readErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: short %s", ErrTruncated, what)
	}
	return fmt.Errorf("read %s: %w", what, err)
}

// writeFileAtomic writes through a temp file in the target directory and renames
// it into place, so readers never see a half-written shard.
func writeFileAtomic(path string, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err = fill(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
