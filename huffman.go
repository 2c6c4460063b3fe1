// Package huffman implements a Huffman coder with two symbol models: one
// symbol per character, or one symbol per word, space and newline.
//
// Character-mode containers carry the code table and decode through a
// table lookup. Word-mode containers carry only the frequency table; the
// decoder rebuilds the tree from it and walks it bit by bit. Tree construction
// breaks weight ties by canonical symbol order, so both sides build the same
// tree from the same table.
package huffman

import (
	"errors"
	"fmt"
)

// Mode selects the symbol model.
type Mode uint8

const (
	// ModeChar codes one symbol per character.
	ModeChar Mode = iota + 1
	// ModeWord codes words, spaces and newlines.
	ModeWord
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeChar:
		return "char"
	case ModeWord:
		return "word"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Symbols splits text according to the mode.
func (m Mode) Symbols(text string) ([]Symbol, error) {
	switch m {
	case ModeChar:
		return CharSymbols(text), nil
	case ModeWord:
		return WordSymbols(text), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, uint8(m))
	}
}

// HeaderEncoding selects how the symbols stage of a container is stored.
type HeaderEncoding uint8

const (
	// HeaderAuto stores the smallest of the available encodings.
	HeaderAuto HeaderEncoding = iota
	// HeaderRaw stores the table uncompressed.
	HeaderRaw
	// HeaderFlate stores the table DEFLATE-compressed.
	HeaderFlate
	// HeaderZstd stores the table as a zstd frame.
	HeaderZstd
)

var (
	// ErrMalformedContainer indicates a header that cannot be parsed or a
	// payload whose length disagrees with the declared bit length.
	ErrMalformedContainer = errors.New("malformed container")
	// ErrChecksumMismatch indicates payload bytes that do not match the
	// stored checksum. It always wraps ErrMalformedContainer.
	ErrChecksumMismatch = fmt.Errorf("%w: payload checksum mismatch", ErrMalformedContainer)
	// ErrDecodeMismatch indicates a payload that does not resolve to whole
	// codes before its bits run out.
	ErrDecodeMismatch = errors.New("payload does not match code table")
	// ErrUnknownSymbol indicates a symbol with no code in the table used.
	ErrUnknownSymbol = errors.New("symbol has no code")
	// ErrCodeTooLong indicates a tree deeper than 64 levels.
	ErrCodeTooLong = errors.New("code longer than 64 bits")
	// ErrNotPrefixFree indicates a code table in which one code prefixes another.
	ErrNotPrefixFree = errors.New("code table is not prefix-free")
	// ErrModeMismatch indicates a container produced by another mode than
	// the one requested.
	ErrModeMismatch = errors.New("container mode mismatch")
	// ErrUntrainedModel indicates Encode was called before a model was trained.
	ErrUntrainedModel = errors.New("model is not trained")
	// ErrInvalidMode indicates a Mode value other than ModeChar or ModeWord.
	ErrInvalidMode = errors.New("invalid mode")
)

// Config holds configuration for encoding and decoding.
type Config struct {
	Mode             Mode           // Symbol model (0 = ModeChar when encoding, any when decoding)
	HeaderEncoding   HeaderEncoding // Symbols stage encoding (0 = smallest)
	DisableChecksum  bool           // Omit the payload checksum stage
	DecoderCacheSize int            // Decoders kept by a Decompressor (0 = no cache)
}

// Option is a functional option for configuring encoders and decoders.
type Option func(*Config)

// WithMode selects the symbol model. When decompressing it asserts the mode
// of the container instead.
func WithMode(m Mode) Option {
	return func(c *Config) {
		c.Mode = m
	}
}

// WithHeaderEncoding forces the encoding of the symbols stage.
func WithHeaderEncoding(e HeaderEncoding) Option {
	return func(c *Config) {
		c.HeaderEncoding = e
	}
}

// WithChecksum enables or disables the payload checksum stage.
func WithChecksum(enabled bool) Option {
	return func(c *Config) {
		c.DisableChecksum = !enabled
	}
}

// WithDecoderCache keeps up to n decoders rebuilt from container headers.
// Values <= 0 disable the cache.
func WithDecoderCache(n int) Option {
	return func(c *Config) {
		c.DecoderCacheSize = n
	}
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) encodeMode() Mode {
	if c.Mode == 0 {
		return ModeChar
	}
	return c.Mode
}

// Encoder builds a model from its input and compresses it.
type Encoder struct {
	config Config
}

// NewEncoder creates a new encoder with the given options.
func NewEncoder(opts ...Option) *Encoder {
	return &Encoder{config: newConfig(opts)}
}

// Encode trains a model on text and encodes text with it.
func (e *Encoder) Encode(text string) (*Container, error) {
	m := &Model{config: e.config}
	symbols, err := m.train(text)
	if err != nil {
		return nil, err
	}
	return m.encodeSymbols(symbols)
}

// Compress encodes text and serializes the container.
func Compress(text string, opts ...Option) ([]byte, error) {
	enc := NewEncoder(opts...)
	c, err := enc.Encode(text)
	if err != nil {
		return nil, err
	}
	return c.MarshalBinary()
}

// Decompress parses a serialized container and decodes it.
func Decompress(data []byte, opts ...Option) (string, error) {
	return NewDecompressor(opts...).Decompress(data)
}
