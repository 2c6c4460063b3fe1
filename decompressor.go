package huffman

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Decompressor parses containers and decodes them with the decoder their
// header calls for.
//
// With WithDecoderCache, decoders rebuilt from headers are kept in an LRU
// cache keyed by the fingerprint of the symbols stage, so files sharing a
// table skip the table decoder index or tree rebuild. Cached decoders are
// never mutated; a Decompressor is safe for concurrent use.
type Decompressor struct {
	config Config
	cache  *lru.Cache[uint64, Decoder]
}

// NewDecompressor creates a decompressor with the given options.
func NewDecompressor(opts ...Option) *Decompressor {
	d := &Decompressor{config: newConfig(opts)}
	if d.config.DecoderCacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		d.cache, _ = lru.New[uint64, Decoder](d.config.DecoderCacheSize)
	}
	return d
}

// Decompress parses a serialized container and decodes it.
func (d *Decompressor) Decompress(data []byte) (string, error) {
	var c Container
	if err := c.UnmarshalBinary(data); err != nil {
		return "", err
	}
	return d.DecompressContainer(&c)
}

// DecompressContainer decodes an already parsed container.
func (d *Decompressor) DecompressContainer(c *Container) (string, error) {
	if d.config.Mode != 0 && c.Mode != d.config.Mode {
		return "", fmt.Errorf("%w: container is %s, want %s", ErrModeMismatch, c.Mode, d.config.Mode)
	}
	dec, err := d.decoder(c)
	if err != nil {
		return "", err
	}
	return dec.Decode(c.Payload)
}

// CacheLen returns the number of cached decoders.
func (d *Decompressor) CacheLen() int {
	if d.cache == nil {
		return 0
	}
	return d.cache.Len()
}

func (d *Decompressor) decoder(c *Container) (Decoder, error) {
	if d.cache == nil {
		return c.Decoder()
	}

	key := c.fingerprint
	if key == 0 {
		if err := validateContainerStructure(c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedContainer, err)
		}
		key = tableFingerprint(c.symbolsKind(), encodeSymbolsTable(c))
	}
	if dec, ok := d.cache.Get(key); ok {
		return dec, nil
	}
	dec, err := c.Decoder()
	if err != nil {
		return nil, err
	}
	d.cache.Add(key, dec)
	return dec, nil
}
