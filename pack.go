package huffman

import (
	"bytes"
	"fmt"
	"io"

	"github.com/icza/bitio"
)

// Payload is a packed bit sequence. Data holds exactly ceil(Bits/8) bytes;
// bits of the last byte past Bits are padding and are never decoded.
type Payload struct {
	Data []byte
	Bits uint64
}

// payloadBytes returns the number of bytes needed to hold bits.
func payloadBytes(bits uint64) uint64 {
	return (bits + 7) / 8
}

// Len returns the payload size in bytes.
func (p Payload) Len() int {
	return len(p.Data)
}

func (p Payload) validate() error {
	if want := payloadBytes(p.Bits); uint64(len(p.Data)) != want {
		return fmt.Errorf("payload of %d bits needs %d bytes, have %d", p.Bits, want, len(p.Data))
	}
	return nil
}

// reader returns a bit reader that yields exactly p.Bits bits.
func (p Payload) reader() *payloadReader {
	return &payloadReader{r: bitio.NewReader(bytes.NewReader(p.Data)), remaining: p.Bits}
}

// Pack concatenates the codes of symbols into a payload.
func Pack(symbols []Symbol, codes *CodeTable) (Payload, error) {
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	var bits uint64
	for i, s := range symbols {
		c, ok := codes.Lookup(s)
		if !ok {
			return Payload{}, fmt.Errorf("%w: %q at index %d", ErrUnknownSymbol, s, i)
		}
		if err := w.WriteBits(c.Value, c.Len); err != nil {
			return Payload{}, err
		}
		bits += uint64(c.Len)
	}
	// Close flushes the partial last byte padded with zero bits.
	if err := w.Close(); err != nil {
		return Payload{}, err
	}
	return Payload{Data: buf.Bytes(), Bits: bits}, nil
}

// String returns the bits of p as a '0'/'1' string.
func (p Payload) String() string {
	out := make([]byte, 0, p.Bits)
	r := p.reader()
	for {
		b, err := r.ReadBool()
		if err != nil {
			break
		}
		if b {
			out = append(out, '1')
		} else {
			out = append(out, '0')
		}
	}
	return string(out)
}

type payloadReader struct {
	r         *bitio.Reader
	remaining uint64
}

// ReadBool returns the next payload bit, or io.EOF once all bits are consumed.
func (p *payloadReader) ReadBool() (bool, error) {
	if p.remaining == 0 {
		return false, io.EOF
	}
	b, err := p.r.ReadBool()
	if err != nil {
		if err == io.EOF {
			return false, io.ErrUnexpectedEOF
		}
		return false, err
	}
	p.remaining--
	return b, nil
}
