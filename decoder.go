package huffman

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/seiflotfy/huffman/lpm"
)

// Decoder turns a payload back into text.
type Decoder interface {
	Decode(p Payload) (string, error)
}

// TableDecoder decodes with a code table, looking codes up bit by bit.
type TableDecoder struct {
	matcher  *lpm.Matcher
	symbols  []Symbol // matcher ID → symbol
	single   Symbol
	isSingle bool
}

// NewTableDecoder indexes a code table. The table must be prefix-free.
func NewTableDecoder(codes *CodeTable) (*TableDecoder, error) {
	m, symbols, err := codes.matcher()
	if err != nil {
		return nil, err
	}
	d := &TableDecoder{matcher: m, symbols: symbols}
	if len(symbols) == 1 {
		d.single, d.isSingle = symbols[0], true
	}
	return d, nil
}

// Decode implements Decoder.
//
// A one-symbol table emits its symbol once per 0 bit, whatever code the
// table stores for it.
func (d *TableDecoder) Decode(p Payload) (string, error) {
	if err := p.validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	if p.Bits == 0 {
		return "", nil
	}
	if d.matcher.Len() == 0 {
		return "", fmt.Errorf("%w: %d bits with an empty code table", ErrDecodeMismatch, p.Bits)
	}

	r := p.reader()
	if d.isSingle {
		return decodeSingle(r, d.single, p.Bits)
	}

	var out strings.Builder
	var pos uint64
	for {
		id, n, err := d.matcher.Next(r)
		if err == io.EOF {
			return out.String(), nil
		}
		if err != nil {
			if errors.Is(err, lpm.ErrNoMatch) || err == io.ErrUnexpectedEOF {
				return "", fmt.Errorf("%w: no code matches at bit %d", ErrDecodeMismatch, pos)
			}
			return "", err
		}
		out.WriteString(string(d.symbols[id]))
		pos += uint64(n)
	}
}

// TreeDecoder decodes by walking a Huffman tree from the root for every
// symbol.
type TreeDecoder struct {
	root Node
}

// NewTreeDecoder creates a decoder for root. A nil root decodes only empty
// payloads.
func NewTreeDecoder(root Node) *TreeDecoder {
	return &TreeDecoder{root: root}
}

// Decode implements Decoder.
//
// When the root is a leaf there is no edge to follow; every bit stands for
// one occurrence of the root's symbol.
func (d *TreeDecoder) Decode(p Payload) (string, error) {
	if err := p.validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	if p.Bits == 0 {
		return "", nil
	}

	r := p.reader()
	var out strings.Builder
	switch root := d.root.(type) {
	case nil:
		return "", fmt.Errorf("%w: %d bits with an empty tree", ErrDecodeMismatch, p.Bits)
	case *Leaf:
		return decodeSingle(r, root.Symbol, p.Bits)
	case *Internal:
		cur := Node(root)
		var pos, start uint64
		for ; ; pos++ {
			bit, err := r.ReadBool()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}

			in := cur.(*Internal)
			if bit {
				cur = in.Right
			} else {
				cur = in.Left
			}
			if leaf, ok := cur.(*Leaf); ok {
				out.WriteString(string(leaf.Symbol))
				cur = root
				start = pos + 1
			}
		}
		if cur != Node(root) {
			return "", fmt.Errorf("%w: payload ends inside the code starting at bit %d", ErrDecodeMismatch, start)
		}
		return out.String(), nil
	default:
		return "", fmt.Errorf("unexpected node type %T", root)
	}
}

func decodeSingle(r *payloadReader, s Symbol, bits uint64) (string, error) {
	var out strings.Builder
	for pos := uint64(0); pos < bits; pos++ {
		bit, err := r.ReadBool()
		if err != nil {
			return "", err
		}
		if bit {
			return "", fmt.Errorf("%w: bit %d is 1 in a single-symbol payload", ErrDecodeMismatch, pos)
		}
		out.WriteString(string(s))
	}
	return out.String(), nil
}
