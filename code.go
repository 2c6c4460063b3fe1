package huffman

import (
	"fmt"
	"strings"

	"github.com/seiflotfy/huffman/lpm"
	"golang.org/x/exp/slices"
)

// maxCodeLen is the longest code a table can hold.
const maxCodeLen = lpm.MaxLen

// Code is a bit sequence of 1..64 bits. The first bit of the code is bit
// Len-1 of Value.
type Code struct {
	Value uint64
	Len   uint8
}

// String returns the code as a string of '0' and '1'.
func (c Code) String() string {
	var b strings.Builder
	b.Grow(int(c.Len))
	for i := int(c.Len) - 1; i >= 0; i-- {
		if c.Value>>uint(i)&1 == 1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// HasPrefix reports whether p is a prefix of c (including c itself).
func (c Code) HasPrefix(p Code) bool {
	if p.Len > c.Len {
		return false
	}
	return c.Value>>(c.Len-p.Len) == p.Value
}

// ParseCode parses a string of '0' and '1'.
func ParseCode(s string) (Code, error) {
	if len(s) == 0 || len(s) > maxCodeLen {
		return Code{}, fmt.Errorf("invalid code length: %d", len(s))
	}
	var c Code
	for i := 0; i < len(s); i++ {
		c.Value <<= 1
		switch s[i] {
		case '0':
		case '1':
			c.Value |= 1
		default:
			return Code{}, fmt.Errorf("invalid code digit %q at %d", s[i], i)
		}
	}
	c.Len = uint8(len(s))
	return c, nil
}

// CodeEntry is one entry of a CodeTable.
type CodeEntry struct {
	Symbol Symbol
	Code   Code
}

// CodeTable maps symbols to their codes.
type CodeTable struct {
	codes map[Symbol]Code
}

// NewCodeTable creates an empty table.
func NewCodeTable() *CodeTable {
	return &CodeTable{codes: make(map[Symbol]Code)}
}

// Set assigns a code to s.
func (t *CodeTable) Set(s Symbol, c Code) {
	if t.codes == nil {
		t.codes = make(map[Symbol]Code)
	}
	t.codes[s] = c
}

// Lookup returns the code of s.
func (t *CodeTable) Lookup(s Symbol) (Code, bool) {
	c, ok := t.codes[s]
	return c, ok
}

// Len returns the number of symbols in the table.
func (t *CodeTable) Len() int {
	return len(t.codes)
}

// Entries returns the table in ascending symbol order.
func (t *CodeTable) Entries() []CodeEntry {
	entries := make([]CodeEntry, 0, len(t.codes))
	for s, c := range t.codes {
		entries = append(entries, CodeEntry{Symbol: s, Code: c})
	}
	slices.SortFunc(entries, func(a, b CodeEntry) int {
		return compareSymbols(a.Symbol, b.Symbol)
	})
	return entries
}

// Equal reports whether both tables assign the same codes.
func (t *CodeTable) Equal(other *CodeTable) bool {
	if other == nil || t.Len() != other.Len() {
		return false
	}
	for s, c := range t.codes {
		if oc, ok := other.codes[s]; !ok || oc != c {
			return false
		}
	}
	return true
}

// Validate checks that every code is 1..64 bits long and that no code is a
// prefix of another.
func (t *CodeTable) Validate() error {
	_, _, err := t.matcher()
	return err
}

// matcher indexes the table by code. IDs are canonical entry indexes.
func (t *CodeTable) matcher() (*lpm.Matcher, []Symbol, error) {
	entries := t.Entries()
	m := lpm.NewMatcher()
	symbols := make([]Symbol, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
		if e.Code.Len == 0 || e.Code.Len > maxCodeLen {
			return nil, nil, fmt.Errorf("invalid code length %d for symbol %q", e.Code.Len, e.Symbol)
		}
		if !m.Insert(e.Code.Value, e.Code.Len, uint32(i)) {
			return nil, nil, fmt.Errorf("%w: duplicate code %s for symbol %q", ErrNotPrefixFree, e.Code, e.Symbol)
		}
	}
	if p, c, ok := m.Conflict(); ok {
		return nil, nil, fmt.Errorf("%w: code of %q prefixes code of %q", ErrNotPrefixFree, symbols[p], symbols[c])
	}
	return m, symbols, nil
}

// GenerateCodes derives the code table of a tree: a left edge appends 0, a
// right edge appends 1. A tree that is a single leaf gets the code "0".
func GenerateCodes(root Node) (*CodeTable, error) {
	t := NewCodeTable()
	if root == nil {
		return t, nil
	}
	if leaf, ok := root.(*Leaf); ok {
		t.Set(leaf.Symbol, Code{Value: 0, Len: 1})
		return t, nil
	}

	var walk func(n Node, c Code) error
	walk = func(n Node, c Code) error {
		switch n := n.(type) {
		case *Leaf:
			t.Set(n.Symbol, c)
			return nil
		case *Internal:
			if c.Len == maxCodeLen {
				return ErrCodeTooLong
			}
			if err := walk(n.Left, Code{Value: c.Value << 1, Len: c.Len + 1}); err != nil {
				return err
			}
			return walk(n.Right, Code{Value: c.Value<<1 | 1, Len: c.Len + 1})
		default:
			return fmt.Errorf("unexpected node type %T", n)
		}
	}
	if err := walk(root, Code{}); err != nil {
		return nil, err
	}
	return t, nil
}
