// Package lpm provides prefix matching of bit strings for table-driven Huffman decoding.
package lpm

import (
	"errors"
	"io"
)

// MaxLen is the longest bit string a Matcher accepts.
const MaxLen = 64

// ErrNoMatch indicates that MaxLen bits (or the longest inserted code) were
// read without reaching a known code.
var ErrNoMatch = errors.New("lpm: no code matches the input")

// BitReader is the bit source consumed by Next.
type BitReader interface {
	ReadBool() (bool, error)
}

// Matcher maps bit strings of 1..64 bits to IDs.
//
// Codes are stored right-aligned in a uint64 together with their length, so
// "0" and "00" are distinct keys. Lookup is one map probe per length, the same
// way a byte-pattern matcher keys short patterns by (prefix, length).
type Matcher struct {
	lookup [MaxLen + 1]map[uint64]uint32 // length → (prefix, ID)
	minLen uint8
	maxLen uint8
	size   int
}

// NewMatcher creates a new empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Insert adds a code of the given length with its ID.
//
// It returns false when the length is outside [1, MaxLen], when prefix does
// not fit in length bits, or when the same code was inserted before.
func (m *Matcher) Insert(prefix uint64, length uint8, id uint32) bool {
	if length == 0 || length > MaxLen {
		return false
	}
	if length < MaxLen && prefix>>length != 0 {
		return false
	}

	lookup := m.lookup[length]
	if lookup == nil {
		lookup = make(map[uint64]uint32)
		m.lookup[length] = lookup
	}
	if _, ok := lookup[prefix]; ok {
		return false
	}
	lookup[prefix] = id

	if m.size == 0 || length < m.minLen {
		m.minLen = length
	}
	if length > m.maxLen {
		m.maxLen = length
	}
	m.size++
	return true
}

// Find returns the ID stored for exactly this code.
func (m *Matcher) Find(prefix uint64, length uint8) (uint32, bool) {
	if length == 0 || length > MaxLen {
		return 0, false
	}
	id, ok := m.lookup[length][prefix]
	return id, ok
}

// Len returns the number of inserted codes.
func (m *Matcher) Len() int {
	return m.size
}

// MaxLen returns the length of the longest inserted code.
func (m *Matcher) MaxLen() uint8 {
	return m.maxLen
}

// Conflict reports a pair of IDs where the first code is a proper prefix of
// the second. ok is false when the inserted set is prefix-free.
func (m *Matcher) Conflict() (prefixID, codeID uint32, ok bool) {
	for length := int(m.minLen) + 1; length <= int(m.maxLen); length++ {
		for code, id := range m.lookup[length] {
			for shorter := m.minLen; int(shorter) < length; shorter++ {
				if pid, found := m.lookup[shorter][code>>(uint(length)-uint(shorter))]; found {
					return pid, id, true
				}
			}
		}
	}
	return 0, 0, false
}

// Next consumes bits from r until they spell a known code and returns its ID
// and length.
//
// The first match is returned. For a prefix-free set it is the only code that
// can match, hence also the longest. A clean end of input before the first
// bit returns io.EOF; an end inside a code returns io.ErrUnexpectedEOF.
func (m *Matcher) Next(r BitReader) (uint32, uint8, error) {
	if m.size == 0 {
		return 0, 0, ErrNoMatch
	}

	var prefix uint64
	for length := uint8(1); length <= m.maxLen; length++ {
		bit, err := r.ReadBool()
		if err != nil {
			if err == io.EOF && length > 1 {
				return 0, 0, io.ErrUnexpectedEOF
			}
			return 0, 0, err
		}
		prefix <<= 1
		if bit {
			prefix |= 1
		}
		if length < m.minLen {
			continue
		}
		if id, ok := m.lookup[length][prefix]; ok {
			return id, length, nil
		}
	}
	return 0, 0, ErrNoMatch
}
