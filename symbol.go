package huffman

import (
	"unicode/utf8"

	"golang.org/x/exp/slices"
)

// Symbol is one atomic unit of a symbol model: a character, a word, a space
// or a newline. Symbols compare by exact byte equality.
type Symbol string

const (
	// Space is the word-mode symbol for one ' ' character.
	Space Symbol = " "
	// Newline is the word-mode symbol for one '\n' character.
	Newline Symbol = "\n"
)

// CharSymbols splits text into one symbol per UTF-8 encoded character.
// Bytes that are not valid UTF-8 become single-byte symbols, so joining the
// result always reproduces text byte for byte.
func CharSymbols(text string) []Symbol {
	symbols := make([]Symbol, 0, utf8.RuneCountInString(text))
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		symbols = append(symbols, Symbol(text[i:i+size]))
		i += size
	}
	return symbols
}

// WordSymbols splits text into words, spaces and newlines.
//
// A word is a maximal run of bytes other than ' ' and '\n'. Every space and
// every newline is a symbol of its own, so "a  b" yields "a", " ", " ", "b".
// Tabs and carriage returns are part of words.
func WordSymbols(text string) []Symbol {
	var symbols []Symbol
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != ' ' && c != '\n' {
			continue
		}
		if start < i {
			symbols = append(symbols, Symbol(text[start:i]))
		}
		if c == ' ' {
			symbols = append(symbols, Space)
		} else {
			symbols = append(symbols, Newline)
		}
		start = i + 1
	}
	if start < len(text) {
		symbols = append(symbols, Symbol(text[start:]))
	}
	return symbols
}

// Join concatenates symbols back into text.
func Join(symbols []Symbol) string {
	n := 0
	for _, s := range symbols {
		n += len(s)
	}
	buf := make([]byte, 0, n)
	for _, s := range symbols {
		buf = append(buf, s...)
	}
	return string(buf)
}

// Frequency is one entry of a FrequencyTable.
type Frequency struct {
	Symbol Symbol
	Count  uint64
}

// FrequencyTable maps each symbol to its positive occurrence count.
type FrequencyTable struct {
	counts map[Symbol]uint64
}

// NewFrequencyTable creates an empty table.
func NewFrequencyTable() *FrequencyTable {
	return &FrequencyTable{counts: make(map[Symbol]uint64)}
}

// Count builds the frequency table of a symbol sequence.
func Count(symbols []Symbol) *FrequencyTable {
	f := NewFrequencyTable()
	for _, s := range symbols {
		f.counts[s]++
	}
	return f
}

// Add increases the count of s by n. Adding zero is a no-op so that every
// stored count stays positive.
func (f *FrequencyTable) Add(s Symbol, n uint64) {
	if n == 0 {
		return
	}
	if f.counts == nil {
		f.counts = make(map[Symbol]uint64)
	}
	f.counts[s] += n
}

// Get returns the count of s, zero when absent.
func (f *FrequencyTable) Get(s Symbol) uint64 {
	return f.counts[s]
}

// Len returns the number of distinct symbols.
func (f *FrequencyTable) Len() int {
	return len(f.counts)
}

// Total returns the sum of all counts.
func (f *FrequencyTable) Total() uint64 {
	var total uint64
	for _, n := range f.counts {
		total += n
	}
	return total
}

// Entries returns the table in canonical order: ascending byte-wise symbol
// order. The position of an entry in this slice is its canonical index, which
// the tree builder uses to break weight ties.
func (f *FrequencyTable) Entries() []Frequency {
	entries := make([]Frequency, 0, len(f.counts))
	for s, n := range f.counts {
		entries = append(entries, Frequency{Symbol: s, Count: n})
	}
	slices.SortFunc(entries, func(a, b Frequency) int {
		return compareSymbols(a.Symbol, b.Symbol)
	})
	return entries
}

// Equal reports whether both tables hold the same symbols and counts.
func (f *FrequencyTable) Equal(other *FrequencyTable) bool {
	if other == nil || f.Len() != other.Len() {
		return false
	}
	for s, n := range f.counts {
		if other.counts[s] != n {
			return false
		}
	}
	return true
}

func compareSymbols(a, b Symbol) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
