package huffman

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func mustEncode(t testing.TB, enc *Encoder, text string) *Container {
	t.Helper()
	c, err := enc.Encode(text)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return c
}

func mustMarshal(t testing.TB, c *Container) []byte {
	t.Helper()
	data, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return data
}

// buildContainer frames stages by hand so tests can produce containers the
// encoder refuses to write.
func buildContainer(t *testing.T, stages []wireStage, payload []byte) []byte {
	t.Helper()
	data := []byte(containerMagic)
	data = binary.LittleEndian.AppendUint16(data, containerVersion)
	data = binary.LittleEndian.AppendUint16(data, uint16(len(stages)))
	for _, s := range stages {
		var err error
		if data, err = appendStage(data, s); err != nil {
			t.Fatal(err)
		}
	}
	return append(data, payload...)
}

func bitLengthStage(bits uint64) wireStage {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, bits)
	return wireStage{name: stageBitLength, payload: b}
}

func TestContainerRoundTrip(t *testing.T) {
	texts := []string{"", "a", "aaaaaa", "aabbbcccc", "hi there\nworld", "  lead and trail  \n\n"}
	for _, mode := range []Mode{ModeChar, ModeWord} {
		for _, text := range texts {
			c := mustEncode(t, NewEncoder(WithMode(mode)), text)
			data := mustMarshal(t, c)

			var got Container
			if err := got.UnmarshalBinary(data); err != nil {
				t.Fatalf("%s %q: UnmarshalBinary: %v", mode, text, err)
			}
			if got.Mode != mode {
				t.Errorf("%s %q: expected mode %s, got %s", mode, text, mode, got.Mode)
			}
			if got.Payload.Bits != c.Payload.Bits || !bytes.Equal(got.Payload.Data, c.Payload.Data) {
				t.Errorf("%s %q: payload changed in round trip", mode, text)
			}
			if mode == ModeChar && !got.Codes.Equal(c.Codes) {
				t.Errorf("%s %q: code table changed in round trip", mode, text)
			}
			if mode == ModeWord && !got.Frequencies.Equal(c.Frequencies) {
				t.Errorf("%s %q: frequency table changed in round trip", mode, text)
			}

			decoded, err := got.Decode()
			if err != nil {
				t.Fatalf("%s %q: Decode: %v", mode, text, err)
			}
			if decoded != text {
				t.Errorf("%s: expected %q, got %q", mode, text, decoded)
			}
		}
	}
}

func TestContainerLayout(t *testing.T) {
	c := mustEncode(t, NewEncoder(WithHeaderEncoding(HeaderRaw)), "aabbbcccc")
	data := mustMarshal(t, c)

	if string(data[:4]) != containerMagic {
		t.Errorf("expected magic %q, got %q", containerMagic, data[:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != containerVersion {
		t.Errorf("expected version %d, got %d", containerVersion, v)
	}
	if n := binary.LittleEndian.Uint16(data[6:8]); n != 3 {
		t.Errorf("expected 3 stages, got %d", n)
	}
	// The payload is the tail of the file: ceil(14/8) = 2 bytes.
	if tail := data[len(data)-2:]; !bytes.Equal(tail, []byte{0xAF, 0xC0}) {
		t.Errorf("expected payload tail af c0, got %x", tail)
	}

	size, err := c.SpaceUsed()
	if err != nil {
		t.Fatal(err)
	}
	if size != len(data) {
		t.Errorf("SpaceUsed: expected %d, got %d", len(data), size)
	}
}

func TestContainerHeaderEncodings(t *testing.T) {
	text := "it was the best of times it was the worst of times\nit was the age of wisdom\n"
	encodings := []struct {
		name  string
		enc   HeaderEncoding
		param uint8
	}{
		{"Raw", HeaderRaw, symbolsEncodingRaw},
		{"Flate", HeaderFlate, symbolsEncodingFlate},
		{"Zstd", HeaderZstd, symbolsEncodingZstd},
		{"Auto", HeaderAuto, 0xFF},
	}
	for _, mode := range []Mode{ModeChar, ModeWord} {
		for _, e := range encodings {
			t.Run(mode.String()+"/"+e.name, func(t *testing.T) {
				data, err := Compress(text, WithMode(mode), WithHeaderEncoding(e.enc))
				if err != nil {
					t.Fatal(err)
				}
				// magic(4) version(2) count(2) stage header(7) "symbols"(7)
				params := data[22:24]
				if e.param != 0xFF && params[1] != e.param {
					t.Errorf("expected encoding param %d, got %d", e.param, params[1])
				}
				wantKind := symbolsKindCodes
				if mode == ModeWord {
					wantKind = symbolsKindFrequencies
				}
				if params[0] != wantKind {
					t.Errorf("expected kind %d, got %d", wantKind, params[0])
				}

				got, err := Decompress(data)
				if err != nil {
					t.Fatal(err)
				}
				if got != text {
					t.Errorf("expected %q, got %q", text, got)
				}
			})
		}
	}
}

func TestContainerAutoPicksSmallest(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz0123456789 the quick brown fox jumps over the lazy dog"
	auto, err := Compress(text, WithHeaderEncoding(HeaderAuto))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []HeaderEncoding{HeaderRaw, HeaderFlate, HeaderZstd} {
		forced, err := Compress(text, WithHeaderEncoding(e))
		if err != nil {
			t.Fatal(err)
		}
		if len(auto) > len(forced) {
			t.Errorf("auto header (%d bytes) larger than encoding %d (%d bytes)", len(auto), e, len(forced))
		}
	}
}

func TestContainerChecksumStage(t *testing.T) {
	with, err := Compress("aabbbcccc")
	if err != nil {
		t.Fatal(err)
	}
	without, err := Compress("aabbbcccc", WithChecksum(false))
	if err != nil {
		t.Fatal(err)
	}
	if n := binary.LittleEndian.Uint16(with[6:8]); n != 3 {
		t.Errorf("expected 3 stages with checksum, got %d", n)
	}
	if n := binary.LittleEndian.Uint16(without[6:8]); n != 2 {
		t.Errorf("expected 2 stages without checksum, got %d", n)
	}

	// Flip a payload bit.
	corrupt := append([]byte(nil), with...)
	corrupt[len(corrupt)-2] ^= 0x01
	var c Container
	err = c.UnmarshalBinary(corrupt)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
	if !errors.Is(err, ErrMalformedContainer) {
		t.Errorf("expected checksum error to be a malformed container error, got %v", err)
	}
}

func TestContainerMalformed(t *testing.T) {
	valid, err := Compress("aabbbcccc", WithHeaderEncoding(HeaderRaw))
	if err != nil {
		t.Fatal(err)
	}
	mutate := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), valid...))
	}

	badCodes := &Container{Mode: ModeChar, Codes: codeTable(t, map[Symbol]string{"a": "0", "b": "01"})}
	unsorted := []byte{2, 1, 'b', 1, 1, 'a', 2}
	zeroCount := []byte{1, 1, 'a', 0}
	duplicate := []byte{2, 1, 'a', 1, 1, 'a', 1}

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"BadMagic", mutate(func(b []byte) []byte { b[0] = 'X'; return b })},
		{"BadVersion", mutate(func(b []byte) []byte { b[4] = 9; return b })},
		{"ZeroStages", mutate(func(b []byte) []byte { b[6], b[7] = 0, 0; return b })},
		{"TruncatedHeader", valid[:20]},
		{"TruncatedPayload", valid[:len(valid)-1]},
		{"TrailingBytes", append(append([]byte(nil), valid...), 0)},
		{"MissingBitLength", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{symbolsKindCodes, symbolsEncodingRaw}, payload: []byte{0}},
		}, nil)},
		{"MissingSymbols", buildContainer(t, []wireStage{bitLengthStage(0)}, nil)},
		{"DuplicateStage", buildContainer(t, []wireStage{bitLengthStage(0), bitLengthStage(0)}, nil)},
		{"NotPrefixFree", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{symbolsKindCodes, symbolsEncodingRaw}, payload: encodeSymbolsTable(badCodes)},
			bitLengthStage(2),
		}, []byte{0x40})},
		{"UnsortedEntries", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{symbolsKindFrequencies, symbolsEncodingRaw}, payload: unsorted},
			bitLengthStage(0),
		}, nil)},
		{"DuplicateEntry", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{symbolsKindFrequencies, symbolsEncodingRaw}, payload: duplicate},
			bitLengthStage(0),
		}, nil)},
		{"ZeroCount", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{symbolsKindFrequencies, symbolsEncodingRaw}, payload: zeroCount},
			bitLengthStage(0),
		}, nil)},
		{"UnknownKind", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{9, symbolsEncodingRaw}, payload: []byte{0}},
			bitLengthStage(0),
		}, nil)},
		{"UnknownEncoding", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{symbolsKindCodes, 9}, payload: []byte{0}},
			bitLengthStage(0),
		}, nil)},
		{"BitsWithEmptyTable", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{symbolsKindFrequencies, symbolsEncodingRaw}, payload: []byte{0}},
			bitLengthStage(3),
		}, []byte{0})},
		{"CodeWiderThanLength", buildContainer(t, []wireStage{
			{name: stageSymbols, params: []byte{symbolsKindCodes, symbolsEncodingRaw}, payload: []byte{1, 1, 'a', 1, 2}},
			bitLengthStage(0),
		}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Container
			err := c.UnmarshalBinary(tt.data)
			if !errors.Is(err, ErrMalformedContainer) {
				t.Errorf("expected ErrMalformedContainer, got %v", err)
			}
		})
	}
}

func TestContainerNotPrefixFreeIsReported(t *testing.T) {
	badCodes := &Container{Mode: ModeChar, Codes: codeTable(t, map[Symbol]string{"a": "0", "b": "01"})}
	data := buildContainer(t, []wireStage{
		{name: stageSymbols, params: []byte{symbolsKindCodes, symbolsEncodingRaw}, payload: encodeSymbolsTable(badCodes)},
		bitLengthStage(0),
	}, nil)
	var c Container
	if err := c.UnmarshalBinary(data); !errors.Is(err, ErrNotPrefixFree) {
		t.Errorf("expected ErrNotPrefixFree, got %v", err)
	}
	if _, err := badCodes.MarshalBinary(); !errors.Is(err, ErrNotPrefixFree) {
		t.Errorf("expected WriteTo to refuse the table, got %v", err)
	}
}

func TestContainerSkipsUnknownStage(t *testing.T) {
	c := mustEncode(t, NewEncoder(WithMode(ModeWord)), "hi there\nworld")
	data := buildContainer(t, []wireStage{
		{name: "future_stage", params: []byte{1, 2, 3}, payload: []byte("ignored")},
		{name: stageSymbols, params: []byte{symbolsKindFrequencies, symbolsEncodingRaw}, payload: encodeSymbolsTable(c)},
		bitLengthStage(c.Payload.Bits),
	}, c.Payload.Data)

	var got Container
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	text, err := got.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if text != "hi there\nworld" {
		t.Errorf("expected %q, got %q", "hi there\nworld", text)
	}
}

func TestContainerReadFromStream(t *testing.T) {
	first := mustMarshal(t, mustEncode(t, NewEncoder(), "first file"))
	second := mustMarshal(t, mustEncode(t, NewEncoder(WithMode(ModeWord)), "second  file\n"))
	r := bytes.NewReader(append(append([]byte(nil), first...), second...))

	for _, want := range []string{"first file", "second  file\n"} {
		var c Container
		n, err := c.ReadFrom(r)
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			t.Error("expected ReadFrom to report consumed bytes")
		}
		got, err := c.Decode()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	if r.Len() != 0 {
		t.Errorf("expected stream fully consumed, %d bytes left", r.Len())
	}
}

func TestContainerWriteToValidates(t *testing.T) {
	tests := []struct {
		name string
		c    *Container
	}{
		{"NoMode", &Container{Codes: NewCodeTable()}},
		{"CharWithoutCodes", &Container{Mode: ModeChar}},
		{"WordWithoutFrequencies", &Container{Mode: ModeWord}},
		{"ShortPayload", &Container{Mode: ModeChar, Codes: codeTable(t, map[Symbol]string{"a": "0"}), Payload: Payload{Bits: 9, Data: []byte{0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.c.WriteTo(&bytes.Buffer{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAppendStageRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", strings.Repeat("x", 256)} {
		if _, err := appendStage(nil, wireStage{name: name}); err == nil {
			t.Errorf("expected error for stage name of length %d", len(name))
		}
	}
}

func TestContainerZstdConcurrent(t *testing.T) {
	texts := []string{"alpha beta gamma", "delta epsilon\n", "zeta eta theta iota", "kappa"}
	var wg sync.WaitGroup
	errs := make(chan error, len(texts)*4)
	for g := 0; g < 4; g++ {
		for _, text := range texts {
			wg.Add(1)
			go func(text string) {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					data, err := Compress(text, WithMode(ModeWord), WithHeaderEncoding(HeaderZstd))
					if err != nil {
						errs <- err
						return
					}
					got, err := Decompress(data)
					if err != nil {
						errs <- err
						return
					}
					if got != text {
						errs <- fmt.Errorf("decoded %q, want %q", got, text)
						return
					}
				}
			}(text)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func BenchmarkCompressShortHeader(b *testing.B) {
	for _, e := range []struct {
		name string
		enc  HeaderEncoding
	}{
		{"Auto", HeaderAuto},
		{"Raw", HeaderRaw},
		{"Flate", HeaderFlate},
		{"Zstd", HeaderZstd},
	} {
		b.Run(e.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Compress("hi", WithHeaderEncoding(e.enc)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecompressZstdHeader(b *testing.B) {
	data, err := Compress("hi there\nworld", WithHeaderEncoding(HeaderZstd))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decompress(data); err != nil {
			b.Fatal(err)
		}
	}
}
