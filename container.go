package huffman

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

const (
	containerMagic   = "HUFF"
	containerVersion = uint16(1)

	stageSymbols   = "symbols"
	stageBitLength = "bit_length"
	stageChecksum  = "checksum"

	symbolsKindCodes       = uint8(1) // code table, decoded with a TableDecoder
	symbolsKindFrequencies = uint8(2) // frequency table, decoded with a TreeDecoder

	symbolsEncodingRaw   = uint8(0)
	symbolsEncodingFlate = uint8(1)
	symbolsEncodingZstd  = uint8(2)

	maxContainerStages   = 16
	maxStagePayloadBytes = 1 << 30 // 1 GiB
	maxPayloadBytes      = 1 << 32 // 4 GiB
)

// Wire format (version 1):
//
//	magic[4] = "HUFF"
//	version  = uint16 little-endian
//	stageCnt = uint16 little-endian
//	repeat stageCnt times:
//	  nameLen  = uint8
//	  paramLen = uint16 little-endian
//	  dataLen  = uint32 little-endian
//	  name     = nameLen bytes
//	  params   = paramLen bytes
//	  payload  = dataLen bytes
//	payload    = ceil(bit_length / 8) bytes, last byte zero-padded
//
// Stages:
//
//	symbols    params [kind, encoding]; the code or frequency table
//	bit_length uint64 little-endian; exact payload length in bits
//	checksum   uint64 little-endian xxhash64 of the payload bytes (optional)
//
// Table layout inside the symbols stage, after undoing its encoding:
//
//	count = uvarint
//	repeat count times, in strictly ascending symbol order:
//	  symLen = uvarint, sym = symLen bytes
//	  codes:       codeLen = uint8 (1..64), code = uvarint (< 1<<codeLen)
//	  frequencies: count = uvarint (> 0)
//
// Unknown stages are skipped via dataLen framing.
type wireStageHeader struct {
	name     string
	paramLen uint16
	dataLen  uint32
}

type wireStage struct {
	name    string
	params  []byte
	payload []byte
}

// appendStage appends the framed stage to dst.
func appendStage(dst []byte, st wireStage) ([]byte, error) {
	switch {
	case len(st.name) == 0 || len(st.name) > 255:
		return dst, fmt.Errorf("invalid stage name length: %d", len(st.name))
	case len(st.params) > int(^uint16(0)):
		return dst, fmt.Errorf("stage params too large for %q: %d", st.name, len(st.params))
	case len(st.payload) > maxStagePayloadBytes:
		return dst, fmt.Errorf("stage payload too large for %q: %d", st.name, len(st.payload))
	}
	dst = append(dst, uint8(len(st.name)))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(st.params)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(st.payload)))
	dst = append(dst, st.name...)
	dst = append(dst, st.params...)
	return append(dst, st.payload...), nil
}

// readN reads exactly n bytes, growing the buffer as data arrives so a
// corrupt length cannot force a large allocation up front.
func readN(r io.Reader, n int64) ([]byte, error) {
	var buf bytes.Buffer
	copied, err := io.CopyN(&buf, r, n)
	if err == io.EOF && copied < n {
		err = io.ErrUnexpectedEOF
	}
	return buf.Bytes(), err
}

func readStageHeader(r io.Reader) (wireStageHeader, int64, error) {
	var hdr [7]byte
	n, err := io.ReadFull(r, hdr[:])
	total := int64(n)
	if err != nil {
		return wireStageHeader{}, total, err
	}
	nameLen := hdr[0]
	if nameLen == 0 {
		return wireStageHeader{}, total, fmt.Errorf("stage name length must be > 0")
	}
	paramLen := binary.LittleEndian.Uint16(hdr[1:3])
	dataLen := binary.LittleEndian.Uint32(hdr[3:7])
	if dataLen > uint32(maxStagePayloadBytes) {
		return wireStageHeader{}, total, fmt.Errorf("stage payload too large: %d", dataLen)
	}

	nameBytes := make([]byte, int(nameLen))
	n, err = io.ReadFull(r, nameBytes)
	total += int64(n)
	if err != nil {
		return wireStageHeader{}, total, err
	}

	return wireStageHeader{
		name:     string(nameBytes),
		paramLen: paramLen,
		dataLen:  dataLen,
	}, total, nil
}

// Container is one compressed text: the header needed to reverse the payload
// and the payload itself. Character-mode containers carry Codes, word-mode
// containers carry Frequencies.
type Container struct {
	Mode        Mode
	Codes       *CodeTable      // ModeChar
	Frequencies *FrequencyTable // ModeWord
	Payload     Payload

	// Serialization preferences, taken from the encoder's Config.
	headerEncoding HeaderEncoding
	noChecksum     bool

	// xxhash64 of the symbols stage after decoding, set by ReadFrom.
	fingerprint uint64
}

// Decoder returns the decoder matching the header kind: a TableDecoder for
// code tables, a TreeDecoder over the rebuilt tree for frequency tables.
func (c *Container) Decoder() (Decoder, error) {
	switch c.Mode {
	case ModeChar:
		if c.Codes == nil {
			return nil, fmt.Errorf("%w: character container without code table", ErrMalformedContainer)
		}
		return NewTableDecoder(c.Codes)
	case ModeWord:
		if c.Frequencies == nil {
			return nil, fmt.Errorf("%w: word container without frequency table", ErrMalformedContainer)
		}
		return NewTreeDecoder(BuildTree(c.Frequencies)), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, uint8(c.Mode))
	}
}

// Decode decodes the payload with the container's own header.
func (c *Container) Decode() (string, error) {
	d, err := c.Decoder()
	if err != nil {
		return "", err
	}
	return d.Decode(c.Payload)
}

// SpaceUsed returns the serialized size in bytes.
func (c *Container) SpaceUsed() (int, error) {
	n, err := c.WriteTo(io.Discard)
	return int(n), err
}

func (c *Container) symbolsKind() uint8 {
	if c.Mode == ModeWord {
		return symbolsKindFrequencies
	}
	return symbolsKindCodes
}

func (c *Container) tableLen() int {
	if c.Mode == ModeWord {
		return c.Frequencies.Len()
	}
	return c.Codes.Len()
}

func validateContainerStructure(c *Container) error {
	switch c.Mode {
	case ModeChar:
		if c.Codes == nil {
			return fmt.Errorf("character container without code table")
		}
		if err := c.Codes.Validate(); err != nil {
			return err
		}
	case ModeWord:
		if c.Frequencies == nil {
			return fmt.Errorf("word container without frequency table")
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidMode, uint8(c.Mode))
	}
	if err := c.Payload.validate(); err != nil {
		return err
	}
	if c.Payload.Bits > 0 && c.tableLen() == 0 {
		return fmt.Errorf("payload of %d bits with an empty table", c.Payload.Bits)
	}
	return nil
}

func encodeSymbolsTable(c *Container) []byte {
	var buf []byte
	if c.Mode == ModeWord {
		entries := c.Frequencies.Entries()
		buf = binary.AppendUvarint(buf, uint64(len(entries)))
		for _, e := range entries {
			buf = binary.AppendUvarint(buf, uint64(len(e.Symbol)))
			buf = append(buf, e.Symbol...)
			buf = binary.AppendUvarint(buf, e.Count)
		}
		return buf
	}

	entries := c.Codes.Entries()
	buf = binary.AppendUvarint(buf, uint64(len(entries)))
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(len(e.Symbol)))
		buf = append(buf, e.Symbol...)
		buf = append(buf, e.Code.Len)
		buf = binary.AppendUvarint(buf, e.Code.Value)
	}
	return buf
}

func encodeSymbolsStage(c *Container) ([]byte, uint8, error) {
	raw := encodeSymbolsTable(c)

	type candidate struct {
		payload []byte
		param   uint8
	}
	var candidates []candidate

	if c.headerEncoding == HeaderAuto || c.headerEncoding == HeaderRaw {
		candidates = append(candidates, candidate{payload: raw, param: symbolsEncodingRaw})
	}
	if c.headerEncoding == HeaderAuto || c.headerEncoding == HeaderFlate {
		flatePayload, err := encodeFlatePayload(raw)
		if err != nil {
			return nil, 0, err
		}
		candidates = append(candidates, candidate{payload: flatePayload, param: symbolsEncodingFlate})
	}
	if c.headerEncoding == HeaderAuto || c.headerEncoding == HeaderZstd {
		zstdPayload, err := encodeZstdPayload(raw)
		if err != nil {
			return nil, 0, err
		}
		candidates = append(candidates, candidate{payload: zstdPayload, param: symbolsEncodingZstd})
	}
	if len(candidates) == 0 {
		return nil, 0, fmt.Errorf("unsupported header encoding: %d", c.headerEncoding)
	}

	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if len(candidate.payload) < len(best.payload) {
			best = candidate
		}
	}
	return best.payload, best.param, nil
}

func encodeFlatePayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	_, err = fw.Write(raw)
	if cerr := fw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFlatePayload(payload []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(payload))
	defer fr.Close()

	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(fr, maxStagePayloadBytes+1))
	switch {
	case err != nil:
		return nil, err
	case n > maxStagePayloadBytes:
		return nil, fmt.Errorf("flate payload expands beyond %d bytes", maxStagePayloadBytes)
	}
	return buf.Bytes(), nil
}

// The zstd encoder and decoder are built once; EncodeAll and DecodeAll are
// safe for concurrent use.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil,
			zstd.WithDecoderMaxMemory(maxStagePayloadBytes),
		)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func encodeZstdPayload(raw []byte) ([]byte, error) {
	enc, _, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, nil), nil
}

func decodeZstdPayload(payload []byte) ([]byte, error) {
	_, dec, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(payload, nil)
}

// tableReader walks the uvarint-framed table layout.
type tableReader struct {
	buf []byte
	pos int
}

func (t *tableReader) uvarint(what string) (uint64, error) {
	v, n := binary.Uvarint(t.buf[t.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s varint at table offset %d", what, t.pos)
	}
	t.pos += n
	return v, nil
}

func (t *tableReader) readByte(what string) (byte, error) {
	if t.pos >= len(t.buf) {
		return 0, fmt.Errorf("truncated %s at table offset %d", what, t.pos)
	}
	b := t.buf[t.pos]
	t.pos++
	return b, nil
}

func (t *tableReader) symbol(prev Symbol, index int) (Symbol, error) {
	n, err := t.uvarint("symbol length")
	if err != nil {
		return "", err
	}
	if n == 0 || n > uint64(len(t.buf)-t.pos) {
		return "", fmt.Errorf("invalid symbol length %d at entry %d", n, index)
	}
	s := Symbol(t.buf[t.pos : t.pos+int(n)])
	t.pos += int(n)
	if index > 0 && compareSymbols(prev, s) >= 0 {
		return "", fmt.Errorf("entry %d (%q) is not in ascending symbol order", index, s)
	}
	return s, nil
}

func decodeSymbolsTable(dst *Container, kind uint8, raw []byte) error {
	t := &tableReader{buf: raw}
	count, err := t.uvarint("entry count")
	if err != nil {
		return err
	}
	// Every entry takes at least three bytes.
	if count > uint64(len(raw))/3 {
		return fmt.Errorf("entry count too large: %d", count)
	}

	var prev Symbol
	switch kind {
	case symbolsKindCodes:
		codes := NewCodeTable()
		for i := 0; i < int(count); i++ {
			s, err := t.symbol(prev, i)
			if err != nil {
				return err
			}
			length, err := t.readByte("code length")
			if err != nil {
				return err
			}
			value, err := t.uvarint("code")
			if err != nil {
				return err
			}
			if length == 0 || length > maxCodeLen || (length < maxCodeLen && value>>length != 0) {
				return fmt.Errorf("invalid code (%d, %d bits) for symbol %q", value, length, s)
			}
			codes.Set(s, Code{Value: value, Len: length})
			prev = s
		}
		dst.Mode = ModeChar
		dst.Codes = codes
		dst.Frequencies = nil
	case symbolsKindFrequencies:
		freqs := NewFrequencyTable()
		for i := 0; i < int(count); i++ {
			s, err := t.symbol(prev, i)
			if err != nil {
				return err
			}
			n, err := t.uvarint("count")
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("zero count for symbol %q", s)
			}
			freqs.Add(s, n)
			prev = s
		}
		dst.Mode = ModeWord
		dst.Frequencies = freqs
		dst.Codes = nil
	default:
		return fmt.Errorf("unknown symbols kind: %d", kind)
	}
	if t.pos != len(raw) {
		return fmt.Errorf("%d trailing bytes after table", len(raw)-t.pos)
	}
	return nil
}

func decodeSymbolsStage(dst *Container, params []byte, payload []byte) error {
	if len(params) != 2 {
		return fmt.Errorf("invalid symbols params length: %d", len(params))
	}
	kind, encoding := params[0], params[1]

	var raw []byte
	var err error
	switch encoding {
	case symbolsEncodingRaw:
		raw = payload
	case symbolsEncodingFlate:
		raw, err = decodeFlatePayload(payload)
	case symbolsEncodingZstd:
		raw, err = decodeZstdPayload(payload)
	default:
		return fmt.Errorf("unknown symbols encoding: %d", encoding)
	}
	if err != nil {
		return err
	}

	if err := decodeSymbolsTable(dst, kind, raw); err != nil {
		return err
	}
	dst.fingerprint = tableFingerprint(kind, raw)
	return nil
}

func tableFingerprint(kind uint8, raw []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write([]byte{kind})
	_, _ = d.Write(raw)
	return d.Sum64()
}

func decodeUint64Stage(name string, params []byte, payload []byte) (uint64, error) {
	if len(params) != 0 {
		return 0, fmt.Errorf("unexpected %s params length: %d", name, len(params))
	}
	if len(payload) != 8 {
		return 0, fmt.Errorf("invalid %s payload length: %d", name, len(payload))
	}
	return binary.LittleEndian.Uint64(payload), nil
}

// WriteTo serializes the Container to an io.Writer.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	if err := validateContainerStructure(c); err != nil {
		return 0, fmt.Errorf("invalid container: %w", err)
	}

	symbolsPayload, symbolsEncoding, err := encodeSymbolsStage(c)
	if err != nil {
		return 0, err
	}
	var bitLength [8]byte
	binary.LittleEndian.PutUint64(bitLength[:], c.Payload.Bits)

	stages := []wireStage{
		{
			name:    stageSymbols,
			params:  []byte{c.symbolsKind(), symbolsEncoding},
			payload: symbolsPayload,
		},
		{
			name:    stageBitLength,
			payload: bitLength[:],
		},
	}
	if !c.noChecksum {
		var sum [8]byte
		binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(c.Payload.Data))
		stages = append(stages, wireStage{name: stageChecksum, payload: sum[:]})
	}

	hdr := make([]byte, 0, 64+len(symbolsPayload))
	hdr = append(hdr, containerMagic...)
	hdr = binary.LittleEndian.AppendUint16(hdr, containerVersion)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(len(stages)))
	for _, st := range stages {
		if hdr, err = appendStage(hdr, st); err != nil {
			return 0, err
		}
	}

	var total int64
	for _, b := range [][]byte{hdr, c.Payload.Data} {
		n, err := w.Write(b)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n != len(b) {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// ReadFrom deserializes a Container from an io.Reader. It consumes the
// header and exactly ceil(bit_length/8) payload bytes.
func (c *Container) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	var magic [4]byte
	n, err := io.ReadFull(r, magic[:])
	total += int64(n)
	if err != nil {
		return total, fmt.Errorf("%w: read magic at offset 0: %w", ErrMalformedContainer, err)
	}
	if string(magic[:]) != containerMagic {
		return total, fmt.Errorf("%w: invalid magic at offset 0: %q", ErrMalformedContainer, string(magic[:]))
	}

	var hdr [4]byte
	versionOffset := total
	n, err = io.ReadFull(r, hdr[:])
	total += int64(n)
	if err != nil {
		return total, fmt.Errorf("%w: read version at offset %d: %w", ErrMalformedContainer, versionOffset, err)
	}
	version := binary.LittleEndian.Uint16(hdr[0:2])
	if version != containerVersion {
		return total, fmt.Errorf("%w: unsupported version at offset %d: %d", ErrMalformedContainer, versionOffset, version)
	}
	stageCount := binary.LittleEndian.Uint16(hdr[2:4])
	if stageCount == 0 || stageCount > maxContainerStages {
		return total, fmt.Errorf("%w: invalid stage count at offset %d: %d", ErrMalformedContainer, versionOffset+2, stageCount)
	}

	var (
		tmp         Container
		bits        uint64
		checksum    uint64
		hasChecksum bool
		seenStages  = make(map[string]bool, stageCount)
	)

	for i := 0; i < int(stageCount); i++ {
		headerOffset := total
		header, n, err := readStageHeader(r)
		total += n
		if err != nil {
			return total, fmt.Errorf("%w: read stage header at offset %d (stage index %d): %w", ErrMalformedContainer, headerOffset, i, err)
		}
		if seenStages[header.name] {
			return total, fmt.Errorf("%w: duplicate stage %q at stage index %d", ErrMalformedContainer, header.name, i)
		}

		params := make([]byte, int(header.paramLen))
		paramsOffset := total
		nParams, err := io.ReadFull(r, params)
		total += int64(nParams)
		if err != nil {
			return total, fmt.Errorf("%w: read stage %q params at offset %d (stage index %d): %w", ErrMalformedContainer, header.name, paramsOffset, i, err)
		}

		switch header.name {
		case stageSymbols, stageBitLength, stageChecksum:
			payloadOffset := total
			payload, err := readN(r, int64(header.dataLen))
			total += int64(len(payload))
			if err != nil {
				return total, fmt.Errorf("%w: read stage %q payload at offset %d (stage index %d): %w", ErrMalformedContainer, header.name, payloadOffset, i, err)
			}

			switch header.name {
			case stageSymbols:
				err = decodeSymbolsStage(&tmp, params, payload)
			case stageBitLength:
				bits, err = decodeUint64Stage(header.name, params, payload)
			case stageChecksum:
				checksum, err = decodeUint64Stage(header.name, params, payload)
				hasChecksum = err == nil
			}
			if err != nil {
				return total, fmt.Errorf("%w: decode stage %q at offset %d (stage index %d): %w", ErrMalformedContainer, header.name, payloadOffset, i, err)
			}
			seenStages[header.name] = true

		default:
			skipOffset := total
			skipped, err := io.CopyN(io.Discard, r, int64(header.dataLen))
			total += skipped
			if err != nil {
				return total, fmt.Errorf("%w: skip unknown stage %q at offset %d (stage index %d): %w", ErrMalformedContainer, header.name, skipOffset, i, err)
			}
		}
	}

	for _, stageName := range []string{stageSymbols, stageBitLength} {
		if !seenStages[stageName] {
			return total, fmt.Errorf("%w: missing required stage %q", ErrMalformedContainer, stageName)
		}
	}

	if bits > maxPayloadBytes*8 {
		return total, fmt.Errorf("%w: payload of %d bits too large", ErrMalformedContainer, bits)
	}
	size := payloadBytes(bits)
	payloadOffset := total
	data, err := readN(r, int64(size))
	total += int64(len(data))
	if err != nil {
		return total, fmt.Errorf("%w: read payload at offset %d: need %d bytes for %d bits, have %d: %w", ErrMalformedContainer, payloadOffset, size, bits, len(data), err)
	}
	if hasChecksum && xxhash.Sum64(data) != checksum {
		return total, fmt.Errorf("%w at offset %d", ErrChecksumMismatch, payloadOffset)
	}
	tmp.Payload = Payload{Data: data, Bits: bits}
	tmp.noChecksum = !hasChecksum

	if err := validateContainerStructure(&tmp); err != nil {
		return total, fmt.Errorf("%w: %w", ErrMalformedContainer, err)
	}

	*c = tmp
	return total, nil
}

// MarshalBinary returns the serialized container.
func (c *Container) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses a whole serialized container. Bytes after the
// payload are an error.
func (c *Container) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if _, err := c.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes after payload", ErrMalformedContainer, r.Len())
	}
	return nil
}
