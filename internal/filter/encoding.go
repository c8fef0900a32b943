package filter

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"
)

// CurrentEncVer is the persisted-format version this engine writes.
// LegacyEncVer (0) is readable but never written (spec §4.F).
const (
	CurrentEncVer = 1
	LegacyEncVer  = 0
)

// DefaultChunkBytes bounds a single EncodeChunk call's payload size.
const DefaultChunkBytes = 10 * 1024 * 1024

// Cursor values. 0 requests the header; the loader replies with
// cursorAfterHeader (1) once it has been written. Chunk cursors pack a
// (index, offset) pair starting at 2 so they never collide with the two
// reserved values; cursorTerminal (all-ones) plus a zero-length chunk
// signals end-of-stream.
const (
	cursorHeader      uint64 = 0
	cursorAfterHeader uint64 = 1
	cursorTerminal    uint64 = math.MaxUint64
)

func packChunkCursor(index, offset uint32) uint64 {
	return 2 + (uint64(index) << 32) + uint64(offset)
}

func unpackChunkCursor(cursor uint64) (index, offset uint32) {
	v := cursor - 2
	return uint32(v >> 32), uint32(v)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	writeUint64(buf, math.Float64bits(v))
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readFloat64(r io.Reader) (float64, error) {
	v, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// --- BloomChain wire format (spec §4.F) ---

// EncodeHeader serializes chain- and layer-level parameters, excluding bit
// vector payloads.
func (c *BloomChain) EncodeHeader() []byte {
	buf := new(bytes.Buffer)
	writeUint64(buf, c.size)
	writeUint64(buf, uint64(len(c.layers)))
	writeFloat64(buf, c.growth)
	writeFloat64(buf, c.tightening)
	for _, l := range c.layers {
		writeUint64(buf, l.entries)
		writeFloat64(buf, l.error)
		writeUint32(buf, l.hashes)
		writeFloat64(buf, l.bpe)
		writeUint64(buf, l.bits)
		buf.WriteByte(l.vec.N2())
		writeUint64(buf, l.vec.Bytes())
		writeUint64(buf, l.size)
	}
	return buf.Bytes()
}

// DecodeBloomChainHeader reconstructs a chain with zeroed bit vectors sized
// per the header, ready to receive chunk payloads via LoadChunk.
func DecodeBloomChainHeader(data []byte) (*BloomChain, error) {
	r := bytes.NewReader(data)
	size, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "decode-header", "truncated header", err)
	}
	nfilters, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "decode-header", "truncated header", err)
	}
	growth, err := readFloat64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "decode-header", "truncated header", err)
	}
	tightening, err := readFloat64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "decode-header", "truncated header", err)
	}
	c := &BloomChain{size: size, growth: growth, tightening: tightening}
	for i := uint64(0); i < nfilters; i++ {
		entries, err := readUint64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "decode-header", "truncated layer record", err)
		}
		errRate, err := readFloat64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "decode-header", "truncated layer record", err)
		}
		hashes, err := readUint32(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "decode-header", "truncated layer record", err)
		}
		bpe, err := readFloat64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "decode-header", "truncated layer record", err)
		}
		bits, err := readUint64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "decode-header", "truncated layer record", err)
		}
		n2, err := r.ReadByte()
		if err != nil {
			return nil, wrapError(KindEncodingError, "decode-header", "truncated layer record", err)
		}
		nbytes, err := readUint64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "decode-header", "truncated layer record", err)
		}
		lsize, err := readUint64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "decode-header", "truncated layer record", err)
		}
		vec := bitVectorFromRaw(bits, n2, make([]byte, nbytes))
		c.layers = append(c.layers, &BloomLayer{
			entries: entries, error: errRate, hashes: hashes, bpe: bpe, bits: bits, vec: vec, size: lsize,
		})
	}
	return c, nil
}

// EncodeChunk returns up to maxBytes of one layer's bit vector payload and
// the cursor to resume from. Cursor 0 returns the header and sentinel 1;
// exhaustion returns a zero-length chunk with cursorTerminal.
func (c *BloomChain) EncodeChunk(cursor uint64, maxBytes int) ([]byte, uint64, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultChunkBytes
	}
	if cursor == cursorHeader {
		return c.EncodeHeader(), cursorAfterHeader, nil
	}
	if cursor == cursorTerminal {
		return nil, cursorTerminal, nil
	}
	var index, offset uint32
	if cursor == cursorAfterHeader {
		index, offset = 0, 0
	} else {
		index, offset = unpackChunkCursor(cursor)
	}
	for int(index) < len(c.layers) {
		raw := c.layers[index].vec.RawBytes()
		if int(offset) >= len(raw) {
			index++
			offset = 0
			continue
		}
		end := int(offset) + maxBytes
		if end > len(raw) {
			end = len(raw)
		}
		chunk := raw[offset:end]
		newOffset := uint32(end)
		newIndex := index
		if int(newOffset) >= len(raw) {
			newIndex++
			newOffset = 0
		}
		if int(newIndex) >= len(c.layers) {
			return chunk, cursorTerminal, nil
		}
		return chunk, packChunkCursor(newIndex, newOffset), nil
	}
	return nil, cursorTerminal, nil
}

// LoadChunk writes data into the layer/offset addressed by cursor and
// returns the cursor for the next expected chunk.
func (c *BloomChain) LoadChunk(cursor uint64, data []byte) (uint64, error) {
	if cursor == cursorAfterHeader {
		cursor = packChunkCursor(0, 0)
	}
	index, offset := unpackChunkCursor(cursor)
	if int(index) >= len(c.layers) {
		return cursorTerminal, newError(KindEncodingError, "loadchunk", "layer index out of range")
	}
	raw := c.layers[index].vec.RawBytes()
	if int(offset)+len(data) > len(raw) {
		return cursorTerminal, newError(KindEncodingError, "loadchunk", "chunk exceeds layer bounds")
	}
	copy(raw[offset:], data)
	newOffset := offset + uint32(len(data))
	newIndex := index
	if int(newOffset) >= len(raw) {
		newIndex++
		newOffset = 0
	}
	if int(newIndex) >= len(c.layers) {
		return cursorTerminal, nil
	}
	return packChunkCursor(newIndex, newOffset), nil
}

// SaveRDB serializes the full chain, including bit vector payloads, as a
// single self-contained blob versioned with encver.
func (c *BloomChain) SaveRDB() []byte {
	buf := new(bytes.Buffer)
	writeUint32(buf, CurrentEncVer)
	writeUint64(buf, c.size)
	writeUint64(buf, uint64(len(c.layers)))
	writeFloat64(buf, c.growth)
	writeFloat64(buf, c.tightening)
	for _, l := range c.layers {
		writeUint64(buf, l.entries)
		writeFloat64(buf, l.error)
		writeUint32(buf, l.hashes)
		writeFloat64(buf, l.bpe)
		writeUint64(buf, l.bits)
		buf.WriteByte(l.vec.N2())
		raw := l.vec.RawBytes()
		writeUint64(buf, uint64(len(raw)))
		buf.Write(raw)
		writeUint64(buf, l.size)
	}
	return buf.Bytes()
}

// LoadBloomChainRDB reconstructs a chain from SaveRDB output, supporting
// the legacy encver=0 layout (no bits/n2 fields; bits is recomputed and n2
// treated as 0, per spec §4.F).
func LoadBloomChainRDB(data []byte) (*BloomChain, error) {
	r := bytes.NewReader(data)
	ver, err := readUint32(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated encver", err)
	}
	if ver > CurrentEncVer {
		return nil, newError(KindEncodingError, "load", "unsupported encver")
	}

	size, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated header", err)
	}
	nfilters, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated header", err)
	}
	growth, err := readFloat64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated header", err)
	}
	tightening, err := readFloat64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated header", err)
	}

	c := &BloomChain{size: size, growth: growth, tightening: tightening}
	for i := uint64(0); i < nfilters; i++ {
		entries, err := readUint64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "load", "truncated layer record", err)
		}
		errRate, err := readFloat64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "load", "truncated layer record", err)
		}
		hashes, err := readUint32(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "load", "truncated layer record", err)
		}
		bpe, err := readFloat64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "load", "truncated layer record", err)
		}

		var bits uint64
		var n2 uint8
		if ver >= 1 {
			bits, err = readUint64(r)
			if err != nil {
				return nil, wrapError(KindEncodingError, "load", "truncated layer record", err)
			}
			n2, err = r.ReadByte()
			if err != nil {
				return nil, wrapError(KindEncodingError, "load", "truncated layer record", err)
			}
		}

		nbytes, err := readUint64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "load", "truncated layer record", err)
		}
		raw := make([]byte, nbytes)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, wrapError(KindEncodingError, "load", "truncated bit vector payload", err)
		}
		lsize, err := readUint64(r)
		if err != nil {
			return nil, wrapError(KindEncodingError, "load", "truncated layer record", err)
		}

		if ver == LegacyEncVer {
			bits = uint64(math.Ceil(float64(entries) * bpe))
			n2 = 0
		}

		vec := bitVectorFromRaw(bits, n2, raw)
		c.layers = append(c.layers, &BloomLayer{
			entries: entries, error: errRate, hashes: hashes, bpe: bpe, bits: bits, vec: vec, size: lsize,
		})
	}
	return c, nil
}

// --- CuckooFilter wire format (spec §4.F) ---

// RawBytes concatenates a sub-filter's bucket fingerprint bytes in index
// order, for debug/inspection callers outside this package.
func (sf *CuckooSubFilter) RawBytes() []byte { return sf.rawBytes() }

// rawBytes concatenates a sub-filter's bucket fingerprint bytes in index
// order.
func (sf *CuckooSubFilter) rawBytes() []byte {
	buf := make([]byte, len(sf.buckets)*CuckooBucketSize)
	for i, b := range sf.buckets {
		copy(buf[i*CuckooBucketSize:], b.fp[:])
	}
	return buf
}

// loadRawBytes overwrites bucket fingerprint bytes starting at offset.
func (sf *CuckooSubFilter) loadRawBytes(offset uint32, data []byte) error {
	total := len(sf.buckets) * CuckooBucketSize
	if int(offset)+len(data) > total {
		return newError(KindEncodingError, "loadchunk", "chunk exceeds sub-filter bounds")
	}
	for i, b := range data {
		pos := int(offset) + i
		sf.buckets[pos/CuckooBucketSize].fp[pos%CuckooBucketSize] = b
	}
	return nil
}

// EncodeHeader serializes the fixed-size record {numItems, numBuckets,
// numDeletes, numFilters}, all 64-bit unsigned little-endian.
func (cf *CuckooFilter) EncodeHeader() []byte {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	buf := new(bytes.Buffer)
	writeUint64(buf, cf.numItems)
	writeUint64(buf, cf.numBuckets)
	writeUint64(buf, cf.numDeletes)
	writeUint64(buf, uint64(len(cf.subFilters)))
	return buf.Bytes()
}

// DecodeCuckooHeader reconstructs a filter with empty sub-filters sized
// per the header, ready to receive chunk payloads via LoadChunk.
func DecodeCuckooHeader(data []byte) (*CuckooFilter, error) {
	r := bytes.NewReader(data)
	numItems, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "decode-header", "truncated header", err)
	}
	numBuckets, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "decode-header", "truncated header", err)
	}
	numDeletes, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "decode-header", "truncated header", err)
	}
	numFilters, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "decode-header", "truncated header", err)
	}

	now := time.Now()
	cf := &CuckooFilter{
		numBuckets: numBuckets, numItems: numItems, numDeletes: numDeletes,
		createdAt: now, lastModified: now, lastStatsReset: now,
	}
	for i := uint64(0); i < numFilters; i++ {
		cf.subFilters = append(cf.subFilters, newCuckooSubFilter(numBuckets))
	}
	return cf, nil
}

// EncodeChunk returns up to maxBytes of one sub-filter's raw bucket array
// and the cursor to resume from.
func (cf *CuckooFilter) EncodeChunk(cursor uint64, maxBytes int) ([]byte, uint64, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultChunkBytes
	}
	if cursor == cursorHeader {
		return cf.EncodeHeader(), cursorAfterHeader, nil
	}
	if cursor == cursorTerminal {
		return nil, cursorTerminal, nil
	}

	cf.mu.RLock()
	defer cf.mu.RUnlock()

	if cf.numItems == 0 && cursor == cursorAfterHeader {
		return nil, cursorTerminal, nil
	}

	var index, offset uint32
	if cursor == cursorAfterHeader {
		index, offset = 0, 0
	} else {
		index, offset = unpackChunkCursor(cursor)
	}
	for int(index) < len(cf.subFilters) {
		raw := cf.subFilters[index].rawBytes()
		if int(offset) >= len(raw) {
			index++
			offset = 0
			continue
		}
		end := int(offset) + maxBytes
		if end > len(raw) {
			end = len(raw)
		}
		chunk := raw[offset:end]
		newOffset := uint32(end)
		newIndex := index
		if int(newOffset) >= len(raw) {
			newIndex++
			newOffset = 0
		}
		if int(newIndex) >= len(cf.subFilters) {
			return chunk, cursorTerminal, nil
		}
		return chunk, packChunkCursor(newIndex, newOffset), nil
	}
	return nil, cursorTerminal, nil
}

// LoadChunk overwrites the byte range addressed by cursor in the matching
// sub-filter, appending a fresh sub-filter if cursor addresses one beyond
// those already present.
func (cf *CuckooFilter) LoadChunk(cursor uint64, data []byte) (uint64, error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cursor == cursorAfterHeader {
		cursor = packChunkCursor(0, 0)
	}
	index, offset := unpackChunkCursor(cursor)
	for uint32(len(cf.subFilters)) <= index {
		cf.subFilters = append(cf.subFilters, newCuckooSubFilter(cf.numBuckets))
	}
	if err := cf.subFilters[index].loadRawBytes(offset, data); err != nil {
		return cursorTerminal, err
	}
	cf.lastModified = time.Now()

	raw := cf.subFilters[index].rawBytes()
	newOffset := offset + uint32(len(data))
	newIndex := index
	if int(newOffset) >= len(raw) {
		newIndex++
		newOffset = 0
	}
	if int(newIndex) >= len(cf.subFilters) {
		return cursorTerminal, nil
	}
	return packChunkCursor(newIndex, newOffset), nil
}

// SaveRDB serializes the full filter, including bucket payloads, as a
// single self-contained blob versioned with encver.
func (cf *CuckooFilter) SaveRDB() []byte {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	buf := new(bytes.Buffer)
	writeUint32(buf, CurrentEncVer)
	writeUint64(buf, uint64(len(cf.subFilters)))
	writeUint64(buf, cf.numBuckets)
	writeUint64(buf, cf.numItems)
	writeUint64(buf, cf.numDeletes)
	for _, sf := range cf.subFilters {
		buf.Write(sf.rawBytes())
	}
	return buf.Bytes()
}

// LoadCuckooFilterRDB reconstructs a filter from SaveRDB output.
func LoadCuckooFilterRDB(data []byte) (*CuckooFilter, error) {
	r := bytes.NewReader(data)
	ver, err := readUint32(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated encver", err)
	}
	if ver > CurrentEncVer {
		return nil, newError(KindEncodingError, "load", "unsupported encver")
	}

	numFilters, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated header", err)
	}
	numBuckets, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated header", err)
	}
	numItems, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated header", err)
	}
	numDeletes, err := readUint64(r)
	if err != nil {
		return nil, wrapError(KindEncodingError, "load", "truncated header", err)
	}

	now := time.Now()
	cf := &CuckooFilter{
		numBuckets: numBuckets, numItems: numItems, numDeletes: numDeletes,
		createdAt: now, lastModified: now, lastStatsReset: now,
	}
	bucketBytes := int(numBuckets) * CuckooBucketSize
	for i := uint64(0); i < numFilters; i++ {
		raw := make([]byte, bucketBytes)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, wrapError(KindEncodingError, "load", "truncated bucket array", err)
		}
		sf := newCuckooSubFilter(numBuckets)
		sf.loadRawBytes(0, raw)
		cf.subFilters = append(cf.subFilters, sf)
	}
	return cf, nil
}
