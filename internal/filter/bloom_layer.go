package filter

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// BloomLayer is one bloom filter over a bit vector, sized from a target
// (entries, error) pair. Once created its sizing parameters are immutable;
// only size (live insert count) and the bit vector mutate.
type BloomLayer struct {
	entries uint64
	error   float64
	bpe     float64
	hashes  uint32
	bits    uint64
	vec     *BitVector
	size    uint64
}

// NewBloomLayer sizes and allocates a layer for the given target capacity
// and false-positive rate, per spec §4.B.
func NewBloomLayer(entries uint64, errorRate float64) *BloomLayer {
	bpe := bitsPerEntry(errorRate)
	nbits := uint64(math.Ceil(float64(entries) * bpe))
	if nbits < 1 {
		nbits = 1
	}
	k := uint32(math.Round(math.Ln2 * bpe))
	if k < 1 {
		k = 1
	}

	return &BloomLayer{
		entries: entries,
		error:   errorRate,
		bpe:     bpe,
		hashes:  k,
		bits:    nbits,
		vec:     NewBitVector(nbits),
	}
}

// bitsPerEntry computes bpe = -log(error) / (ln 2)^2.
func bitsPerEntry(errorRate float64) float64 {
	return -math.Log(errorRate) / (math.Ln2 * math.Ln2)
}

// probes returns the two base hashes used to derive every probe index via
// double hashing: probe_i = (h1 + i*h2) mod bits.
func probes(item []byte) (h1, h2 uint64) {
	h1 = xxhash.Sum64(item)
	// Derive a second, independent-enough hash by hashing the first hash's
	// bytes back through xxhash rather than re-hashing the item with a
	// different salt, avoiding an extra allocation per probe pair.
	var buf [8]byte
	putUint64LE(buf[:], h1)
	h2 = xxhash.Sum64(buf[:])
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

// Check tests all k probes; returns true iff every probed bit is set.
func (l *BloomLayer) Check(item []byte) bool {
	h1, h2 := probes(item)
	for i := uint32(0); i < l.hashes; i++ {
		idx := (h1 + uint64(i)*h2) % l.bits
		if !l.vec.Get(idx) {
			return false
		}
	}
	return true
}

// Add sets all k probes and returns true iff at least one probed bit was
// previously 0 (i.e. the item was certainly absent before this call).
func (l *BloomLayer) Add(item []byte) bool {
	h1, h2 := probes(item)
	wasAbsent := false
	for i := uint32(0); i < l.hashes; i++ {
		idx := (h1 + uint64(i)*h2) % l.bits
		if l.vec.Set(idx) {
			wasAbsent = true
		}
	}
	l.size++
	return wasAbsent
}

// Saturated reports whether this layer has recorded at least its target
// entry count, meaning new inserts should land in a newer layer.
func (l *BloomLayer) Saturated() bool { return l.size >= l.entries }

func (l *BloomLayer) Entries() uint64  { return l.entries }
func (l *BloomLayer) ErrorRate() float64 { return l.error }
func (l *BloomLayer) Hashes() uint32    { return l.hashes }
func (l *BloomLayer) Bits() uint64      { return l.bits }
func (l *BloomLayer) Size() uint64      { return l.size }
func (l *BloomLayer) BitsPerEntry() float64 { return l.bpe }

func putUint64LE(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}
