package filter_test

import (
	"fmt"
	"testing"

	"hypercache/internal/filter"
)

func TestBloomChainRDBRoundTrip(t *testing.T) {
	chain := filter.NewBloomChain(filter.DefaultGrowth, filter.DefaultTightening)
	for i := 0; i < 30; i++ {
		chain.Add([]byte(fmt.Sprintf("rdb-item-%d", i)), 10, 0.01)
	}

	blob := chain.SaveRDB()
	restored, err := filter.LoadBloomChainRDB(blob)
	if err != nil {
		t.Fatalf("LoadBloomChainRDB: %v", err)
	}

	if restored.NumFilters() != chain.NumFilters() {
		t.Fatalf("layer count mismatch: got %d, want %d", restored.NumFilters(), chain.NumFilters())
	}
	if restored.Size() != chain.Size() {
		t.Errorf("size mismatch: got %d, want %d", restored.Size(), chain.Size())
	}
	for i := 0; i < 30; i++ {
		item := []byte(fmt.Sprintf("rdb-item-%d", i))
		if !restored.Check(item) {
			t.Errorf("restored chain missing item %q present before save", item)
		}
	}
}

func TestBloomChainChunkedEncodeDecode(t *testing.T) {
	chain := filter.NewBloomChain(filter.DefaultGrowth, filter.DefaultTightening)
	for i := 0; i < 20; i++ {
		chain.Add([]byte(fmt.Sprintf("chunk-item-%d", i)), 10, 0.01)
	}

	header, cursor, err := chain.EncodeChunk(0, 0)
	if err != nil {
		t.Fatalf("EncodeChunk(header): %v", err)
	}
	restored, err := filter.DecodeBloomChainHeader(header)
	if err != nil {
		t.Fatalf("DecodeBloomChainHeader: %v", err)
	}

	const smallChunk = 4
	for {
		chunk, next, err := chain.EncodeChunk(cursor, smallChunk)
		if err != nil {
			t.Fatalf("EncodeChunk at cursor %d: %v", cursor, err)
		}
		if len(chunk) > 0 {
			loadCursor := cursor
			if _, err := restored.LoadChunk(loadCursor, chunk); err != nil {
				t.Fatalf("LoadChunk at cursor %d: %v", loadCursor, err)
			}
		}
		cursor = next
		if len(chunk) == 0 {
			break
		}
	}

	for i := 0; i < 20; i++ {
		item := []byte(fmt.Sprintf("chunk-item-%d", i))
		if !restored.Check(item) {
			t.Errorf("chunk-reconstructed chain missing item %q", item)
		}
	}
}

func TestCuckooFilterRDBRoundTrip(t *testing.T) {
	cf, err := filter.NewCuckooFilterFromCapacity("rdb-roundtrip", 16)
	if err != nil {
		t.Fatalf("NewCuckooFilterFromCapacity: %v", err)
	}

	var inserted [][]byte
	for i := 0; i < 200; i++ {
		item := []byte(fmt.Sprintf("cuckoo-rdb-%d", i))
		result, err := cf.Insert(item)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if result == filter.Inserted {
			inserted = append(inserted, item)
		}
	}

	blob := cf.SaveRDB()
	restored, err := filter.LoadCuckooFilterRDB(blob)
	if err != nil {
		t.Fatalf("LoadCuckooFilterRDB: %v", err)
	}

	if restored.NumFilters() != cf.NumFilters() {
		t.Fatalf("sub-filter count mismatch: got %d, want %d", restored.NumFilters(), cf.NumFilters())
	}
	for _, item := range inserted {
		if !restored.Contains(item) {
			t.Errorf("restored cuckoo filter missing item %q", item)
		}
	}
}

func TestBloomChainHeaderRejectsUnsupportedEncVer(t *testing.T) {
	chain := filter.NewBloomChain(filter.DefaultGrowth, filter.DefaultTightening)
	chain.Add([]byte("seed"), 10, 0.01)

	blob := chain.SaveRDB()
	corrupted := append([]byte{}, blob...)
	corrupted[0] = byte(filter.CurrentEncVer + 1)

	if _, err := filter.LoadBloomChainRDB(corrupted); err == nil {
		t.Fatalf("expected LoadBloomChainRDB to reject an encver newer than CurrentEncVer")
	}
}

func TestBitVectorPowerOfTwoFastPath(t *testing.T) {
	bv := filter.NewBitVector(64)
	if bv.Bits() != 64 {
		t.Fatalf("expected 64 bits, got %d", bv.Bits())
	}
	if bv.N2() == 0 {
		t.Errorf("expected a power-of-two bit count to set the fast-path mask field")
	}

	for i := uint64(0); i < bv.Bits(); i++ {
		if bv.Get(i) {
			t.Fatalf("bit %d should start unset", i)
		}
	}
	bv.Set(5)
	if !bv.Get(5) {
		t.Errorf("bit 5 should be set after Set(5)")
	}
	bv.ClearAll()
	if bv.Get(5) {
		t.Errorf("bit 5 should be unset after ClearAll")
	}
}

func TestBitVectorRawBytesRoundTrip(t *testing.T) {
	bv := filter.NewBitVector(128)
	bv.Set(3)
	bv.Set(100)

	raw := bv.RawBytes()
	if len(raw) == 0 {
		t.Fatalf("expected a non-empty backing array for a 128-bit vector")
	}
	if raw[0]&(1<<3) == 0 || raw[12]&(1<<4) == 0 {
		t.Fatalf("expected bits 3 and 100 set through Set to read back from RawBytes, got %v", raw)
	}
}
