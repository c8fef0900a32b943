package filterstore

import (
	"time"

	"hypercache/internal/filter"
)

// EncodeChunkBloom implements BF.SCANDUMP's per-call contract.
func (ks *Keyspace) EncodeChunkBloom(key string, cursor uint64, maxBytes int) ([]byte, uint64, error) {
	e, err := ks.bloomEntry(key, "bf.scandump")
	if err != nil {
		return nil, 0, err
	}
	defer e.mu.Unlock()
	return e.bloom.EncodeChunk(cursor, maxBytes)
}

// LoadChunkBloom implements BF.LOADCHUNK for an existing key, writing
// chunk bytes into the layer/offset the cursor addresses.
func (ks *Keyspace) LoadChunkBloom(key string, cursor uint64, data []byte) (uint64, error) {
	e, err := ks.bloomEntry(key, "bf.loadchunk")
	if err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return e.bloom.LoadChunk(cursor, data)
}

// LoadHeaderBloom implements the "cursor 1 with absent key = header" case of
// BF.LOADCHUNK: it creates the key from a previously-dumped header.
func (ks *Keyspace) LoadHeaderBloom(key string, header []byte) error {
	chain, err := filter.DecodeBloomChainHeader(header)
	if err != nil {
		return err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, exists := ks.entries[key]; exists {
		return alreadyExists("bf.loadchunk", key)
	}

	entries, errRate := deriveBloomDefaults(chain)
	ks.entries[key] = &entry{
		kind: KindBloom, bloom: chain,
		initialEntries: entries, initialError: errRate,
		createdAt: time.Now(),
	}
	return nil
}

func deriveBloomDefaults(c *filter.BloomChain) (uint64, float64) {
	layers := c.Layers()
	if len(layers) == 0 {
		return 100, 0.01
	}
	last := layers[len(layers)-1]
	return last.Entries(), last.ErrorRate()
}

// EncodeChunkCuckoo implements CF.SCANDUMP's per-call contract.
func (ks *Keyspace) EncodeChunkCuckoo(key string, cursor uint64, maxBytes int) ([]byte, uint64, error) {
	e, err := ks.cuckooEntry(key, "cf.scandump")
	if err != nil {
		return nil, 0, err
	}
	defer e.mu.Unlock()
	return e.cuckoo.EncodeChunk(cursor, maxBytes)
}

// LoadChunkCuckoo implements CF.LOADCHUNK for an existing key.
func (ks *Keyspace) LoadChunkCuckoo(key string, cursor uint64, data []byte) (uint64, error) {
	e, err := ks.cuckooEntry(key, "cf.loadchunk")
	if err != nil {
		return 0, err
	}
	defer e.mu.Unlock()
	return e.cuckoo.LoadChunk(cursor, data)
}

// LoadHeaderCuckoo implements CF.LOADHDR: creates the key from a
// previously-dumped header.
func (ks *Keyspace) LoadHeaderCuckoo(key string, header []byte) error {
	cf, err := filter.DecodeCuckooHeader(header)
	if err != nil {
		return err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, exists := ks.entries[key]; exists {
		return alreadyExists("cf.loadhdr", key)
	}
	ks.entries[key] = &entry{kind: KindCuckoo, cuckoo: cf, createdAt: time.Now()}
	return nil
}
