package filterstore

import (
	"time"

	"hypercache/internal/filter"
	"hypercache/internal/logging"
)

// ReserveBloom implements BF.RESERVE: create-if-absent with explicit sizing.
// The chain itself is allocated empty; entries/errorRate become the defaults
// passed to every Add (spec §3, §6).
func (ks *Keyspace) ReserveBloom(key string, entries uint64, errorRate, growth, tightening float64) error {
	if entries == 0 {
		return badArgument("bf.reserve", "bad capacity")
	}
	if errorRate <= 0 || errorRate >= 1 {
		return badArgument("bf.reserve", "bad error rate")
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, exists := ks.entries[key]; exists {
		return alreadyExists("bf.reserve", key)
	}

	ks.entries[key] = &entry{
		kind:           KindBloom,
		bloom:          filter.NewBloomChain(growth, tightening),
		initialEntries: entries,
		initialError:   errorRate,
		createdAt:      time.Now(),
	}
	logging.Info(nil, logging.ComponentFilter, "bf_reserve", "bloom chain created", map[string]interface{}{
		"key": key, "entries": entries, "error_rate": errorRate,
	})
	return nil
}

// DefaultBloomParams are applied by BF.ADD/BF.MADD on an absent key, per the
// module-load `initial_size`/`error_rate` configuration (spec §6, §12).
type DefaultBloomParams struct {
	Entries    uint64
	ErrorRate  float64
	Growth     float64
	Tightening float64
}

// openOrCreateBloom implements the reserve-on-absent behavior BF.ADD needs
// (spec §12, ported from rebloom.c's BFAdd_RedisCommand).
func (ks *Keyspace) openOrCreateBloom(key string, defaults DefaultBloomParams) (*entry, error) {
	ks.mu.Lock()
	e, exists := ks.entries[key]
	if !exists {
		e = &entry{
			kind:           KindBloom,
			bloom:          filter.NewBloomChain(defaults.Growth, defaults.Tightening),
			initialEntries: defaults.Entries,
			initialError:   defaults.ErrorRate,
			createdAt:      time.Now(),
		}
		ks.entries[key] = e
	}
	ks.mu.Unlock()

	if exists && e.kind != KindBloom {
		return nil, wrongType("bf.add")
	}
	return e, nil
}

// AddBloom implements BF.ADD for one item, auto-creating the chain with
// defaults if key is absent.
func (ks *Keyspace) AddBloom(key string, item []byte, defaults DefaultBloomParams) (bool, error) {
	e, err := ks.openOrCreateBloom(key, defaults)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	added := e.bloom.Add(item, e.initialEntries, e.initialError)
	logging.Debug(nil, logging.ComponentFilter, "bf_add", "item added to bloom chain", map[string]interface{}{
		"key": key, "layers": e.bloom.NumFilters(),
	})
	return added, nil
}

// MAddBloom implements BF.MADD: one reply slot per item, same key.
func (ks *Keyspace) MAddBloom(key string, items [][]byte, defaults DefaultBloomParams) ([]bool, error) {
	e, err := ks.openOrCreateBloom(key, defaults)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	results := make([]bool, len(items))
	for i, item := range items {
		results[i] = e.bloom.Add(item, e.initialEntries, e.initialError)
	}
	return results, nil
}

// ExistsBloom implements BF.EXISTS. An absent key answers false for every
// item rather than erroring — a bloom filter with no data contains nothing.
func (ks *Keyspace) ExistsBloom(key string, item []byte) (bool, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return false, nil
	}
	if e.kind != KindBloom {
		return false, wrongType("bf.exists")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bloom.Check(item), nil
}

// MExistsBloom implements BF.MEXISTS. Every item is checked, one reply slot
// per item.
func (ks *Keyspace) MExistsBloom(key string, items [][]byte) ([]bool, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return make([]bool, len(items)), nil
	}
	if e.kind != KindBloom {
		return nil, wrongType("bf.mexists")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	results := make([]bool, len(items))
	for i, item := range items {
		results[i] = e.bloom.Check(item)
	}
	return results, nil
}

// bloomEntry returns the locked entry at key for debug/encode use, erroring
// NotFound/WrongType as appropriate. Callers must Unlock e.mu when done.
func (ks *Keyspace) bloomEntry(key, op string) (*entry, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return nil, notFound(op, key)
	}
	if e.kind != KindBloom {
		return nil, wrongType(op)
	}
	e.mu.Lock()
	return e, nil
}
