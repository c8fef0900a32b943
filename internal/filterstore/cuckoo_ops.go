package filterstore

import (
	"time"

	"hypercache/internal/filter"
	"hypercache/internal/logging"
)

// ReserveCuckoo implements CF.RESERVE: create-if-absent with a capacity hint.
func (ks *Keyspace) ReserveCuckoo(key string, capacity uint64) error {
	if capacity == 0 {
		return badArgument("cf.reserve", "bad capacity")
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, exists := ks.entries[key]; exists {
		return alreadyExists("cf.reserve", key)
	}

	cf, err := filter.NewCuckooFilterFromCapacity(key, capacity)
	if err != nil {
		return err
	}
	ks.entries[key] = &entry{kind: KindCuckoo, cuckoo: cf, createdAt: time.Now()}
	logging.Info(nil, logging.ComponentFilter, "cf_reserve", "cuckoo filter created", map[string]interface{}{
		"key": key, "capacity": capacity,
	})
	return nil
}

// DefaultCuckooCapacity is applied by CF.ADD/CF.ADDNX on an absent key when
// no explicit capacity argument is given.
const DefaultCuckooCapacity = 1024

// openOrCreateCuckoo mirrors openOrCreateBloom for the cuckoo keyspace.
func (ks *Keyspace) openOrCreateCuckoo(key string, capacity uint64) (*entry, error) {
	if capacity == 0 {
		capacity = DefaultCuckooCapacity
	}

	ks.mu.Lock()
	e, exists := ks.entries[key]
	if !exists {
		cf, err := filter.NewCuckooFilterFromCapacity(key, capacity)
		if err != nil {
			ks.mu.Unlock()
			return nil, err
		}
		e = &entry{kind: KindCuckoo, cuckoo: cf, createdAt: time.Now()}
		ks.entries[key] = e
	}
	ks.mu.Unlock()

	if exists && e.kind != KindCuckoo {
		return nil, wrongType("cf.add")
	}
	return e, nil
}

// AddCuckoo implements CF.ADD (duplicate-permitting insert).
func (ks *Keyspace) AddCuckoo(key string, item []byte, capacity uint64) (bool, error) {
	e, err := ks.openOrCreateCuckoo(key, capacity)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.cuckoo.Insert(item)
	if err != nil {
		return false, err
	}
	logging.Debug(nil, logging.ComponentFilter, "cf_add", "item inserted into cuckoo filter", map[string]interface{}{
		"key": key, "sub_filters": e.cuckoo.NumFilters(),
	})
	return result == filter.Inserted, nil
}

// AddNXCuckoo implements CF.ADDNX (insert-unique): no mutation on a hit.
func (ks *Keyspace) AddNXCuckoo(key string, item []byte, capacity uint64) (bool, error) {
	e, err := ks.openOrCreateCuckoo(key, capacity)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.cuckoo.InsertUnique(item)
	if err != nil {
		return false, err
	}
	return result == filter.Inserted, nil
}

// ExistsCuckoo implements CF.EXISTS. An absent key answers false.
func (ks *Keyspace) ExistsCuckoo(key string, item []byte) (bool, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return false, nil
	}
	if e.kind != KindCuckoo {
		return false, wrongType("cf.exists")
	}
	return e.cuckoo.Contains(item), nil
}

// MExistsCuckoo implements CF.MEXISTS, checking every item like BF.MEXISTS
// does — the fix for rebloom.c's CF multi-check early-return bug (spec §9, §12).
func (ks *Keyspace) MExistsCuckoo(key string, items [][]byte) ([]bool, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return make([]bool, len(items)), nil
	}
	if e.kind != KindCuckoo {
		return nil, wrongType("cf.mexists")
	}
	results := make([]bool, len(items))
	for i, item := range items {
		results[i] = e.cuckoo.Contains(item)
	}
	return results, nil
}

// CountCuckoo implements CF.COUNT.
func (ks *Keyspace) CountCuckoo(key string, item []byte) (uint64, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return 0, nil
	}
	if e.kind != KindCuckoo {
		return 0, wrongType("cf.count")
	}
	return e.cuckoo.Count(item), nil
}

// DeleteCuckoo implements CF.DEL.
func (ks *Keyspace) DeleteCuckoo(key string, item []byte) (bool, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return false, notFound("cf.del", key)
	}
	if e.kind != KindCuckoo {
		return false, wrongType("cf.del")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cuckoo.Delete(item), nil
}

// cuckooEntry returns the locked entry at key for debug/encode use.
// Callers must Unlock e.mu when done.
func (ks *Keyspace) cuckooEntry(key, op string) (*entry, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return nil, notFound(op, key)
	}
	if e.kind != KindCuckoo {
		return nil, wrongType(op)
	}
	e.mu.Lock()
	return e, nil
}
