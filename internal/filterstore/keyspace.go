// Package filterstore implements the per-key keyspace contract of spec §4.G:
// create-if-absent, open-existing, get-info, encode-chunk, load-chunk, free,
// on top of the bloom/cuckoo engines in internal/filter. It is a second,
// parallel keyspace alongside internal/storage.BasicStore's string values —
// the command layer (internal/network/resp/filter_commands.go) is
// responsible for cross-checking the two namespaces to honor the shared
// WRONGTYPE contract described in SPEC_FULL.md.
package filterstore

import (
	"sync"
	"time"

	"hypercache/internal/filter"
	"hypercache/internal/logging"
)

// Kind distinguishes which engine a keyspace entry wraps.
type Kind int

const (
	KindBloom Kind = iota
	KindCuckoo
)

func (k Kind) String() string {
	if k == KindCuckoo {
		return "CF"
	}
	return "BF"
}

// entry is one keyspace slot. Only one of bloom/cuckoo is set, per kind.
// mu serializes operations on this key; the keyspace-level lock only
// guards map membership, matching spec §5's per-key serialization model.
type entry struct {
	mu     sync.Mutex
	kind   Kind
	bloom  *filter.BloomChain
	cuckoo *filter.CuckooFilter

	// initialEntries/initialError are the BF.RESERVE-time defaults passed to
	// BloomChain.Add on every insert, since the chain itself only learns its
	// first layer's sizing lazily (spec §3, "created empty on first insert").
	initialEntries uint64
	initialError   float64

	createdAt time.Time
}

// Keyspace holds every BF/CF key live on this node.
type Keyspace struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewKeyspace creates an empty keyspace.
func NewKeyspace() *Keyspace {
	return &Keyspace{entries: make(map[string]*entry)}
}

func badArgument(op, msg string) error {
	return &filter.Error{Kind: filter.KindBadArgument, Op: op, Message: msg}
}

func notFound(op, key string) error {
	return &filter.Error{Kind: filter.KindNotFound, Op: op, Message: "no such key: " + key}
}

func alreadyExists(op, key string) error {
	return &filter.Error{Kind: filter.KindAlreadyExists, Op: op, Message: "key already exists: " + key}
}

func wrongType(op string) error {
	return &filter.Error{Kind: filter.KindWrongType, Op: op, Message: "key holds the wrong filter kind"}
}

// Exists reports whether key is present in this keyspace, regardless of kind.
func (ks *Keyspace) Exists(key string) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	_, ok := ks.entries[key]
	return ok
}

// KindOf reports the kind of the entry at key, if any.
func (ks *Keyspace) KindOf(key string) (Kind, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	e, ok := ks.entries[key]
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Free removes key from the keyspace. Idempotent: freeing an absent key is
// a no-op, matching spec §5's "releases must be total and idempotent".
func (ks *Keyspace) Free(key string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.entries, key)
}

func (ks *Keyspace) lookup(key string) (*entry, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	e, ok := ks.entries[key]
	return e, ok
}

// Info is the get-info reply shape shared by both filter kinds; fields not
// meaningful to a kind are left zero.
type Info struct {
	Kind          Kind
	Size          uint64
	NumFilters    int
	Growth        float64
	Tightening    float64
	InitialError  float64
	NumBuckets    uint64
	NumDeletes    uint64
	MemoryUsage   uint64
	CreatedAt     time.Time
}

// GetInfo implements the get-info keyspace operation.
func (ks *Keyspace) GetInfo(key string) (*Info, error) {
	e, ok := ks.lookup(key)
	if !ok {
		return nil, notFound("get-info", key)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	info := &Info{Kind: e.kind, CreatedAt: e.createdAt}
	switch e.kind {
	case KindBloom:
		info.Size = e.bloom.Size()
		info.NumFilters = e.bloom.NumFilters()
		info.Growth = e.bloom.Growth()
		info.Tightening = e.bloom.Tightening()
		info.InitialError = e.initialError
		info.MemoryUsage = e.bloom.EstimatedMemoryUsage()
	case KindCuckoo:
		info.Size = e.cuckoo.NumItems()
		info.NumFilters = e.cuckoo.NumFilters()
		info.NumBuckets = e.cuckoo.NumBuckets()
		info.NumDeletes = e.cuckoo.NumDeletes()
		info.MemoryUsage = e.cuckoo.EstimatedMemoryUsage()
	}
	return info, nil
}
