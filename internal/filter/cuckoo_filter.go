package filter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// InsertResult reports the outcome of a CuckooFilter insertion.
type InsertResult int

const (
	Inserted InsertResult = iota
	InsertedExists
	InsertedNoSpace
)

// CuckooFilter is a sequence of same-sized CuckooSubFilters. It grows by
// appending a new sub-filter whenever random-walk insertion exhausts its
// kick budget in every existing sub-filter (spec §3, §4.E) — distinct from
// the teacher's original single-sub-filter, no-growth cuckoo filter.
type CuckooFilter struct {
	config *FilterConfig
	name   string

	mu         sync.RWMutex
	numBuckets uint64
	subFilters []*CuckooSubFilter
	numItems   uint64
	numDeletes uint64

	addOps, lookupOps, deleteOps, clearOps     uint64
	successfulAdds, failedAdds                 uint64
	successfulDeletes, failedDeletes           uint64
	evictionChains                             uint64
	maxEvictionLen                             uint32
	resizeOps                                  uint64

	createdAt, lastModified, lastStatsReset time.Time
}

// NewCuckooFilterFromCapacity reserves a filter sized for capacity items,
// per spec §4.E Reserve: numBuckets = nextPow2(capacity / bucketSize).
func NewCuckooFilterFromCapacity(name string, capacity uint64) (*CuckooFilter, error) {
	if capacity == 0 {
		return nil, newError(KindBadArgument, "reserve", "capacity must be greater than 0")
	}
	numBuckets := nextPowerOfTwo((capacity + CuckooBucketSize - 1) / CuckooBucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}

	now := time.Now()
	cf := &CuckooFilter{
		name:           name,
		numBuckets:     numBuckets,
		subFilters:     []*CuckooSubFilter{newCuckooSubFilter(numBuckets)},
		createdAt:      now,
		lastModified:   now,
		lastStatsReset: now,
	}
	return cf, nil
}

// NewCuckooFilter creates a filter from a FilterConfig, kept for parity with
// the teacher's constructor shape (internal/filter/interfaces.go). Only Name
// and ExpectedItems are read; FingerprintSize, BucketSize,
// MaxEvictionAttempts, EnableAutoResize and FalsePositiveRate are not used —
// the filter always uses CuckooFingerprintBits, CuckooBucketSize and
// CuckooMaxKicks and always grows by appending sub-filters.
func NewCuckooFilter(config *FilterConfig) (*CuckooFilter, error) {
	if config == nil {
		return nil, newError(KindBadArgument, "create", "config is required")
	}
	cf, err := NewCuckooFilterFromCapacity(config.Name, config.ExpectedItems)
	if err != nil {
		return nil, err
	}
	cf.config = config
	return cf, nil
}

func (cf *CuckooFilter) hashItem(item []byte) uint64 { return xxhash.Sum64(item) }

// Insert performs duplicate-permitting insertion (spec §4.E Insert).
func (cf *CuckooFilter) Insert(item []byte) (InsertResult, error) {
	atomic.AddUint64(&cf.addOps, 1)
	h := cf.hashItem(item)
	fp := fingerprintOf(h)

	cf.mu.Lock()
	defer cf.mu.Unlock()

	i1 := primaryIndex(h, cf.numBuckets-1)

	for _, sf := range cf.subFilters {
		if sf.tryInsert(i1, fp, CuckooMaxKicks) {
			cf.numItems++
			atomic.AddUint64(&cf.successfulAdds, 1)
			cf.lastModified = time.Now()
			return Inserted, nil
		}
	}

	atomic.AddUint64(&cf.evictionChains, 1)
	newSF := newCuckooSubFilter(cf.numBuckets)
	cf.subFilters = append(cf.subFilters, newSF)
	atomic.AddUint64(&cf.resizeOps, 1)

	if newSF.tryInsert(i1, fp, CuckooMaxKicks) {
		cf.numItems++
		atomic.AddUint64(&cf.successfulAdds, 1)
		cf.lastModified = time.Now()
		return Inserted, nil
	}

	atomic.AddUint64(&cf.failedAdds, 1)
	return InsertedNoSpace, newError(KindCapacity, "insert", "filter is full")
}

// InsertUnique performs Check-then-Insert with no mutation on a hit
// (spec §4.E InsertUnique).
func (cf *CuckooFilter) InsertUnique(item []byte) (InsertResult, error) {
	if cf.Contains(item) {
		return InsertedExists, nil
	}
	return cf.Insert(item)
}

// Contains checks presence across every sub-filter (spec §4.D/4.E Check).
func (cf *CuckooFilter) Contains(item []byte) bool {
	atomic.AddUint64(&cf.lookupOps, 1)
	h := cf.hashItem(item)
	fp := fingerprintOf(h)

	cf.mu.RLock()
	defer cf.mu.RUnlock()

	i1 := primaryIndex(h, cf.numBuckets-1)
	for _, sf := range cf.subFilters {
		i2 := sf.altIndex(i1, fp)
		if sf.contains(i1, i2, fp) {
			return true
		}
	}
	return false
}

// Count sums slot occurrences of item's fingerprint across every sub-filter
// (spec §4.D Count).
func (cf *CuckooFilter) Count(item []byte) uint64 {
	h := cf.hashItem(item)
	fp := fingerprintOf(h)

	cf.mu.RLock()
	defer cf.mu.RUnlock()

	i1 := primaryIndex(h, cf.numBuckets-1)
	var total uint64
	for _, sf := range cf.subFilters {
		i2 := sf.altIndex(i1, fp)
		total += sf.count(i1, i2, fp)
	}
	return total
}

// Delete removes the first matching fingerprint found across sub-filters
// (spec §4.E Delete).
func (cf *CuckooFilter) Delete(item []byte) bool {
	atomic.AddUint64(&cf.deleteOps, 1)
	h := cf.hashItem(item)
	fp := fingerprintOf(h)

	cf.mu.Lock()
	defer cf.mu.Unlock()

	i1 := primaryIndex(h, cf.numBuckets-1)
	for _, sf := range cf.subFilters {
		i2 := sf.altIndex(i1, fp)
		if sf.delete(i1, i2, fp) {
			cf.numItems--
			cf.numDeletes++
			atomic.AddUint64(&cf.successfulDeletes, 1)
			cf.lastModified = time.Now()
			return true
		}
	}
	atomic.AddUint64(&cf.failedDeletes, 1)
	return false
}

func (cf *CuckooFilter) NumItems() uint64 {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.numItems
}

func (cf *CuckooFilter) NumDeletes() uint64 {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.numDeletes
}

func (cf *CuckooFilter) NumBuckets() uint64 { return cf.numBuckets }

func (cf *CuckooFilter) NumFilters() int {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return len(cf.subFilters)
}

func (cf *CuckooFilter) SubFilters() []*CuckooSubFilter {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.subFilters
}

// EstimatedMemoryUsage sums bucket storage across every sub-filter plus
// struct overhead (spec §5 MemUsage contract).
func (cf *CuckooFilter) EstimatedMemoryUsage() uint64 {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	var total uint64
	for _, sf := range cf.subFilters {
		total += sf.numBuckets * CuckooBucketSize
	}
	return total + 128
}

// FalsePositiveRate is the theoretical per-lookup FPR: 2*bucketSize / 2^fpBits
// (two candidate buckets), multiplied by the number of sub-filters since any
// of them can yield a false hit.
func (cf *CuckooFilter) FalsePositiveRate() float64 {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	perFilter := float64(2*CuckooBucketSize) / float64(uint64(1)<<CuckooFingerprintBits)
	return perFilter * float64(len(cf.subFilters))
}

func (cf *CuckooFilter) GetStats() *FilterStats {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return &FilterStats{
		Size:              cf.numItems,
		Capacity:          cf.numBuckets * CuckooBucketSize * uint64(len(cf.subFilters)),
		LoadFactor:        float64(cf.numItems) / float64(cf.numBuckets*CuckooBucketSize*uint64(len(cf.subFilters))),
		MemoryUsage:       cf.EstimatedMemoryUsage(),
		FalsePositiveRate: cf.FalsePositiveRate(),
		AddOperations:     atomic.LoadUint64(&cf.addOps),
		LookupOperations:  atomic.LoadUint64(&cf.lookupOps),
		DeleteOperations:  atomic.LoadUint64(&cf.deleteOps),
		ClearOperations:   atomic.LoadUint64(&cf.clearOps),
		SuccessfulAdds:    atomic.LoadUint64(&cf.successfulAdds),
		FailedAdds:        atomic.LoadUint64(&cf.failedAdds),
		SuccessfulDeletes: atomic.LoadUint64(&cf.successfulDeletes),
		FailedDeletes:     atomic.LoadUint64(&cf.failedDeletes),
		EvictionChains:    atomic.LoadUint64(&cf.evictionChains),
		MaxEvictionLength: atomic.LoadUint32(&cf.maxEvictionLen),
		ResizeOperations:  atomic.LoadUint64(&cf.resizeOps),
		CreatedAt:         cf.createdAt,
		LastModified:      cf.lastModified,
		LastStatsReset:    cf.lastStatsReset,
	}
}

// nextPowerOfTwo returns the smallest power of two >= n (n >= 1).
func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
