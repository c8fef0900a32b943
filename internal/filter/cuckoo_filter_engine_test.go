package filter_test

import (
	"fmt"
	"testing"

	"hypercache/internal/filter"
)

func TestCuckooFilterEngineInsertAndContains(t *testing.T) {
	cf, err := filter.NewCuckooFilterFromCapacity("engine-basic", 128)
	if err != nil {
		t.Fatalf("NewCuckooFilterFromCapacity: %v", err)
	}

	item := []byte("widget-1")
	if cf.Contains(item) {
		t.Fatalf("fresh filter should not contain anything yet")
	}

	result, err := cf.Insert(item)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if result != filter.Inserted {
		t.Fatalf("expected Inserted, got %v", result)
	}
	if !cf.Contains(item) {
		t.Fatalf("filter should contain item immediately after insert")
	}
}

func TestCuckooFilterEngineInsertUniqueRejectsDuplicate(t *testing.T) {
	cf, err := filter.NewCuckooFilterFromCapacity("engine-unique", 64)
	if err != nil {
		t.Fatalf("NewCuckooFilterFromCapacity: %v", err)
	}

	item := []byte("only-once")
	if _, err := cf.InsertUnique(item); err != nil {
		t.Fatalf("first InsertUnique: %v", err)
	}

	result, err := cf.InsertUnique(item)
	if err != nil {
		t.Fatalf("second InsertUnique: %v", err)
	}
	if result != filter.InsertedExists {
		t.Fatalf("expected InsertedExists for a duplicate, got %v", result)
	}
}

func TestCuckooFilterEngineDelete(t *testing.T) {
	cf, err := filter.NewCuckooFilterFromCapacity("engine-delete", 64)
	if err != nil {
		t.Fatalf("NewCuckooFilterFromCapacity: %v", err)
	}

	item := []byte("ephemeral")
	if _, err := cf.Insert(item); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !cf.Delete(item) {
		t.Fatalf("Delete should report success for a present item")
	}
	if cf.Contains(item) {
		t.Errorf("item should be gone after Delete")
	}
	if cf.Delete(item) {
		t.Errorf("second Delete of the same item should report failure")
	}
}

func TestCuckooFilterEngineGrowsOnExhaustion(t *testing.T) {
	cf, err := filter.NewCuckooFilterFromCapacity("engine-grow", 8)
	if err != nil {
		t.Fatalf("NewCuckooFilterFromCapacity: %v", err)
	}

	inserted := 0
	for i := 0; i < 500; i++ {
		item := []byte(fmt.Sprintf("stress-%d", i))
		result, err := cf.Insert(item)
		if err != nil {
			t.Fatalf("Insert at i=%d: %v", i, err)
		}
		if result == filter.Inserted {
			inserted++
		}
	}

	if cf.NumFilters() < 2 {
		t.Fatalf("expected repeated kick-budget exhaustion to grow beyond one sub-filter, got %d", cf.NumFilters())
	}
	if uint64(inserted) != cf.NumItems() {
		t.Errorf("NumItems() %d does not match the %d successful inserts", cf.NumItems(), inserted)
	}
}

func TestCuckooFilterEngineMemberLookupAfterGrowth(t *testing.T) {
	cf, err := filter.NewCuckooFilterFromCapacity("engine-lookup", 8)
	if err != nil {
		t.Fatalf("NewCuckooFilterFromCapacity: %v", err)
	}

	var inserted [][]byte
	for i := 0; i < 300; i++ {
		item := []byte(fmt.Sprintf("member-%d", i))
		result, err := cf.Insert(item)
		if err != nil {
			t.Fatalf("Insert at i=%d: %v", i, err)
		}
		if result == filter.Inserted {
			inserted = append(inserted, item)
		}
	}

	for _, item := range inserted {
		if !cf.Contains(item) {
			t.Errorf("previously inserted item %q not found after filter grew to %d sub-filters", item, cf.NumFilters())
		}
	}
}
