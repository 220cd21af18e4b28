package concmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestGetOrInsertIsIdempotentUnderConcurrency(t *testing.T) {
	m := New[int](8)
	var wg sync.WaitGroup
	results := make([]int, 64)
	for i := 0; i < 64; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.GetOrInsert("shared-key", func() int { return 42 })
		}()
	}
	wg.Wait()
	for i, r := range results {
		if r != 42 {
			t.Fatalf("goroutine %d got %d, want 42 (exactly one insert should win)", i, r)
		}
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestSetAndGetAcrossManyKeys(t *testing.T) {
	m := New[string](4)
	for i := 0; i < 200; i++ {
		m.Set(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}
	if m.Len() != 200 {
		t.Fatalf("Len() = %d, want 200", m.Len())
	}
	v, ok := m.Get("k123")
	if !ok || v != "v123" {
		t.Fatalf("Get(k123) = (%q, %v), want (v123, true)", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("Get(missing) should report not-found")
	}
}

func TestRangeVisitsEveryEntry(t *testing.T) {
	m := New[int](2)
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}
	seen := map[string]int{}
	m.Range(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	if len(seen) != 10 {
		t.Fatalf("Range visited %d entries, want 10", len(seen))
	}
}
