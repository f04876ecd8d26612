package dedup

import (
	"sync"
	"testing"
)

func TestMemory_Seen(t *testing.T) {
	d := NewMemory()

	if d.Seen("example.com") {
		t.Error("expected false for first occurrence")
	}
	if !d.Seen("example.com") {
		t.Error("expected true for second occurrence")
	}
	if d.Seen("example.org") {
		t.Error("expected false for a new target")
	}
}

func TestMemory_Concurrent(t *testing.T) {
	d := NewMemory()
	var wg sync.WaitGroup
	firsts := 0
	var mu sync.Mutex

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.Seen("example.com:8443") {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firsts != 1 {
		t.Errorf("expected exactly 1 first occurrence, got %d", firsts)
	}
}
