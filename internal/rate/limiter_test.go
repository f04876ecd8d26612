package rate

import (
	"sync"
	"testing"
	"time"
)

func TestPerHost_Allow(t *testing.T) {
	limiter := New(10.0, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("a.example") {
			t.Errorf("expected burst request %d to pass", i+1)
		}
	}
	if limiter.Allow("a.example") {
		t.Error("expected Allow to fail after burst exhausted")
	}

	// A different host gets its own bucket.
	if !limiter.Allow("b.example") {
		t.Error("expected fresh host to pass")
	}
}

func TestPerHost_Wait(t *testing.T) {
	limiter := New(100.0, 1)

	start := time.Now()
	limiter.Wait("a.example")
	limiter.Wait("a.example")
	elapsed := time.Since(start)

	// Second Wait should block roughly 1/100s.
	if elapsed < 5*time.Millisecond {
		t.Errorf("expected Wait to delay, took %v", elapsed)
	}
}

func TestPerHost_Concurrent(t *testing.T) {
	limiter := New(1000.0, 5)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared.example") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed == 0 {
		t.Error("expected some requests to pass")
	}
	if allowed > 10 {
		t.Errorf("expected limiting to apply, but %d passed", allowed)
	}
}
