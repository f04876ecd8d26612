// Package dedup suppresses duplicate targets within a single run so a
// host listed twice is only checked once.
package dedup

import "sync"

type Interface interface {
	// Seen marks key and reports whether it was already present.
	Seen(key string) bool
}

type Memory struct{ m sync.Map }

func NewMemory() *Memory { return &Memory{} }

func (d *Memory) Seen(key string) bool {
	_, ok := d.m.LoadOrStore(key, struct{}{})
	return ok
}
