// Package rate paces checks so that repeated probes of the same host
// stay polite. One token bucket per host, lazily created.
package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type PerHost struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	perSecond  float64
	burst      int
	maxBuckets int
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func New(perSecond float64, burst int) *PerHost {
	p := &PerHost{
		buckets:    make(map[string]*bucket),
		perSecond:  perSecond,
		burst:      burst,
		maxBuckets: 10000,
	}
	go p.evictStale()
	return p
}

// evictStale bounds the bucket map when a long-running queue feed
// cycles through many distinct hosts.
func (p *PerHost) evictStale() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if len(p.buckets) > p.maxBuckets {
			cutoff := time.Now().Add(-1 * time.Hour)
			for host, b := range p.buckets {
				if b.lastUsed.Before(cutoff) {
					delete(p.buckets, host)
				}
			}
		}
		p.mu.Unlock()
	}
}

func (p *PerHost) get(host string) *bucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[host]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(p.perSecond), p.burst)}
		p.buckets[host] = b
	}
	b.lastUsed = time.Now()
	return b
}

func (p *PerHost) Allow(host string) bool {
	return p.get(host).limiter.Allow()
}

func (p *PerHost) Wait(host string) {
	_ = p.get(host).limiter.Wait(context.Background())
}
