// Package cache holds the mark-price table the paper engine quotes market
// orders against. Reads dominate writes, so entries are sharded by symbol to
// keep ticker updates from contending with order fills.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// Prices is a sharded symbol → last-price table with per-entry timestamps.
type Prices struct {
	shards [numShards]*shard
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

type entry struct {
	price     float64
	updatedAt time.Time
}

// New creates an empty price table.
func New() *Prices {
	p := &Prices{}
	for i := range p.shards {
		p.shards[i] = &shard{items: make(map[string]entry)}
	}
	return p
}

func (p *Prices) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return p.shards[h.Sum32()%numShards]
}

// Set records the latest observed price for a symbol.
func (p *Prices) Set(symbol string, price float64) {
	s := p.shardFor(symbol)
	s.mu.Lock()
	s.items[symbol] = entry{price: price, updatedAt: time.Now()}
	s.mu.Unlock()
}

// LastPrice returns the most recent price for a symbol. It satisfies the
// paper engine's PriceSource contract.
func (p *Prices) LastPrice(symbol string) (float64, bool) {
	s := p.shardFor(symbol)
	s.mu.RLock()
	e, ok := s.items[symbol]
	s.mu.RUnlock()
	return e.price, ok
}

// LastPriceWithAge additionally reports how stale the quote is.
func (p *Prices) LastPriceWithAge(symbol string) (float64, time.Duration, bool) {
	s := p.shardFor(symbol)
	s.mu.RLock()
	e, ok := s.items[symbol]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return e.price, time.Since(e.updatedAt), true
}

// Snapshot returns a copy of every cached price, keyed by symbol.
func (p *Prices) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	for _, s := range p.shards {
		s.mu.RLock()
		for sym, e := range s.items {
			out[sym] = e.price
		}
		s.mu.RUnlock()
	}
	return out
}

// Len reports the number of cached symbols.
func (p *Prices) Len() int {
	n := 0
	for _, s := range p.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Evict drops entries older than maxAge and returns how many were removed.
// A quote that old is worse than no quote: the paper engine should refuse
// the fill rather than use it.
func (p *Prices) Evict(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, s := range p.shards {
		s.mu.Lock()
		for sym, e := range s.items {
			if e.updatedAt.Before(cutoff) {
				delete(s.items, sym)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
