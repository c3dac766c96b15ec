package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSetAndLastPrice(t *testing.T) {
	p := New()

	if _, ok := p.LastPrice("BTC/USDT"); ok {
		t.Fatalf("empty cache returned a price")
	}

	p.Set("BTC/USDT", 45000)
	p.Set("ETH/USDT", 3000)
	p.Set("BTC/USDT", 45100) // overwrite

	got, ok := p.LastPrice("BTC/USDT")
	if !ok || got != 45100 {
		t.Errorf("LastPrice = %v, %v", got, ok)
	}
	if p.Len() != 2 {
		t.Errorf("Len = %d, want 2", p.Len())
	}

	snap := p.Snapshot()
	if snap["ETH/USDT"] != 3000 {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestEvictDropsOnlyStaleEntries(t *testing.T) {
	p := New()
	p.Set("OLD/USDT", 1)
	time.Sleep(20 * time.Millisecond)
	p.Set("NEW/USDT", 2)

	if removed := p.Evict(10 * time.Millisecond); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := p.LastPrice("OLD/USDT"); ok {
		t.Errorf("stale entry survived eviction")
	}
	if _, ok := p.LastPrice("NEW/USDT"); !ok {
		t.Errorf("fresh entry evicted")
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sym := fmt.Sprintf("SYM%d/USDT", n)
			for j := 0; j < 1000; j++ {
				p.Set(sym, float64(j))
				p.LastPrice(sym)
			}
		}(i)
	}
	wg.Wait()

	if p.Len() != 8 {
		t.Errorf("Len = %d, want 8", p.Len())
	}
}
