// Package market keeps the mark-price cache warm so paper market orders can
// fill without a client-supplied price hint.
package market

import (
	"context"
	"log"
	"time"

	"execution-core/internal/events"
	"execution-core/pkg/cache"
	"execution-core/pkg/exchanges/common"
)

// Tick is one observed price update.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// Feed polls a venue adapter for tickers, stores them in the price cache and
// publishes ticks on the event bus.
type Feed struct {
	Venue    common.Adapter
	Prices   *cache.Prices
	Bus      *events.Bus
	Symbols  []string
	Interval time.Duration
}

// Start begins polling until ctx is cancelled. It returns immediately; the
// loop runs on its own goroutine.
func (f *Feed) Start(ctx context.Context) {
	if f.Venue == nil || f.Prices == nil || len(f.Symbols) == 0 {
		log.Println("market: feed not fully configured, skipping start")
		return
	}
	if f.Interval <= 0 {
		f.Interval = 10 * time.Second
	}
	go f.poll(ctx)
}

func (f *Feed) poll(ctx context.Context) {
	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		f.refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *Feed) refresh(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, sym := range f.Symbols {
		t, err := f.Venue.GetTicker(callCtx, sym)
		if err != nil {
			// Transient venue errors just leave the previous quote in place.
			continue
		}
		f.Prices.Set(sym, t.Last)
		if f.Bus != nil {
			f.Bus.Publish(events.EventPriceTick, Tick{Symbol: sym, Price: t.Last, At: time.Now()})
		}
	}
}
