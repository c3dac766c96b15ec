package market

import (
	"context"
	"math/rand"
	"time"

	"execution-core/internal/events"
	"execution-core/pkg/cache"
)

// MockFeed generates synthetic ticks for local development when no venue is
// reachable. Prices random-walk around StartPrice.
type MockFeed struct {
	Prices     *cache.Prices
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

// Start begins generating ticks until ctx is cancelled.
func (m *MockFeed) Start(ctx context.Context) {
	if m.Prices == nil {
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTC/USDT"}
	}
	if m.StartPrice <= 0 {
		m.StartPrice = 45000
	}
	if m.Step <= 0 {
		m.Step = m.StartPrice * 0.001
	}
	if m.Interval <= 0 {
		m.Interval = time.Second
	}

	current := make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		current[sym] = m.StartPrice
	}

	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sym := range m.Symbols {
					price := current[sym] + (rand.Float64()*2-1)*m.Step
					if price <= 0 {
						price = m.StartPrice
					}
					current[sym] = price
					m.Prices.Set(sym, price)
					if m.Bus != nil {
						m.Bus.Publish(events.EventPriceTick, Tick{Symbol: sym, Price: price, At: time.Now()})
					}
				}
			}
		}
	}()
}
