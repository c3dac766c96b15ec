package main

import (
	"context"
	"errors"
	"log"
	"time"

	"execution-core/internal/breaker"
	"execution-core/internal/paper"
	"execution-core/pkg/cache"
	"execution-core/pkg/exchanges/common"
)

// paper_demo walks a few realistic flows against the in-memory paper engine
// and the circuit breaker. It touches neither an exchange nor the database.
//
// Usage:
//   go run ./scripts/paper_demo
//
// It will:
//  1. BUY then SELL the same symbol within the seeded balance.
//  2. Attempt an oversized BUY to show the insufficient-funds rejection.
//  3. Trip a circuit breaker against a failing venue and watch it fail fast.

func main() {
	log.Println("=== paper demo starting ===")

	prices := cache.New()
	prices.Set("BTC/USDT", 45000)

	engine := paper.NewEngine(paper.DefaultConfig(), prices)
	venue := engine.ForUser("demo-user")
	ctx := context.Background()

	log.Println("[scenario 1] BUY then SELL 0.1 BTC/USDT at the cached mark price")
	buy, err := venue.PlaceOrder(ctx, common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.1,
	})
	if err != nil {
		log.Fatalf("buy: %v", err)
	}
	log.Printf("  filled %s %s qty=%v avg=%v", buy.Side, buy.Symbol, buy.FilledQty, buy.AvgPrice)

	sell, err := venue.PlaceOrder(ctx, common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 0.1,
	})
	if err != nil {
		log.Fatalf("sell: %v", err)
	}
	log.Printf("  filled %s %s qty=%v avg=%v", sell.Side, sell.Symbol, sell.FilledQty, sell.AvgPrice)

	log.Println("[scenario 2] oversized BUY to trigger insufficient balance")
	_, err = venue.PlaceOrder(ctx, common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 1000,
	})
	if errors.Is(err, paper.ErrInsufficientBalance) {
		log.Printf("  rejected as expected: %v", err)
	} else {
		log.Fatalf("  unexpected result: %v", err)
	}

	log.Println("[scenario 3] breaker opens after consecutive venue failures")
	br := breaker.New("demo", breaker.Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		ResetTimeout:     5 * time.Second,
		Timeout:          time.Second,
	})
	br.OnStateChange(func(name string, from, to breaker.State) {
		log.Printf("  breaker %s: %s -> %s", name, from, to)
	})

	venueDown := errors.New("venue unreachable")
	for i := 0; i < 4; i++ {
		err := br.Do(ctx, func(ctx context.Context) error { return venueDown })
		var open *breaker.OpenError
		switch {
		case errors.As(err, &open):
			log.Printf("  call %d failed fast: %v", i+1, err)
		case err != nil:
			log.Printf("  call %d failed: %v", i+1, err)
		}
	}

	log.Println("[done] final paper state:")
	for asset, b := range engine.Balances("demo-user") {
		log.Printf("  %s available=%v locked=%v", asset, b.Available, b.Locked)
	}
	log.Println("=== paper demo finished ===")
}
