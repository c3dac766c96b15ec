package paper

import (
	"context"
	"errors"
	"math"
	"testing"

	"execution-core/pkg/exchanges/common"
)

type staticPrices map[string]float64

func (s staticPrices) LastPrice(sym string) (float64, bool) {
	v, ok := s[sym]
	return v, ok
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	return NewEngine(cfg, staticPrices{"BTC/USDT": 45000, "ETH/USDT": 3000})
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestMarketBuyDebitsQuoteAndCreditsBase(t *testing.T) {
	e := newTestEngine(t)

	order, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.1, Price: 45000,
	})
	if err != nil {
		t.Fatalf("placeOrder: %v", err)
	}
	if order.Status != common.StatusFilled {
		t.Fatalf("status = %s, want FILLED", order.Status)
	}
	if !approx(order.AvgPrice, 45000) || !approx(order.FilledQty, 0.1) {
		t.Fatalf("fill = %v @ %v", order.FilledQty, order.AvgPrice)
	}

	bal := e.Balances("u1")
	if !approx(bal["USDT"].Available, 95500) {
		t.Errorf("USDT = %v, want 95500", bal["USDT"].Available)
	}
	if !approx(bal["BTC"].Available, 0.1) {
		t.Errorf("BTC = %v, want 0.1", bal["BTC"].Available)
	}
}

func TestInsufficientBalanceRecordsRejectedOrder(t *testing.T) {
	e := newTestEngine(t)

	order, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 10, Price: 45000,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if order == nil || order.Status != common.StatusRejected {
		t.Fatalf("order = %+v, want rejected record", order)
	}

	// The rejection must leave the ledger untouched.
	bal := e.Balances("u1")
	if !approx(bal["USDT"].Available, 100000) {
		t.Errorf("USDT = %v, want 100000", bal["USDT"].Available)
	}

	// And the rejected order must appear in history.
	orders := e.Orders("u1")
	if len(orders) != 1 || orders[0].Status != common.StatusRejected {
		t.Errorf("history = %+v, want one rejected order", orders)
	}
	if len(e.Trades("u1")) != 0 {
		t.Errorf("rejected order produced trades")
	}
}

func TestSellRoundTripConservesValue(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.5, Price: 40000,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 0.5, Price: 40000,
	}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	// Zero fees: buying and selling at the same price must restore the seed.
	bal := e.Balances("u1")
	if !approx(bal["USDT"].Available, 100000) {
		t.Errorf("USDT = %v, want 100000", bal["USDT"].Available)
	}
	if bal["BTC"].Available > 1e-9 {
		t.Errorf("BTC = %v, want 0", bal["BTC"].Available)
	}
	if len(e.Positions("u1")) != 0 {
		t.Errorf("flat account still has positions: %+v", e.Positions("u1"))
	}
}

func TestSellMoreThanHeldIsRejected(t *testing.T) {
	e := newTestEngine(t)

	order, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 1, Price: 45000,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if order.Status != common.StatusRejected {
		t.Fatalf("status = %s, want REJECTED", order.Status)
	}
}

func TestPositionAveraging(t *testing.T) {
	e := newTestEngine(t)

	buys := []struct{ qty, price float64 }{
		{0.1, 40000},
		{0.1, 50000},
	}
	for _, b := range buys {
		if _, err := e.placeOrder("u1", common.OrderParams{
			Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: b.qty, Price: b.price,
		}); err != nil {
			t.Fatalf("buy %v@%v: %v", b.qty, b.price, err)
		}
	}

	positions := e.Positions("u1")
	if len(positions) != 1 {
		t.Fatalf("positions = %+v, want one", positions)
	}
	p := positions[0]
	if !approx(p.Qty, 0.2) {
		t.Errorf("qty = %v, want 0.2", p.Qty)
	}
	if !approx(p.AvgEntryPrice(), 45000) {
		t.Errorf("avg entry = %v, want 45000", p.AvgEntryPrice())
	}

	// Partial close keeps the entry price.
	if _, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 0.1, Price: 48000,
	}); err != nil {
		t.Fatalf("sell: %v", err)
	}
	p = e.Positions("u1")[0]
	if !approx(p.Qty, 0.1) || !approx(p.AvgEntryPrice(), 45000) {
		t.Errorf("after partial close: qty=%v avg=%v, want 0.1 and 45000", p.Qty, p.AvgEntryPrice())
	}
}

func TestMarketOrderUsesPriceSource(t *testing.T) {
	e := newTestEngine(t)

	order, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "ETH/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 2,
	})
	if err != nil {
		t.Fatalf("placeOrder: %v", err)
	}
	if !approx(order.AvgPrice, 3000) {
		t.Errorf("avg price = %v, want 3000 from price source", order.AvgPrice)
	}
}

func TestMarketOrderWithoutAnyPriceFails(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	_, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.1,
	})
	if !errors.Is(err, ErrNoPrice) {
		t.Fatalf("err = %v, want ErrNoPrice", err)
	}
}

func TestLimitOrderLocksFundsAndCancelReleases(t *testing.T) {
	e := newTestEngine(t)

	order, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeLimit, Qty: 0.1, Price: 40000,
	})
	if err != nil {
		t.Fatalf("placeOrder: %v", err)
	}
	if order.Status != common.StatusPending {
		t.Fatalf("status = %s, want PENDING", order.Status)
	}

	bal := e.Balances("u1")
	if !approx(bal["USDT"].Available, 96000) || !approx(bal["USDT"].Locked, 4000) {
		t.Fatalf("USDT = %+v, want available 96000 locked 4000", bal["USDT"])
	}

	if err := e.cancelOrder("u1", order.Symbol, order.ID); err != nil {
		t.Fatalf("cancelOrder: %v", err)
	}
	bal = e.Balances("u1")
	if !approx(bal["USDT"].Available, 100000) || bal["USDT"].Locked > 1e-9 {
		t.Fatalf("USDT after cancel = %+v, want fully released", bal["USDT"])
	}

	// A terminal order cannot be cancelled again.
	if err := e.cancelOrder("u1", order.Symbol, order.ID); !errors.Is(err, ErrOrderNotCancellable) {
		t.Errorf("second cancel err = %v, want ErrOrderNotCancellable", err)
	}
}

func TestResetAccountIsIdempotent(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.placeOrder("u1", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.1, Price: 45000,
	}); err != nil {
		t.Fatalf("placeOrder: %v", err)
	}

	for i := 0; i < 3; i++ {
		e.ResetAccount("u1")
		bal := e.Balances("u1")
		if !approx(bal["USDT"].Available, 100000) {
			t.Fatalf("reset %d: USDT = %v, want 100000", i, bal["USDT"].Available)
		}
		if len(e.Orders("u1")) != 0 || len(e.Trades("u1")) != 0 {
			t.Fatalf("reset %d left history behind", i)
		}
	}
}

func TestAccountsAreIsolated(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.placeOrder("alice", common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.1, Price: 45000,
	}); err != nil {
		t.Fatalf("placeOrder: %v", err)
	}

	if !approx(e.Balances("bob")["USDT"].Available, 100000) {
		t.Errorf("bob's balance affected by alice's order")
	}
	if len(e.Orders("bob")) != 0 {
		t.Errorf("bob sees alice's orders")
	}
}

func TestAdapterContractRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	var a common.Adapter = e.ForUser("u1")
	ctx := context.Background()

	if a.Name() != "paper" || !a.IsSimulated() {
		t.Fatalf("identity = %s simulated=%v", a.Name(), a.IsSimulated())
	}

	res, err := a.ValidateOrderParams(ctx, common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.1, Price: 45000,
	})
	if err != nil || !res.Valid {
		t.Fatalf("validate = %+v, %v", res, err)
	}

	cost, err := a.CalculateOrderCost(ctx, common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Qty: 0.1, Price: 45000,
	})
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if !approx(cost.Notional, 4500) || !approx(cost.Total, 4500) {
		t.Errorf("cost = %+v, want notional 4500 with zero fees", cost)
	}

	order, err := a.PlaceOrder(ctx, common.OrderParams{
		Symbol: "BTC/USDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.1, Price: 45000,
	})
	if err != nil || order.Status != common.StatusFilled {
		t.Fatalf("place = %+v, %v", order, err)
	}

	balances, err := a.GetBalances(ctx)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if !approx(balances["USDT"].Available, 95500) {
		t.Errorf("USDT = %v, want 95500", balances["USDT"].Available)
	}
}
