package paper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"execution-core/pkg/exchanges/common"
)

// ForUser returns an adapter view bound to one user's account. The returned
// value satisfies the same contract as a live venue adapter.
func (e *Engine) ForUser(userID string) common.Adapter {
	return &userAdapter{eng: e, userID: userID}
}

type userAdapter struct {
	eng    *Engine
	userID string
}

func (u *userAdapter) Name() string { return "paper" }

func (u *userAdapter) IsSimulated() bool { return true }

// GetTicker synthesizes a ticker from the configured price source.
func (u *userAdapter) GetTicker(ctx context.Context, symbol string) (*common.Ticker, error) {
	if _, _, err := common.SplitSymbol(symbol); err != nil {
		return nil, err
	}
	if u.eng.prices == nil {
		return nil, fmt.Errorf("paper: no price source configured")
	}
	last, ok := u.eng.prices.LastPrice(symbol)
	if !ok {
		return nil, fmt.Errorf("paper: %w: %s", common.ErrSymbolNotFound, symbol)
	}
	return &common.Ticker{Symbol: symbol, Bid: last, Ask: last, Last: last, Timestamp: time.Now()}, nil
}

// GetOrderBook returns a one-level synthetic book around the last price.
func (u *userAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*common.OrderBook, error) {
	t, err := u.GetTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &common.OrderBook{
		Symbol:    symbol,
		Bids:      []common.PriceLevel{{Price: t.Bid, Volume: 1}},
		Asks:      []common.PriceLevel{{Price: t.Ask, Volume: 1}},
		Timestamp: t.Timestamp,
	}, nil
}

// GetOHLCV is not served by the simulator; historical bars come from a real
// market-data feed.
func (u *userAdapter) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error) {
	return nil, fmt.Errorf("paper: OHLCV data not available")
}

func (u *userAdapter) GetSymbols(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(u.eng.cfg.Limits))
	for sym := range u.eng.cfg.Limits {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (u *userAdapter) GetBalances(ctx context.Context) (map[string]common.Balance, error) {
	return u.eng.Balances(u.userID), nil
}

func (u *userAdapter) GetTradingFees(ctx context.Context, symbol string) (*common.Fees, error) {
	return &common.Fees{Maker: u.eng.cfg.FeeRate, Taker: u.eng.cfg.FeeRate}, nil
}

func (u *userAdapter) GetSymbolLimits(ctx context.Context, symbol string) (*common.SymbolLimits, error) {
	if _, _, err := common.SplitSymbol(symbol); err != nil {
		return nil, err
	}
	if limits, ok := u.eng.cfg.Limits[symbol]; ok {
		return &limits, nil
	}
	// Unknown symbols are tradable on the simulator with no constraints.
	return &common.SymbolLimits{Symbol: symbol}, nil
}

func (u *userAdapter) ValidateOrderParams(ctx context.Context, params common.OrderParams) (common.ValidationResult, error) {
	limits, err := u.GetSymbolLimits(ctx, params.Symbol)
	if err != nil {
		return common.ValidationResult{}, err
	}
	return common.ValidateAgainstLimits(params, *limits), nil
}

func (u *userAdapter) CalculateOrderCost(ctx context.Context, params common.OrderParams) (*common.OrderCost, error) {
	price := params.Price
	if price <= 0 {
		t, err := u.GetTicker(ctx, params.Symbol)
		if err != nil {
			return nil, err
		}
		price = t.Last
	}
	notional := params.Qty * price
	fee := notional * u.eng.cfg.FeeRate
	return &common.OrderCost{Notional: notional, Fee: fee, Total: notional + fee}, nil
}

func (u *userAdapter) PlaceOrder(ctx context.Context, params common.OrderParams) (*common.Order, error) {
	return u.eng.placeOrder(u.userID, params)
}

func (u *userAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return u.eng.cancelOrder(u.userID, symbol, orderID)
}
