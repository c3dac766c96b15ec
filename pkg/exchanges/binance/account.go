package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"execution-core/pkg/exchanges/common"
)

// GetBalances returns non-zero per-asset balances for the bound account.
func (a *Adapter) GetBalances(ctx context.Context) (map[string]common.Balance, error) {
	body, err := a.doSigned(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}
	var info struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	out := make(map[string]common.Balance)
	for _, b := range info.Balances {
		free, err := parseNumeric(b.Free)
		if err != nil {
			return nil, err
		}
		locked, err := parseNumeric(b.Locked)
		if err != nil {
			return nil, err
		}
		if free == 0 && locked == 0 {
			continue
		}
		out[b.Asset] = common.Balance{Available: free, Locked: locked}
	}
	return out, nil
}

// GetTradingFees returns maker/taker rates for a symbol.
func (a *Adapter) GetTradingFees(ctx context.Context, symbol string) (*common.Fees, error) {
	si, err := a.resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symbol", si.venue)
	body, err := a.doSigned(ctx, http.MethodGet, "/sapi/v1/asset/tradeFee", params)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Maker string `json:"makerCommission"`
		Taker string `json:"takerCommission"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode trade fee: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("binance: no fee data for %s", symbol)
	}
	fees := &common.Fees{}
	if fees.Maker, err = parseNumeric(rows[0].Maker); err != nil {
		return nil, err
	}
	if fees.Taker, err = parseNumeric(rows[0].Taker); err != nil {
		return nil, err
	}
	return fees, nil
}

// CalculateOrderCost projects notional, fee and total for an order. Market
// orders without a price hint use the current last price.
func (a *Adapter) CalculateOrderCost(ctx context.Context, params common.OrderParams) (*common.OrderCost, error) {
	price := params.Price
	if price <= 0 {
		ticker, err := a.GetTicker(ctx, params.Symbol)
		if err != nil {
			return nil, err
		}
		price = ticker.Last
	}
	fees, err := a.GetTradingFees(ctx, params.Symbol)
	if err != nil {
		return nil, err
	}
	notional := params.Qty * price
	fee := notional * fees.Taker
	return &common.OrderCost{Notional: notional, Fee: fee, Total: notional + fee}, nil
}

type orderResponse struct {
	OrderID      int64  `json:"orderId"`
	Status       string `json:"status"`
	Price        string `json:"price"`
	OrigQty      string `json:"origQty"`
	ExecutedQty  string `json:"executedQty"`
	CumQuoteQty  string `json:"cummulativeQuoteQty"`
	TransactTime int64  `json:"transactTime"`
}

// PlaceOrder submits an order and normalizes the venue acknowledgement.
func (a *Adapter) PlaceOrder(ctx context.Context, params common.OrderParams) (*common.Order, error) {
	si, err := a.resolve(ctx, params.Symbol)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("symbol", si.venue)
	form.Set("side", string(params.Side))
	form.Set("type", string(params.Type))
	form.Set("quantity", formatQty(params.Qty))
	form.Set("newOrderRespType", "FULL")
	if params.Type == common.OrderTypeLimit || params.Type == common.OrderTypeStopLimit {
		form.Set("price", formatQty(params.Price))
		form.Set("timeInForce", "GTC")
	}

	body, err := a.doSigned(ctx, http.MethodPost, "/api/v3/order", form)
	if err != nil {
		return nil, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	created := time.UnixMilli(resp.TransactTime)
	order := &common.Order{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		Symbol:    params.Symbol,
		Side:      params.Side,
		Type:      params.Type,
		Qty:       params.Qty,
		Price:     params.Price,
		Status:    mapStatus(resp.Status),
		AvgPrice:  avgFromCumulative(resp.CumQuoteQty, resp.ExecutedQty),
		CreatedAt: created,
		UpdatedAt: created,
	}
	if order.FilledQty, err = parseNumeric(resp.ExecutedQty); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder cancels a pending order by venue order id.
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	si, err := a.resolve(ctx, symbol)
	if err != nil {
		return err
	}
	params := url.Values{}
	params.Set("symbol", si.venue)
	params.Set("orderId", orderID)
	_, err = a.doSigned(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW", "PARTIALLY_FILLED":
		return common.StatusPending
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCancelled
	case "REJECTED", "EXPIRED":
		return common.StatusRejected
	default:
		return common.StatusPending
	}
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
