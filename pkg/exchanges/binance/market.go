package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"execution-core/pkg/exchanges/common"
)

// GetTicker returns top-of-book plus last trade price.
func (a *Adapter) GetTicker(ctx context.Context, symbol string) (*common.Ticker, error) {
	si, err := a.resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", si.venue)
	body, err := a.doPublic(ctx, "/api/v3/ticker/bookTicker", params)
	if err != nil {
		return nil, err
	}
	var book struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &book); err != nil {
		return nil, fmt.Errorf("decode book ticker: %w", err)
	}

	body, err = a.doPublic(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return nil, err
	}
	var last struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &last); err != nil {
		return nil, fmt.Errorf("decode price ticker: %w", err)
	}

	t := &common.Ticker{Symbol: symbol, Timestamp: time.Now()}
	if t.Bid, err = parseNumeric(book.BidPrice); err != nil {
		return nil, err
	}
	if t.Ask, err = parseNumeric(book.AskPrice); err != nil {
		return nil, err
	}
	if t.Last, err = parseNumeric(last.Price); err != nil {
		return nil, err
	}
	return t, nil
}

// GetOrderBook returns a depth snapshot with up to depth levels per side.
func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*common.OrderBook, error) {
	si, err := a.resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 20
	}

	params := url.Values{}
	params.Set("symbol", si.venue)
	params.Set("limit", strconv.Itoa(depth))
	body, err := a.doPublic(ctx, "/api/v3/depth", params)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}

	ob := &common.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	if ob.Bids, err = parseLevels(raw.Bids); err != nil {
		return nil, err
	}
	if ob.Asks, err = parseLevels(raw.Asks); err != nil {
		return nil, err
	}
	return ob, nil
}

func parseLevels(raw [][2]string) ([]common.PriceLevel, error) {
	levels := make([]common.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		price, err := parseNumeric(lv[0])
		if err != nil {
			return nil, err
		}
		vol, err := parseNumeric(lv[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, common.PriceLevel{Price: price, Volume: vol})
	}
	return levels, nil
}

// GetOHLCV returns candles for the given timeframe (venue interval notation:
// 1m, 5m, 1h, 1d, ...).
func (a *Adapter) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error) {
	si, err := a.resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{}
	params.Set("symbol", si.venue)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))
	body, err := a.doPublic(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	// Klines arrive as mixed arrays: open time is a number, prices are strings.
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]common.Candle, 0, len(raw))
	for _, item := range raw {
		if len(item) < 6 {
			continue
		}
		c := common.Candle{OpenTime: time.UnixMilli(asInt64(item[0]))}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		ok := true
		for i, dst := range fields {
			s, isStr := item[i+1].(string)
			if !isStr {
				ok = false
				break
			}
			v, err := parseNumeric(s)
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		if ok {
			candles = append(candles, c)
		}
	}
	return candles, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	default:
		return 0
	}
}
