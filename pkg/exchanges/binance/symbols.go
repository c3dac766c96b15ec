package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"execution-core/pkg/exchanges/common"
)

const symbolCacheTTL = time.Hour

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Filters    []struct {
			FilterType  string `json:"filterType"`
			MinQty      string `json:"minQty"`
			MaxQty      string `json:"maxQty"`
			StepSize    string `json:"stepSize"`
			MinPrice    string `json:"minPrice"`
			TickSize    string `json:"tickSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// loadSymbols refreshes the canonical symbol table from exchangeInfo.
func (a *Adapter) loadSymbols(ctx context.Context) error {
	a.symMu.RLock()
	fresh := time.Since(a.loaded) < symbolCacheTTL && len(a.symbols) > 0
	a.symMu.RUnlock()
	if fresh {
		return nil
	}

	body, err := a.doPublic(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return err
	}
	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("decode exchange info: %w", err)
	}

	table := make(map[string]*symbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		si := &symbolInfo{
			venue: s.Symbol,
			base:  s.BaseAsset,
			quote: s.QuoteAsset,
			limits: common.SymbolLimits{
				Symbol: s.BaseAsset + "/" + s.QuoteAsset,
			},
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				si.limits.MinQty, _ = parseNumeric(f.MinQty)
				si.limits.MaxQty, _ = parseNumeric(f.MaxQty)
				si.limits.QtyStep, _ = parseNumeric(f.StepSize)
			case "PRICE_FILTER":
				si.limits.MinPrice, _ = parseNumeric(f.MinPrice)
				si.limits.PriceStep, _ = parseNumeric(f.TickSize)
			case "NOTIONAL", "MIN_NOTIONAL":
				si.limits.MinNotional, _ = parseNumeric(f.MinNotional)
			}
		}
		table[si.limits.Symbol] = si
	}

	a.symMu.Lock()
	a.symbols = table
	a.loaded = time.Now()
	a.symMu.Unlock()
	return nil
}

// resolve maps a canonical "BASE/QUOTE" symbol to its venue entry.
func (a *Adapter) resolve(ctx context.Context, symbol string) (*symbolInfo, error) {
	if _, _, err := common.SplitSymbol(symbol); err != nil {
		return nil, err
	}
	if err := a.loadSymbols(ctx); err != nil {
		return nil, err
	}
	a.symMu.RLock()
	defer a.symMu.RUnlock()
	si, ok := a.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("binance: %w: %s", common.ErrSymbolNotFound, symbol)
	}
	return si, nil
}

// GetSymbols lists tradable symbols in canonical form.
func (a *Adapter) GetSymbols(ctx context.Context) ([]string, error) {
	if err := a.loadSymbols(ctx); err != nil {
		return nil, err
	}
	a.symMu.RLock()
	defer a.symMu.RUnlock()
	out := make([]string, 0, len(a.symbols))
	for sym := range a.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

// GetSymbolLimits returns venue constraints for one symbol.
func (a *Adapter) GetSymbolLimits(ctx context.Context, symbol string) (*common.SymbolLimits, error) {
	si, err := a.resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}
	limits := si.limits
	return &limits, nil
}

// ValidateOrderParams checks params against the venue limit filters.
func (a *Adapter) ValidateOrderParams(ctx context.Context, params common.OrderParams) (common.ValidationResult, error) {
	si, err := a.resolve(ctx, params.Symbol)
	if err != nil {
		return common.ValidationResult{}, err
	}
	return common.ValidateAgainstLimits(params, si.limits), nil
}
