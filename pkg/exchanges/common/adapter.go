package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Adapter abstracts a trading venue, real or simulated. Every numeric field
// an implementation returns must already be parsed from wire form; adapters
// never leak venue serialization upward.
type Adapter interface {
	// Name returns the venue identifier (e.g. "binance", "paper").
	Name() string

	// IsSimulated reports whether the venue trades real funds. Testnets and
	// the paper engine report true.
	IsSimulated() bool

	// GetTicker returns current top-of-book prices for a canonical symbol.
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// GetOrderBook returns a depth snapshot with the given number of levels.
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)

	// GetOHLCV returns up to limit candles for the given timeframe.
	GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// GetSymbols lists tradable symbols in canonical "BASE/QUOTE" form.
	GetSymbols(ctx context.Context) ([]string, error)

	// GetBalances returns per-asset balances for the bound account.
	GetBalances(ctx context.Context) (map[string]Balance, error)

	// GetTradingFees returns maker/taker rates for a symbol.
	GetTradingFees(ctx context.Context, symbol string) (*Fees, error)

	// GetSymbolLimits returns venue order constraints for a symbol.
	GetSymbolLimits(ctx context.Context, symbol string) (*SymbolLimits, error)

	// ValidateOrderParams checks params against venue limits. A failed check
	// is reported in the result, not as an error; the error return is for
	// transport failures while fetching limits.
	ValidateOrderParams(ctx context.Context, params OrderParams) (ValidationResult, error)

	// CalculateOrderCost projects notional, fee and total for an order.
	CalculateOrderCost(ctx context.Context, params OrderParams) (*OrderCost, error)

	// PlaceOrder submits an order and returns the normalized record.
	PlaceOrder(ctx context.Context, params OrderParams) (*Order, error)

	// CancelOrder cancels a pending order.
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

var (
	// ErrSymbolNotFound is returned for symbols the venue does not list.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrOrderNotFound is returned when cancelling an unknown order.
	ErrOrderNotFound = errors.New("order not found")
)

// VenueError wraps a venue-reported failure with enough context to tell
// venues apart upstream.
type VenueError struct {
	Venue   string
	Code    string
	Message string
	Err     error
}

func (e *VenueError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Venue, e.Code, e.Message)
	}
	return e.Venue + ": " + e.Message
}

func (e *VenueError) Unwrap() error { return e.Err }

// SplitSymbol splits a canonical "BASE/QUOTE" symbol into its parts.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid symbol %q: want BASE/QUOTE", symbol)
	}
	return parts[0], parts[1], nil
}

// ValidateAgainstLimits applies venue limit checks to order params. Shared by
// adapters so the rejection reasons stay uniform.
func ValidateAgainstLimits(params OrderParams, limits SymbolLimits) ValidationResult {
	if params.Qty <= 0 {
		return ValidationResult{Valid: false, Error: "quantity must be positive"}
	}
	if limits.MinQty > 0 && params.Qty < limits.MinQty {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("quantity %v below venue minimum %v", params.Qty, limits.MinQty)}
	}
	if limits.MaxQty > 0 && params.Qty > limits.MaxQty {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("quantity %v above venue maximum %v", params.Qty, limits.MaxQty)}
	}
	if params.Price > 0 && limits.MinPrice > 0 && params.Price < limits.MinPrice {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("price %v below venue minimum %v", params.Price, limits.MinPrice)}
	}
	if params.Price > 0 && limits.MinNotional > 0 {
		if notional := params.Qty * params.Price; notional < limits.MinNotional {
			return ValidationResult{Valid: false, Error: fmt.Sprintf("notional %v below venue minimum %v", notional, limits.MinNotional)}
		}
	}
	return ValidationResult{Valid: true}
}
