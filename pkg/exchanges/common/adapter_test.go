package common

import (
	"strings"
	"testing"
)

func TestSplitSymbol(t *testing.T) {
	tests := []struct {
		in        string
		base      string
		quote     string
		wantError bool
	}{
		{"BTC/USDT", "BTC", "USDT", false},
		{"ETH/BTC", "ETH", "BTC", false},
		{"BTCUSDT", "", "", true},
		{"BTC/", "", "", true},
		{"/USDT", "", "", true},
		{"", "", "", true},
		{"BTC/USDT/extra", "", "", true},
	}

	for _, tt := range tests {
		base, quote, err := SplitSymbol(tt.in)
		if tt.wantError {
			if err == nil {
				t.Errorf("SplitSymbol(%q): want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("SplitSymbol(%q): %v", tt.in, err)
			continue
		}
		if base != tt.base || quote != tt.quote {
			t.Errorf("SplitSymbol(%q) = %s, %s", tt.in, base, quote)
		}
	}
}

func TestValidateAgainstLimits(t *testing.T) {
	limits := SymbolLimits{
		Symbol: "BTC/USDT", MinQty: 0.001, MaxQty: 100, MinPrice: 0.01, MinNotional: 10,
	}

	tests := []struct {
		name       string
		params     OrderParams
		valid      bool
		errSnippet string
	}{
		{
			name:   "valid market order",
			params: OrderParams{Symbol: "BTC/USDT", Side: SideBuy, Qty: 0.1},
			valid:  true,
		},
		{
			name:   "valid limit order",
			params: OrderParams{Symbol: "BTC/USDT", Side: SideBuy, Qty: 0.1, Price: 45000},
			valid:  true,
		},
		{
			name:       "zero quantity",
			params:     OrderParams{Symbol: "BTC/USDT", Side: SideBuy, Qty: 0},
			errSnippet: "positive",
		},
		{
			name:       "below min qty",
			params:     OrderParams{Symbol: "BTC/USDT", Side: SideBuy, Qty: 0.0001},
			errSnippet: "below venue minimum",
		},
		{
			name:       "above max qty",
			params:     OrderParams{Symbol: "BTC/USDT", Side: SideBuy, Qty: 500},
			errSnippet: "above venue maximum",
		},
		{
			name:       "price below minimum",
			params:     OrderParams{Symbol: "BTC/USDT", Side: SideBuy, Qty: 0.1, Price: 0.001},
			errSnippet: "price",
		},
		{
			name:       "notional below minimum",
			params:     OrderParams{Symbol: "BTC/USDT", Side: SideBuy, Qty: 0.002, Price: 100},
			errSnippet: "notional",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateAgainstLimits(tt.params, limits)
			if res.Valid != tt.valid {
				t.Fatalf("valid = %v, want %v (error %q)", res.Valid, tt.valid, res.Error)
			}
			if !tt.valid && !strings.Contains(res.Error, tt.errSnippet) {
				t.Errorf("error = %q, want substring %q", res.Error, tt.errSnippet)
			}
		})
	}
}

func TestValidationSkipsUnsetLimits(t *testing.T) {
	// A permissive zero-limit symbol only enforces positive quantity.
	res := ValidateAgainstLimits(OrderParams{Symbol: "NEW/USDT", Qty: 0.000001, Price: 0.0001}, SymbolLimits{Symbol: "NEW/USDT"})
	if !res.Valid {
		t.Fatalf("zero limits rejected order: %q", res.Error)
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		StatusPending:   false,
		StatusFilled:    true,
		StatusRejected:  true,
		StatusCancelled: true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestVenueErrorFormatting(t *testing.T) {
	withCode := &VenueError{Venue: "binance", Code: "-1013", Message: "Filter failure: LOT_SIZE"}
	if got := withCode.Error(); got != "binance [-1013]: Filter failure: LOT_SIZE" {
		t.Errorf("Error() = %q", got)
	}
	withoutCode := &VenueError{Venue: "binance", Message: "connection reset"}
	if got := withoutCode.Error(); got != "binance: connection reset" {
		t.Errorf("Error() = %q", got)
	}
}
