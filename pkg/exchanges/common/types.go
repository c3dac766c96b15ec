package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "STOP_LOSS"
	OrderTypeStopLimit OrderType = "STOP_LOSS_LIMIT"
)

// OrderStatus captures the order lifecycle. An order starts PENDING and is
// terminal once FILLED, REJECTED or CANCELLED.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether the status allows no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusRejected || s == StatusCancelled
}

// Balance is the per-asset holding of one account.
type Balance struct {
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
}

// Ticker contains the current top-of-book prices for a symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceLevel is one level of an order book.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// OrderBook is a depth snapshot for a symbol.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Fees holds maker/taker fee rates as decimals (0.001 = 10 bps).
type Fees struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
}

// SymbolLimits contains venue constraints for one symbol.
type SymbolLimits struct {
	Symbol      string  `json:"symbol"`
	MinQty      float64 `json:"min_qty"`
	MaxQty      float64 `json:"max_qty"`
	QtyStep     float64 `json:"qty_step"`
	MinPrice    float64 `json:"min_price"`
	PriceStep   float64 `json:"price_step"`
	MinNotional float64 `json:"min_notional"`
}

// OrderParams captures an order intent at the adapter boundary.
// Symbol is always the canonical "BASE/QUOTE" form.
type OrderParams struct {
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Type   OrderType `json:"type"`
	Qty    float64   `json:"qty"`
	Price  float64   `json:"price,omitempty"` // required for LIMIT; execution price hint for MARKET on the simulator
}

// ValidationResult is the outcome of ValidateOrderParams. Validation failure
// is an expected outcome, not an error.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// OrderCost is the projected cost of an order before placement.
type OrderCost struct {
	Notional float64 `json:"notional"`
	Fee      float64 `json:"fee"`
	Total    float64 `json:"total"`
}

// Order is the normalized order record returned by adapters.
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Type      OrderType   `json:"type"`
	Qty       float64     `json:"qty"`
	Price     float64     `json:"price"`
	Status    OrderStatus `json:"status"`
	FilledQty float64     `json:"filled_qty"`
	AvgPrice  float64     `json:"avg_price"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Trade is an immutable fill record, appended exactly once per completed fill.
type Trade struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}
