// Package paper implements the exchange adapter contract against an
// in-memory ledger with simulated fills. Every user gets an isolated
// account seeded on first touch; no network calls are made anywhere.
package paper

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"execution-core/pkg/exchanges/common"
)

var (
	// ErrInsufficientBalance signals that the paying asset cannot cover the
	// order. The rejected order is still recorded for history.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOrderNotCancellable is returned when cancelling a terminal order.
	ErrOrderNotCancellable = errors.New("order is not cancellable")

	// ErrNoPrice is returned for market orders with no execution price and
	// no price source configured.
	ErrNoPrice = errors.New("no execution price available")

	// ErrLedgerInvariant signals a balance that would go negative. This must
	// never happen after a sufficiency check passed; the operation is
	// aborted rather than clamped so the bug stays visible.
	ErrLedgerInvariant = errors.New("ledger invariant violation")
)

// PriceSource supplies last prices for market orders submitted without an
// explicit execution price.
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// Config controls seeding and simulated fees.
type Config struct {
	Seed    map[string]float64             // initial balances per asset
	FeeRate float64                        // taker fee as a decimal, applied to notional
	Limits  map[string]common.SymbolLimits // per-symbol order constraints
}

// DefaultConfig seeds 100k USDT with no fees and permissive limits.
func DefaultConfig() Config {
	return Config{
		Seed: map[string]float64{"USDT": 100_000},
		Limits: map[string]common.SymbolLimits{
			"BTC/USDT": {Symbol: "BTC/USDT", MinQty: 0.00001, MaxQty: 9000, QtyStep: 0.00001, MinPrice: 0.01, PriceStep: 0.01, MinNotional: 5},
			"ETH/USDT": {Symbol: "ETH/USDT", MinQty: 0.0001, MaxQty: 90000, QtyStep: 0.0001, MinPrice: 0.01, PriceStep: 0.01, MinNotional: 5},
		},
	}
}

// Position aggregates fills per symbol. Average entry price is
// TotalCost / Qty; the position is deleted once Qty reaches zero.
type Position struct {
	Symbol    string    `json:"symbol"`
	Qty       float64   `json:"qty"`
	TotalCost float64   `json:"total_cost"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvgEntryPrice returns TotalCost / Qty.
func (p *Position) AvgEntryPrice() float64 {
	if p.Qty == 0 {
		return 0
	}
	return p.TotalCost / p.Qty
}

// account is one user's isolated ledger. All mutation happens under mu so
// two concurrent orders can never pass a sufficiency check against the same
// stale balance.
type account struct {
	mu        sync.Mutex
	userID    string
	balances  map[string]*common.Balance
	orders    map[string]*common.Order
	orderSeq  []string // insertion order, for stable history listings
	trades    []common.Trade
	positions map[string]*Position
}

// Engine manages per-user paper accounts with lazy get-or-create semantics.
type Engine struct {
	mu       sync.RWMutex
	accounts map[string]*account
	lastSeen map[string]time.Time
	cfg      Config
	prices   PriceSource
}

// NewEngine creates a paper engine; prices may be nil when callers always
// provide an execution price hint.
func NewEngine(cfg Config, prices PriceSource) *Engine {
	if len(cfg.Seed) == 0 {
		cfg.Seed = DefaultConfig().Seed
	}
	return &Engine{
		accounts: make(map[string]*account),
		lastSeen: make(map[string]time.Time),
		cfg:      cfg,
		prices:   prices,
	}
}

// getOrCreate returns the user's account, seeding it on first touch.
func (e *Engine) getOrCreate(userID string) *account {
	e.mu.Lock()
	defer e.mu.Unlock()

	if acct, ok := e.accounts[userID]; ok {
		e.lastSeen[userID] = time.Now()
		return acct
	}

	acct := &account{
		userID:    userID,
		balances:  make(map[string]*common.Balance, len(e.cfg.Seed)),
		orders:    make(map[string]*common.Order),
		positions: make(map[string]*Position),
	}
	for asset, qty := range e.cfg.Seed {
		acct.balances[asset] = &common.Balance{Available: qty}
	}
	e.accounts[userID] = acct
	e.lastSeen[userID] = time.Now()
	log.Printf("paper: seeded account for user %s", userID)
	return acct
}

// ResetAccount wipes and reseeds one user's ledger. Idempotent.
func (e *Engine) ResetAccount(userID string) {
	e.mu.Lock()
	delete(e.accounts, userID)
	delete(e.lastSeen, userID)
	e.mu.Unlock()
	e.getOrCreate(userID)
}

// UserCount returns the number of materialized accounts.
func (e *Engine) UserCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.accounts)
}

// CleanupIdle drops accounts untouched for longer than ttl and reports how
// many were evicted.
func (e *Engine) CleanupIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-ttl)

	e.mu.Lock()
	defer e.mu.Unlock()
	evicted := 0
	for userID, t := range e.lastSeen {
		if t.Before(cutoff) {
			delete(e.accounts, userID)
			delete(e.lastSeen, userID)
			evicted++
		}
	}
	return evicted
}

// Balances returns a copy of the user's balances.
func (e *Engine) Balances(userID string) map[string]common.Balance {
	acct := e.getOrCreate(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	out := make(map[string]common.Balance, len(acct.balances))
	for asset, b := range acct.balances {
		out[asset] = *b
	}
	return out
}

// Positions returns a copy of the user's open positions.
func (e *Engine) Positions(userID string) []Position {
	acct := e.getOrCreate(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	out := make([]Position, 0, len(acct.positions))
	for _, p := range acct.positions {
		out = append(out, *p)
	}
	return out
}

// Orders returns the user's orders in submission order.
func (e *Engine) Orders(userID string) []common.Order {
	acct := e.getOrCreate(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	out := make([]common.Order, 0, len(acct.orderSeq))
	for _, id := range acct.orderSeq {
		if o, ok := acct.orders[id]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// Trades returns the user's fills in execution order.
func (e *Engine) Trades(userID string) []common.Trade {
	acct := e.getOrCreate(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	out := make([]common.Trade, len(acct.trades))
	copy(out, acct.trades)
	return out
}

// placeOrder runs the whole check-then-mutate sequence under the account
// lock: sufficiency check, balance mutation, position update and record
// appends are one critical section.
func (e *Engine) placeOrder(userID string, params common.OrderParams) (*common.Order, error) {
	base, quote, err := common.SplitSymbol(params.Symbol)
	if err != nil {
		return nil, err
	}
	if params.Side != common.SideBuy && params.Side != common.SideSell {
		return nil, fmt.Errorf("invalid side %q", params.Side)
	}
	if params.Qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	acct := e.getOrCreate(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	now := time.Now()
	order := &common.Order{
		ID:        uuid.NewString(),
		Symbol:    params.Symbol,
		Side:      params.Side,
		Type:      params.Type,
		Qty:       params.Qty,
		Price:     params.Price,
		Status:    common.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if params.Type != common.OrderTypeMarket {
		// Non-market orders rest as pending with funds locked; settlement of
		// resting orders is outside the simulator's scope.
		if err := acct.lockForOrder(base, quote, params); err != nil {
			order.Status = common.StatusRejected
			acct.appendOrder(order)
			return order, err
		}
		acct.appendOrder(order)
		return order, nil
	}

	price := params.Price
	if price <= 0 {
		if e.prices == nil {
			return nil, ErrNoPrice
		}
		last, ok := e.prices.LastPrice(params.Symbol)
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoPrice, params.Symbol)
		}
		price = last
	}

	notional := params.Qty * price
	fee := notional * e.cfg.FeeRate

	if err := acct.settleMarket(base, quote, params.Side, params.Qty, price, notional, fee); err != nil {
		order.Status = common.StatusRejected
		order.UpdatedAt = time.Now()
		acct.appendOrder(order)
		return order, err
	}

	order.Status = common.StatusFilled
	order.FilledQty = params.Qty
	order.AvgPrice = price
	order.Price = price
	order.UpdatedAt = time.Now()
	acct.appendOrder(order)

	acct.trades = append(acct.trades, common.Trade{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Symbol:    params.Symbol,
		Side:      params.Side,
		Qty:       params.Qty,
		Price:     price,
		Fee:       fee,
		Timestamp: order.UpdatedAt,
	})
	return order, nil
}

// cancelOrder cancels a pending order and releases its locked funds.
func (e *Engine) cancelOrder(userID, symbol, orderID string) error {
	acct := e.getOrCreate(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	order, ok := acct.orders[orderID]
	if !ok {
		return common.ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderNotCancellable, orderID, order.Status)
	}

	base, quote, err := common.SplitSymbol(order.Symbol)
	if err != nil {
		return err
	}
	acct.releaseLock(base, quote, common.OrderParams{
		Symbol: order.Symbol, Side: order.Side, Qty: order.Qty, Price: order.Price,
	})
	order.Status = common.StatusCancelled
	order.UpdatedAt = time.Now()
	return nil
}

// --- account internals (caller holds acct.mu) ---

func (a *account) appendOrder(o *common.Order) {
	a.orders[o.ID] = o
	a.orderSeq = append(a.orderSeq, o.ID)
}

func (a *account) balance(asset string) *common.Balance {
	b, ok := a.balances[asset]
	if !ok {
		b = &common.Balance{}
		a.balances[asset] = b
	}
	return b
}

// lockForOrder moves the funds a resting order would spend from available to
// locked.
func (a *account) lockForOrder(base, quote string, params common.OrderParams) error {
	if params.Side == common.SideBuy {
		if params.Price <= 0 {
			return fmt.Errorf("limit order requires a price")
		}
		need := params.Qty * params.Price
		b := a.balance(quote)
		if b.Available < need {
			return fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, need, quote, b.Available)
		}
		b.Available -= need
		b.Locked += need
		return nil
	}

	b := a.balance(base)
	if b.Available < params.Qty {
		return fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, params.Qty, base, b.Available)
	}
	b.Available -= params.Qty
	b.Locked += params.Qty
	return nil
}

// releaseLock returns a cancelled order's locked funds to available.
func (a *account) releaseLock(base, quote string, params common.OrderParams) {
	if params.Side == common.SideBuy {
		amount := params.Qty * params.Price
		b := a.balance(quote)
		b.Locked = math.Max(0, b.Locked-amount)
		b.Available += amount
		return
	}
	b := a.balance(base)
	b.Locked = math.Max(0, b.Locked-params.Qty)
	b.Available += params.Qty
}

// settleMarket performs the sufficiency check and, only when it passes, the
// balance and position mutations for one market fill.
func (a *account) settleMarket(base, quote string, side common.Side, qty, price, notional, fee float64) error {
	if side == common.SideBuy {
		need := notional + fee
		q := a.balance(quote)
		if q.Available < need {
			return fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, need, quote, q.Available)
		}
		if q.Available-need < -1e-9 {
			return fmt.Errorf("%w: %s balance would go negative", ErrLedgerInvariant, quote)
		}
		q.Available -= need
		a.balance(base).Available += qty
		a.applyFill(base+"/"+quote, side, qty, price)
		return nil
	}

	b := a.balance(base)
	if b.Available < qty {
		return fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, qty, base, b.Available)
	}
	if b.Available-qty < -1e-9 {
		return fmt.Errorf("%w: %s balance would go negative", ErrLedgerInvariant, base)
	}
	b.Available -= qty
	a.balance(quote).Available += notional - fee
	a.applyFill(base+"/"+quote, side, qty, price)
	return nil
}

// applyFill updates the symbol position incrementally; positions are never
// rebuilt from scratch.
func (a *account) applyFill(symbol string, side common.Side, qty, price float64) {
	pos, ok := a.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		a.positions[symbol] = pos
	}

	if side == common.SideBuy {
		pos.Qty += qty
		pos.TotalCost += qty * price
	} else {
		closeQty := math.Min(pos.Qty, qty)
		if pos.Qty > 0 {
			pos.TotalCost -= pos.AvgEntryPrice() * closeQty
		}
		pos.Qty -= closeQty
	}
	pos.UpdatedAt = time.Now()

	if pos.Qty < 1e-9 {
		delete(a.positions, symbol)
	}
}
