// Package risk provides advisory position checks. Decisions are surfaced to
// callers and the event bus; nothing here blocks an order on its own.
package risk

import (
	"log"
	"sync"
	"time"

	"execution-core/internal/events"
)

// Profile bounds a user's exposure.
type Profile struct {
	MaxPositionPct   float64 `json:"max_position_pct"`   // single position as a share of portfolio
	MaxOpenPositions int     `json:"max_open_positions"` // concurrent open positions
	MaxLeverage      float64 `json:"max_leverage"`
	RiskPerTradePct  float64 `json:"risk_per_trade_pct"` // capital risked per trade
}

// DefaultProfile is the conservative starting profile for new users.
func DefaultProfile() Profile {
	return Profile{
		MaxPositionPct:   0.25,
		MaxOpenPositions: 10,
		MaxLeverage:      3,
		RiskPerTradePct:  0.02,
	}
}

// Decision is the outcome of a check. Reason is set when Allowed is false.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// PositionCheck describes the exposure a proposed order would create.
type PositionCheck struct {
	PositionValue  float64
	PortfolioValue float64
	OpenPositions  int
	Leverage       float64
}

// Advisor keeps per-user profiles and evaluates proposed exposure against
// them.
type Advisor struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	bus      *events.Bus
}

// NewAdvisor creates an advisor publishing alerts to bus (may be nil).
func NewAdvisor(bus *events.Bus) *Advisor {
	return &Advisor{profiles: make(map[string]Profile), bus: bus}
}

// GetUserProfile returns the user's profile, defaulting unseen users.
func (a *Advisor) GetUserProfile(userID string) Profile {
	a.mu.RLock()
	p, ok := a.profiles[userID]
	a.mu.RUnlock()
	if !ok {
		return DefaultProfile()
	}
	return p
}

// SetUserProfile replaces the user's profile.
func (a *Advisor) SetUserProfile(userID string, p Profile) {
	a.mu.Lock()
	a.profiles[userID] = p
	a.mu.Unlock()
	log.Printf("risk: updated profile for user %s", userID)
}

// CheckPosition evaluates a proposed position against the user's profile.
// A disallowed decision also raises a risk alert on the bus.
func (a *Advisor) CheckPosition(userID string, c PositionCheck) Decision {
	p := a.GetUserProfile(userID)

	d := Decision{Allowed: true}
	switch {
	case c.PortfolioValue <= 0:
		d = Decision{Reason: "portfolio value must be positive"}
	case p.MaxOpenPositions > 0 && c.OpenPositions >= p.MaxOpenPositions:
		d = Decision{Reason: "max open positions reached"}
	case p.MaxLeverage > 0 && c.Leverage > p.MaxLeverage:
		d = Decision{Reason: "leverage exceeds profile limit"}
	case p.MaxPositionPct > 0 && c.PositionValue > c.PortfolioValue*p.MaxPositionPct:
		d = Decision{Reason: "position exceeds max share of portfolio"}
	}

	if !d.Allowed {
		log.Printf("risk: user %s position check failed: %s", userID, d.Reason)
		if a.bus != nil {
			a.bus.Publish(events.EventRiskAlert, map[string]any{
				"user_id": userID, "reason": d.Reason, "at": time.Now(),
			})
		}
	}
	return d
}

// CalculatePositionSize returns the quantity that risks RiskPerTradePct of
// capital given the distance to the stop. A zero stop distance yields zero.
func (a *Advisor) CalculatePositionSize(userID string, capital, entryPrice, stopPrice float64) float64 {
	p := a.GetUserProfile(userID)
	stopDistance := entryPrice - stopPrice
	if stopDistance < 0 {
		stopDistance = -stopDistance
	}
	if capital <= 0 || entryPrice <= 0 || stopDistance == 0 {
		return 0
	}

	qty := capital * p.RiskPerTradePct / stopDistance
	// Cap the notional at the single-position limit.
	if p.MaxPositionPct > 0 {
		maxQty := capital * p.MaxPositionPct / entryPrice
		if qty > maxQty {
			qty = maxQty
		}
	}
	return qty
}
