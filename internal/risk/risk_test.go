package risk

import (
	"math"
	"testing"
)

func TestCheckPosition(t *testing.T) {
	a := NewAdvisor(nil)
	a.SetUserProfile("u1", Profile{
		MaxPositionPct:   0.25,
		MaxOpenPositions: 3,
		MaxLeverage:      2,
		RiskPerTradePct:  0.02,
	})

	tests := []struct {
		name    string
		check   PositionCheck
		allowed bool
	}{
		{
			name:    "within limits",
			check:   PositionCheck{PositionValue: 20000, PortfolioValue: 100000, OpenPositions: 1, Leverage: 1},
			allowed: true,
		},
		{
			name:    "position too large",
			check:   PositionCheck{PositionValue: 30000, PortfolioValue: 100000, OpenPositions: 1, Leverage: 1},
			allowed: false,
		},
		{
			name:    "too many open positions",
			check:   PositionCheck{PositionValue: 1000, PortfolioValue: 100000, OpenPositions: 3, Leverage: 1},
			allowed: false,
		},
		{
			name:    "leverage exceeded",
			check:   PositionCheck{PositionValue: 1000, PortfolioValue: 100000, OpenPositions: 0, Leverage: 3},
			allowed: false,
		},
		{
			name:    "empty portfolio",
			check:   PositionCheck{PositionValue: 1000, PortfolioValue: 0, OpenPositions: 0, Leverage: 1},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := a.CheckPosition("u1", tt.check)
			if d.Allowed != tt.allowed {
				t.Errorf("allowed = %v (reason %q), want %v", d.Allowed, d.Reason, tt.allowed)
			}
			if !d.Allowed && d.Reason == "" {
				t.Errorf("disallowed decision without reason")
			}
		})
	}
}

func TestUnknownUserGetsDefaultProfile(t *testing.T) {
	a := NewAdvisor(nil)
	p := a.GetUserProfile("nobody")
	if p != DefaultProfile() {
		t.Errorf("profile = %+v, want defaults", p)
	}
}

func TestCalculatePositionSize(t *testing.T) {
	a := NewAdvisor(nil)
	a.SetUserProfile("u1", Profile{MaxPositionPct: 0.5, RiskPerTradePct: 0.02})

	// Risk 2% of 100k = 2000; stop distance 1000 → 2 units.
	qty := a.CalculatePositionSize("u1", 100000, 45000, 44000)
	if math.Abs(qty-2) > 1e-9 {
		t.Errorf("qty = %v, want 2", qty)
	}

	// Short direction: stop above entry works the same.
	qty = a.CalculatePositionSize("u1", 100000, 44000, 45000)
	if math.Abs(qty-2) > 1e-9 {
		t.Errorf("short qty = %v, want 2", qty)
	}

	// Notional cap: tight profile clamps to MaxPositionPct.
	a.SetUserProfile("u2", Profile{MaxPositionPct: 0.1, RiskPerTradePct: 0.5})
	qty = a.CalculatePositionSize("u2", 100000, 1000, 999)
	maxQty := 100000 * 0.1 / 1000.0
	if math.Abs(qty-maxQty) > 1e-9 {
		t.Errorf("capped qty = %v, want %v", qty, maxQty)
	}

	// Degenerate inputs yield zero.
	for _, q := range []float64{
		a.CalculatePositionSize("u1", 0, 45000, 44000),
		a.CalculatePositionSize("u1", 100000, 0, 1),
		a.CalculatePositionSize("u1", 100000, 45000, 45000),
	} {
		if q != 0 {
			t.Errorf("degenerate size = %v, want 0", q)
		}
	}
}
