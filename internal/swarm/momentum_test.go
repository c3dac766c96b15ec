package swarm

import (
	"context"
	"testing"

	"execution-core/pkg/exchanges/common"
)

func feedPrices(t *testing.T, a *MomentumAgent, prices []float64) *Action {
	t.Helper()
	var last *Action
	for _, p := range prices {
		act, err := a.Decide(context.Background(), Context{Prices: map[string]float64{"BTC/USDT": p}})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		last = act
	}
	return last
}

func TestMomentumAbstainsUntilWarm(t *testing.T) {
	a, err := NewMomentumAgent(MomentumConfig{ID: "m1", Symbol: "BTC/USDT", Period: 5})
	if err != nil {
		t.Fatalf("NewMomentumAgent: %v", err)
	}

	if act := feedPrices(t, a, []float64{100, 101, 102, 103, 104}); act != nil {
		t.Errorf("cold agent proposed %+v", act)
	}
}

func TestMomentumBuysAtOversold(t *testing.T) {
	a, _ := NewMomentumAgent(MomentumConfig{ID: "m1", Symbol: "BTC/USDT", Period: 5, Size: 0.1})

	// A straight decline drives the unsmoothed RSI to 0.
	act := feedPrices(t, a, []float64{100, 99, 98, 97, 96, 95})
	if act == nil {
		t.Fatalf("oversold agent abstained")
	}
	if act.Side != common.SideBuy || act.Type != ActionOrder || act.Symbol != "BTC/USDT" {
		t.Errorf("action = %+v", act)
	}
	if act.Confidence < 0.5 || act.Confidence > 1 {
		t.Errorf("confidence = %v", act.Confidence)
	}
}

func TestMomentumSellsAtOverheat(t *testing.T) {
	a, _ := NewMomentumAgent(MomentumConfig{ID: "m1", Symbol: "BTC/USDT", Period: 5, Size: 0.1})

	act := feedPrices(t, a, []float64{100, 101, 102, 103, 104, 105})
	if act == nil {
		t.Fatalf("overheated agent abstained")
	}
	if act.Side != common.SideSell {
		t.Errorf("side = %s, want SELL", act.Side)
	}
}

func TestMomentumAbstainsInTheMiddleBand(t *testing.T) {
	a, _ := NewMomentumAgent(MomentumConfig{ID: "m1", Symbol: "BTC/USDT", Period: 4})

	// Alternating gains and losses hold the RSI near 50.
	if act := feedPrices(t, a, []float64{100, 101, 100, 101, 100, 101, 100}); act != nil {
		t.Errorf("mid-band agent proposed %+v", act)
	}
}

func TestMomentumIgnoresOtherSymbols(t *testing.T) {
	a, _ := NewMomentumAgent(MomentumConfig{ID: "m1", Symbol: "BTC/USDT", Period: 3})
	act, err := a.Decide(context.Background(), Context{Prices: map[string]float64{"ETH/USDT": 3000}})
	if err != nil || act != nil {
		t.Errorf("Decide = %+v, %v", act, err)
	}
}

func TestMomentumConfigValidation(t *testing.T) {
	if _, err := NewMomentumAgent(MomentumConfig{Symbol: "BTC/USDT"}); err == nil {
		t.Errorf("missing id accepted")
	}
	if _, err := NewMomentumAgent(MomentumConfig{ID: "m1"}); err == nil {
		t.Errorf("missing symbol accepted")
	}
	if _, err := NewMomentumAgent(MomentumConfig{ID: "m1", Symbol: "BTC/USDT", Oversold: 80, Overheat: 20}); err == nil {
		t.Errorf("inverted bands accepted")
	}
}
