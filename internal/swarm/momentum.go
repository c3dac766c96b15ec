package swarm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"execution-core/internal/indicators"
	"execution-core/pkg/exchanges/common"
)

// MomentumAgent proposes mean-reversion orders from an RSI over the prices it
// observes across rounds. It abstains until its window is warm.
type MomentumAgent struct {
	id       string
	symbol   string
	size     float64
	period   int
	oversold float64
	overheat float64
	window   *indicators.Window
}

// MomentumConfig configures a momentum agent. Zero thresholds default to the
// conventional 30/70 bands.
type MomentumConfig struct {
	ID       string
	Symbol   string
	Size     float64
	Period   int
	Oversold float64
	Overheat float64
}

// NewMomentumAgent validates the config.
func NewMomentumAgent(cfg MomentumConfig) (*MomentumAgent, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Oversold <= 0 {
		cfg.Oversold = 30
	}
	if cfg.Overheat <= 0 {
		cfg.Overheat = 70
	}
	if cfg.Oversold >= cfg.Overheat {
		return nil, fmt.Errorf("oversold band %v must sit below overheat band %v", cfg.Oversold, cfg.Overheat)
	}
	return &MomentumAgent{
		id:       cfg.ID,
		symbol:   cfg.Symbol,
		size:     cfg.Size,
		period:   cfg.Period,
		oversold: cfg.Oversold,
		overheat: cfg.Overheat,
		window:   indicators.NewWindow(cfg.Period * 4),
	}, nil
}

func (a *MomentumAgent) ID() string   { return a.id }
func (a *MomentumAgent) Role() string { return "momentum" }

// Decide ingests the round's price and proposes a BUY at the oversold band or
// a SELL at the overheated band.
func (a *MomentumAgent) Decide(ctx context.Context, sc Context) (*Action, error) {
	price, ok := sc.Prices[a.symbol]
	if !ok {
		return nil, nil
	}
	series := a.window.Observe(a.symbol, price)
	if len(series) < a.period+1 {
		return nil, nil
	}

	rsi := indicators.RSI(series, a.period)
	var side common.Side
	switch {
	case rsi <= a.oversold:
		side = common.SideBuy
	case rsi >= a.overheat:
		side = common.SideSell
	default:
		return nil, nil
	}

	// Confidence grows as the RSI pushes deeper past the band.
	depth := 0.0
	if side == common.SideBuy {
		depth = (a.oversold - rsi) / a.oversold
	} else {
		depth = (rsi - a.overheat) / (100 - a.overheat)
	}
	confidence := 0.5 + 0.5*depth
	if confidence > 1 {
		confidence = 1
	}

	return &Action{
		ID:         uuid.NewString(),
		Type:       ActionOrder,
		Symbol:     a.symbol,
		Side:       side,
		Confidence: confidence,
		Size:       a.size,
		Reason:     fmt.Sprintf("rsi(%d)=%.1f", a.period, rsi),
	}, nil
}
