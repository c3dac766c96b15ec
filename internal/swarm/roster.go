package swarm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"execution-core/pkg/exchanges/common"
)

// RosterFile is the on-disk swarm definition.
type RosterFile struct {
	Agents []RosterAgent `yaml:"agents"`
}

// RosterAgent configures one rule-based agent. Type selects the
// implementation: "static" (default) or "momentum".
type RosterAgent struct {
	ID         string  `yaml:"id"`
	Type       string  `yaml:"type"`
	Role       string  `yaml:"role"`
	Symbol     string  `yaml:"symbol"`
	Side       string  `yaml:"side"`
	Confidence float64 `yaml:"confidence"`
	Size       float64 `yaml:"size"`
	// BuyBelow/SellAbove gate a static proposal on the round's price
	// snapshot; zero means always propose.
	BuyBelow  float64 `yaml:"buy_below"`
	SellAbove float64 `yaml:"sell_above"`
	Reason    string  `yaml:"reason"`
	// Momentum-only tuning.
	Period   int     `yaml:"period"`
	Oversold float64 `yaml:"oversold"`
	Overheat float64 `yaml:"overheat"`
}

// LoadRoster reads a roster file and registers its agents on the
// coordinator in file order.
func LoadRoster(path string, c *Coordinator) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read roster: %w", err)
	}

	var file RosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse roster: %w", err)
	}

	for i, spec := range file.Agents {
		var agent Agent
		switch spec.Type {
		case "", "static":
			agent, err = NewStaticAgent(spec)
		case "momentum":
			agent, err = NewMomentumAgent(MomentumConfig{
				ID:       spec.ID,
				Symbol:   spec.Symbol,
				Size:     spec.Size,
				Period:   spec.Period,
				Oversold: spec.Oversold,
				Overheat: spec.Overheat,
			})
		default:
			err = fmt.Errorf("unknown agent type %q", spec.Type)
		}
		if err != nil {
			return i, fmt.Errorf("roster agent %d: %w", i, err)
		}
		if err := c.Register(agent); err != nil {
			return i, err
		}
	}
	return len(file.Agents), nil
}

// StaticAgent proposes a fixed order when its price gate passes. It exists
// for roster-driven deployments and as a deterministic test participant.
type StaticAgent struct {
	spec RosterAgent
	side common.Side
}

// NewStaticAgent validates the roster entry.
func NewStaticAgent(spec RosterAgent) (*StaticAgent, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	side := common.Side(spec.Side)
	if spec.Side != "" && side != common.SideBuy && side != common.SideSell {
		return nil, fmt.Errorf("invalid side %q", spec.Side)
	}
	if spec.Confidence < 0 || spec.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of [0,1]", spec.Confidence)
	}
	return &StaticAgent{spec: spec, side: side}, nil
}

func (a *StaticAgent) ID() string   { return a.spec.ID }
func (a *StaticAgent) Role() string { return a.spec.Role }

// Decide proposes the configured order when the price gate passes, otherwise
// abstains.
func (a *StaticAgent) Decide(ctx context.Context, sc Context) (*Action, error) {
	if a.spec.Symbol == "" || a.side == "" {
		return nil, nil
	}
	price, ok := sc.Prices[a.spec.Symbol]
	if !ok {
		return nil, nil
	}
	if a.spec.BuyBelow > 0 && a.side == common.SideBuy && price >= a.spec.BuyBelow {
		return nil, nil
	}
	if a.spec.SellAbove > 0 && a.side == common.SideSell && price <= a.spec.SellAbove {
		return nil, nil
	}
	return &Action{
		ID:         uuid.NewString(),
		Type:       ActionOrder,
		Symbol:     a.spec.Symbol,
		Side:       a.side,
		Confidence: a.spec.Confidence,
		Size:       a.spec.Size,
		Reason:     a.spec.Reason,
	}, nil
}
