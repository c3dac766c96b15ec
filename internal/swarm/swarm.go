// Package swarm coordinates a set of trading agents: each decision round
// gathers every agent's proposed action concurrently, detects conflicting
// directions per symbol and resolves them by confidence.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/sourcegraph/conc"

	"execution-core/internal/events"
	"execution-core/pkg/exchanges/common"
)

// ActionType classifies what an agent wants to happen.
type ActionType string

const (
	ActionOrder ActionType = "order" // place a trade
	ActionAlert ActionType = "alert" // surface a signal, no trade
	ActionNoop  ActionType = "noop"  // explicitly do nothing
)

// Action is one agent's proposal for a decision round.
type Action struct {
	ID         string      `json:"id"`
	AgentID    string      `json:"agent_id"`
	Role       string      `json:"role"`
	Type       ActionType  `json:"type"`
	Symbol     string      `json:"symbol,omitempty"`
	Side       common.Side `json:"side,omitempty"`
	Confidence float64     `json:"confidence"`
	Size       float64     `json:"size,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Context is the shared market snapshot handed to every agent in a round.
type Context struct {
	Prices   map[string]float64        `json:"prices"`
	Balances map[string]common.Balance `json:"balances"`
}

// Agent is a decision-making participant. Decide may return a nil action to
// abstain from the round.
type Agent interface {
	ID() string
	Role() string
	Decide(ctx context.Context, sc Context) (*Action, error)
}

// Conflict records that more than one direction was proposed for a symbol in
// a single round.
type Conflict struct {
	Symbol   string        `json:"symbol"`
	Sides    []common.Side `json:"sides"`
	AgentIDs []string      `json:"agent_ids"`
	Kept     string        `json:"kept_agent_id"`
}

// AgentFailure records an agent whose Decide returned an error or panicked.
type AgentFailure struct {
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

// Result is the outcome of one decision round. Actions is the
// conflict-resolved set; Conflicts lists every detected conflict even though
// they are already resolved.
type Result struct {
	Actions   []Action       `json:"actions"`
	Conflicts []Conflict     `json:"conflicts"`
	Failed    []AgentFailure `json:"failed,omitempty"`
}

// Coordinator fans a decision round out to all registered agents.
// Registration order is significant: it breaks confidence ties.
type Coordinator struct {
	mu     sync.RWMutex
	agents []Agent
	bus    *events.Bus
}

// NewCoordinator creates an empty coordinator publishing to bus (may be nil).
func NewCoordinator(bus *events.Bus) *Coordinator {
	return &Coordinator{bus: bus}
}

// Register appends an agent. Duplicate IDs are rejected so conflict records
// stay unambiguous.
func (c *Coordinator) Register(a Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.agents {
		if existing.ID() == a.ID() {
			return fmt.Errorf("swarm: agent %q already registered", a.ID())
		}
	}
	c.agents = append(c.agents, a)
	log.Printf("swarm: registered agent %s role=%s", a.ID(), a.Role())
	return nil
}

// Agents lists registered agents in registration order.
func (c *Coordinator) Agents() []Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Agent, len(c.agents))
	copy(out, c.agents)
	return out
}

// Coordinate runs one decision round: every agent decides concurrently, the
// round waits for all of them, then conflicting proposals are resolved. A
// failing or panicking agent is reported in Result.Failed and treated as an
// abstention.
func (c *Coordinator) Coordinate(ctx context.Context, sc Context) (*Result, error) {
	c.mu.RLock()
	agents := make([]Agent, len(c.agents))
	copy(agents, c.agents)
	c.mu.RUnlock()

	type outcome struct {
		action *Action
		err    error
	}
	// errPending marks agents that never wrote an outcome, i.e. panicked.
	errPending := errors.New("agent did not complete")
	outcomes := make([]outcome, len(agents))
	for i := range outcomes {
		outcomes[i].err = errPending
	}

	var wg conc.WaitGroup
	for i, a := range agents {
		i, a := i, a
		wg.Go(func() {
			action, err := a.Decide(ctx, sc)
			outcomes[i] = outcome{action, err}
		})
	}
	if recovered := wg.WaitAndRecover(); recovered != nil {
		// Panicking agents keep their errPending outcome and are reported
		// as failures below instead of crashing the round.
		log.Printf("swarm: agent panic recovered: %v", recovered.Value)
	}

	res := &Result{}
	proposals := make([]Action, 0, len(agents))
	for i, a := range agents {
		o := outcomes[i]
		if o.err != nil {
			res.Failed = append(res.Failed, AgentFailure{AgentID: a.ID(), Error: o.err.Error()})
			continue
		}
		if o.action == nil || o.action.Type == ActionNoop {
			continue
		}
		act := *o.action
		act.AgentID = a.ID()
		act.Role = a.Role()
		proposals = append(proposals, act)
	}

	kept, conflicts := resolveConflicts(proposals)
	res.Actions = kept
	res.Conflicts = conflicts

	if c.bus != nil {
		for _, conf := range conflicts {
			c.bus.Publish(events.EventSwarmConflict, conf)
		}
	}
	return res, nil
}

// resolveConflicts groups order proposals by symbol. A symbol with more than
// one distinct side is a conflict: the highest-confidence proposal wins, with
// the earlier-registered agent winning ties. Non-order actions pass through
// untouched.
func resolveConflicts(proposals []Action) ([]Action, []Conflict) {
	kept := make([]Action, 0, len(proposals))
	bySymbol := make(map[string][]int)
	symbolOrder := make([]string, 0)

	for i, p := range proposals {
		if p.Type != ActionOrder || p.Symbol == "" {
			kept = append(kept, p)
			continue
		}
		if _, seen := bySymbol[p.Symbol]; !seen {
			symbolOrder = append(symbolOrder, p.Symbol)
		}
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], i)
	}

	var conflicts []Conflict
	for _, sym := range symbolOrder {
		idxs := bySymbol[sym]

		distinct := make(map[common.Side]bool)
		for _, i := range idxs {
			distinct[proposals[i].Side] = true
		}

		if len(distinct) <= 1 {
			for _, i := range idxs {
				kept = append(kept, proposals[i])
			}
			continue
		}

		// Conflict: pick the strongest proposal. Slice order is registration
		// order, and the strict > keeps the first agent on equal confidence.
		winner := idxs[0]
		for _, i := range idxs[1:] {
			if proposals[i].Confidence > proposals[winner].Confidence {
				winner = i
			}
		}

		conf := Conflict{Symbol: sym, Kept: proposals[winner].AgentID}
		sides := make([]common.Side, 0, len(distinct))
		for s := range distinct {
			sides = append(sides, s)
		}
		sort.Slice(sides, func(i, j int) bool { return sides[i] < sides[j] })
		conf.Sides = sides
		for _, i := range idxs {
			conf.AgentIDs = append(conf.AgentIDs, proposals[i].AgentID)
		}
		conflicts = append(conflicts, conf)
		kept = append(kept, proposals[winner])
	}
	return kept, conflicts
}
