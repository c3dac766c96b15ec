// Package mode owns per-user trading mode state and routes orders to the
// paper engine or a live venue adapter. Entering live mode is gated by an
// explicit confirmation ritual and every transition is audited.
package mode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"execution-core/internal/breaker"
	"execution-core/internal/events"
	"execution-core/internal/paper"
	"execution-core/pkg/exchanges/common"
)

// Mode is the per-user trading context.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// LiveOrderWarning is attached to every order executed in live mode.
const LiveOrderWarning = "WARNING: order executed in LIVE mode - real funds are at risk"

var (
	// ErrNoLiveAdapter rejects a live switch when no live venue is configured.
	ErrNoLiveAdapter = errors.New("no live exchange configured for user")

	// ErrSimulatedVenue rejects a live switch onto a testnet or simulator.
	ErrSimulatedVenue = errors.New("configured live adapter is a simulated venue")

	// ErrConfirmationRequired rejects a live switch without confirmed=true.
	ErrConfirmationRequired = errors.New("explicit confirmation required to enter live mode")

	// ErrPasswordRequired rejects a live switch without a password.
	ErrPasswordRequired = errors.New("password required to enter live mode")

	// ErrAcknowledgementRequired rejects a live switch without a risk
	// acknowledgement string.
	ErrAcknowledgementRequired = errors.New("risk acknowledgement required to enter live mode")

	// ErrNoExchangeConfigured is returned when routing finds no adapter for
	// the current mode.
	ErrNoExchangeConfigured = errors.New("no exchange configured for current mode")

	// ErrInvalidMode is returned for unknown target modes.
	ErrInvalidMode = errors.New("invalid trading mode")
)

// Confirmation is required to enter live mode. The password is used only for
// the gate check and never reaches the audit log.
type Confirmation struct {
	Confirmed           bool   `json:"confirmed"`
	Password            string `json:"password"`
	RiskAcknowledgement string `json:"risk_acknowledgement"`
}

// Status is the mode summary exposed to dashboards.
type Status struct {
	Mode            Mode      `json:"mode"`
	IsLive          bool      `json:"is_live"`
	CanSwitchToLive bool      `json:"can_switch_to_live"`
	ModeStartedAt   time.Time `json:"mode_started_at"`
}

// AuditEntry is one append-only record of a mode transition or a routing
// decision that crossed the live boundary.
type AuditEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`
	PreviousMode Mode      `json:"previous_mode,omitempty"`
	NewMode      Mode      `json:"new_mode,omitempty"`
	Details      string    `json:"details,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// AuditStore persists audit entries. Append failures abort the guarded
// operation so the trail can never silently lag the state.
type AuditStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error)
}

// ModeChange is the bus payload for mode transitions.
type ModeChange struct {
	UserID string    `json:"user_id"`
	From   Mode      `json:"from"`
	To     Mode      `json:"to"`
	At     time.Time `json:"at"`
}

// OrderResult pairs a routed order with the mode context it executed in.
type OrderResult struct {
	Order   *common.Order `json:"order"`
	Mode    Mode          `json:"mode"`
	Venue   string        `json:"venue"`
	Warning string        `json:"warning,omitempty"`
}

type userState struct {
	mode      Mode
	startedAt time.Time
}

// Manager is the per-user routing and safety-gating authority.
type Manager struct {
	mu       sync.RWMutex
	states   map[string]*userState
	live     map[string]common.Adapter
	breakers map[string]*breaker.Breaker

	paper      *paper.Engine
	audit      AuditStore
	bus        *events.Bus
	breakerCfg breaker.Config
	now        func() time.Time
}

// NewManager wires the shared paper engine, audit store and event bus.
func NewManager(paperEngine *paper.Engine, audit AuditStore, bus *events.Bus, breakerCfg breaker.Config) *Manager {
	return &Manager{
		states:     make(map[string]*userState),
		live:       make(map[string]common.Adapter),
		breakers:   make(map[string]*breaker.Breaker),
		paper:      paperEngine,
		audit:      audit,
		bus:        bus,
		breakerCfg: breakerCfg,
		now:        time.Now,
	}
}

// SetLiveAdapter configures a live venue for a user and creates the circuit
// breaker guarding that connection.
func (m *Manager) SetLiveAdapter(userID string, adapter common.Adapter) {
	br := breaker.New("live:"+userID, m.breakerCfg)
	if m.bus != nil {
		bus := m.bus
		br.OnStateChange(func(name string, from, to breaker.State) {
			log.Printf("breaker %s: %s -> %s", name, from, to)
			bus.Publish(events.EventBreakerState, map[string]any{
				"breaker": name, "from": from, "to": to,
			})
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[userID] = adapter
	m.breakers[userID] = br
}

// RemoveLiveAdapter drops a user's live venue. A user currently in live mode
// falls back to paper on the next routing decision via the configured-check.
func (m *Manager) RemoveLiveAdapter(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, userID)
	delete(m.breakers, userID)
}

// stateLocked lazily defaults unseen users to paper mode.
func (m *Manager) stateLocked(userID string) *userState {
	st, ok := m.states[userID]
	if !ok {
		st = &userState{mode: ModePaper, startedAt: m.now()}
		m.states[userID] = st
	}
	return st
}

// CurrentMode returns the user's mode, defaulting unseen users to paper.
func (m *Manager) CurrentMode(userID string) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(userID).mode
}

// GetModeStatus reports the mode summary; CanSwitchToLive depends only on
// whether a live adapter is configured.
func (m *Manager) GetModeStatus(userID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(userID)
	_, hasLive := m.live[userID]
	return Status{
		Mode:            st.mode,
		IsLive:          st.mode == ModeLive,
		CanSwitchToLive: hasLive,
		ModeStartedAt:   st.startedAt,
	}
}

// SwitchMode transitions a user between paper and live. Switching to paper
// is unconditional; switching to live requires a configured production venue
// and a complete confirmation. The gate is checked before any state
// mutation and each missing element fails with its own error.
func (m *Manager) SwitchMode(ctx context.Context, userID string, target Mode, conf *Confirmation) error {
	if target != ModePaper && target != ModeLive {
		return fmt.Errorf("%w: %q", ErrInvalidMode, target)
	}

	if target == ModeLive {
		m.mu.RLock()
		adapter, ok := m.live[userID]
		m.mu.RUnlock()
		if !ok || adapter == nil {
			return ErrNoLiveAdapter
		}
		if adapter.IsSimulated() {
			return ErrSimulatedVenue
		}
		if conf == nil || !conf.Confirmed {
			return ErrConfirmationRequired
		}
		if conf.Password == "" {
			return ErrPasswordRequired
		}
		if conf.RiskAcknowledgement == "" {
			return ErrAcknowledgementRequired
		}
	}

	m.mu.Lock()
	// The gate ran under a read lock; the adapter may have been removed in
	// between. Re-check under the write lock so a user can never commit to
	// live mode with no venue configured.
	if target == ModeLive {
		if adapter, ok := m.live[userID]; !ok || adapter == nil {
			m.mu.Unlock()
			return ErrNoLiveAdapter
		}
	}
	st := m.stateLocked(userID)
	previous := st.mode
	if previous == target {
		m.mu.Unlock()
		return nil
	}
	st.mode = target
	st.startedAt = m.now()
	startedAt := st.startedAt
	m.mu.Unlock()

	// The confirmation password is deliberately absent from the entry.
	entry := AuditEntry{
		UserID:       userID,
		Action:       "mode_switch",
		PreviousMode: previous,
		NewMode:      target,
		Timestamp:    startedAt,
	}
	if target == ModeLive && conf != nil {
		entry.Details = "risk acknowledged: " + conf.RiskAcknowledgement
	}
	if err := m.appendAudit(ctx, entry); err != nil {
		// Roll the switch back; an unaudited live transition must not stand.
		m.mu.Lock()
		st.mode = previous
		m.mu.Unlock()
		return fmt.Errorf("audit mode switch: %w", err)
	}

	log.Printf("mode: user %s switched %s -> %s", userID, previous, target)
	if m.bus != nil {
		m.bus.Publish(events.EventModeSwitched, ModeChange{UserID: userID, From: previous, To: target, At: startedAt})
	}
	return nil
}

// adapterFor resolves the adapter and optional breaker for the user's
// current mode.
func (m *Manager) adapterFor(userID string) (common.Adapter, *breaker.Breaker, Mode, error) {
	m.mu.Lock()
	st := m.stateLocked(userID)
	current := st.mode
	adapter := m.live[userID]
	br := m.breakers[userID]
	m.mu.Unlock()

	if current == ModeLive {
		if adapter == nil {
			return nil, nil, current, ErrNoExchangeConfigured
		}
		return adapter, br, current, nil
	}
	if m.paper == nil {
		return nil, nil, current, ErrNoExchangeConfigured
	}
	return m.paper.ForUser(userID), nil, current, nil
}

// CreateOrder routes an order to the adapter matching the user's current
// mode. Live calls run under the per-connection circuit breaker and carry an
// explicit real-funds warning on the result.
func (m *Manager) CreateOrder(ctx context.Context, userID string, params common.OrderParams) (*OrderResult, error) {
	adapter, br, current, err := m.adapterFor(userID)
	if err != nil {
		return nil, err
	}

	if m.bus != nil {
		m.bus.Publish(events.EventOrderSubmitted, map[string]any{
			"user_id": userID, "symbol": params.Symbol, "side": params.Side, "mode": current,
		})
	}

	res := &OrderResult{Mode: current, Venue: adapter.Name()}

	if current == ModeLive {
		// Crossing the live boundary is itself an audited decision.
		if err := m.appendAudit(ctx, AuditEntry{
			UserID:    userID,
			Action:    "live_order_routed",
			Details:   fmt.Sprintf("%s %s qty=%v venue=%s", params.Side, params.Symbol, params.Qty, adapter.Name()),
			Timestamp: m.now(),
		}); err != nil {
			return nil, fmt.Errorf("audit live order: %w", err)
		}

		v, err := br.Execute(ctx, func(ctx context.Context) (any, error) {
			return adapter.PlaceOrder(ctx, params)
		})
		if err != nil {
			m.publishOrderFailure(userID, params, err)
			return nil, err
		}
		res.Order = v.(*common.Order)
		res.Warning = LiveOrderWarning
	} else {
		order, err := adapter.PlaceOrder(ctx, params)
		if err != nil {
			m.publishOrderFailure(userID, params, err)
			// A rejected paper order still carries its record for history.
			if order != nil {
				res.Order = order
				return res, err
			}
			return nil, err
		}
		res.Order = order
	}

	if m.bus != nil && res.Order != nil && res.Order.Status == common.StatusFilled {
		m.bus.Publish(events.EventOrderFilled, *res.Order)
	}
	return res, nil
}

// CancelOrder cancels via the adapter for the current mode; live calls run
// under the breaker.
func (m *Manager) CancelOrder(ctx context.Context, userID, symbol, orderID string) error {
	adapter, br, current, err := m.adapterFor(userID)
	if err != nil {
		return err
	}

	if current == ModeLive {
		err = br.Do(ctx, func(ctx context.Context) error {
			return adapter.CancelOrder(ctx, symbol, orderID)
		})
	} else {
		err = adapter.CancelOrder(ctx, symbol, orderID)
	}
	if err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(events.EventOrderCancelled, map[string]any{
			"user_id": userID, "symbol": symbol, "order_id": orderID, "mode": current,
		})
	}
	return nil
}

// AdapterForUser exposes the mode-routed adapter for read paths (balances,
// tickers) so callers cannot accidentally bypass mode routing.
func (m *Manager) AdapterForUser(userID string) (common.Adapter, Mode, error) {
	adapter, _, current, err := m.adapterFor(userID)
	return adapter, current, err
}

// BreakerStats snapshots all live-connection breakers.
func (m *Manager) BreakerStats() []breaker.Stats {
	m.mu.RLock()
	brs := make([]*breaker.Breaker, 0, len(m.breakers))
	for _, br := range m.breakers {
		brs = append(brs, br)
	}
	m.mu.RUnlock()

	out := make([]breaker.Stats, 0, len(brs))
	for _, br := range brs {
		out = append(out, br.Stats())
	}
	return out
}

// AuditLog lists a user's audit trail, newest first.
func (m *Manager) AuditLog(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	if m.audit == nil {
		return nil, nil
	}
	return m.audit.ListAudit(ctx, userID, limit)
}

func (m *Manager) appendAudit(ctx context.Context, e AuditEntry) error {
	if m.audit == nil {
		return nil
	}
	return m.audit.AppendAudit(ctx, e)
}

func (m *Manager) publishOrderFailure(userID string, params common.OrderParams, err error) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.EventOrderRejected, map[string]any{
		"user_id": userID, "symbol": params.Symbol, "side": params.Side, "error": err.Error(),
	})
}
