// Package events is a lightweight in-process pub/sub broker used to observe
// order flow, mode transitions and breaker state without polling.
package events

import "sync"

// Event enumerates high-level topics inside the execution core.
type Event string

const (
	EventOrderSubmitted Event = "order.submitted"
	EventOrderFilled    Event = "order.filled"
	EventOrderRejected  Event = "order.rejected"
	EventOrderCancelled Event = "order.cancelled"
	EventModeSwitched   Event = "mode.switched"
	EventBreakerState   Event = "breaker.state"
	EventSwarmConflict  Event = "swarm.conflict"
	EventRiskAlert      Event = "risk.alert"
	EventPriceTick      Event = "price.tick"
)

// Bus is a channel-based broker. Publish never blocks; slow subscribers drop
// messages instead of stalling the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan any
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for an event; the returned function
// unsubscribes and closes the channel.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.subs[e] {
			if c == ch {
				close(c)
				b.subs[e] = append(b.subs[e][:i], b.subs[e][i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

// Subscribers reports the number of active subscriptions for an event.
func (b *Bus) Subscribers(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[e])
}

// Publish fans the payload out to current subscribers.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			// Drop rather than block the publisher.
		}
	}
}
