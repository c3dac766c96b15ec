// Package breaker provides a circuit breaker for calls to external venues:
// failure isolation, per-call timeout enforcement and fallback execution.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the breaker state machine position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config tunes the state machine.
type Config struct {
	FailureThreshold int           // consecutive failures that open the circuit
	SuccessThreshold int           // consecutive half-open successes that close it
	MaxProbes        int           // concurrent half-open probes allowed (default 1)
	ResetTimeout     time.Duration // open duration before probing resumes
	Timeout          time.Duration // per-call timeout; 0 disables
}

// DefaultConfig matches the defaults used for venue connections.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		MaxProbes:        1,
		ResetTimeout:     30 * time.Second,
		Timeout:          10 * time.Second,
	}
}

// OpenError is returned when the circuit refuses a call without invoking the
// wrapped function. Callers can tell "the venue failed" apart from "the
// circuit would not even try".
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// Stats is an observable snapshot of one breaker.
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
	TotalRequests   int64     `json:"total_requests"`
}

// Breaker wraps calls to one external dependency. The Open→HalfOpen
// transition is evaluated lazily whenever state is queried or a call is
// attempted; there is no background timer.
type Breaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    int // consecutive failures since last success
	successes   int // consecutive successes while half-open
	probes      int // half-open probes in flight
	openedAt    time.Time
	lastFailure time.Time
	total       int64

	now func() time.Time

	stateListeners   []func(name string, from, to State)
	successListeners []func(name string)
	failureListeners []func(name string, err error)
}

// New creates a closed breaker.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = 1
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Name returns the breaker identifier.
func (b *Breaker) Name() string { return b.name }

// OnStateChange registers a listener invoked synchronously on every state
// transition.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateListeners = append(b.stateListeners, fn)
}

// OnSuccess registers a listener invoked after every successful call.
func (b *Breaker) OnSuccess(fn func(name string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successListeners = append(b.successListeners, fn)
}

// OnFailure registers a listener invoked after every failed call.
func (b *Breaker) OnFailure(fn func(name string, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureListeners = append(b.failureListeners, fn)
}

// State returns the current state, performing the lazy Open→HalfOpen
// transition when the reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	notify := b.maybeHalfOpenLocked()
	s := b.state
	b.mu.Unlock()
	notify()
	return s
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	notify := b.maybeHalfOpenLocked()
	s := Stats{
		Name:            b.name,
		State:           b.state,
		FailureCount:    b.failures,
		SuccessCount:    b.successes,
		LastFailureTime: b.lastFailure,
		TotalRequests:   b.total,
	}
	b.mu.Unlock()
	notify()
	return s
}

// Execute runs fn under the breaker. When the circuit is open the call fails
// fast with *OpenError without invoking fn. A call exceeding the configured
// timeout counts as a failure and its late result is discarded.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	callCtx := ctx
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	type result struct {
		v   any
		err error
	}
	// Buffered so an abandoned call can still complete its send and exit.
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			b.afterCall(r.err)
			return nil, r.err
		}
		b.afterCall(nil)
		return r.v, nil
	case <-callCtx.Done():
		// Timed out or cancelled: stop waiting; any late completion is
		// discarded rather than applied.
		err := fmt.Errorf("breaker %s: call abandoned: %w", b.name, callCtx.Err())
		b.afterCall(err)
		return nil, err
	}
}

// ExecuteWithFallback runs fn under the breaker and invokes fallback on any
// primary failure, including an open circuit. The fallback itself is not
// protected.
func (b *Breaker) ExecuteWithFallback(
	ctx context.Context,
	fn func(ctx context.Context) (any, error),
	fallback func(ctx context.Context, cause error) (any, error),
) (any, error) {
	v, err := b.Execute(ctx, fn)
	if err != nil {
		return fallback(ctx, err)
	}
	return v, nil
}

// Do is Execute for calls with no result value.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// beforeCall admits or refuses a call based on the current state.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	notify := b.maybeHalfOpenLocked()

	switch b.state {
	case StateOpen:
		b.mu.Unlock()
		notify()
		return &OpenError{Name: b.name}
	case StateHalfOpen:
		if b.probes >= b.cfg.MaxProbes {
			b.mu.Unlock()
			notify()
			return &OpenError{Name: b.name}
		}
		b.probes++
	}
	b.total++
	b.mu.Unlock()
	notify()
	return nil
}

// afterCall records a call outcome and drives the state machine.
func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}

	var transitions []func()
	if err != nil {
		b.lastFailure = b.now()
		b.failures++
		b.successes = 0

		switch b.state {
		case StateHalfOpen:
			// A single half-open failure reopens and restarts the clock.
			transitions = append(transitions, b.transitionLocked(StateOpen))
		case StateClosed:
			if b.failures >= b.cfg.FailureThreshold {
				transitions = append(transitions, b.transitionLocked(StateOpen))
			}
		}
	} else {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.successes = 0
				transitions = append(transitions, b.transitionLocked(StateClosed))
			}
		}
	}

	success := b.successListeners
	failure := b.failureListeners
	b.mu.Unlock()

	for _, t := range transitions {
		t()
	}
	if err != nil {
		for _, fn := range failure {
			fn(b.name, err)
		}
	} else {
		for _, fn := range success {
			fn(b.name)
		}
	}
}

// maybeHalfOpenLocked performs the lazy Open→HalfOpen transition. It returns
// the listener notification to run after the lock is released.
func (b *Breaker) maybeHalfOpenLocked() func() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return b.transitionLocked(StateHalfOpen)
	}
	return func() {}
}

// transitionLocked mutates state and returns the deferred listener fan-out.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	if from == to {
		return func() {}
	}
	b.state = to
	switch to {
	case StateOpen:
		b.openedAt = b.now()
		b.probes = 0
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
		b.probes = 0
	}
	listeners := b.stateListeners
	return func() {
		for _, fn := range listeners {
			fn(b.name, from, to)
		}
	}
}
