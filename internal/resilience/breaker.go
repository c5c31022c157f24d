package resilience

import (
	"sync"
	"time"

	"veristry/internal/platform/config"
)

// State is the circuit breaker state machine position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker guards one (dependency, operation) pair. It holds a rolling window
// of recent call outcomes and opens once the window's failure percentage
// reaches the configured threshold. The only legal transitions are
// closed→open, open→half-open, half-open→closed, and half-open→open.
//
// Breakers are shared across concurrent requests; each one carries its own
// lock so no dependency can stall another.
type Breaker struct {
	mu  sync.Mutex
	cfg config.BreakerConfig

	state          State
	lastTransition time.Time

	// rolling window of outcomes, true = failure
	window   []bool
	head     int
	count    int
	failures int

	// half-open allows exactly one probe call
	probeInFlight bool

	now func() time.Time
}

// NewBreaker creates a closed breaker with the given parameters.
func NewBreaker(cfg config.BreakerConfig) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.FailurePercent <= 0 {
		cfg.FailurePercent = 50
	}
	if cfg.MinCalls <= 0 {
		cfg.MinCalls = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		cfg:    cfg,
		window: make([]bool, cfg.WindowSize),
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. While open it returns false
// until the reset timeout elapses, then moves to half-open and admits a
// single probe; concurrent callers during the probe are rejected.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastTransition) < b.cfg.ResetTimeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess feeds a successful outcome into the window. A successful
// half-open probe closes the breaker and clears the window.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.resetWindow()
		b.transition(StateClosed)
		return
	}
	b.push(false)
}

// RecordFailure feeds a failed outcome into the window, opening the breaker
// when the failure percentage threshold is breached. A failed half-open
// probe re-opens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.transition(StateOpen)
		return
	}
	b.push(true)

	if b.state == StateClosed && b.count >= b.cfg.MinCalls {
		if b.failures*100 >= b.cfg.FailurePercent*b.count {
			b.transition(StateOpen)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastTransition returns when the breaker last changed state.
func (b *Breaker) LastTransition() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTransition
}

func (b *Breaker) transition(to State) {
	b.state = to
	b.lastTransition = b.now()
}

func (b *Breaker) push(failure bool) {
	if b.count == len(b.window) {
		// evict oldest
		if b.window[b.head] {
			b.failures--
		}
	} else {
		b.count++
	}
	b.window[b.head] = failure
	if failure {
		b.failures++
	}
	b.head = (b.head + 1) % len(b.window)
}

func (b *Breaker) resetWindow() {
	for i := range b.window {
		b.window[i] = false
	}
	b.head = 0
	b.count = 0
	b.failures = 0
}

// BreakerRegistry hands out one breaker per (dependency, operation) key.
// The map lock covers lookup only; outcome recording contends solely on the
// individual breaker's lock.
type BreakerRegistry struct {
	mu       sync.RWMutex
	cfg      config.BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerRegistry creates an empty registry sharing one configuration.
func NewBreakerRegistry(cfg config.BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the key, creating it on first use.
func (r *BreakerRegistry) Get(dependency, operation string) *Breaker {
	key := dependency + ":" + operation

	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b = NewBreaker(r.cfg)
	r.breakers[key] = b
	return b
}
