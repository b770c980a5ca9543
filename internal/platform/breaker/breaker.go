// Package breaker implements a per-recipient circuit breaker. A breaker
// trips open after a run of consecutive failures, fails fast for a cooldown
// period, then admits a single probe to decide whether to close again.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's position in its closed/open/half-open cycle.
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
	default:
		return "unknown"
	}
}

const (
	// DefaultThreshold is the consecutive-failure count that trips the
	// breaker open.
	DefaultThreshold = 3

	// DefaultCooldown is how long an open breaker waits before admitting
	// a probe.
	DefaultCooldown = 60 * time.Second
)

// Breaker tracks failures for one destination. All transitions happen under
// a single mutex; in particular the open-to-half-open transition and the
// probe claim are one critical section, so two goroutines can never both
// win the probe.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failureCount  int
	openedAt      time.Time
	probeInFlight bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New creates a closed breaker. Non-positive threshold or cooldown fall
// back to the defaults.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a request may proceed. In the half-open state it
// claims the probe slot for the caller; the caller must report the outcome
// via OnSuccess or OnFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.openedAt.IsZero() {
			b.openedAt = b.now()
			return false
		}
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// OnSuccess resets the breaker to closed.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.openedAt = time.Time{}
	b.probeInFlight = false
}

// OnFailure records a failed outcome. A half-open failure reopens the
// breaker immediately; closed failures accumulate toward the threshold.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		if b.failureCount < b.threshold {
			b.failureCount = b.threshold
		}
		b.openedAt = b.now()
		b.probeInFlight = false
		return
	}

	b.failureCount++
	if b.failureCount >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the accumulated consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry hands out one breaker per key (the delivery pipeline keys by
// recipient). Breakers are created lazily and never evicted; the map is
// process-lifetime state.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
}

// NewRegistry creates a registry whose breakers share the given settings.
func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// For returns the breaker for key, creating it closed on first use.
func (r *Registry) For(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = New(r.threshold, r.cooldown)
		r.breakers[key] = b
	}
	return b
}

// Len reports how many breakers have been created.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.breakers)
}
