package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State int

const (
	StateClosed   State = iota // calls flow normally
	StateOpen                  // calls are rejected
	StateHalfOpen              // probes are allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Settings are shared by every endpoint of one Breaker.
type Settings struct {
	FailureThreshold int
	Timeout          time.Duration
	SuccessThreshold int
}

// DefaultSettings trips after 5 consecutive failures, waits 60s, and closes after 2 good probes.
func DefaultSettings() Settings {
	return Settings{FailureThreshold: 5, Timeout: 60 * time.Second, SuccessThreshold: 2}
}

type endpointState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	lastAccessedAt       time.Time
}

// Snapshot is a read-only copy of one endpoint's state.
type Snapshot struct {
	Endpoint             string
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	OpenedAt             time.Time
	LastAccessedAt       time.Time
}

type Option func(*Breaker)

// WithClock replaces time.Now, so tests can move time forward.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Breaker) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics publishes state, failure count and cleanup totals.
func WithMetrics(m *Metrics) Option {
	return func(b *Breaker) { b.metrics = m }
}

// Breaker tracks an independent state machine per endpoint. Entries are created on first
// use and only removed by CleanupStale. One mutex guards the whole map; it is held for the
// duration of a check or transition only.
type Breaker struct {
	mu        sync.Mutex
	settings  Settings
	endpoints map[string]*endpointState
	now       func() time.Time
	log       *zap.Logger
	metrics   *Metrics
}

func New(settings Settings, opts ...Option) *Breaker {
	if settings.FailureThreshold < 1 {
		settings.FailureThreshold = 1
	}
	if settings.SuccessThreshold < 1 {
		settings.SuccessThreshold = 1
	}
	b := &Breaker{
		settings:  settings,
		endpoints: make(map[string]*endpointState),
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// entry returns the endpoint state, creating it CLOSED. Caller holds mu.
func (b *Breaker) entry(endpoint string) *endpointState {
	st, ok := b.endpoints[endpoint]
	if !ok {
		st = &endpointState{state: StateClosed}
		b.endpoints[endpoint] = st
	}
	return st
}

// AllowRequest reports whether a call to endpoint may go out. An OPEN endpoint whose
// timeout has elapsed moves to HALF_OPEN here, on the first check after the timeout.
func (b *Breaker) AllowRequest(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	st := b.entry(endpoint)
	st.lastAccessedAt = now

	switch st.state {
	case StateOpen:
		if now.Sub(st.openedAt) < b.settings.Timeout {
			b.log.Debug("circuit breaker rejecting call",
				zap.String("endpoint", endpoint),
				zap.Duration("retry_in", b.settings.Timeout-now.Sub(st.openedAt)))
			return false
		}
		b.transition(endpoint, st, StateHalfOpen)
		st.consecutiveSuccesses = 0
		return true
	default:
		// HALF_OPEN admits every concurrent probe; the first failure reopens.
		return true
	}
}

// RecordOutcome feeds the final result of one logical call into the state machine.
func (b *Breaker) RecordOutcome(endpoint string, success bool) {
	if success {
		b.RecordSuccess(endpoint)
		return
	}
	b.RecordFailure(endpoint)
}

func (b *Breaker) RecordSuccess(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.entry(endpoint)
	st.lastAccessedAt = b.now()

	switch st.state {
	case StateClosed:
		st.consecutiveFailures = 0
	case StateHalfOpen:
		st.consecutiveSuccesses++
		if st.consecutiveSuccesses >= b.settings.SuccessThreshold {
			b.log.Info("circuit breaker closed after successful recovery",
				zap.String("endpoint", endpoint),
				zap.Int("success_count", st.consecutiveSuccesses))
			b.transition(endpoint, st, StateClosed)
		}
	case StateOpen:
		// a call admitted before the breaker opened; the timeout still applies
	}
	b.observe(endpoint, st)
}

func (b *Breaker) RecordFailure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	st := b.entry(endpoint)
	st.lastAccessedAt = now
	st.consecutiveFailures++

	switch st.state {
	case StateClosed:
		if st.consecutiveFailures >= b.settings.FailureThreshold {
			b.log.Warn("circuit breaker opened due to failures",
				zap.String("endpoint", endpoint),
				zap.Int("failure_count", st.consecutiveFailures),
				zap.Int("threshold", b.settings.FailureThreshold))
			st.openedAt = now
			b.transition(endpoint, st, StateOpen)
		}
	case StateHalfOpen:
		b.log.Warn("circuit breaker reopened after failure in HALF_OPEN", zap.String("endpoint", endpoint))
		st.openedAt = now
		st.consecutiveSuccesses = 0
		b.transition(endpoint, st, StateOpen)
	}
	b.observe(endpoint, st)
}

// transition moves st to next. Caller holds mu.
func (b *Breaker) transition(endpoint string, st *endpointState, next State) {
	prev := st.state
	st.state = next
	switch next {
	case StateClosed:
		st.consecutiveFailures = 0
		st.consecutiveSuccesses = 0
		st.openedAt = time.Time{}
	case StateHalfOpen:
		st.consecutiveSuccesses = 0
	}
	if prev != next {
		b.log.Info("circuit breaker state changed",
			zap.String("endpoint", endpoint),
			zap.Stringer("old_state", prev),
			zap.Stringer("new_state", next))
	}
	b.observe(endpoint, st)
}

func (b *Breaker) observe(endpoint string, st *endpointState) {
	if b.metrics != nil {
		b.metrics.observe(endpoint, st.state, st.consecutiveFailures)
	}
}

// State returns the endpoint's state without touching it. Unknown endpoints are CLOSED.
func (b *Breaker) State(endpoint string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.endpoints[endpoint]; ok {
		return st.state
	}
	return StateClosed
}

// Failures returns the endpoint's consecutive failure count.
func (b *Breaker) Failures(endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.endpoints[endpoint]; ok {
		return st.consecutiveFailures
	}
	return 0
}

// Snapshot copies one endpoint's state. ok is false for endpoints never seen or already swept.
func (b *Breaker) Snapshot(endpoint string) (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.endpoints[endpoint]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Endpoint:             endpoint,
		State:                st.state,
		ConsecutiveFailures:  st.consecutiveFailures,
		ConsecutiveSuccesses: st.consecutiveSuccesses,
		OpenedAt:             st.openedAt,
		LastAccessedAt:       st.lastAccessedAt,
	}, true
}

// Endpoints lists tracked endpoints in sorted order.
func (b *Breaker) Endpoints() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.endpoints))
	for ep := range b.endpoints {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// CleanupStale drops every endpoint not accessed within ttl and returns how many were removed.
// A removed endpoint starts over as CLOSED on its next call.
func (b *Breaker) CleanupStale(ttl time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var removed []string
	for ep, st := range b.endpoints {
		if now.Sub(st.lastAccessedAt) > ttl {
			delete(b.endpoints, ep)
			removed = append(removed, ep)
		}
	}

	if b.metrics != nil {
		b.metrics.forget(removed)
	}
	if len(removed) > 0 {
		b.log.Info("cleaned up stale circuit breaker endpoints",
			zap.Int("removed", len(removed)),
			zap.Int("remaining", len(b.endpoints)),
			zap.Duration("ttl", ttl))
	}
	return len(removed)
}
