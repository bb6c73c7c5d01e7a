// Package breaker implements the circuit breaker that protects the
// ingestion pipeline from a failing downstream dependency — a parser that
// is erroring on every call, a sink that has gone unavailable, an
// enrichment lookup that has started timing out (component C4).
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

var (
	// ErrOpen is returned when the breaker is open and rejecting calls.
	ErrOpen = errors.New("breaker: circuit open")
	// ErrProbeExceeded is returned when a half-open breaker has already
	// admitted its quota of probe requests.
	ErrProbeExceeded = errors.New("breaker: half-open probe quota exceeded")
)

// Config controls trip/reset behavior for one breaker.
type Config struct {
	Name string

	// MaxRequests bounds the total probes admitted during one half-open
	// period, and is also the number of consecutive successes that close it.
	MaxRequests uint32

	// Interval is how often a closed breaker's rolling counts reset. Zero
	// means counts never reset except on a state change.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// ReadyToTrip decides, from a snapshot of Counts, whether a closed
	// breaker should trip open.
	ReadyToTrip func(Counts) bool

	// OnStateChange is notified on every state transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig trips once failure rate exceeds 50% over at least 5 calls,
// probes with a single request after 30s, matching the minRequests/
// failureThreshold/resetTimeout knobs spec.md §6 names for C4.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c Counts) bool {
			return c.Requests >= 5 && c.FailureRatio() > 0.5
		},
	}
}

// Counts holds one generation's request/response tally.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c Counts) FailureRatio() float64 {
	if c.Requests == 0 {
		return 0
	}
	return float64(c.TotalFailures) / float64(c.Requests)
}

func (c *Counts) clear() { *c = Counts{} }

// onSuccess/onFailure record a call's terminal outcome. Requests itself is
// bumped once, by beforeRequest, when the call is admitted; these only
// touch the success/failure tallies, so FailureRatio reflects the true
// fraction of admitted calls that failed instead of being diluted by a
// second Requests increment per call.
func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker is a single named circuit breaker.
type Breaker struct {
	cfg *Config

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New constructs a Breaker in the closed state.
func New(cfg *Config) *Breaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

func (b *Breaker) Name() string { return b.cfg.Name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.currentState(time.Now())
	return state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Allow reports whether a call would currently be admitted, without
// recording one. Useful for the buffer manager's "is the circuit open"
// check (spec.md §4.8) when it wants to decide routing without executing.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.currentState(time.Now())
	return b.admit(state)
}

func (b *Breaker) admit(state State) error {
	if state == StateOpen {
		return ErrOpen
	}
	if state == StateHalfOpen && b.counts.Requests >= b.cfg.MaxRequests {
		return ErrProbeExceeded
	}
	return nil
}

// Execute runs req only if the breaker admits a call, and records the
// outcome. A panic inside req is recovered, recorded as a failure, and
// re-panicked so the caller's own recovery still sees it — matching the
// one place this codebase's circuit breaker recovers from a callback panic.
func (b *Breaker) Execute(req func() (any, error)) (any, error) {
	generation, err := b.beforeRequest()
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			b.afterRequest(generation, false)
			panic(r)
		}
	}()

	result, err := req()
	b.afterRequest(generation, err == nil)
	return result, err
}

// ExecuteContext is Execute with a context-aware callback.
func (b *Breaker) ExecuteContext(ctx context.Context, req func(context.Context) (any, error)) (any, error) {
	generation, err := b.beforeRequest()
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			b.afterRequest(generation, false)
			panic(r)
		}
	}()

	result, err := req(ctx)
	b.afterRequest(generation, err == nil)
	return result, err
}

// Admit is the split-phase form of Execute for callers whose downstream
// call happens out-of-line from the breaker check itself (the ingestion
// buffer dequeues an item, hands it to an async dispatcher, and only learns
// the outcome later). It admits or rejects like Allow, but also returns the
// generation token Record needs to post the outcome back to the right
// counting window.
func (b *Breaker) Admit() (uint64, error) {
	return b.beforeRequest()
}

// Record posts the outcome of a call previously admitted via Admit. A
// generation from a since-expired window is silently ignored, matching
// afterRequest's own stale-generation guard.
func (b *Breaker) Record(generation uint64, success bool) {
	b.afterRequest(generation, success)
}

func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, generation := b.currentState(time.Now())
	if err := b.admit(state); err != nil {
		return generation, err
	}
	b.counts.Requests++
	return generation, nil
}

func (b *Breaker) afterRequest(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, current := b.currentState(time.Now())
	if generation != current {
		return
	}
	if success {
		b.onSuccess(state)
	} else {
		b.onFailure(state)
	}
}

func (b *Breaker) onSuccess(state State) {
	switch state {
	case StateClosed:
		b.counts.onSuccess()
	case StateHalfOpen:
		b.counts.onSuccess()
		if b.counts.ConsecutiveSuccesses >= b.cfg.MaxRequests {
			b.setState(StateClosed, time.Now())
		}
	}
}

func (b *Breaker) onFailure(state State) {
	switch state {
	case StateClosed:
		b.counts.onFailure()
		if b.cfg.ReadyToTrip(b.counts) {
			b.setState(StateOpen, time.Now())
		}
	case StateHalfOpen:
		b.setState(StateOpen, time.Now())
	}
}

func (b *Breaker) currentState(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.toNewGeneration(now)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.toNewGeneration(now)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, prev, state)
	}
}

func (b *Breaker) toNewGeneration(now time.Time) {
	b.generation++
	b.counts.clear()

	var expiry time.Time
	switch b.state {
	case StateClosed:
		if b.cfg.Interval > 0 {
			expiry = now.Add(b.cfg.Interval)
		}
	case StateOpen:
		expiry = now.Add(b.cfg.Timeout)
	}
	b.expiry = expiry
}

// Reset forces the breaker back to closed with a fresh generation,
// regardless of its prior state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed, time.Now())
}

func (b *Breaker) String() string {
	state := b.State()
	counts := b.Counts()
	return fmt.Sprintf("Breaker[%s: state=%s requests=%d failures=%d]",
		b.cfg.Name, state, counts.Requests, counts.TotalFailures)
}

// Manager owns a named set of breakers, one per downstream dependency
// (per-sink, per-parser-family, or the enrichment lookup path).
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults *Config
	logger   *log.Logger
}

func NewManager(defaults *Config) *Manager {
	if defaults == nil {
		defaults = DefaultConfig("")
	}
	return &Manager{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		logger:   log.New(log.Writer(), "[BREAKER] ", log.LstdFlags),
	}
}

func (m *Manager) Get(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[name]; ok {
		return b
	}
	cfg := *m.defaults
	cfg.Name = name
	b = New(&cfg)
	m.breakers[name] = b
	m.logger.Printf("registered breaker %q", name)
	return b
}

func (m *Manager) GetOrCreate(name string, cfg *Config) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[name]; ok {
		return b
	}
	if cfg == nil {
		cfg = m.defaults
	}
	cfg.Name = name
	b = New(cfg)
	m.breakers[name] = b
	return b
}

func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, name)
}

func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	return names
}

type Stats struct {
	Name   string
	State  State
	Counts Counts
}

func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = Stats{Name: name, State: b.State(), Counts: b.Counts()}
	}
	return out
}

// ExecuteWithFallback runs req through cb and falls back to fallback(err)
// whenever the breaker rejects the call or the call itself fails.
func ExecuteWithFallback[T any](cb *Breaker, req func() (T, error), fallback func(error) (T, error)) (T, error) {
	result, err := cb.Execute(func() (any, error) { return req() })
	if err != nil {
		return fallback(err)
	}
	return result.(T), nil
}
