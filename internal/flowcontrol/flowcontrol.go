// Package flowcontrol implements the rate-limiting gate admission decisions
// pass through before entering the ingestion buffer: a token bucket for
// steady-state shaping, a sliding window for burst accounting, and a
// priority-aware emergency throttle for when the system is under sustained
// backpressure (component C7).
package flowcontrol

import (
	"sync"
	"time"
)

// Config controls the gate's admission behavior.
type Config struct {
	MaxEventsPerSecond float64
	BurstSize          float64
	// SlidingWindow is the window length used for the secondary
	// sliding-window rate check.
	SlidingWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxEventsPerSecond: 10000,
		BurstSize:          2000,
		SlidingWindow:      time.Second,
	}
}

// priorityMultiplier is the token cost of one event under emergency mode:
// higher-priority (lower number) traffic drains the bucket more slowly,
// low-priority traffic faster. Admission stays deterministic; there is no
// random throttling.
func priorityMultiplier(priority int) float64 {
	switch {
	case priority <= 2:
		return 0.5
	case priority == 3:
		return 1.0
	default:
		return 1.5
	}
}

type windowEntry struct {
	at    time.Time
	count int
}

// Gate is the flow-control admission point.
type Gate struct {
	mu sync.Mutex
	cfg Config

	tokens     float64
	lastRefill time.Time

	window []windowEntry

	emergency bool

	perPriorityAdmitted map[int]uint64
	perPriorityRejected map[int]uint64
}

func New(cfg Config) *Gate {
	if cfg.MaxEventsPerSecond <= 0 {
		cfg.MaxEventsPerSecond = 10000
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.MaxEventsPerSecond
	}
	if cfg.SlidingWindow <= 0 {
		cfg.SlidingWindow = time.Second
	}
	return &Gate{
		cfg:                  cfg,
		tokens:               cfg.BurstSize,
		lastRefill:           time.Now(),
		perPriorityAdmitted:  make(map[int]uint64),
		perPriorityRejected:  make(map[int]uint64),
	}
}

// SetEmergency toggles emergency mode, applied on top of the normal token
// bucket/sliding-window checks.
func (g *Gate) SetEmergency(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emergency = on
}

// Allow decides whether a unit of priority should be admitted right now.
// On success it consumes one sliding-window slot and one token, or
// priorityMultiplier(priority) tokens while emergency mode is on.
func (g *Gate) Allow(priority int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	g.refill(now)
	g.evictWindow(now)

	cost := 1.0
	if g.emergency {
		cost = priorityMultiplier(priority)
	}

	if g.tokens < cost {
		g.perPriorityRejected[priority]++
		return false
	}
	if !g.withinWindow(now) {
		g.perPriorityRejected[priority]++
		return false
	}

	g.tokens -= cost
	g.window = append(g.window, windowEntry{at: now, count: 1})
	g.perPriorityAdmitted[priority]++
	return true
}

func (g *Gate) refill(now time.Time) {
	elapsed := now.Sub(g.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	g.tokens += elapsed * g.cfg.MaxEventsPerSecond
	if g.tokens > g.cfg.BurstSize {
		g.tokens = g.cfg.BurstSize
	}
	g.lastRefill = now
}

func (g *Gate) evictWindow(now time.Time) {
	cutoff := now.Add(-g.cfg.SlidingWindow)
	i := 0
	for i < len(g.window) && g.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		g.window = g.window[i:]
	}
}

func (g *Gate) withinWindow(now time.Time) bool {
	total := 0
	for _, e := range g.window {
		total += e.count
	}
	limit := int(g.cfg.MaxEventsPerSecond * g.cfg.SlidingWindow.Seconds())
	return total < limit
}

// AdjustRateLimit changes the steady-state rate at runtime.
func (g *Gate) AdjustRateLimit(eventsPerSecond float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.MaxEventsPerSecond = eventsPerSecond
}

// AdjustBurstSize changes the token bucket capacity at runtime.
func (g *Gate) AdjustBurstSize(burst float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.BurstSize = burst
	if g.tokens > burst {
		g.tokens = burst
	}
}

// PriorityCounters returns admitted/rejected counts per priority band.
func (g *Gate) PriorityCounters() (admitted, rejected map[int]uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	admitted = make(map[int]uint64, len(g.perPriorityAdmitted))
	rejected = make(map[int]uint64, len(g.perPriorityRejected))
	for k, v := range g.perPriorityAdmitted {
		admitted[k] = v
	}
	for k, v := range g.perPriorityRejected {
		rejected[k] = v
	}
	return admitted, rejected
}

// Reset clears accumulated counters and refills tokens to full burst.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = g.cfg.BurstSize
	g.lastRefill = time.Now()
	g.window = nil
	g.perPriorityAdmitted = make(map[int]uint64)
	g.perPriorityRejected = make(map[int]uint64)
}
