// Package batchsize implements the adaptive batch sizer that picks how many
// items the buffer manager should dequeue per dispatch round, trading
// latency against throughput as conditions change (component C6).
package batchsize

import "sync"

// Config bounds and tunes the sizer.
type Config struct {
	InitialBatchSize int
	MinBatchSize     int
	MaxBatchSize     int
	// TargetLatencyMS is the desired per-batch dispatch latency; batches
	// shrink when observed latency runs above it, grow when comfortably
	// below it.
	TargetLatencyMS float64
	// AdjustmentFactor scales how aggressively size moves per observation,
	// in (0,1].
	AdjustmentFactor float64
	// ThroughputTargetPerSec, if > 0, also nudges size up when achieved
	// throughput is under target despite latency having slack.
	ThroughputTargetPerSec float64
	// Disabled makes Next always return InitialBatchSize, for callers that
	// want a fixed batch size without disabling the rest of the pipeline.
	Disabled bool
}

func DefaultConfig() Config {
	return Config{
		InitialBatchSize: 100,
		MinBatchSize:     10,
		MaxBatchSize:     1000,
		TargetLatencyMS:  50,
		AdjustmentFactor: 0.2,
	}
}

// Sizer is the stateful adaptive batch size controller.
type Sizer struct {
	mu   sync.Mutex
	cfg  Config
	size int

	lastLatencyMS  float64
	lastThroughput float64
	score          float64
}

func New(cfg Config) *Sizer {
	if cfg.InitialBatchSize <= 0 {
		cfg.InitialBatchSize = 100
	}
	if cfg.AdjustmentFactor <= 0 {
		cfg.AdjustmentFactor = 0.2
	}
	return &Sizer{cfg: cfg, size: cfg.InitialBatchSize}
}

// Next returns the batch size to use for the upcoming dispatch round.
func (s *Sizer) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Disabled {
		return s.cfg.InitialBatchSize
	}
	return s.size
}

// Observe feeds back the latency and item count of the most recently
// completed batch, adjusting size toward the target latency.
func (s *Sizer) Observe(batchLen int, latencyMS float64, elapsedSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastLatencyMS = latencyMS
	if elapsedSeconds > 0 {
		s.lastThroughput = float64(batchLen) / elapsedSeconds
	}

	if s.cfg.Disabled || s.cfg.TargetLatencyMS <= 0 {
		s.updateScore()
		return
	}

	deviation := (s.cfg.TargetLatencyMS - latencyMS) / s.cfg.TargetLatencyMS
	delta := int(float64(s.size) * s.cfg.AdjustmentFactor * deviation)

	if s.cfg.ThroughputTargetPerSec > 0 && deviation > 0 && s.lastThroughput < s.cfg.ThroughputTargetPerSec {
		// There's latency slack but throughput still lags target: push
		// size up more assertively than the pure latency signal would.
		if delta < 1 {
			delta = 1
		}
	}

	s.size += delta
	if s.size < s.cfg.MinBatchSize {
		s.size = s.cfg.MinBatchSize
	}
	if s.cfg.MaxBatchSize > 0 && s.size > s.cfg.MaxBatchSize {
		s.size = s.cfg.MaxBatchSize
	}

	s.updateScore()
}

// updateScore computes a 0-1 performance score: 1.0 means latency sits
// exactly at target with throughput at or above target (when configured).
func (s *Sizer) updateScore() {
	if s.cfg.TargetLatencyMS <= 0 {
		s.score = 1
		return
	}
	latencyScore := 1 - absFloat(s.lastLatencyMS-s.cfg.TargetLatencyMS)/s.cfg.TargetLatencyMS
	if latencyScore < 0 {
		latencyScore = 0
	}
	if latencyScore > 1 {
		latencyScore = 1
	}

	if s.cfg.ThroughputTargetPerSec <= 0 {
		s.score = latencyScore
		return
	}
	throughputScore := s.lastThroughput / s.cfg.ThroughputTargetPerSec
	if throughputScore > 1 {
		throughputScore = 1
	}
	s.score = (latencyScore + throughputScore) / 2
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Score returns the last computed performance score in [0,1].
func (s *Sizer) Score() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// CurrentSize returns the sizer's current batch size without advancing it.
func (s *Sizer) CurrentSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}
