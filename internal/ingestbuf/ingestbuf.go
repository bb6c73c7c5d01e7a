// Package ingestbuf implements the buffer manager that composes the ring
// queue (C1), disk overflow queue (C2), compression codec (C3), circuit
// breaker (C4), backpressure monitor (C5), adaptive batch sizer (C6), and
// flow-control gate (C7) into the single enqueue/dequeue surface the
// ingestion pipeline's producers and dispatchers call (component C8).
package ingestbuf

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/securewatch/ingest-core/internal/backpressure"
	"github.com/securewatch/ingest-core/internal/batchsize"
	"github.com/securewatch/ingest-core/internal/breaker"
	"github.com/securewatch/ingest-core/internal/codec"
	"github.com/securewatch/ingest-core/internal/diskqueue"
	"github.com/securewatch/ingest-core/internal/flowcontrol"
	"github.com/securewatch/ingest-core/internal/ringqueue"
	"github.com/securewatch/ingest-core/internal/schema"
)

// ErrThrottled is returned when the flow-control gate rejects admission.
var ErrThrottled = errors.New("ingestbuf: throttled by flow control")

// ErrCircuitOpen reports that the downstream circuit breaker is refusing
// calls. Enqueue does not return it: an open breaker only stops DequeueBatch
// from handing out items.
var ErrCircuitOpen = errors.New("ingestbuf: circuit breaker open")

// DurabilityPolicy controls when an accepted item is mirrored to disk in
// addition to (or instead of) the in-memory ring.
type DurabilityPolicy int

const (
	// DurabilityRingOnly keeps items only in memory; they are lost if the
	// process dies before dispatch. policyFor assigns it to no priority
	// band.
	DurabilityRingOnly DurabilityPolicy = iota
	// DurabilityOverflowOnly spills to disk only once the ring is full.
	DurabilityOverflowOnly
	// DurabilityForcedMirror always writes to disk before admitting to the
	// ring, for priority bands the operator has decided cannot tolerate
	// loss (spec.md §9 open question; this repo's decision is recorded in
	// DESIGN.md: priority 1-2 items are force-mirrored by default).
	DurabilityForcedMirror
)

// Config wires the sub-component configuration plus the buffer manager's
// own policy knobs.
type Config struct {
	RingCapacity int
	DiskPath     string
	DiskMaxBytes int64
	DiskChecksum bool

	Codec       codec.Options
	Backpressure backpressure.Config
	BatchSize   batchsize.Config
	FlowControl flowcontrol.Config
	Breaker     *breaker.Config

	// ForcedMirrorMaxPriority is the highest-numbered priority (most
	// urgent bands have the lowest numbers) that gets DurabilityForcedMirror;
	// bands above this value use DurabilityOverflowOnly.
	ForcedMirrorMaxPriority int
}

func DefaultConfig(diskPath string) Config {
	return Config{
		RingCapacity:            10000,
		DiskPath:                diskPath,
		DiskMaxBytes:            0,
		Codec:                   codec.Options{Level: codec.LevelDefault},
		Backpressure:            backpressure.DefaultConfig(),
		BatchSize:               batchsize.DefaultConfig(),
		FlowControl:             flowcontrol.DefaultConfig(),
		ForcedMirrorMaxPriority: 2,
	}
}

// Manager is the ingestion buffer manager.
type Manager struct {
	cfg Config

	mu    sync.Mutex
	ring  *ringqueue.Queue
	disk  *diskqueue.Queue
	codec *codec.Codec

	gate    *flowcontrol.Gate
	monitor *backpressure.Monitor
	sizer   *batchsize.Sizer
	cb      *breaker.Breaker

	log *slog.Logger

	totalEnqueued  uint64
	totalDequeued  uint64
	totalSpilled   uint64
	totalRejected  uint64

	// pendingGen holds the breaker generation token for every dequeued item
	// that hasn't been acknowledged yet, so Ack can post its outcome back
	// to the same counting window Admit opened it in.
	pendingGen map[string]uint64
}

// New constructs and opens a Manager, including its disk overflow file.
func New(cfg Config) (*Manager, error) {
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = 10000
	}

	c, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("ingestbuf: codec: %w", err)
	}

	disk, err := diskqueue.Open(diskqueue.Options{
		Path:     cfg.DiskPath,
		MaxBytes: cfg.DiskMaxBytes,
		Checksum: cfg.DiskChecksum,
	})
	if err != nil {
		return nil, fmt.Errorf("ingestbuf: diskqueue: %w", err)
	}

	brkCfg := cfg.Breaker
	if brkCfg == nil {
		brkCfg = breaker.DefaultConfig("ingestbuf")
	}

	return &Manager{
		cfg:        cfg,
		ring:       ringqueue.New(cfg.RingCapacity),
		disk:       disk,
		codec:      c,
		gate:       flowcontrol.New(cfg.FlowControl),
		monitor:    backpressure.New(cfg.Backpressure),
		sizer:      batchsize.New(cfg.BatchSize),
		cb:         breaker.New(brkCfg),
		log:        slog.Default().With("component", "ingestbuf"),
		pendingGen: make(map[string]uint64),
	}, nil
}

func (m *Manager) policyFor(priority schema.Priority) DurabilityPolicy {
	if int(priority) <= m.cfg.ForcedMirrorMaxPriority {
		return DurabilityForcedMirror
	}
	return DurabilityOverflowOnly
}

// Enqueue admits payload at the given priority, subject to flow control and
// the configured durability policy; the circuit breaker does not gate
// admission. It returns the BufferedItem ID for correlation with later
// dispatch/ack events.
func (m *Manager) Enqueue(payload []byte, priority schema.Priority) (string, error) {
	if !m.gate.Allow(int(priority)) {
		m.mu.Lock()
		m.totalRejected++
		m.mu.Unlock()
		return "", ErrThrottled
	}

	item := schema.BufferedItem{
		ID:         uuid.NewString(),
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Payload:    payload,
	}

	policy := m.policyFor(priority)

	m.mu.Lock()
	defer m.mu.Unlock()

	if policy == DurabilityForcedMirror {
		if err := m.spill(item); err != nil {
			return "", fmt.Errorf("ingestbuf: forced mirror: %w", err)
		}
	}

	evicted, didEvict := m.ring.Add(item)
	if didEvict {
		if m.policyFor(evicted.Priority) != DurabilityForcedMirror {
			if err := m.spill(evicted); err != nil {
				m.log.Warn("dropped evicted item, disk spill failed", "id", evicted.ID, "err", err)
			} else {
				m.totalSpilled++
			}
		}
	}

	m.totalEnqueued++
	m.monitor.Record(backpressure.Sample{
		QueueDepth: m.ring.Size(),
		QueueCap:   m.ring.Capacity(),
	})

	return item.ID, nil
}

func (m *Manager) spill(item schema.BufferedItem) error {
	framed := m.codec.Compress(item.Payload)
	return m.disk.Write(framed)
}

// DequeueBatch pulls up to the adaptive batch size worth of items,
// preferring the in-memory ring and falling back to the disk overflow
// queue once the ring is drained. Each returned item is admitted through
// the circuit breaker (its generation token is held until the caller calls
// Ack), so an already-open breaker stops a batch short rather than handing
// out items downstream is known to be failing. DequeueBatch itself only
// records the queue-pull latency into the batch sizer; per-item dispatch
// latency and error status are recorded into the backpressure monitor and
// the breaker once the caller acknowledges each item via Ack.
func (m *Manager) DequeueBatch() ([]schema.BufferedItem, error) {
	start := time.Now()

	m.mu.Lock()
	n := m.sizer.Next()
	candidates := m.ring.GetBatch(n)

	for len(candidates) < n && m.disk.HasUnread() {
		framed, err := m.disk.Read()
		if err != nil {
			break
		}
		payload, derr := m.codec.Decompress(framed)
		if derr != nil {
			m.log.Warn("dropping corrupt disk-spilled item", "err", derr)
			m.disk.Ack(len(framed))
			continue
		}
		candidates = append(candidates, schema.BufferedItem{
			ID:         uuid.NewString(),
			Priority:   schema.PriorityDefault,
			EnqueuedAt: time.Now(),
			Payload:    payload,
		})
		m.disk.Ack(len(framed))
	}

	batch := make([]schema.BufferedItem, 0, len(candidates))
	for i, item := range candidates {
		generation, err := m.cb.Admit()
		if err != nil {
			// Breaker is open (or the half-open probe quota is spent): stop
			// handing out items this round rather than burning the whole
			// candidate set against a downstream that's already rejecting.
			// The items not handed out go back to the front of the ring.
			for j := len(candidates) - 1; j >= i; j-- {
				if evicted, didEvict := m.ring.AddFront(candidates[j]); didEvict {
					if serr := m.spill(evicted); serr != nil {
						m.log.Warn("dropped evicted item, disk spill failed", "id", evicted.ID, "err", serr)
					} else {
						m.totalSpilled++
					}
				}
			}
			break
		}
		m.pendingGen[item.ID] = generation
		batch = append(batch, item)
	}

	m.totalDequeued += uint64(len(batch))
	m.mu.Unlock()

	elapsed := time.Since(start)
	m.sizer.Observe(len(batch), float64(elapsed.Milliseconds()), elapsed.Seconds())

	return batch, nil
}

// Ack reports the outcome of dispatching a previously dequeued item back
// into the breaker and the backpressure monitor (spec.md §4.8 step 4: "when
// the consumer acknowledges, record latency and error status"). Acking an
// ID DequeueBatch never handed out (or one already acked) is a no-op aside
// from still feeding the backpressure sample, since the caller's latency
// and success signal are still informative.
func (m *Manager) Ack(id string, success bool, dispatchLatency time.Duration) {
	m.mu.Lock()
	generation, tracked := m.pendingGen[id]
	if tracked {
		delete(m.pendingGen, id)
	}
	depth := m.ring.Size()
	ringCap := m.ring.Capacity()
	m.mu.Unlock()

	if tracked {
		m.cb.Record(generation, success)
	}

	m.monitor.Record(backpressure.Sample{
		QueueDepth:   depth,
		QueueCap:     ringCap,
		DispatchTime: dispatchLatency,
		Errored:      !success,
	})
}

// Size returns the number of items currently held in the in-memory ring.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Size()
}

// TotalSize returns in-memory plus on-disk pending item counts.
func (m *Manager) TotalSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Size() + m.disk.Count()
}

// IsBackpressureActive reports the current signal from the backpressure monitor.
func (m *Manager) IsBackpressureActive() bool {
	return m.monitor.Active()
}

// IsCircuitBreakerOpen reports whether the manager's breaker is tripped.
func (m *Manager) IsCircuitBreakerOpen() bool {
	return m.cb.State() == breaker.StateOpen
}

// Subscribe exposes the backpressure monitor's subscription channel so
// downstream components (C6/C7 adjustments, ops surfaces) can react to
// transitions.
func (m *Manager) Subscribe() backpressure.Listener {
	return m.monitor.Subscribe()
}

// Close releases the disk queue's file handle.
func (m *Manager) Close() error {
	return m.disk.Close()
}

// Stats is a point-in-time snapshot for metrics/ops endpoints.
type Stats struct {
	RingSize      int
	RingCapacity  int
	DiskPending   int
	TotalEnqueued uint64
	TotalDequeued uint64
	TotalSpilled  uint64
	TotalRejected uint64
	Backpressure  bool
	CircuitOpen   bool
}

func (m *Manager) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		RingSize:      m.ring.Size(),
		RingCapacity:  m.ring.Capacity(),
		DiskPending:   m.disk.Count(),
		TotalEnqueued: m.totalEnqueued,
		TotalDequeued: m.totalDequeued,
		TotalSpilled:  m.totalSpilled,
		TotalRejected: m.totalRejected,
		Backpressure:  m.monitor.Active(),
		CircuitOpen:   m.cb.State() == breaker.StateOpen,
	}
}
