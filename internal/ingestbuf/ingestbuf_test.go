package ingestbuf

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securewatch/ingest-core/internal/breaker"
	"github.com/securewatch/ingest-core/internal/schema"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "overflow.bin"))
	cfg.RingCapacity = 4
	cfg.FlowControl.MaxEventsPerSecond = 1e6
	cfg.FlowControl.BurstSize = 1e6
	m, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	m := newTestManager(t)
	id, err := m.Enqueue([]byte("event-1"), schema.PriorityDefault)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	batch, err := m.DequeueBatch()
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "event-1", string(batch[0].Payload))
}

func TestOverflowSpillsToDiskWhenRingFull(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 6; i++ {
		_, err := m.Enqueue([]byte("x"), schema.PriorityLow)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, m.Size())
	assert.Greater(t, m.TotalSize(), 4)
}

func TestForcedMirrorWritesDiskForHighPriority(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Enqueue([]byte("urgent"), schema.PriorityHighest)
	require.NoError(t, err)
	assert.Equal(t, 1, m.disk.Count())
}

func TestSnapshotReportsState(t *testing.T) {
	m := newTestManager(t)
	m.Enqueue([]byte("a"), schema.PriorityDefault)
	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.TotalEnqueued)
	assert.Equal(t, 4, snap.RingCapacity)
}

// TestAckRecordsBreakerFailuresAndOpensCircuit confirms DequeueBatch/Ack
// actually drive the breaker's outcome counting: enough acked failures trip
// it open, and a subsequent DequeueBatch stops handing out items.
func TestAckRecordsBreakerFailuresAndOpensCircuit(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "overflow.bin"))
	cfg.RingCapacity = 16
	cfg.FlowControl.MaxEventsPerSecond = 1e6
	cfg.FlowControl.BurstSize = 1e6
	cfg.Breaker = &breaker.Config{
		Name:        "test-downstream",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c breaker.Counts) bool {
			return c.Requests >= 3 && c.FailureRatio() > 0.5
		},
	}
	m, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	for i := 0; i < 3; i++ {
		_, err := m.Enqueue([]byte("x"), schema.PriorityDefault)
		require.NoError(t, err)
	}

	batch, err := m.DequeueBatch()
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for _, item := range batch {
		m.Ack(item.ID, false, time.Millisecond)
	}

	assert.True(t, m.IsCircuitBreakerOpen())

	m.Enqueue([]byte("y"), schema.PriorityDefault)
	next, err := m.DequeueBatch()
	require.NoError(t, err)
	assert.Empty(t, next)
}
