package backpressure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripsOnQueueHighWater(t *testing.T) {
	m := New(Config{WindowSize: 5, QueueHighWater: 0.8, RecoveryFactor: 0.5, LatencyHighWater: time.Second, ErrorRateHighWater: 1})
	for i := 0; i < 5; i++ {
		m.Record(Sample{QueueDepth: 90, QueueCap: 100})
	}
	assert.True(t, m.Active())
}

func TestHysteresisPreventsImmediateClear(t *testing.T) {
	m := New(Config{WindowSize: 5, QueueHighWater: 0.8, RecoveryFactor: 0.7, LatencyHighWater: time.Second, ErrorRateHighWater: 1})
	for i := 0; i < 5; i++ {
		m.Record(Sample{QueueDepth: 90, QueueCap: 100})
	}
	require.True(t, m.Active())

	// Usage drops to 0.75, just under QueueHighWater (0.8) but still above
	// the recovery line (0.8*0.7=0.56): should remain active.
	for i := 0; i < 5; i++ {
		m.Record(Sample{QueueDepth: 75, QueueCap: 100})
	}
	assert.True(t, m.Active(), "should still be active inside the hysteresis band")

	for i := 0; i < 5; i++ {
		m.Record(Sample{QueueDepth: 10, QueueCap: 100})
	}
	assert.False(t, m.Active())
}

func TestSubscribeDeliversLastValueImmediately(t *testing.T) {
	m := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		m.Record(Sample{QueueDepth: 95, QueueCap: 100})
	}
	require.True(t, m.Active())

	ch := m.Subscribe()
	select {
	case v := <-ch:
		assert.True(t, v)
	default:
		t.Fatal("expected immediate last-value delivery on subscribe")
	}
}

func TestBroadcastOnlyOnTransition(t *testing.T) {
	m := New(Config{WindowSize: 1, QueueHighWater: 0.8, RecoveryFactor: 0.5, LatencyHighWater: time.Second, ErrorRateHighWater: 1})
	ch := m.Subscribe()
	<-ch // drain initial false

	m.Record(Sample{QueueDepth: 90, QueueCap: 100})
	select {
	case v := <-ch:
		assert.True(t, v)
	default:
		t.Fatal("expected a transition broadcast")
	}

	m.Record(Sample{QueueDepth: 91, QueueCap: 100})
	select {
	case <-ch:
		t.Fatal("did not expect a broadcast when state doesn't change")
	default:
	}
}
