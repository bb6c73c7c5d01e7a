package flowcontrol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBurstAllowsUpToBucketCapacity(t *testing.T) {
	g := New(Config{MaxEventsPerSecond: 10, BurstSize: 5, SlidingWindow: time.Minute})
	admitted := 0
	for i := 0; i < 10; i++ {
		if g.Allow(3) {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)
}

func TestRefillOverTime(t *testing.T) {
	g := New(Config{MaxEventsPerSecond: 1000, BurstSize: 1, SlidingWindow: time.Minute})
	assert.True(t, g.Allow(3))
	assert.False(t, g.Allow(3))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, g.Allow(3))
}

func TestEmergencyModeThrottlesByPriority(t *testing.T) {
	g := New(Config{MaxEventsPerSecond: 1000, BurstSize: 3, SlidingWindow: time.Minute})
	g.SetEmergency(true)

	assert.True(t, g.Allow(1)) // cost 0.5
	assert.True(t, g.Allow(1)) // cost 0.5, total 1.0
	assert.True(t, g.Allow(1)) // cost 0.5, total 1.5, tokens=3 so still fine
	admitted, _ := g.PriorityCounters()
	assert.Equal(t, uint64(3), admitted[1])
}

func TestLowPriorityThrottledMoreUnderEmergency(t *testing.T) {
	g := New(Config{MaxEventsPerSecond: 1000, BurstSize: 1.4, SlidingWindow: time.Minute})
	g.SetEmergency(true)
	assert.False(t, g.Allow(5)) // cost 1.5 exceeds the 1.4-token bucket: rejected
}
