package batchsize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShrinksWhenLatencyAboveTarget(t *testing.T) {
	s := New(Config{InitialBatchSize: 100, MinBatchSize: 10, MaxBatchSize: 1000, TargetLatencyMS: 50, AdjustmentFactor: 0.5})
	s.Observe(100, 150, 0.15)
	assert.Less(t, s.Next(), 100)
}

func TestGrowsWhenLatencyBelowTarget(t *testing.T) {
	s := New(Config{InitialBatchSize: 100, MinBatchSize: 10, MaxBatchSize: 1000, TargetLatencyMS: 50, AdjustmentFactor: 0.5})
	s.Observe(100, 10, 0.01)
	assert.Greater(t, s.Next(), 100)
}

func TestRespectsMinMaxBounds(t *testing.T) {
	s := New(Config{InitialBatchSize: 100, MinBatchSize: 90, MaxBatchSize: 110, TargetLatencyMS: 50, AdjustmentFactor: 2})
	s.Observe(100, 500, 0.5)
	assert.GreaterOrEqual(t, s.Next(), 90)

	s2 := New(Config{InitialBatchSize: 100, MinBatchSize: 90, MaxBatchSize: 110, TargetLatencyMS: 50, AdjustmentFactor: 2})
	s2.Observe(100, 1, 0.001)
	assert.LessOrEqual(t, s2.Next(), 110)
}

func TestDisabledReturnsInitialSize(t *testing.T) {
	s := New(Config{InitialBatchSize: 42, Disabled: true, TargetLatencyMS: 50})
	s.Observe(100, 500, 0.5)
	assert.Equal(t, 42, s.Next())
}
