package parsermetrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSuccessRateComputed(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("p1", 10*time.Millisecond)
	tr.RecordSuccess("p1", 10*time.Millisecond)
	tr.RecordError("p1", 10*time.Millisecond)

	s := tr.SummaryFor("p1")
	assert.Equal(t, uint64(3), s.Invocations)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 0.0001)
}

func TestTopPerformersRanksByWeightedSuccess(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 10; i++ {
		tr.RecordSuccess("good", time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		tr.RecordSuccess("mixed", time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		tr.RecordError("mixed", time.Millisecond)
	}

	top := tr.TopPerformers(2)
	assert.Equal(t, "good", top[0].ParserID)
}

func TestResetClearsAggregates(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("p1", time.Millisecond)
	tr.Reset()
	assert.Equal(t, uint64(0), tr.SummaryFor("p1").Invocations)
}
