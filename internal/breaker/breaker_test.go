package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripsOpenAfterFailureThreshold(t *testing.T) {
	cfg := &Config{
		Name:        "sink-a",
		MaxRequests: 1,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.Requests >= 3 && c.FailureRatio() > 0.5 },
	}
	b := New(cfg)

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (any, error) { return nil, errors.New("boom") })
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, b.State())
	_, err := b.Execute(func() (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestHalfOpenRecoversToClose(t *testing.T) {
	cfg := &Config{
		Name:        "sink-b",
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
	}
	b := New(cfg)

	b.Execute(func() (any, error) { return nil, errors.New("x") })
	b.Execute(func() (any, error) { return nil, errors.New("x") })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	result, err := b.Execute(func() (any, error) { return "recovered", nil })
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, StateClosed, b.State())
}

func TestPanicIsRecordedAsFailureAndRepanics(t *testing.T) {
	b := New(DefaultConfig("panicky"))
	defer func() {
		r := recover()
		assert.NotNil(t, r)
		assert.Equal(t, uint32(1), b.Counts().TotalFailures)
	}()
	b.Execute(func() (any, error) { panic("kaboom") })
}

func TestManagerGetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	a := m.Get("enrich")
	bAgain := m.Get("enrich")
	assert.Same(t, a, bAgain)
}
