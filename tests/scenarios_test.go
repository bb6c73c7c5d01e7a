// Package tests exercises the ingestion core's literal end-to-end scenarios
// across package boundaries: parsing+normalization, circuit breaker state
// transitions, and disk-queue crash recovery.
package tests

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securewatch/ingest-core/internal/breaker"
	"github.com/securewatch/ingest-core/internal/diskqueue"
	"github.com/securewatch/ingest-core/internal/refparsers"
	"github.com/securewatch/ingest-core/internal/schema"
)

// S1: a syslog authentication-failure line normalizes to the documented
// field set.
func TestScenarioS1SyslogAuthFailure(t *testing.T) {
	p := refparsers.NewSyslogParser()
	raw := schema.NewRawRecord(
		[]byte("<34>Oct 11 22:14:15 mymachine su: 'pam_unix(su:auth): authentication failure'"),
		"syslog",
	)

	res := p.Validate(raw)
	require.True(t, res.Valid)

	evt, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "mymachine", evt.Device.Hostname)

	normalized, err := p.Normalize(evt)
	require.NoError(t, err)

	host, ok := normalized.Get("host.name")
	require.True(t, ok)
	assert.Equal(t, "mymachine", host.String())
}

// S2: a CloudTrail-shaped JSON record with an AccessDenied error code
// normalizes to a failure outcome and surfaces source.ip/user.name.
func TestScenarioS2CloudTrailAccessDenied(t *testing.T) {
	p := refparsers.NewGenericJSONParser()
	body := `{"eventTime":"2024-01-01T12:00:00Z","eventName":"DeleteBucket",` +
		`"sourceIPAddress":"203.0.113.5","userIdentity":{"userName":"alice"},"errorCode":"AccessDenied"}`
	raw := schema.NewRawRecord([]byte(body), "cloudtrail")

	res := p.Validate(raw)
	require.True(t, res.Valid)

	evt, err := p.Parse(raw)
	require.NoError(t, err)

	normalized, err := p.Normalize(evt)
	require.NoError(t, err)

	ip, ok := normalized.Get("source.ip")
	require.True(t, ok)
	assert.Equal(t, "203.0.113.5", ip.String())

	user, ok := normalized.Get("user.name")
	require.True(t, ok)
	assert.Equal(t, "alice", user.String())

	outcome, ok := normalized.Get("event.outcome")
	require.True(t, ok)
	assert.Equal(t, "failure", outcome.String())
}

// S4: a breaker with minRequests=10/failureThreshold=0.5 trips open after
// 10 consecutive failures, rejects the next call, and recovers to CLOSED
// after a successful half-open probe.
func TestScenarioS4BreakerTripsAndRecovers(t *testing.T) {
	cfg := &breaker.Config{
		Name:        "downstream-sink",
		MaxRequests: 1,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c breaker.Counts) bool {
			return c.Requests >= 10 && c.FailureRatio() > 0.5
		},
	}
	b := breaker.New(cfg)

	failing := func() (any, error) { return nil, errors.New("sink unavailable") }
	for i := 0; i < 10; i++ {
		_, _ = b.Execute(failing)
	}
	assert.Equal(t, breaker.StateOpen, b.State())

	_, err := b.Execute(func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, breaker.ErrOpen)

	time.Sleep(30 * time.Millisecond)

	_, err = b.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, breaker.StateClosed, b.State())
}

// S6: a disk queue survives a simulated crash (close + reopen) with its
// item count and unread data intact, and drains to empty afterward.
func TestScenarioS6DiskQueueSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overflow.bin")

	q, err := diskqueue.Open(diskqueue.Options{Path: path})
	require.NoError(t, err)

	payloads := make([][]byte, 50)
	for i := range payloads {
		payloads[i] = []byte("event-payload-" + string(rune('A'+i%26)))
		require.NoError(t, q.Write(payloads[i]))
	}
	require.Equal(t, 50, q.Count())
	require.NoError(t, q.Close())

	// Simulate process restart: reopen the same backing file.
	q2, err := diskqueue.Open(diskqueue.Options{Path: path})
	require.NoError(t, err)
	defer q2.Close()

	require.Equal(t, 50, q2.Count())

	for i := 0; i < 50; i++ {
		got, err := q2.Read()
		require.NoError(t, err)
		assert.Equal(t, payloads[i], got)
		q2.Ack(len(got))
	}
	assert.Equal(t, 0, q2.Count())
}
