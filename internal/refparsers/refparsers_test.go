package refparsers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securewatch/ingest-core/internal/schema"
)

func TestSyslogParserEndToEnd(t *testing.T) {
	p := NewSyslogParser()
	raw := schema.NewRawRecord([]byte("<34>Oct 11 22:14:15 mymachine su: 'su root' failed for lonvick"), "syslog")

	res := p.Validate(raw)
	require.True(t, res.Valid)

	evt, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "mymachine", evt.Device.Hostname)
	assert.Equal(t, schema.SeverityCritical, evt.Severity) // level=2 (34%8=2)

	normalized, err := p.Normalize(evt)
	require.NoError(t, err)
	assert.True(t, normalized.Has("@timestamp"))
	assert.True(t, normalized.Has("host.hostname"))
}

func TestGenericJSONParserEndToEnd(t *testing.T) {
	p := NewGenericJSONParser()
	raw := schema.NewRawRecord([]byte(`{"eventName":"ConsoleLogin","sourceIPAddress":"198.51.100.4","outcome":"failure","eventTime":"2024-03-01T12:00:00Z"}`), "cloud-audit")

	require.True(t, p.Validate(raw).Valid)
	evt, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, schema.OutcomeFailure, evt.Outcome)
	assert.Equal(t, "authentication", evt.Category)

	normalized, err := p.Normalize(evt)
	require.NoError(t, err)
	ip, ok := normalized.Get("source.ip")
	require.True(t, ok)
	assert.Equal(t, "198.51.100.4", ip.String())
}

func TestWindowsEventCSVParserMapsKnownEventIDs(t *testing.T) {
	p := NewWindowsEventCSVParser()
	raw := schema.NewRawRecord([]byte("2024-01-15T10:00:00Z,4625,Error,WIN-SRV01,Security,An account failed to log on"), "windows-eventlog")

	require.True(t, p.Validate(raw).Valid)
	evt, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, schema.OutcomeFailure, evt.Outcome)
	assert.Equal(t, "authentication", evt.Category)

	normalized, err := p.Normalize(evt)
	require.NoError(t, err)
	host, ok := normalized.Get("host.hostname")
	require.True(t, ok)
	assert.Equal(t, "WIN-SRV01", host.String())
}

func TestWindowsEventCSVParserRejectsWrongColumnCount(t *testing.T) {
	p := NewWindowsEventCSVParser()
	raw := schema.NewRawRecord([]byte("only,two,columns"), "windows-eventlog")
	assert.False(t, p.Validate(raw).Valid)
}

func TestSyslogParserRejectsNonSyslogPayload(t *testing.T) {
	p := NewSyslogParser()
	raw := schema.NewRawRecord([]byte(`{"not":"syslog"}`), "syslog")
	assert.False(t, p.Validate(raw).Valid)
}

var _ = time.Now
