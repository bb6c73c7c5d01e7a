package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/securewatch/ingest-core/internal/schema"
)

func TestSeverityFromStringMapsKnownWords(t *testing.T) {
	assert.Equal(t, schema.SeverityCritical, SeverityFromString("CRITICAL"))
	assert.Equal(t, schema.SeverityLow, SeverityFromString("info"))
	assert.Equal(t, schema.SeverityMedium, SeverityFromString("totally-unknown"))
}

func TestClassifyCategory(t *testing.T) {
	assert.Equal(t, "authentication", ClassifyCategory("user login failed"))
	assert.Equal(t, "network", ClassifyCategory("firewall blocked connection"))
	assert.Equal(t, "other", ClassifyCategory("something else entirely"))
}

func TestParseTimestampRFC3339(t *testing.T) {
	ts, ok := ParseTimestamp("2024-01-15T10:30:00Z", time.Now())
	assert.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
}

func TestParseTimestampEpochSeconds(t *testing.T) {
	ts, ok := ParseTimestamp("1700000000", time.Now())
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), ts.Unix())
}

func TestParseTimestampEpochMillis(t *testing.T) {
	ts, ok := ParseTimestamp("1700000000123", time.Now())
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), ts.Unix())
}

func TestParseTimestampRFC3164AssumesCurrentYear(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	ts, ok := ParseTimestamp("Jan  2 15:04:05", now)
	assert.True(t, ok)
	assert.Equal(t, 2026, ts.Year())
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	_, ok := ParseTimestamp("not-a-timestamp", time.Now())
	assert.False(t, ok)
}
