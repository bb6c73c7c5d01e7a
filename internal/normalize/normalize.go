// Package normalize holds the small, parser-agnostic helpers the
// normalization step of each parser shares: severity mapping, category
// classification, and tolerant timestamp parsing across the handful of wire
// formats reference parsers in this repo speak (component C15).
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/securewatch/ingest-core/internal/schema"
)

// SeverityFromString maps a source-specific severity word to the closed
// schema.Severity vocabulary, defaulting to medium for anything unrecognized
// so a single bad label doesn't silently drop an event's risk signal.
func SeverityFromString(s string) schema.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "informational", "notice", "low":
		return schema.SeverityLow
	case "warning", "warn", "medium":
		return schema.SeverityMedium
	case "error", "high":
		return schema.SeverityHigh
	case "critical", "crit", "alert", "emergency", "fatal":
		return schema.SeverityCritical
	default:
		return schema.SeverityMedium
	}
}

// SyslogFacilitySeverity maps an RFC 3164 <PRI> severity field (0-7, 0 most
// severe) to the closed vocabulary.
func SyslogFacilitySeverity(level int) schema.Severity {
	switch {
	case level <= 2:
		return schema.SeverityCritical
	case level <= 3:
		return schema.SeverityHigh
	case level <= 4:
		return schema.SeverityMedium
	default:
		return schema.SeverityLow
	}
}

// ClassifyCategory buckets a free-text action/message into one of the
// common ECS-style event categories used across the reference parsers.
func ClassifyCategory(action string) string {
	a := strings.ToLower(action)
	switch {
	case strings.Contains(a, "login") || strings.Contains(a, "logon") || strings.Contains(a, "auth"):
		return "authentication"
	case strings.Contains(a, "firewall") || strings.Contains(a, "connection") || strings.Contains(a, "network"):
		return "network"
	case strings.Contains(a, "file") || strings.Contains(a, "read") || strings.Contains(a, "write"):
		return "file"
	case strings.Contains(a, "process") || strings.Contains(a, "exec"):
		return "process"
	case strings.Contains(a, "registry"):
		return "registry"
	case strings.Contains(a, "dns") || strings.Contains(a, "query"):
		return "network"
	default:
		return "other"
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Jan _2 15:04:05", // RFC 3164, no year
	"02/Jan/2006:15:04:05 -0700",
}

// ParseTimestamp first tries 10-digit epoch seconds and 13-digit epoch
// milliseconds, then each of timestampLayouts in order (RFC 3339 and other
// ISO-style layouts, RFC 3164 with the year of now, Common Log Format). now
// is injected so RFC 3164's missing year can be resolved deterministically
// in tests.
func ParseTimestamp(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if epoch, ok := parseEpoch(raw); ok {
		return epoch, true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if t.Year() == 0 {
				t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

func parseEpoch(raw string) (time.Time, bool) {
	if !isAllDigits(raw) {
		return time.Time{}, false
	}
	switch len(raw) {
	case 10:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0).UTC(), true
	case 13:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(n).UTC(), true
	default:
		return time.Time{}, false
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatTimestampError produces a consistent error for a parser that could
// not make sense of any timestamp field it found.
func FormatTimestampError(raw string) error {
	return fmt.Errorf("normalize: unrecognized timestamp %q", raw)
}
