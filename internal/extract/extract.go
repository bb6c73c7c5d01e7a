// Package extract implements the best-effort field extractor parsers fall
// back on when a payload doesn't cleanly match a known wire format: a
// cascade of strategies from whole-payload JSON down to quoted-string
// scraping, each attaching a confidence score to what it found (component
// C9).
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Field is one extracted key/value with a type tag and confidence in [0,1].
type Field struct {
	Key        string
	Value      string
	Type       string
	Confidence float64
}

// FindJSONStart locates where a JSON document begins in data, tolerating a
// leading HTTP-style header block the way proxied/forwarded payloads often
// carry one.
func FindJSONStart(data []byte) int {
	if len(data) == 0 {
		return -1
	}
	if data[0] == '{' || data[0] == '[' {
		return 0
	}
	if idx := strings.Index(string(data), "\r\n\r\n"); idx != -1 {
		return idx + 4
	}
	if idx := strings.Index(string(data), "\n\n"); idx != -1 {
		return idx + 2
	}
	for i, b := range data {
		if b == '{' || b == '[' {
			return i
		}
	}
	return -1
}

// ExtractJSON attempts a whole-payload JSON parse, flattening nested objects
// at any depth into dotted keys. This is always tried first: it's the cheapest
// strategy with the highest confidence when it succeeds.
func ExtractJSON(payload []byte) ([]Field, bool) {
	start := FindJSONStart(payload)
	if start < 0 {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(payload[start:], &doc); err != nil {
		return nil, false
	}
	var fields []Field
	flattenJSON("", doc, &fields)
	return fields, true
}

func flattenJSON(prefix string, v any, out *[]Field) {
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenJSON(key, vv, out)
		}
	case string:
		*out = append(*out, Field{Key: prefix, Value: t, Type: "string", Confidence: 0.95})
	case float64:
		*out = append(*out, Field{Key: prefix, Value: jsonNumberString(t), Type: "number", Confidence: 0.95})
	case bool:
		*out = append(*out, Field{Key: prefix, Value: boolString(t), Type: "bool", Confidence: 0.95})
	case nil:
		*out = append(*out, Field{Key: prefix, Value: "", Type: "null", Confidence: 0.95})
	default:
		// arrays and other shapes are left for the caller to re-inspect
		// via the raw decoded document; the extractor only surfaces
		// scalar leaves.
	}
}

func jsonNumberString(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ExtractKeyValue tries, in order: whitespace-separated key=value pairs,
// double-quoted key="value" pairs, comma-delimited key=value pairs, and a
// tolerant escape-aware variant of the same. The first strategy that yields
// at least one field wins.
func ExtractKeyValue(payload []byte) []Field {
	text := string(payload)

	if fields := extractPattern(text, reWhitespaceKV, 0.8); len(fields) > 0 {
		return fields
	}
	if fields := extractPattern(text, reQuotedKV, 0.85); len(fields) > 0 {
		return fields
	}
	if fields := extractPattern(text, reCommaKV, 0.75); len(fields) > 0 {
		return fields
	}
	if fields := extractPattern(text, reToleranceKV, 0.6); len(fields) > 0 {
		return fields
	}
	return nil
}

var (
	reWhitespaceKV = regexp.MustCompile(`(\w[\w.-]*)=(\S+)`)
	reQuotedKV     = regexp.MustCompile(`(\w[\w.-]*)="([^"]*)"`)
	reCommaKV      = regexp.MustCompile(`(\w[\w.-]*)=([^,]+)(?:,|$)`)
	reToleranceKV  = regexp.MustCompile(`(\w[\w.-]*)\s*[:=]\s*"?((?:[^",\s]|\\.)*)"?`)
)

func extractPattern(text string, re *regexp.Regexp, confidence float64) []Field {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	fields := make([]Field, 0, len(matches))
	for _, m := range matches {
		fields = append(fields, Field{Key: m[1], Value: strings.TrimSpace(m[2]), Type: "string", Confidence: confidence})
	}
	return fields
}

// common pattern detectors for ExtractCommonPatterns, keyed under
// detected_<kind>.
var (
	reIPv4  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	reEmail = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)
	reURL   = regexp.MustCompile(`\bhttps?://[^\s"']+`)
	reMAC   = regexp.MustCompile(`\b([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}\b`)
	reISO8601 = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?\b`)
)

// ExtractCommonPatterns scans for IPv4 addresses, emails, URLs, MAC
// addresses, and ISO-8601 timestamps embedded anywhere in the payload.
func ExtractCommonPatterns(payload []byte) []Field {
	text := string(payload)
	var fields []Field
	for _, m := range reIPv4.FindAllString(text, -1) {
		fields = append(fields, Field{Key: "detected_ip", Value: m, Type: "ip", Confidence: 0.7})
	}
	for _, m := range reEmail.FindAllString(text, -1) {
		fields = append(fields, Field{Key: "detected_email", Value: m, Type: "email", Confidence: 0.75})
	}
	for _, m := range reURL.FindAllString(text, -1) {
		fields = append(fields, Field{Key: "detected_url", Value: m, Type: "url", Confidence: 0.75})
	}
	for _, m := range reMAC.FindAllString(text, -1) {
		fields = append(fields, Field{Key: "detected_mac", Value: m, Type: "mac", Confidence: 0.7})
	}
	for _, m := range reISO8601.FindAllString(text, -1) {
		fields = append(fields, Field{Key: "detected_timestamp", Value: m, Type: "timestamp", Confidence: 0.8})
	}
	return fields
}

var reQuotedString = regexp.MustCompile(`"([^"]{1,256})"`)

// ExtractQuotedStrings is the last-resort strategy: every double-quoted
// run of text becomes a low-confidence anonymous field.
func ExtractQuotedStrings(payload []byte) []Field {
	matches := reQuotedString.FindAllStringSubmatch(string(payload), -1)
	fields := make([]Field, 0, len(matches))
	for i, m := range matches {
		fields = append(fields, Field{Key: indexedKey(i), Value: m[1], Type: "string", Confidence: 0.3})
	}
	return fields
}

// Extract runs the full cascade: JSON, then key-value, then common
// patterns, then quoted strings, returning the first non-empty result set
// together with which strategy produced it.
func Extract(payload []byte) (fields []Field, strategy string) {
	if f, ok := ExtractJSON(payload); ok && len(f) > 0 {
		return f, "json"
	}
	if f := ExtractKeyValue(payload); len(f) > 0 {
		return f, "key_value"
	}
	if f := ExtractCommonPatterns(payload); len(f) > 0 {
		return f, "common_patterns"
	}
	return ExtractQuotedStrings(payload), "quoted_strings"
}

func indexedKey(i int) string {
	return "field_" + strconv.Itoa(i)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
