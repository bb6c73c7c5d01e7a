package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONFlattensNested(t *testing.T) {
	payload := []byte(`{"user":{"name":"alice"},"action":"login"}`)
	fields, ok := ExtractJSON(payload)
	assert.True(t, ok)

	byKey := map[string]string{}
	for _, f := range fields {
		byKey[f.Key] = f.Value
	}
	assert.Equal(t, "alice", byKey["user.name"])
	assert.Equal(t, "login", byKey["action"])
}

func TestFindJSONStartSkipsHTTPHeaders(t *testing.T) {
	payload := []byte("POST /ingest HTTP/1.1\r\nContent-Type: application/json\r\n\r\n{\"a\":1}")
	start := FindJSONStart(payload)
	assert.Equal(t, '{', rune(payload[start]))
}

func TestExtractKeyValueWhitespaceSeparated(t *testing.T) {
	payload := []byte(`user=alice action=login outcome=success`)
	fields := ExtractKeyValue(payload)
	assert.NotEmpty(t, fields)
	assert.Equal(t, "alice", fields[0].Value)
}

func TestExtractCommonPatternsFindsIPAndEmail(t *testing.T) {
	payload := []byte(`connection from 10.0.0.5 by alice@example.com`)
	fields := ExtractCommonPatterns(payload)
	var haveIP, haveEmail bool
	for _, f := range fields {
		if f.Type == "ip" {
			haveIP = true
		}
		if f.Type == "email" {
			haveEmail = true
		}
	}
	assert.True(t, haveIP)
	assert.True(t, haveEmail)
}

func TestExtractCascadePrefersJSON(t *testing.T) {
	payload := []byte(`{"k":"v"}`)
	_, strategy := Extract(payload)
	assert.Equal(t, "json", strategy)
}

func TestExtractCascadeFallsBackToQuotedStrings(t *testing.T) {
	payload := []byte(`not json, no kv pairs here, just "a message" and "another one"`)
	fields, strategy := Extract(payload)
	assert.Equal(t, "quoted_strings", strategy)
	assert.NotEmpty(t, fields)
}
