package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securewatch/ingest-core/internal/events"
	"github.com/securewatch/ingest-core/internal/ingestbuf"
	"github.com/securewatch/ingest-core/internal/parser"
	"github.com/securewatch/ingest-core/internal/parsermetrics"
	"github.com/securewatch/ingest-core/internal/schema"
)

type stubParser struct {
	id string
}

func (s stubParser) Descriptor() schema.ParserDescriptor {
	return schema.ParserDescriptor{ID: s.id, Name: s.id, Format: schema.FormatJSON, Priority: 10, Enabled: true}
}
func (s stubParser) Validate(raw schema.RawRecord) parser.ValidationResult {
	return parser.ValidationResult{Valid: true}
}
func (s stubParser) Parse(raw schema.RawRecord) (*schema.ParsedEvent, error) {
	return schema.NewParsedEvent(), nil
}
func (s stubParser) Normalize(evt *schema.ParsedEvent) (*schema.NormalizedEvent, error) {
	return schema.NewNormalizedEvent(), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := ingestbuf.DefaultConfig(filepath.Join(t.TempDir(), "overflow.bin"))
	buf, err := ingestbuf.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { buf.Close() })

	reg := parser.NewRegistry()
	require.NoError(t, reg.Register(stubParser{id: "stub-1"}))

	bus := events.NewEventBus()
	return NewServer(buf, reg, parsermetrics.NewTracker(), bus, bus)
}

func TestHealthzReportsOK(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListParsersReturnsRegistered(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/parsers", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var descriptors []schema.ParserDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &descriptors))
	require.Len(t, descriptors, 1)
	assert.Equal(t, "stub-1", descriptors[0].ID)
}

func TestSetParserEnabledTogglesRegistry(t *testing.T) {
	srv := newTestServer(t)
	body := strings.NewReader(`{"enabled":false}`)
	req := httptest.NewRequest(http.MethodPost, "/api/parsers/stub-1/enabled", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetParserEnabledUnknownIDReturns404(t *testing.T) {
	srv := newTestServer(t)
	body := strings.NewReader(`{"enabled":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/parsers/nope/enabled", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBufferStatsReflectsEnqueue(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.buf.Enqueue([]byte("x"), schema.PriorityDefault)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/buffer/stats", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats ingestbuf.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.TotalEnqueued)
}
