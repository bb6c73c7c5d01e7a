package streamapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securewatch/ingest-core/internal/schema"
)

func newTestEvent() *schema.NormalizedEvent {
	evt := schema.NewNormalizedEvent()
	evt.Set("event.action", schema.String("login"))
	evt.SetTimestamp(time.Now())
	return evt
}

func TestPublishDeliversToConnectedSubscriber(t *testing.T) {
	s := NewStreamer(10, 16)
	go s.Run()

	srv := httptest.NewServer(nil)
	defer srv.Close()
	srv.Config.Handler = http.HandlerFunc(s.HandleWebSocket)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // allow registration to land

	s.Publish("syslog-rfc3164", newTestEvent())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var env EventEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "syslog-rfc3164", env.ParserID)
	assert.Equal(t, "login", env.Fields["event.action"])
}

func TestStatsReportsConnectedSubscribers(t *testing.T) {
	s := NewStreamer(10, 16)
	go s.Run()

	srv := httptest.NewServer(nil)
	defer srv.Close()
	srv.Config.Handler = http.HandlerFunc(s.HandleWebSocket)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.Stats()["connected_subscribers"])
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	s := NewStreamer(10, 1)
	// No Run() goroutine consuming, so the single buffer slot fills immediately.
	s.Publish("p1", newTestEvent())
	s.Publish("p2", newTestEvent()) // should be dropped, not block
	assert.Equal(t, 1, s.Stats()["broadcast_queue_depth"])
}
