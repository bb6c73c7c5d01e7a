// Package streamapi exposes a WebSocket hub that tails normalized events as
// they leave the dispatch pipeline, adapted from this codebase's live DAG
// streamer hub (register/unregister/broadcast channel loop).
package streamapi

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/securewatch/ingest-core/internal/schema"
)

// EventEnvelope is the wire shape pushed to subscribers: the normalized
// event's flat field map plus the parser that produced it.
type EventEnvelope struct {
	Timestamp time.Time         `json:"timestamp"`
	ParserID  string            `json:"parser_id"`
	Fields    map[string]string `json:"fields"`
}

func envelopeFrom(parserID string, evt *schema.NormalizedEvent) EventEnvelope {
	fields := make(map[string]string, len(evt.Keys()))
	for _, k := range evt.Keys() {
		if v, ok := evt.Get(k); ok {
			fields[k] = v.String()
		}
	}
	return EventEnvelope{Timestamp: time.Now().UTC(), ParserID: parserID, Fields: fields}
}

// Streamer manages WebSocket connections for the live normalized-event tail.
type Streamer struct {
	maxSubscribers int
	clients        map[*websocket.Conn]bool
	broadcast      chan EventEnvelope
	register       chan *websocket.Conn
	unregister     chan *websocket.Conn
	mu             sync.RWMutex
	upgrader       websocket.Upgrader
}

func NewStreamer(maxSubscribers, bufferSize int) *Streamer {
	return &Streamer{
		maxSubscribers: maxSubscribers,
		clients:        make(map[*websocket.Conn]bool),
		broadcast:      make(chan EventEnvelope, bufferSize),
		register:       make(chan *websocket.Conn),
		unregister:     make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run drives the hub loop; call it in its own goroutine.
func (s *Streamer) Run() {
	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			if len(s.clients) >= s.maxSubscribers {
				s.mu.Unlock()
				client.Close()
				continue
			}
			s.clients[client] = true
			s.mu.Unlock()
			log.Printf("streamapi: subscriber connected (total: %d)", len(s.clients))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.Close()
			}
			s.mu.Unlock()
			log.Printf("streamapi: subscriber disconnected (total: %d)", len(s.clients))

		case env := <-s.broadcast:
			s.mu.RLock()
			for client := range s.clients {
				if err := client.WriteJSON(env); err != nil {
					client.Close()
					delete(s.clients, client)
				}
			}
			s.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades the request and registers the connection.
func (s *Streamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("streamapi: upgrade error: %v", err)
		return
	}

	s.register <- conn

	go func() {
		defer func() { s.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Publish pushes a normalized event to every connected subscriber. Non-blocking:
// if the broadcast channel is full the event is dropped rather than stalling
// the dispatch path that produced it.
func (s *Streamer) Publish(parserID string, evt *schema.NormalizedEvent) {
	select {
	case s.broadcast <- envelopeFrom(parserID, evt):
	default:
		log.Printf("streamapi: broadcast buffer full, dropping event from %s", parserID)
	}
}

// Stats reports hub occupancy for the ops surface.
func (s *Streamer) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"connected_subscribers": len(s.clients),
		"broadcast_queue_depth": len(s.broadcast),
	}
}
