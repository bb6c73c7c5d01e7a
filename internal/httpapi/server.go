// Package httpapi exposes the ingestion core's operator-facing HTTP surface:
// health checks, parser registry introspection, buffer/backpressure status,
// and the Prometheus scrape endpoint.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/securewatch/ingest-core/internal/events"
	"github.com/securewatch/ingest-core/internal/ingestbuf"
	"github.com/securewatch/ingest-core/internal/parser"
	"github.com/securewatch/ingest-core/internal/parsermetrics"
	"github.com/securewatch/ingest-core/internal/ratelimit"
)

// Server exposes ops endpoints over the ingestion core's internal state.
type Server struct {
	buf       *ingestbuf.Manager
	registry  *parser.Registry
	metrics   *parsermetrics.Tracker
	limiter   *ratelimit.Limiter
	bus       events.EventEmitter
	sub       *events.EventBus
	startedAt time.Time
}

// NewServer builds an ops Server. bus may be nil, in which case the
// enable/disable handler emits no lifecycle events. sub may be nil, in which
// case the SSE endpoint answers 501 Not Implemented. sub is the
// in-memory EventBus to subscribe the SSE endpoint to — it is the same bus
// passed as bus when bus is an *events.EventBus, or the embedded EventBus
// of a *events.PubSubEventBus.
func NewServer(buf *ingestbuf.Manager, registry *parser.Registry, metrics *parsermetrics.Tracker, bus events.EventEmitter, sub *events.EventBus) *Server {
	return &Server{
		buf:       buf,
		registry:  registry,
		metrics:   metrics,
		limiter:   ratelimit.New(ratelimit.Config{}),
		bus:       bus,
		sub:       sub,
		startedAt: time.Now(),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(s.limiter.Middleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.HandleFunc("/api/buffer/stats", s.handleBufferStats).Methods("GET")
	r.HandleFunc("/api/parsers", s.handleListParsers).Methods("GET")
	r.HandleFunc("/api/parsers/{id}/metrics", s.handleParserMetrics).Methods("GET")
	r.HandleFunc("/api/parsers/{id}/enabled", s.handleSetParserEnabled).Methods("POST")
	r.HandleFunc("/api/events/stream", s.handleEventStream).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("ingest-core: ops API listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"circuit_open":   s.buf.IsCircuitBreakerOpen(),
		"backpressure":   s.buf.IsBackpressureActive(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBufferStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buf.Snapshot())
}

func (s *Server) handleListParsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleParserMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.registry.Get(id); !ok {
		http.Error(w, "unknown parser id", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.SummaryFor(id))
}

func (s *Server) handleSetParserEnabled(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.registry.Get(id); !ok {
		http.Error(w, "unknown parser id", http.StatusNotFound)
		return
	}
	s.registry.SetEnabled(id, req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": req.Enabled})

	if s.bus != nil {
		action := "parser.disabled"
		if req.Enabled {
			action = "parser.enabled"
		}
		s.bus.Emit(action, "ingestd.httpapi", id, map[string]any{"parser_id": id})
	}
}

// handleEventStream serves lifecycle events (parser registrations and
// enable/disable toggles) as Server-Sent Events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.sub == nil {
		http.Error(w, "event stream not configured", http.StatusNotImplemented)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.sub.Subscribe()
	defer s.sub.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := evt.SSEFormat()
			if err != nil {
				continue
			}
			w.Write(payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
