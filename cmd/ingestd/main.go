// Command ingestd runs the SecureWatch ingestion core: the buffered
// admission path, the parser registry and dispatch pipeline, the
// enrichment engine, and the operator-facing HTTP/WebSocket surfaces.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/securewatch/ingest-core/internal/auditstore"
	"github.com/securewatch/ingest-core/internal/config"
	"github.com/securewatch/ingest-core/internal/dispatch"
	"github.com/securewatch/ingest-core/internal/enrich"
	"github.com/securewatch/ingest-core/internal/events"
	"github.com/securewatch/ingest-core/internal/httpapi"
	"github.com/securewatch/ingest-core/internal/ingestbuf"
	"github.com/securewatch/ingest-core/internal/parser"
	"github.com/securewatch/ingest-core/internal/parsermetrics"
	"github.com/securewatch/ingest-core/internal/refparsers"
	"github.com/securewatch/ingest-core/internal/schema"
	"github.com/securewatch/ingest-core/internal/streamapi"
)

func main() {
	cfg := config.Get()

	buf, err := ingestbuf.New(ingestbuf.Config{
		RingCapacity:            cfg.Buffer.RingCapacity,
		DiskPath:                cfg.Disk.Path,
		DiskMaxBytes:            cfg.Disk.MaxBytes,
		DiskChecksum:            cfg.Disk.Checksum,
		ForcedMirrorMaxPriority: cfg.Buffer.ForcedMirrorMaxPriority,
	})
	if err != nil {
		log.Fatalf("ingestd: failed to start ingestion buffer: %v", err)
	}
	defer buf.Close()

	inMemBus := events.NewEventBus()
	var bus events.EventEmitter = inMemBus
	if cfg.PubSub.Enabled {
		pubsubBus, err := events.NewPubSubEventBus(cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			slog.Warn("ingestd: pub/sub event bus unavailable, lifecycle events stay in-process only", "error", err)
		} else {
			defer pubsubBus.Close()
			bus = pubsubBus
			inMemBus = pubsubBus.EventBus
		}
	}

	registry := parser.NewRegistry()
	registerReferenceParsers(registry, bus)

	metrics := parsermetrics.NewTracker()

	var auditStore *auditstore.Store
	if cfg.Postgres.Enabled {
		auditStore, err = auditstore.Open(cfg.Postgres.DSN)
		if err != nil {
			slog.Warn("ingestd: postgres audit sink unavailable, continuing without durable audit trail", "error", err)
		} else {
			defer auditStore.Close()
		}
	}

	var geoip enrich.GeoIPLookup
	var threat enrich.ThreatIntelLookup
	if cfg.Redis.Enabled {
		cache, err := enrich.NewRedisLookupCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "securewatch:enrich:", time.Duration(cfg.Enrichment.LookupCacheTTLSec)*time.Second)
		if err != nil {
			slog.Warn("ingestd: redis lookup cache unavailable, enrichment will run without geoip/threat-intel lookups", "error", err)
		} else {
			defer cache.Close()
			geoip = &enrich.GeoIPResolver{Cache: cache, Resolve: stubGeoIPResolve}
			threat = &enrich.ThreatIntelResolver{Cache: cache, Resolve: stubThreatIntelResolve}
		}
	}

	enricher := enrich.NewEngine(defaultRules(), nil, geoip, threat)

	dispatcher := dispatch.NewManager(dispatch.Config{
		ChunkSize:   cfg.Dispatch.ChunkSize,
		ItemTimeout: time.Duration(cfg.Dispatch.ItemTimeoutMS) * time.Millisecond,
	}, registry, metrics, enricher)

	streamer := streamapi.NewStreamer(cfg.Stream.MaxSubscribers, cfg.Stream.BufferSize)
	go streamer.Run()

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	go runDispatchLoop(shutdownCtx, buf, dispatcher, streamer, auditStore)

	opsServer := httpapi.NewServer(buf, registry, metrics, bus, inMemBus)
	router := opsServer.Router()
	router.HandleFunc("/stream", streamer.HandleWebSocket).Methods("GET")

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("ingestd: received shutdown signal, draining")
		shutdownCancel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("ingestd: server shutdown error", "error", err)
		}
	}()

	slog.Info("ingestd: starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ingestd: server failed: %v", err)
	}
	slog.Info("ingestd: stopped")
}

// registerReferenceParsers wires the three built-in format parsers into the
// registry. Deployments that need more bring their own parser.Parser
// implementations and register them the same way.
func registerReferenceParsers(registry *parser.Registry, bus events.EventEmitter) {
	for _, p := range []parser.Parser{
		refparsers.NewSyslogParser(),
		refparsers.NewGenericJSONParser(),
		refparsers.NewWindowsEventCSVParser(),
	} {
		id := p.Descriptor().ID
		if err := registry.Register(p); err != nil {
			slog.Warn("ingestd: failed to register reference parser", "error", err)
			continue
		}
		bus.Emit("parser.registered", "ingestd", id, map[string]any{"parser_id": id})
	}
}

// defaultRules is the starter enrichment rule set. ingestd always applies
// this set; cfg.Enrichment.RulesPath is not read.
func defaultRules() []enrich.Rule {
	return []enrich.Rule{
		{
			Name:     "tag-authentication-failures",
			Priority: 100,
			Conditions: []enrich.Condition{
				{Field: "event.outcome", Op: enrich.OpEquals, Value: "failure"},
				{Field: "event.category", Op: enrich.OpEquals, Value: "authentication"},
			},
			Actions: []enrich.Action{
				{Kind: enrich.ActionAddTag, Value: "auth-failure"},
			},
		},
		{
			Name:     "geoip-source-address",
			Priority: 50,
			Conditions: []enrich.Condition{
				{Field: "source.ip", Op: enrich.OpExists},
			},
			Actions: []enrich.Action{
				{Kind: enrich.ActionGeoIP, Field: "source.geo", SourceField: "source.ip"},
			},
		},
		{
			Name:     "threat-intel-source-address",
			Priority: 40,
			Conditions: []enrich.Condition{
				{Field: "source.ip", Op: enrich.OpExists},
			},
			Actions: []enrich.Action{
				{Kind: enrich.ActionThreatIntel, Field: "threat.indicator", SourceField: "source.ip"},
			},
		},
	}
}

// stubGeoIPResolve is the upstream resolver behind the Redis-cached GeoIP
// lookup. It has no real geo database wired in; operators that need real
// GeoIP data replace this with a MaxMind or similar lookup.
func stubGeoIPResolve(ctx context.Context, ip string) (string, error) {
	return "", nil
}

// stubThreatIntelResolve is the upstream resolver behind the Redis-cached
// threat-intel lookup. An empty result means "looked up, not found".
func stubThreatIntelResolve(ctx context.Context, indicator string) (string, error) {
	return "", nil
}

// runDispatchLoop drains buffered records through the dispatch pipeline and
// republishes the normalized result to live subscribers.
func runDispatchLoop(ctx context.Context, buf *ingestbuf.Manager, dispatcher *dispatch.Manager, streamer *streamapi.Streamer, audit *auditstore.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := buf.DequeueBatch()
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if len(batch) == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		records := make([]schema.RawRecord, 0, len(batch))
		for _, item := range batch {
			records = append(records, schema.RawRecord{
				Payload:   item.Payload,
				ArrivedAt: item.EnqueuedAt,
				Priority:  item.Priority,
			})
		}

		dispatchStart := time.Now()
		results := dispatcher.DispatchBatch(ctx, records)
		dispatchLatency := time.Since(dispatchStart)

		for i, res := range results {
			success := res.Err == nil && res.Event != nil
			buf.Ack(batch[i].ID, success, dispatchLatency)

			if !success {
				continue
			}
			streamer.Publish(res.ParserID, res.Event)
			if audit != nil {
				audit.RecordParserEvent(ctx, auditstore.ParserEvent{
					ParserID: res.ParserID,
					Action:   "dispatched",
				})
			}
		}
	}
}
