// Package dispatch implements the parser manager that drives a RawRecord
// through candidate selection, validate/parse/normalize, confidence
// scoring, and enrichment handoff, both for single events and for bounded-
// concurrency batches (component C14).
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/securewatch/ingest-core/internal/enrich"
	"github.com/securewatch/ingest-core/internal/parser"
	"github.com/securewatch/ingest-core/internal/parsermetrics"
	"github.com/securewatch/ingest-core/internal/schema"
)

// Result is what DispatchOne/DispatchBatch returns per input record.
type Result struct {
	Event      *schema.NormalizedEvent
	ParserID   string
	Confidence float64
	Err        error
}

// Config controls batch dispatch concurrency and per-item deadlines.
type Config struct {
	// ChunkSize bounds how many items a single DispatchBatch call processes
	// concurrently; defaults to 100 per spec.md §4.14.
	ChunkSize int
	// ItemTimeout bounds a single record's candidate/parse/normalize/enrich
	// pipeline.
	ItemTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{ChunkSize: 100, ItemTimeout: 2 * time.Second}
}

// Manager ties the parser registry, metrics tracker, and enrichment engine
// together into the dispatch loop.
type Manager struct {
	cfg      Config
	registry *parser.Registry
	metrics  *parsermetrics.Tracker
	enricher *enrich.Engine
	log      *slog.Logger
}

func NewManager(cfg Config, registry *parser.Registry, metrics *parsermetrics.Tracker, enricher *enrich.Engine) *Manager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 2 * time.Second
	}
	return &Manager{cfg: cfg, registry: registry, metrics: metrics, enricher: enricher, log: slog.Default().With("component", "dispatch")}
}

// ErrNoMatch is recorded when no registered parser accepted a record.
type ErrNoMatch struct{ Source, Category string }

func (e ErrNoMatch) Error() string {
	return fmt.Sprintf("dispatch: no parser matched source=%q category=%q", e.Source, e.Category)
}

// DispatchOne runs the full single-event path: candidate selection, skip
// disabled parsers, validate, parse, normalize, confidence scoring, and
// enrichment handoff.
func (m *Manager) DispatchOne(ctx context.Context, raw schema.RawRecord) Result {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ItemTimeout)
	defer cancel()

	candidates := m.registry.CandidatesFor(raw.SourceHint, raw.CategoryHint)
	for _, p := range candidates {
		id := p.Descriptor().ID

		validation := p.Validate(raw)
		if !validation.Valid {
			m.metrics.RecordValidationReject(id)
			continue
		}

		start := time.Now()
		evt, err := p.Parse(raw)
		if err != nil {
			m.metrics.RecordError(id, time.Since(start))
			continue
		}

		normalized, err := p.Normalize(evt)
		if err != nil {
			m.metrics.RecordError(id, time.Since(start))
			continue
		}
		m.metrics.RecordSuccess(id, time.Since(start))

		d := p.Descriptor()
		confidence := confidenceFor(evt, d)
		normalized.StampParser(d.ID, d.Name, d.Version)
		normalized.SetConfidence(confidence)

		if m.enricher != nil {
			m.enricher.Apply(ctx, normalized)
		}

		return Result{Event: normalized, ParserID: d.ID, Confidence: confidence}
	}

	return Result{Err: ErrNoMatch{Source: raw.SourceHint, Category: raw.CategoryHint}}
}

// confidenceFor derives securewatch.confidence from how complete the parsed
// event is and how specific the parser that produced it claims to be
// (spec.md §4.14 step 4): a base score, additive bonuses for field and
// sub-record presence, and parser-class adjustments for genericness and
// registered priority, clamped to [0,1].
func confidenceFor(evt *schema.ParsedEvent, d schema.ParserDescriptor) float64 {
	confidence := 0.5

	fieldsPresent := 0
	if evt.HasTimestamp {
		fieldsPresent++
	}
	if evt.Source != "" {
		fieldsPresent++
	}
	if evt.Category != "" {
		fieldsPresent++
	}
	if evt.Action != "" {
		fieldsPresent++
	}
	confidence += 0.05 * float64(fieldsPresent)

	if hasStructuredSubRecord(evt) {
		confidence += 0.1
	}
	if evt.Authentication != nil || evt.Authorization != nil || evt.Threat != nil {
		confidence += 0.15
	}

	switch d.Category {
	case "endpoint", "network":
		confidence += 0.05
	}
	if strings.Contains(d.ID, "generic") || strings.Contains(d.ID, "fallback") {
		confidence -= 0.2
	}
	if d.Priority > 80 {
		confidence += 0.1
	} else if d.Priority < 20 {
		confidence -= 0.1
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// hasStructuredSubRecord reports whether the parser attached any of the
// optional structured sub-records beyond the flat Timestamp/Source/
// Category/Action/Outcome fields.
func hasStructuredSubRecord(evt *schema.ParsedEvent) bool {
	return evt.User != nil || evt.Device != nil || evt.Network != nil ||
		evt.Process != nil || evt.File != nil || evt.Registry != nil ||
		evt.URL != nil || evt.DNS != nil ||
		evt.Authentication != nil || evt.Authorization != nil || evt.Threat != nil
}

// DispatchBatch runs DispatchOne over records with bounded concurrency
// (errgroup, capped at ChunkSize), preserving input order in the result
// slice and isolating one record's panic/error from the rest (spec.md
// §4.14: per-item error isolation).
func (m *Manager) DispatchBatch(ctx context.Context, records []schema.RawRecord) []Result {
	results := make([]Result, len(records))

	chunk := m.cfg.ChunkSize
	for start := 0; start < len(records); start += chunk {
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}
		m.dispatchChunk(ctx, records[start:end], results[start:end])
	}
	return results
}

func (m *Manager) dispatchChunk(ctx context.Context, records []schema.RawRecord, out []Result) {
	g, gctx := errgroup.WithContext(ctx)
	for i := range records {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					out[i] = Result{Err: fmt.Errorf("dispatch: parser panic: %v", r)}
					m.log.Error("recovered from parser panic", "panic", r)
				}
			}()
			out[i] = m.DispatchOne(gctx, records[i])
			return nil
		})
	}
	// errgroup's returned error is always nil here since DispatchOne never
	// returns an error from the goroutine itself (failures are captured in
	// Result.Err per item), so per-item isolation holds even if one slot
	// panics.
	_ = g.Wait()
}
