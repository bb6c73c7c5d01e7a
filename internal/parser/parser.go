// Package parser defines the parser contract (validate/parse/normalize)
// every log-source parser implements, and the registry that indexes
// registered parsers by id, source, and category for priority-ordered
// dispatch (components C10/C11). The shape is adapted from this codebase's
// existing plugin-registry pattern, generalized from a single AI-payload
// type to the open log-source domain.
package parser

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/securewatch/ingest-core/internal/schema"
)

// ValidationResult is returned by Parser.Validate.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Parser is the contract every log-source parser implements.
type Parser interface {
	Descriptor() schema.ParserDescriptor
	// Validate reports whether raw looks like this parser's format without
	// fully parsing it; used for cheap candidate filtering.
	Validate(raw schema.RawRecord) ValidationResult
	// Parse turns a validated RawRecord into a ParsedEvent.
	Parse(raw schema.RawRecord) (*schema.ParsedEvent, error)
	// Normalize turns a ParsedEvent into the flat NormalizedEvent shape.
	Normalize(evt *schema.ParsedEvent) (*schema.NormalizedEvent, error)
}

// Registry indexes registered parsers by id plus secondary indices by
// source and category, each kept sorted by descending priority so dispatch
// tries the most specific/most trusted parser first.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]Parser
	bySource map[string][]Parser
	byCat    map[string][]Parser
	enabled  map[string]bool
	logger   *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]Parser),
		bySource: make(map[string][]Parser),
		byCat:    make(map[string][]Parser),
		enabled:  make(map[string]bool),
		logger:   slog.Default().With("component", "parser.registry"),
	}
}

// Register adds p to the registry, keyed by its descriptor's ID. Registering
// an ID that already exists replaces the prior parser and logs a warning
// (spec.md §3 invariant: unique-by-id, replace-with-warning).
func (r *Registry) Register(p Parser) error {
	d := p.Descriptor()
	if d.ID == "" {
		return fmt.Errorf("parser: descriptor missing ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		r.logger.Warn("replacing already-registered parser", "id", d.ID)
		r.removeLocked(d.ID)
	}

	r.byID[d.ID] = p
	r.enabled[d.ID] = d.Enabled
	r.bySource[d.LogSource] = insertSorted(r.bySource[d.LogSource], p)
	r.byCat[d.Category] = insertSorted(r.byCat[d.Category], p)

	r.logger.Info("registered parser", "id", d.ID, "source", d.LogSource, "category", d.Category, "priority", d.Priority)
	return nil
}

func insertSorted(list []Parser, p Parser) []Parser {
	list = append(list, p)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Descriptor().Priority > list[j].Descriptor().Priority
	})
	return list
}

// Unregister removes a parser by ID.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) {
	p, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.enabled, id)
	d := p.Descriptor()
	r.bySource[d.LogSource] = removeFrom(r.bySource[d.LogSource], id)
	r.byCat[d.Category] = removeFrom(r.byCat[d.Category], id)
}

func removeFrom(list []Parser, id string) []Parser {
	out := list[:0]
	for _, p := range list {
		if p.Descriptor().ID != id {
			out = append(out, p)
		}
	}
	return out
}

// SetEnabled toggles a parser's dispatch eligibility without unregistering it.
func (r *Registry) SetEnabled(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		r.enabled[id] = enabled
	}
}

// Get returns a parser by ID.
func (r *Registry) Get(id string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// CandidatesFor returns, in descending-priority order, the enabled parsers
// registered for the given source hint or category hint (the union of both,
// without duplicates). When neither hint matches a registered parser, all
// enabled parsers are returned in global priority order.
func (r *Registry) CandidatesFor(sourceHint, categoryHint string) []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pool []Parser
	if sourceHint != "" {
		pool = append(pool, r.bySource[sourceHint]...)
	}
	if categoryHint != "" {
		pool = append(pool, r.byCat[categoryHint]...)
	}
	if len(pool) == 0 {
		pool = r.all()
	}

	seen := make(map[string]bool, len(pool))
	out := make([]Parser, 0, len(pool))
	for _, p := range pool {
		id := p.Descriptor().ID
		if r.enabled[id] && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Descriptor().Priority > out[j].Descriptor().Priority
	})
	return out
}

func (r *Registry) all() []Parser {
	list := make([]Parser, 0, len(r.byID))
	for _, p := range r.byID {
		list = append(list, p)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Descriptor().Priority > list[j].Descriptor().Priority
	})
	return list
}

// List returns descriptors for every registered parser.
func (r *Registry) List() []schema.ParserDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.ParserDescriptor, 0, len(r.byID))
	for id, p := range r.byID {
		d := p.Descriptor()
		d.Enabled = r.enabled[id]
		out = append(out, d)
	}
	return out
}

// Count returns the number of registered parsers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
