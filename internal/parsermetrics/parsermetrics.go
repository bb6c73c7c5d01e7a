// Package parsermetrics tracks per-parser invocation counts, error rates,
// and parse latency, both as in-process aggregates for the dispatch loop's
// own decisions and as Prometheus series for operators (component C12).
package parsermetrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// perParser is the in-memory aggregate for one parser id.
type perParser struct {
	invocations       uint64
	successes         uint64
	errors            uint64
	validationRejects uint64
	parseTimeNSSum    uint64
	parseTimeNSCount  uint64
}

// Tracker aggregates per-parser counters and exposes them to Prometheus.
type Tracker struct {
	mu   sync.Mutex
	byID map[string]*perParser

	invocationsTotal *prometheus.CounterVec
	successTotal     *prometheus.CounterVec
	errorTotal       *prometheus.CounterVec
	rejectTotal      *prometheus.CounterVec
	parseSeconds     *prometheus.HistogramVec
}

func NewTracker() *Tracker {
	return &Tracker{
		byID: make(map[string]*perParser),
		invocationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch", Subsystem: "parser", Name: "invocations_total",
			Help: "Total parse attempts, by parser id.",
		}, []string{"parser_id"}),
		successTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch", Subsystem: "parser", Name: "success_total",
			Help: "Total successful parses, by parser id.",
		}, []string{"parser_id"}),
		errorTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch", Subsystem: "parser", Name: "error_total",
			Help: "Total parse errors, by parser id.",
		}, []string{"parser_id"}),
		rejectTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securewatch", Subsystem: "parser", Name: "validation_reject_total",
			Help: "Total validation rejections, by parser id.",
		}, []string{"parser_id"}),
		parseSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "securewatch", Subsystem: "parser", Name: "parse_seconds",
			Help:    "Parse call duration, by parser id.",
			Buckets: prometheus.DefBuckets,
		}, []string{"parser_id"}),
	}
}

func (t *Tracker) entry(id string) *perParser {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byID[id]
	if !ok {
		p = &perParser{}
		t.byID[id] = p
	}
	return p
}

// RecordSuccess records a successful parse of the given duration.
func (t *Tracker) RecordSuccess(id string, d time.Duration) {
	e := t.entry(id)
	t.mu.Lock()
	e.invocations++
	e.successes++
	e.parseTimeNSSum += uint64(d.Nanoseconds())
	e.parseTimeNSCount++
	t.mu.Unlock()

	t.invocationsTotal.WithLabelValues(id).Inc()
	t.successTotal.WithLabelValues(id).Inc()
	t.parseSeconds.WithLabelValues(id).Observe(d.Seconds())
}

// RecordError records a failed parse.
func (t *Tracker) RecordError(id string, d time.Duration) {
	e := t.entry(id)
	t.mu.Lock()
	e.invocations++
	e.errors++
	e.parseTimeNSSum += uint64(d.Nanoseconds())
	e.parseTimeNSCount++
	t.mu.Unlock()

	t.invocationsTotal.WithLabelValues(id).Inc()
	t.errorTotal.WithLabelValues(id).Inc()
	t.parseSeconds.WithLabelValues(id).Observe(d.Seconds())
}

// RecordValidationReject records a parser declining a record at the
// validate step, before Parse was even attempted.
func (t *Tracker) RecordValidationReject(id string) {
	e := t.entry(id)
	t.mu.Lock()
	e.validationRejects++
	t.mu.Unlock()
	t.rejectTotal.WithLabelValues(id).Inc()
}

// Summary is a read-only view of one parser's aggregate performance.
type Summary struct {
	ParserID          string
	Invocations       uint64
	Successes         uint64
	Errors            uint64
	ValidationRejects uint64
	SuccessRate       float64
	AvgParseTime      time.Duration
}

func (t *Tracker) summaryLocked(id string, p *perParser) Summary {
	s := Summary{ParserID: id, Invocations: p.invocations, Successes: p.successes, Errors: p.errors, ValidationRejects: p.validationRejects}
	if p.invocations > 0 {
		s.SuccessRate = float64(p.successes) / float64(p.invocations)
	}
	if p.parseTimeNSCount > 0 {
		s.AvgParseTime = time.Duration(p.parseTimeNSSum / p.parseTimeNSCount)
	}
	return s
}

// SummaryFor returns the aggregate for a single parser id.
func (t *Tracker) SummaryFor(id string) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byID[id]
	if !ok {
		return Summary{ParserID: id}
	}
	return t.summaryLocked(id, p)
}

// GlobalSuccessRate returns the success rate across every tracked parser.
func (t *Tracker) GlobalSuccessRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var invocations, successes uint64
	for _, p := range t.byID {
		invocations += p.invocations
		successes += p.successes
	}
	if invocations == 0 {
		return 0
	}
	return float64(successes) / float64(invocations)
}

// TopPerformers ranks parsers by successes*(1-errorRate), descending,
// returning at most n entries.
func (t *Tracker) TopPerformers(n int) []Summary {
	t.mu.Lock()
	ids := make([]string, 0, len(t.byID))
	summaries := make(map[string]Summary, len(t.byID))
	for id, p := range t.byID {
		ids = append(ids, id)
		summaries[id] = t.summaryLocked(id, p)
	}
	t.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool {
		return score(summaries[ids[i]]) > score(summaries[ids[j]])
	})
	if n > len(ids) {
		n = len(ids)
	}
	out := make([]Summary, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, summaries[ids[i]])
	}
	return out
}

func score(s Summary) float64 {
	if s.Invocations == 0 {
		return 0
	}
	errorRate := float64(s.Errors) / float64(s.Invocations)
	return float64(s.Successes) * (1 - errorRate)
}

// Reset clears all accumulated in-memory aggregates (Prometheus series are
// left untouched; they are meant to be long-lived).
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID = make(map[string]*perParser)
}

// ResetParser clears aggregates for a single parser id.
func (t *Tracker) ResetParser(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}
