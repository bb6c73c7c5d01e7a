// Package enrich implements the rule-driven enrichment engine that runs
// after normalization: field lookups, GeoIP/threat-intel annotation with
// TTL-cached results, and the numeric risk score calculation (component
// C13).
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/securewatch/ingest-core/internal/schema"
)

// ConditionOp is the closed vocabulary of rule condition operators.
type ConditionOp string

const (
	OpEquals   ConditionOp = "equals"
	OpContains ConditionOp = "contains"
	OpMatches  ConditionOp = "matches" // substring-list match, case-insensitive unless CaseSensitive
	OpExists   ConditionOp = "exists"
	OpIn       ConditionOp = "in"
	OpRange    ConditionOp = "range"
)

// Condition is one predicate a Rule evaluates against a NormalizedEvent field.
type Condition struct {
	Field         string
	Op            ConditionOp
	Value         string
	Values        []string
	RangeMin      float64
	RangeMax      float64
	CaseSensitive bool
}

func (c Condition) eval(evt *schema.NormalizedEvent) bool {
	v, ok := evt.Get(c.Field)
	switch c.Op {
	case OpExists:
		return ok
	}
	if !ok {
		return false
	}
	if items, isArr := v.Array(); isArr {
		// An array field matches when any of its elements matches.
		for _, item := range items {
			one := schema.NewNormalizedEvent()
			one.Set(c.Field, item)
			if c.eval(one) {
				return true
			}
		}
		return false
	}

	switch c.Op {
	case OpEquals:
		return compareStrings(v.String(), c.Value, c.CaseSensitive)
	case OpContains:
		return containsString(v.String(), c.Value, c.CaseSensitive)
	case OpMatches:
		for _, candidate := range c.Values {
			if containsString(v.String(), candidate, c.CaseSensitive) {
				return true
			}
		}
		return false
	case OpIn:
		for _, candidate := range c.Values {
			if compareStrings(v.String(), candidate, c.CaseSensitive) {
				return true
			}
		}
		return false
	case OpRange:
		f, ok := v.Float()
		if !ok {
			return false
		}
		return f >= c.RangeMin && f <= c.RangeMax
	default:
		return false
	}
}

func compareStrings(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func containsString(haystack, needle string, caseSensitive bool) bool {
	if !caseSensitive {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}
	return strings.Contains(haystack, needle)
}

// ActionKind is the closed vocabulary of rule actions.
type ActionKind string

const (
	ActionAddField     ActionKind = "add_field"
	ActionSetField     ActionKind = "set_field"
	ActionAddTag       ActionKind = "add_tag"
	ActionLookup       ActionKind = "lookup"
	ActionGeoIP        ActionKind = "geoip"
	ActionThreatIntel  ActionKind = "threat_intel"
	ActionCalculate    ActionKind = "calculate" // reserved for future formula-driven actions
)

// Action is what a Rule does once its conditions match.
type Action struct {
	Kind       ActionKind
	Field      string
	Value      string
	SourceField string // field the lookup/geoip/threat_intel key comes from
	Table      string // named lookup table for ActionLookup
}

// Rule is one priority-ordered enrichment rule.
type Rule struct {
	Name       string
	Priority   int
	Conditions []Condition
	Actions    []Action
}

func (r Rule) matches(evt *schema.NormalizedEvent) bool {
	for _, c := range r.Conditions {
		if !c.eval(evt) {
			return false
		}
	}
	return true
}

// LookupTable is a named in-memory key/value table with a cache timeout
// advisory (actual TTL eviction happens in the backing RedisLookupCache for
// remote tables; in-memory tables here are process-lifetime static data
// such as a hostname-to-business-unit map).
type LookupTable struct {
	Name         string
	Entries      map[string]string
	CacheTimeout time.Duration
}

// GeoIPLookup resolves an IP to a best-effort location string.
type GeoIPLookup interface {
	Lookup(ctx context.Context, ip string) (string, error)
}

// ThreatIntelLookup resolves an indicator to a match description, or ""
// with ok=false when the indicator is not known.
type ThreatIntelLookup interface {
	Lookup(ctx context.Context, indicator string) (match string, ok bool, err error)
}

// Engine evaluates rules against a NormalizedEvent and applies their actions.
type Engine struct {
	rules     []Rule
	tables    map[string]LookupTable
	geoip     GeoIPLookup
	threat    ThreatIntelLookup
	log       *slog.Logger
}

// NewEngine builds an Engine with rules sorted by descending priority.
func NewEngine(rules []Rule, tables []LookupTable, geoip GeoIPLookup, threat ThreatIntelLookup) *Engine {
	sorted := append([]Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	tableIndex := make(map[string]LookupTable, len(tables))
	for _, tbl := range tables {
		tableIndex[tbl.Name] = tbl
	}

	return &Engine{
		rules:  sorted,
		tables: tableIndex,
		geoip:  geoip,
		threat: threat,
		log:    slog.Default().With("component", "enrich"),
	}
}

// Apply runs every matching rule's actions against evt, stamping
// securewatch.enrichment.timestamp and securewatch.enrichment.rules_applied.
// A single rule's action error is logged and skipped; it never aborts the
// remaining rules (spec.md §4.13: swallow-and-log per-rule errors).
func (e *Engine) Apply(ctx context.Context, evt *schema.NormalizedEvent) {
	var applied []string
	for _, r := range e.rules {
		if !r.matches(evt) {
			continue
		}
		for _, a := range r.Actions {
			if err := e.applyAction(ctx, evt, a); err != nil {
				e.log.Warn("enrichment action failed", "rule", r.Name, "action", a.Kind, "err", err)
				continue
			}
		}
		applied = append(applied, r.Name)
	}

	evt.Set("securewatch.enrichment.timestamp", schema.String(time.Now().UTC().Format(time.RFC3339Nano)))
	arr := make([]schema.Value, len(applied))
	for i, name := range applied {
		arr[i] = schema.String(name)
	}
	evt.Set("securewatch.enrichment.rules_applied", schema.Array(arr...))

	evt.Set("securewatch.risk_score", schema.Float(CalculateRiskScore(evt)))
}

func (e *Engine) applyAction(ctx context.Context, evt *schema.NormalizedEvent, a Action) error {
	switch a.Kind {
	case ActionAddField, ActionSetField:
		evt.Set(a.Field, schema.String(a.Value))
		return nil
	case ActionAddTag:
		evt.AppendRelated("tags", schema.String(a.Value))
		return nil
	case ActionLookup:
		tbl, ok := e.tables[a.Table]
		if !ok {
			return fmt.Errorf("enrich: unknown lookup table %q", a.Table)
		}
		key, _ := evt.Get(a.SourceField)
		if v, found := tbl.Entries[key.String()]; found {
			evt.Set(a.Field, schema.String(v))
		}
		return nil
	case ActionGeoIP:
		if e.geoip == nil {
			return fmt.Errorf("enrich: no geoip backend configured")
		}
		key, _ := evt.Get(a.SourceField)
		loc, err := e.geoip.Lookup(ctx, key.String())
		if err != nil {
			return err
		}
		evt.Set(a.Field, schema.String(loc))
		return nil
	case ActionThreatIntel:
		if e.threat == nil {
			return fmt.Errorf("enrich: no threat intel backend configured")
		}
		key, _ := evt.Get(a.SourceField)
		match, found, err := e.threat.Lookup(ctx, key.String())
		if err != nil {
			return err
		}
		if found {
			evt.Set(a.Field, schema.String(match))
		}
		return nil
	default:
		return fmt.Errorf("enrich: unsupported action %q", a.Kind)
	}
}

// CalculateRiskScore implements the fixed formula spec.md §4.13 names:
// base severity contribution plus fixed bumps for authentication-category
// failures, admin/IAM involvement, and non-private source IPs.
func CalculateRiskScore(evt *schema.NormalizedEvent) float64 {
	score := 0.0

	if sev, ok := evt.Get("event.severity"); ok {
		if n, ok := sev.Int(); ok {
			score += float64(n) * 0.4
		} else if f, ok := sev.Float(); ok {
			score += f * 0.4
		}
	}

	category, _ := evt.Get("event.category")
	outcome, _ := evt.Get("event.outcome")
	if categoryContains(category, "authentication") && outcome.String() == "failure" {
		score += 30
	}

	if categoryContains(category, "iam") || fieldContains(evt, "user.roles", "admin") {
		score += 20
	}

	if ip, ok := evt.Get("source.ip"); ok && !isPrivateOrLocal(ip.String()) {
		score += 15
	}

	return score
}

func categoryContains(v schema.Value, want string) bool {
	if arr, ok := v.Array(); ok {
		for _, item := range arr {
			if strings.EqualFold(item.String(), want) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(v.String(), want)
}

func fieldContains(evt *schema.NormalizedEvent, field, want string) bool {
	v, ok := evt.Get(field)
	if !ok {
		return false
	}
	return categoryContains(v, want)
}

func isPrivateOrLocal(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return true // unparseable: don't penalize/flag, treat as non-routable
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
		return true
	}
	// RFC 4193 unique local addresses (fc00::/7) for IPv6.
	if ip.To4() == nil && len(ip) == net.IPv6len && ip[0]&0xfe == 0xfc {
		return true
	}
	return false
}
