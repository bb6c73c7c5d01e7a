package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/securewatch/ingest-core/internal/schema"
)

func newEvent() *schema.NormalizedEvent {
	evt := schema.NewNormalizedEvent()
	evt.Set("event.severity", schema.Int(75))
	evt.AppendRelated("event.category", schema.String("authentication"))
	evt.Set("event.outcome", schema.String("failure"))
	evt.Set("source.ip", schema.String("203.0.113.5"))
	return evt
}

func TestRuleMatchAddsField(t *testing.T) {
	rules := []Rule{
		{
			Name:     "tag-failed-auth",
			Priority: 10,
			Conditions: []Condition{
				{Field: "event.outcome", Op: OpEquals, Value: "failure"},
			},
			Actions: []Action{
				{Kind: ActionAddField, Field: "securewatch.flag", Value: "failed_auth"},
			},
		},
	}
	engine := NewEngine(rules, nil, nil, nil)
	evt := newEvent()
	engine.Apply(context.Background(), evt)

	v, ok := evt.Get("securewatch.flag")
	assert.True(t, ok)
	assert.Equal(t, "failed_auth", v.String())
}

func TestRiskScoreFormula(t *testing.T) {
	evt := newEvent()
	score := CalculateRiskScore(evt)
	// base: 75*0.4=30, auth+failure: +30, non-private ip: +15 = 75
	assert.InDelta(t, 75.0, score, 0.001)
}

func TestRiskScorePrivateIPNotPenalized(t *testing.T) {
	evt := newEvent()
	evt.Set("source.ip", schema.String("10.0.0.5"))
	score := CalculateRiskScore(evt)
	assert.InDelta(t, 60.0, score, 0.001)
}

func TestLookupTableAction(t *testing.T) {
	evt := schema.NewNormalizedEvent()
	evt.Set("host.name", schema.String("srv-01"))
	rules := []Rule{
		{
			Name:       "tag-business-unit",
			Priority:   5,
			Conditions: []Condition{{Field: "host.name", Op: OpExists}},
			Actions:    []Action{{Kind: ActionLookup, Field: "host.business_unit", SourceField: "host.name", Table: "hosts"}},
		},
	}
	tables := []LookupTable{{Name: "hosts", Entries: map[string]string{"srv-01": "finance"}}}
	engine := NewEngine(rules, tables, nil, nil)
	engine.Apply(context.Background(), evt)

	v, ok := evt.Get("host.business_unit")
	assert.True(t, ok)
	assert.Equal(t, "finance", v.String())
}

func TestRulesAppliedStamped(t *testing.T) {
	rules := []Rule{{Name: "always", Priority: 1, Conditions: nil, Actions: []Action{{Kind: ActionAddTag, Value: "x"}}}}
	engine := NewEngine(rules, nil, nil, nil)
	evt := schema.NewNormalizedEvent()
	engine.Apply(context.Background(), evt)

	applied, ok := evt.Get("securewatch.enrichment.rules_applied")
	assert.True(t, ok)
	arr, _ := applied.Array()
	assert.Len(t, arr, 1)
	assert.Equal(t, "always", arr[0].String())
}
