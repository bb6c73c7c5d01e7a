package refparsers

import (
	"encoding/json"
	"fmt"

	"github.com/securewatch/ingest-core/internal/extract"
	"github.com/securewatch/ingest-core/internal/normalize"
	"github.com/securewatch/ingest-core/internal/parser"
	"github.com/securewatch/ingest-core/internal/schema"
)

// genericCloudEventEnvelope covers the handful of fields CloudTrail-style
// JSON audit logs commonly share: an event name/type, an actor identity, a
// source IP, and a timestamp under one of a few common keys.
type genericCloudEventEnvelope struct {
	EventName   string          `json:"eventName"`
	EventType   string          `json:"eventType"`
	EventTime   string          `json:"eventTime"`
	Timestamp   string          `json:"timestamp"`
	SourceIP    string          `json:"sourceIPAddress"`
	UserIdentity json.RawMessage `json:"userIdentity"`
	Outcome     string          `json:"outcome"`
	Severity    string          `json:"severity"`
	ErrorCode   string          `json:"errorCode"`
}

// GenericJSONParser handles arbitrary CloudTrail-shaped JSON audit events;
// it is the lowest-priority, most permissive parser in this repo's
// reference set, used once format-specific parsers have declined a record.
type GenericJSONParser struct{}

func NewGenericJSONParser() *GenericJSONParser { return &GenericJSONParser{} }

func (p *GenericJSONParser) Descriptor() schema.ParserDescriptor {
	return schema.ParserDescriptor{
		ID: "generic-json-audit", Name: "Generic JSON Audit Event", Vendor: "securewatch",
		LogSource: "cloud-audit", Version: "1.0.0", Format: schema.FormatJSON,
		Category: "other", Priority: 20, Enabled: true,
	}
}

func (p *GenericJSONParser) Validate(raw schema.RawRecord) parser.ValidationResult {
	if extract.FindJSONStart(raw.Payload) < 0 {
		return parser.ValidationResult{Valid: false, Errors: []string{"payload is not JSON"}}
	}
	return parser.ValidationResult{Valid: true}
}

func (p *GenericJSONParser) Parse(raw schema.RawRecord) (*schema.ParsedEvent, error) {
	start := extract.FindJSONStart(raw.Payload)
	if start < 0 {
		return nil, fmt.Errorf("genericjson: no JSON body found")
	}

	var env genericCloudEventEnvelope
	if err := json.Unmarshal(raw.Payload[start:], &env); err != nil {
		return nil, fmt.Errorf("genericjson: %w", err)
	}

	evt := schema.NewParsedEvent()
	evt.Source = "cloud-audit"
	evt.Raw = raw.Payload

	action := env.EventName
	if action == "" {
		action = env.EventType
	}
	evt.Action = action
	evt.Category = normalize.ClassifyCategory(action)

	switch env.Outcome {
	case "success", "failure":
		evt.Outcome = schema.Outcome(env.Outcome)
	default:
		evt.Outcome = schema.OutcomeUnknown
	}
	if env.ErrorCode != "" {
		evt.Outcome = schema.OutcomeFailure
	}
	evt.Severity = normalize.SeverityFromString(env.Severity)

	if env.SourceIP != "" {
		evt.Network = &schema.NetworkInfo{SourceIP: env.SourceIP}
	}

	tsRaw := env.EventTime
	if tsRaw == "" {
		tsRaw = env.Timestamp
	}
	if ts, ok := normalize.ParseTimestamp(tsRaw, raw.ArrivedAt); ok {
		evt.Timestamp = ts
		evt.HasTimestamp = true
	} else {
		evt.Timestamp = raw.ArrivedAt
	}

	if len(env.UserIdentity) > 0 {
		evt.Custom.Set("cloud.user_identity_raw", schema.String(string(env.UserIdentity)))
	}

	return evt, nil
}

func (p *GenericJSONParser) Normalize(evt *schema.ParsedEvent) (*schema.NormalizedEvent, error) {
	out := schema.NewNormalizedEvent()
	out.SetTimestamp(evt.Timestamp)
	out.Set("event.kind", schema.String("event"))
	out.AppendRelated("event.category", schema.String(evt.Category))
	out.AppendRelated("event.type", schema.String(string(evt.Outcome)))
	out.Set("event.outcome", schema.String(string(evt.Outcome)))
	out.Set("event.action", schema.String(evt.Action))
	out.SetSeverity(evt.Severity)

	if evt.Network != nil && evt.Network.SourceIP != "" {
		out.Set("source.ip", schema.String(evt.Network.SourceIP))
		out.AppendRelated("related.ip", schema.String(evt.Network.SourceIP))
	}
	if raw, ok := evt.Custom.Get("cloud.user_identity_raw"); ok {
		var identity struct {
			UserName string `json:"userName"`
		}
		if json.Unmarshal([]byte(raw.String()), &identity) == nil && identity.UserName != "" {
			out.Set("user.name", schema.String(identity.UserName))
			out.AppendRelated("related.user", schema.String(identity.UserName))
		}
	}
	return out, nil
}
