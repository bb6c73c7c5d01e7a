package refparsers

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/securewatch/ingest-core/internal/normalize"
	"github.com/securewatch/ingest-core/internal/parser"
	"github.com/securewatch/ingest-core/internal/schema"
)

// windowsCSVHeader is the fixed column order this reference parser expects:
// a common flattening of Windows Event Log XML into CSV for bulk export.
var windowsCSVHeader = []string{"TimeCreated", "EventID", "Level", "Computer", "Channel", "Message"}

// WindowsEventCSVParser handles the CSV export shape common to Windows
// Event Log forwarding pipelines.
type WindowsEventCSVParser struct{}

func NewWindowsEventCSVParser() *WindowsEventCSVParser { return &WindowsEventCSVParser{} }

func (p *WindowsEventCSVParser) Descriptor() schema.ParserDescriptor {
	return schema.ParserDescriptor{
		ID: "windows-evtx-csv", Name: "Windows Event Log (CSV export)", Vendor: "securewatch",
		LogSource: "windows-eventlog", Version: "1.0.0", Format: schema.FormatCSV,
		Category: "host", Priority: 60, Enabled: true,
	}
}

func (p *WindowsEventCSVParser) columns(raw schema.RawRecord) ([]string, error) {
	r := csv.NewReader(strings.NewReader(string(raw.Payload)))
	r.FieldsPerRecord = len(windowsCSVHeader)
	return r.Read()
}

func (p *WindowsEventCSVParser) Validate(raw schema.RawRecord) parser.ValidationResult {
	cols, err := p.columns(raw)
	if err != nil {
		return parser.ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	if len(cols) != len(windowsCSVHeader) {
		return parser.ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("expected %d columns, got %d", len(windowsCSVHeader), len(cols))}}
	}
	return parser.ValidationResult{Valid: true}
}

func (p *WindowsEventCSVParser) Parse(raw schema.RawRecord) (*schema.ParsedEvent, error) {
	cols, err := p.columns(raw)
	if err != nil {
		return nil, fmt.Errorf("windowscsv: %w", err)
	}
	if len(cols) != len(windowsCSVHeader) {
		return nil, fmt.Errorf("windowscsv: column count mismatch")
	}

	timeCreated, eventID, level, computer, channel, message := cols[0], cols[1], cols[2], cols[3], cols[4], cols[5]

	evt := schema.NewParsedEvent()
	evt.Source = "windows-eventlog"
	evt.Category = normalize.ClassifyCategory(channel + " " + message)
	evt.Action = "event_id:" + eventID
	evt.Outcome = schema.OutcomeUnknown
	evt.Severity = normalize.SeverityFromString(level)
	evt.Raw = raw.Payload
	evt.Device = &schema.DeviceInfo{Hostname: computer}
	evt.Custom.Set("winlog.event_id", schema.String(eventID))
	evt.Custom.Set("winlog.channel", schema.String(channel))
	evt.Custom.Set("winlog.message", schema.String(message))

	if id, err := strconv.Atoi(eventID); err == nil {
		// Common authentication event IDs (4624 success, 4625 failure) set
		// a concrete outcome; every other ID is left unknown.
		switch id {
		case 4624:
			evt.Outcome = schema.OutcomeSuccess
			evt.Category = "authentication"
		case 4625:
			evt.Outcome = schema.OutcomeFailure
			evt.Category = "authentication"
		}
	}

	if ts, ok := normalize.ParseTimestamp(timeCreated, raw.ArrivedAt); ok {
		evt.Timestamp = ts
		evt.HasTimestamp = true
	} else {
		evt.Timestamp = raw.ArrivedAt
	}

	return evt, nil
}

func (p *WindowsEventCSVParser) Normalize(evt *schema.ParsedEvent) (*schema.NormalizedEvent, error) {
	out := schema.NewNormalizedEvent()
	out.SetTimestamp(evt.Timestamp)
	out.Set("event.kind", schema.String("event"))
	out.AppendRelated("event.category", schema.String(evt.Category))
	out.Set("event.outcome", schema.String(string(evt.Outcome)))
	out.Set("event.action", schema.String(evt.Action))
	out.SetSeverity(evt.Severity)

	if evt.Device != nil {
		out.Set("host.hostname", schema.String(evt.Device.Hostname))
		out.AppendRelated("related.hosts", schema.String(evt.Device.Hostname))
	}
	if eid, ok := evt.Custom.Get("winlog.event_id"); ok {
		out.Set("winlog.event_id", eid)
	}
	return out, nil
}
