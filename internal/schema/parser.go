package schema

import "time"

// Format is the closed vocabulary of wire formats a parser declares.
type Format string

const (
	FormatSyslog Format = "syslog"
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatXML    Format = "xml"
	FormatEVTX   Format = "evtx"
	FormatCustom Format = "custom"
)

// ParserDescriptor is the metadata a parser registers alongside its
// validate/parse/normalize implementation (spec.md §3/§4, C10/C11).
type ParserDescriptor struct {
	ID        string
	Name      string
	Vendor    string
	LogSource string
	Version   string
	Format    Format
	Category  string
	Priority  int
	Enabled   bool
}

// BufferedItem is the unit C1/C2/C8 move through the ingestion buffer.
type BufferedItem struct {
	ID          string
	Priority    Priority
	EnqueuedAt  time.Time
	Payload     []byte
	AttemptCount int
}
