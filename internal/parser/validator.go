package parser

import (
	"fmt"
	"regexp"

	"github.com/securewatch/ingest-core/internal/schema"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,63}$`)

// ValidateDescriptor checks a descriptor's well-formedness: a lowercase,
// dash/dot/underscore id of sane length, a non-empty name, and a format
// drawn from the closed format vocabulary (component C11). The category is
// not checked.
func ValidateDescriptor(d schema.ParserDescriptor) ValidationResult {
	res := ValidationResult{Valid: true}
	if !idPattern.MatchString(d.ID) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("invalid parser id %q", d.ID))
	}
	if d.Name == "" {
		res.Valid = false
		res.Errors = append(res.Errors, "missing parser name")
	}
	if err := ValidateFormat(string(d.Format)); err != nil {
		res.Valid = false
		res.Errors = append(res.Errors, err.Error())
	}
	return res
}

var validFormats = map[string]bool{
	"syslog": true, "json": true, "csv": true, "xml": true, "evtx": true, "custom": true,
}

// ValidateFormat checks format against the closed vocabulary spec.md §3 names.
func ValidateFormat(format string) error {
	if !validFormats[format] {
		return fmt.Errorf("parser: unrecognized format %q", format)
	}
	return nil
}

// RequireFields checks that every name in required is present and non-empty
// in got, returning a ValidationResult rather than an error so callers can
// aggregate warnings alongside hard failures.
func RequireFields(got map[string]string, required []string) ValidationResult {
	res := ValidationResult{Valid: true}
	for _, name := range required {
		v, ok := got[name]
		if !ok || v == "" {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("missing required field %q", name))
		}
	}
	return res
}
