package protocol

import (
	"bytes"
	"encoding/json"
)

// DocumentURI identifies a document mirrored into the engine.
type DocumentURI string

// Position in a text document expressed as zero-based line and character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document expressed as start and end positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Interval is a [Start, End) character-offset range that needs recomputation.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of characters covered by the interval.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// DiagnosticSeverity represents the severity of a diagnostic.
type DiagnosticSeverity int

const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// String returns a human-readable severity name.
func (s DiagnosticSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Diagnostic is a problem reported by the engine for a document region.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Message  string             `json:"message"`
	Severity DiagnosticSeverity `json:"severity"`
	Code     string             `json:"code,omitempty"`
}

// Classification is a classified span inside a colorization range.
// Start is an absolute character offset.
type Classification struct {
	Kind   int `json:"kind"`
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the exclusive end offset of the classification.
func (c Classification) End() int {
	return c.Start + c.Length
}

// ColorizationRange is the classification result for one recomputed region.
type ColorizationRange struct {
	Classifications []Classification `json:"classifications"`
	AbsoluteStart   int              `json:"absoluteStart"`
	AbsoluteEnd     int              `json:"absoluteEnd"`
}

// CompletionItem is a single completion candidate.
type CompletionItem struct {
	Label      string `json:"label"`
	Kind       int    `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
	InsertText string `json:"insertText,omitempty"`
	SortText   string `json:"sortText,omitempty"`
}

// CompletionList is the engine's answer to a completion request.
type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// Schema is the catalog object the engine resolves symbols against.
// Its structure is owned by the engine; this layer only stores and
// forwards it.
type Schema struct {
	Raw json.RawMessage
}

// NewSchema wraps raw JSON as a Schema.
func NewSchema(raw []byte) Schema {
	return Schema{Raw: append(json.RawMessage(nil), raw...)}
}

// IsZero reports whether the schema carries no data.
func (s Schema) IsZero() bool {
	trimmed := bytes.TrimSpace(s.Raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Equal reports whether two schemas carry byte-identical payloads after
// whitespace trimming.
func (s Schema) Equal(other Schema) bool {
	return bytes.Equal(bytes.TrimSpace(s.Raw), bytes.TrimSpace(other.Raw))
}

// MarshalJSON implements json.Marshaler.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte("null"), nil
	}
	return s.Raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Schema) UnmarshalJSON(data []byte) error {
	s.Raw = append(s.Raw[:0], data...)
	return nil
}
