package catalog

import (
	"encoding/json"
	"fmt"
)

// SearchDoc is one row from the paged advanced-search endpoint.
type SearchDoc struct {
	Identifier string          `json:"identifier"`
	Title      FlexString      `json:"title"`
	Year       json.RawMessage `json:"year,omitempty"`
	Collection FlexString      `json:"collection"`
	Format     FlexString      `json:"format"`
}

// SearchPage is one batch of search results plus the server-reported total.
type SearchPage struct {
	Docs     []SearchDoc
	NumFound int
	Start    int
}

// FileInfo describes one file attached to a catalog item. Size arrives as a
// string from the API and may be missing or non-numeric.
type FileInfo struct {
	Name   string     `json:"name"`
	Format string     `json:"format"`
	Size   FlexString `json:"size"`
}

// ItemMetadata is the per-identifier metadata document.
type ItemMetadata struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
	Files    []FileInfo                 `json:"files"`

	// Raw preserves the response body verbatim for the audit blob.
	Raw json.RawMessage `json:"-"`
}

// Field decodes one metadata field as a scalar string, joining list values.
func (m *ItemMetadata) Field(key string) string {
	raw, ok := m.Metadata[key]
	if !ok {
		return ""
	}
	var f FlexString
	if err := json.Unmarshal(raw, &f); err != nil {
		return ""
	}
	return f.String()
}

// YearField decodes the year metadata field, or nil when absent or
// non-numeric.
func (m *ItemMetadata) YearField() *int {
	s := m.Field("year")
	if s == "" {
		return nil
	}
	var year int
	if _, err := fmt.Sscanf(s, "%d", &year); err != nil {
		return nil
	}
	return &year
}

// FlexString absorbs fields the API serves as either a string or a list of
// strings. Lists are joined with "; " so downstream columns stay scalar.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = FlexString(joinSemicolon(list))
		return nil
	}
	// Numbers and other scalars are kept as their literal text.
	*f = FlexString(trimQuotes(string(data)))
	return nil
}

func (f FlexString) String() string { return string(f) }

func joinSemicolon(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += "; "
		}
		out += v
	}
	return out
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
