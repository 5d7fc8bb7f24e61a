package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Importance ratings used by the timeline, most significant first.
const (
	ImportancePivotal = "pivotal"
	ImportanceMajor   = "major"
	ImportanceNotable = "notable"
	ImportanceMinor   = "minor"
)

// NormalizeImportance maps an evaluator rating onto the timeline scale.
func NormalizeImportance(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ImportancePivotal, "critical", "breakthrough":
		return ImportancePivotal
	case ImportanceMajor, "high":
		return ImportanceMajor
	case ImportanceMinor, "low":
		return ImportanceMinor
	default:
		return ImportanceNotable
	}
}

// Milestone is a significant development stored in the timeline. Keys other
// than the known ones are kept verbatim in Extra.
type Milestone struct {
	Name       string
	Date       string
	Detail     string
	Link       string
	Importance string
	Extra      map[string]json.RawMessage
}

var milestoneKeys = []string{"name", "date", "detail", "link", "importance"}

func (m *Milestone) field(key string) *string {
	switch key {
	case "name":
		return &m.Name
	case "date":
		return &m.Date
	case "detail":
		return &m.Detail
	case "link":
		return &m.Link
	case "importance":
		return &m.Importance
	}
	return nil
}

// Valid reports whether the milestone has the name and link every stored
// entry needs.
func (m Milestone) Valid() bool {
	return strings.TrimSpace(m.Name) != "" && strings.TrimSpace(m.Link) != ""
}

// SetExtra attaches an additional field, replacing any previous value.
func (m *Milestone) SetExtra(key string, value any) error {
	if m.field(key) != nil {
		return fmt.Errorf("milestone: %q is not an extra field", key)
	}
	raw, err := encodeJSON(value)
	if err != nil {
		return fmt.Errorf("milestone: encode %s: %w", key, err)
	}
	if m.Extra == nil {
		m.Extra = make(map[string]json.RawMessage)
	}
	m.Extra[key] = raw
	return nil
}

// ExtraString returns an extra field decoded as a string, or "".
func (m Milestone) ExtraString(key string) string {
	raw, ok := m.Extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// MarshalJSON writes known keys in a fixed order followed by extras sorted by key.
// Every known key is written, empty or not, since readers index date and
// detail unconditionally.
func (m Milestone) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(key string, raw []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := encodeJSON(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
	}

	for _, key := range milestoneKeys {
		if _, shadowed := m.Extra[key]; shadowed {
			continue
		}
		raw, err := encodeJSON(*m.field(key))
		if err != nil {
			return nil, err
		}
		writeKey(key, raw)
	}

	keys := make([]string, 0, len(m.Extra))
	for key := range m.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		writeKey(key, m.Extra[key])
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts any object. Known keys holding null or non-string
// values are kept in Extra so they survive a save unchanged.
func (m *Milestone) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*m = Milestone{}
	for key, raw := range fields {
		if dst := m.field(key); dst != nil && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if err := json.Unmarshal(raw, dst); err == nil {
				continue
			}
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[key] = append(json.RawMessage(nil), raw...)
	}
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
