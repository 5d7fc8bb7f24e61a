// Package timeline owns the persisted milestone document: an object whose
// "events" array lists milestones newest first.
package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

const eventsKey = "events"

// Timeline is the in-memory form of the document. Top-level keys other than
// "events" are kept verbatim in Extra.
type Timeline struct {
	Events []models.Milestone
	Extra  map[string]json.RawMessage
}

var errNoEvents = errors.New(`document has no "events" array`)

// UnmarshalJSON requires an object with an "events" array.
func (t *Timeline) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	raw, ok := fields[eventsKey]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return errNoEvents
	}

	var events []models.Milestone
	if err := json.Unmarshal(raw, &events); err != nil {
		return err
	}

	delete(fields, eventsKey)
	t.Events = events
	t.Extra = nil
	if len(fields) > 0 {
		t.Extra = fields
	}
	return nil
}

// MarshalJSON writes "events" first, then any preserved keys sorted by name.
func (t Timeline) MarshalJSON() ([]byte, error) {
	events := t.Events
	if events == nil {
		events = []models.Milestone{}
	}

	var buf bytes.Buffer
	buf.WriteString(`{"events":`)
	raw, err := encode(events)
	if err != nil {
		return nil, err
	}
	buf.Write(raw)

	keys := make([]string, 0, len(t.Extra))
	for key := range t.Extra {
		if key != eventsKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		k, err := encode(key)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(t.Extra[key])
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// IsDuplicate reports whether any stored milestone shares the candidate's
// name or its link.
func IsDuplicate(t *Timeline, candidate models.Milestone) bool {
	for _, event := range t.Events {
		if event.Name == candidate.Name || event.Link == candidate.Link {
			return true
		}
	}
	return false
}

// AddMilestones inserts each non-duplicate candidate at the head of the
// timeline, in input order, checking every candidate against the timeline as
// updated so far. It returns the updated timeline and the number added; the
// added milestones are Events[:added], newest first. The input timeline is
// not modified.
func AddMilestones(t *Timeline, candidates []models.Milestone) (*Timeline, int) {
	updated := &Timeline{
		Events: make([]models.Milestone, len(t.Events), len(t.Events)+len(candidates)),
		Extra:  t.Extra,
	}
	copy(updated.Events, t.Events)

	added := 0
	for _, candidate := range candidates {
		if IsDuplicate(updated, candidate) {
			continue
		}
		updated.Events = append(updated.Events, models.Milestone{})
		copy(updated.Events[1:], updated.Events[:len(updated.Events)-1])
		updated.Events[0] = candidate
		added++
	}

	return updated, added
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
