package models

import "time"

// DateLayout is the calendar date format used across items and milestones.
const DateLayout = "2006-01-02"

// NewsItem is a normalized candidate produced by the collector.
type NewsItem struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Link    string   `json:"link"`
	Date    string   `json:"date"`
	Source  string   `json:"source"`
	Authors []string `json:"authors,omitempty"`

	// PublishedAt is zero for sources without per-item timestamps.
	PublishedAt time.Time `json:"-"`
}

// Valid reports whether the item carries the fields every consumer relies on.
func (n NewsItem) Valid() bool {
	return n.Title != "" && n.Link != ""
}

// MilestoneDocument is the shape indexed into Elasticsearch.
type MilestoneDocument struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Detail     string    `json:"detail"`
	Date       string    `json:"date"`
	Link       string    `json:"link"`
	Importance string    `json:"importance"`
	Source     string    `json:"source,omitempty"`
	Keywords   []string  `json:"keywords"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// MilestoneEvent is the message published for every milestone added to the
// timeline.
type MilestoneEvent struct {
	RunID     string    `json:"run_id"`
	Milestone Milestone `json:"milestone"`
	AddedAt   time.Time `json:"added_at"`
}
