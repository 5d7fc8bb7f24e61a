package processing

import (
	"time"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

// BuildMilestoneDocument derives the search document for a timeline entry.
func BuildMilestoneDocument(m models.Milestone, keywordLimit, minLen int, now time.Time) models.MilestoneDocument {
	return models.MilestoneDocument{
		ID:         BuildDocumentID(m.Link),
		Name:       m.Name,
		Detail:     m.Detail,
		Date:       m.Date,
		Link:       m.Link,
		Importance: m.Importance,
		Source:     m.ExtraString("source"),
		Keywords:   ExtractKeywords(m.Name+" "+m.Detail, keywordLimit, minLen),
		IndexedAt:  now.UTC(),
	}
}
