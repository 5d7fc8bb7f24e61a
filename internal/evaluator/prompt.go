package evaluator

import (
	"fmt"
	"strings"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

const systemPrompt = `You curate a timeline of milestones in machine learning and the road toward machine consciousness.
A milestone is a development a historian would still cite years from now: a new capability, a landmark model, a result that changes what the field believes is possible.
Incremental benchmark gains, surveys, tooling releases and routine papers are not milestones.
Respond STRICTLY with one JSON object and nothing else.`

const verdictSchema = `{
  "is_milestone": true or false,
  "name": "short timeline title",
  "detail": "one or two sentences on why it matters",
  "importance": "pivotal | major | notable | minor",
  "date": "YYYY-MM-DD"
}`

func userPrompt(item models.NewsItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	if item.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", item.Source)
	}
	if item.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", item.Date)
	}
	if len(item.Authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(item.Authors, ", "))
	}
	fmt.Fprintf(&b, "Link: %s\n", item.Link)
	fmt.Fprintf(&b, "Summary: %s\n\n", item.Summary)
	b.WriteString("Is this a milestone? Answer with JSON using this schema:\n")
	b.WriteString(verdictSchema)
	return b.String()
}
