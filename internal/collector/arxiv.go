package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

// DefaultArxivURL queries the newest AI, ML, vision and language submissions.
const DefaultArxivURL = "http://export.arxiv.org/api/query?search_query=cat:cs.AI+OR+cat:cs.LG+OR+cat:cs.CV+OR+cat:cs.CL&sortBy=submittedDate&sortOrder=descending&max_results=20"

// ArxivSource reads the arXiv Atom API.
type ArxivSource struct {
	url    string
	client *http.Client
	parser *gofeed.Parser
}

// NewArxivSource returns a source for the given query URL.
func NewArxivSource(url string, client *http.Client) *ArxivSource {
	if url == "" {
		url = DefaultArxivURL
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &ArxivSource{url: url, client: client, parser: gofeed.NewParser()}
}

func (s *ArxivSource) Name() string { return "ArXiv" }

func (s *ArxivSource) Fetch(ctx context.Context) ([]models.NewsItem, error) {
	resp, err := get(ctx, s.client, s.url, "application/atom+xml")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse atom: %w", err)
	}

	items := make([]models.NewsItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		link := entry.Link
		if link == "" {
			link = entry.GUID
		}
		items = append(items, models.NewsItem{
			Title:       entry.Title,
			Summary:     entry.Description,
			Link:        link,
			Source:      s.Name(),
			Authors:     lo.Map(entry.Authors, func(p *gofeed.Person, _ int) string { return strings.TrimSpace(p.Name) }),
			PublishedAt: entryTime(entry),
		})
	}
	return items, nil
}

func entryTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed
	default:
		return time.Time{}
	}
}
