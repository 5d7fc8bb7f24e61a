package collector

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/config"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// BlogFeedSource reads an RSS or Atom feed published by a research lab.
type BlogFeedSource struct {
	name   string
	url    string
	client *http.Client
	parser *gofeed.Parser
}

// NewBlogFeedSource returns a source for one configured feed.
func NewBlogFeedSource(feed config.Feed, client *http.Client) *BlogFeedSource {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &BlogFeedSource{name: feed.Name, url: feed.URL, client: client, parser: gofeed.NewParser()}
}

func (s *BlogFeedSource) Name() string { return s.name }

func (s *BlogFeedSource) Fetch(ctx context.Context) ([]models.NewsItem, error) {
	resp, err := get(ctx, s.client, s.url, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]models.NewsItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		body := entry.Description
		if body == "" {
			body = entry.Content
		}
		var authors []string
		for _, p := range entry.Authors {
			authors = append(authors, p.Name)
		}
		items = append(items, models.NewsItem{
			Title:       entry.Title,
			Summary:     htmlToText(body),
			Link:        entry.Link,
			Source:      s.name,
			Authors:     authors,
			PublishedAt: entryTime(entry),
		})
	}
	return items, nil
}

// htmlToText extracts readable text from a feed body. Bodies readability
// cannot make sense of fall back to tag stripping.
func htmlToText(body string) string {
	if !strings.Contains(body, "<") {
		return body
	}
	article, err := readability.FromReader(strings.NewReader(body), nil)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.TextContent
	}
	return htmlTag.ReplaceAllString(body, " ")
}

// BuildSources assembles the default source list.
func BuildSources(cfg config.Agent, client *http.Client) []Source {
	sources := []Source{
		NewArxivSource(cfg.ArxivURL, client),
		NewHuggingFaceSource(cfg.HuggingFaceURL, cfg.HuggingFaceTop, client),
	}
	for _, feed := range cfg.BlogFeeds {
		sources = append(sources, NewBlogFeedSource(feed, client))
	}
	return sources
}
