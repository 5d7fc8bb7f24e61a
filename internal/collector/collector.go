// Package collector fetches candidate ML news from external feeds and
// normalizes them into models.NewsItem records.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/dedupe"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/processing"
)

// DefaultSummaryLen bounds the summary handed to the evaluator.
const DefaultSummaryLen = 500

// Source is one upstream feed. Items carry PublishedAt when the feed exposes
// per-item timestamps and leave it zero otherwise.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.NewsItem, error)
}

// FetchError is a single source failure. It never aborts the aggregation.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SourceResult is the outcome of one source within an aggregation.
type SourceResult struct {
	Source  string
	Fetched int
	Kept    int
	Err     *FetchError
}

// Report is the outcome of Aggregate.
type Report struct {
	Items   []models.NewsItem
	Results []SourceResult
}

// Failures returns the sources that failed.
func (r Report) Failures() []*FetchError {
	failed := lo.Filter(r.Results, func(res SourceResult, _ int) bool { return res.Err != nil })
	return lo.Map(failed, func(res SourceResult, _ int) *FetchError { return res.Err })
}

// Collector runs every configured source in order.
type Collector struct {
	sources    []Source
	summaryLen int
	log        *slog.Logger
	now        func() time.Time
}

// New builds a collector over the given sources.
func New(log *slog.Logger, summaryLen int, sources ...Source) (*Collector, error) {
	if len(sources) == 0 {
		return nil, errors.New("collector: at least one source is required")
	}
	if summaryLen <= 0 {
		summaryLen = DefaultSummaryLen
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{sources: sources, summaryLen: summaryLen, log: log, now: time.Now}, nil
}

// Aggregate fetches every source and keeps items published within the last
// daysBack days. Items without a timestamp are always kept and dated today.
// A link already returned by an earlier source is dropped.
func (c *Collector) Aggregate(ctx context.Context, daysBack int) Report {
	now := c.now().UTC()
	since := now.AddDate(0, 0, -daysBack)
	seen := dedupe.NewCache(4096, 24*time.Hour)

	var report Report
	for _, src := range c.sources {
		result := SourceResult{Source: src.Name()}

		items, err := c.fetch(ctx, src)
		if err != nil {
			result.Err = &FetchError{Source: src.Name(), Err: err}
			c.log.Warn("source fetch failed", slog.String("source", src.Name()), slog.Any("err", err))
			report.Results = append(report.Results, result)
			continue
		}

		result.Fetched = len(items)
		for _, item := range items {
			normalized, ok := c.normalize(item, src.Name(), now, since)
			if !ok {
				continue
			}
			if seen.Observe(processing.NormalizeLink(normalized.Link)) {
				continue
			}
			report.Items = append(report.Items, normalized)
			result.Kept++
		}

		c.log.Info("source fetched",
			slog.String("source", src.Name()),
			slog.Int("fetched", result.Fetched),
			slog.Int("kept", result.Kept),
		)
		report.Results = append(report.Results, result)
	}

	return report
}

func (c *Collector) fetch(ctx context.Context, src Source) (items []models.NewsItem, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return src.Fetch(ctx)
}

func (c *Collector) normalize(item models.NewsItem, source string, now, since time.Time) (models.NewsItem, bool) {
	item.Title = processing.SquashWhitespace(item.Title)
	item.Link = strings.TrimSpace(item.Link)
	if !item.Valid() {
		return item, false
	}

	if !item.PublishedAt.IsZero() {
		if item.PublishedAt.Before(since) {
			return item, false
		}
		item.Date = item.PublishedAt.UTC().Format(models.DateLayout)
	} else if item.Date == "" {
		item.Date = now.Format(models.DateLayout)
	}

	item.Summary = processing.Truncate(processing.SquashWhitespace(item.Summary), c.summaryLen)
	if item.Source == "" {
		item.Source = source
	}
	item.Authors = lo.Filter(item.Authors, func(a string, _ int) bool { return strings.TrimSpace(a) != "" })
	return item, true
}

// NewHTTPClient returns the client shared by the built-in sources.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func get(ctx context.Context, client *http.Client, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", "ml-milestone-agent/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}
