package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/samber/lo"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

const (
	// DefaultHuggingFaceURL lists the papers featured on the daily page.
	DefaultHuggingFaceURL = "https://huggingface.co/api/daily_papers"
	// DefaultHuggingFaceTop is how many daily papers are considered.
	DefaultHuggingFaceTop = 10

	huggingFacePaperURL = "https://huggingface.co/papers/"
)

type paperAuthor struct {
	Name string `json:"name"`
}

type dailyPaper struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Paper   struct {
		ID      string        `json:"id"`
		Title   string        `json:"title"`
		Summary string        `json:"summary"`
		Authors []paperAuthor `json:"authors"`
	} `json:"paper"`
}

// HuggingFaceSource reads the daily papers API. The listing has no per-item
// publication time so every item is dated the day it was fetched.
type HuggingFaceSource struct {
	url    string
	top    int
	client *http.Client
}

// NewHuggingFaceSource returns a source keeping the first top papers.
func NewHuggingFaceSource(url string, top int, client *http.Client) *HuggingFaceSource {
	if url == "" {
		url = DefaultHuggingFaceURL
	}
	if top <= 0 {
		top = DefaultHuggingFaceTop
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &HuggingFaceSource{url: url, top: top, client: client}
}

func (s *HuggingFaceSource) Name() string { return "HuggingFace" }

func (s *HuggingFaceSource) Fetch(ctx context.Context) ([]models.NewsItem, error) {
	resp, err := get(ctx, s.client, s.url, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var papers []dailyPaper
	if err := json.NewDecoder(resp.Body).Decode(&papers); err != nil {
		return nil, fmt.Errorf("decode daily papers: %w", err)
	}

	if len(papers) > s.top {
		papers = papers[:s.top]
	}

	items := make([]models.NewsItem, 0, len(papers))
	for _, p := range papers {
		id := lo.CoalesceOrEmpty(p.Paper.ID, p.ID)
		link := ""
		if id != "" {
			link = huggingFacePaperURL + id
		}
		items = append(items, models.NewsItem{
			Title:   lo.CoalesceOrEmpty(p.Title, p.Paper.Title),
			Summary: lo.CoalesceOrEmpty(p.Summary, p.Paper.Summary),
			Link:    link,
			Source:  s.Name(),
			Authors: lo.Map(p.Paper.Authors, func(a paperAuthor, _ int) string { return a.Name }),
		})
	}
	return items, nil
}
