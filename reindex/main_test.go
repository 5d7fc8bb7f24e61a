package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/config"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/processing"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/timeline"
)

type stubIndex struct {
	failOn string
	docs   []models.MilestoneDocument
	kept   []string
	pruned bool
}

func (s *stubIndex) IndexMilestone(_ context.Context, doc models.MilestoneDocument) error {
	if doc.Name == s.failOn {
		return errors.New("rejected")
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *stubIndex) DeleteExcept(_ context.Context, keep []string, _ int) (int64, error) {
	s.pruned = true
	s.kept = keep
	return 4, nil
}

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleTimeline() *timeline.Timeline {
	return &timeline.Timeline{Events: []models.Milestone{
		{Name: "GPT-4", Link: "https://openai.com/research/gpt-4", Importance: models.ImportancePivotal},
		{Name: "", Link: "https://example.com/nameless"},
		{Name: "AlexNet", Link: "https://example.com/alexnet", Importance: models.ImportanceMajor},
	}}
}

func TestReindexIndexesAndPrunes(t *testing.T) {
	idx := &stubIndex{}
	cfg := &config.Reindex{KeywordLimit: 5, KeywordMinLength: 3, Prune: true}

	res, err := reindex(context.Background(), testLog, idx, sampleTimeline(), cfg, time.Now())
	require.NoError(t, err)

	require.Equal(t, result{Indexed: 2, Skipped: 1, Pruned: 4}, res)
	require.Equal(t, []string{
		processing.BuildDocumentID("https://openai.com/research/gpt-4"),
		processing.BuildDocumentID("https://example.com/alexnet"),
	}, idx.kept)
}

func TestReindexSkipsPruneAfterFailure(t *testing.T) {
	idx := &stubIndex{failOn: "AlexNet"}
	cfg := &config.Reindex{KeywordLimit: 5, Prune: true}

	res, err := reindex(context.Background(), testLog, idx, sampleTimeline(), cfg, time.Now())
	require.NoError(t, err)

	require.Equal(t, 1, res.Failed)
	require.False(t, idx.pruned)
}

func TestReindexWithoutPrune(t *testing.T) {
	idx := &stubIndex{}
	cfg := &config.Reindex{KeywordLimit: 5}

	res, err := reindex(context.Background(), testLog, idx, sampleTimeline(), cfg, time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, res.Indexed)
	require.False(t, idx.pruned)
}
