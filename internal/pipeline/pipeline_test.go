package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/collector"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/evaluator"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/notify"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/timeline"
)

const existingDoc = `{
  "events": [
    {
      "name": "Attention Is All You Need",
      "date": "2017",
      "detail": "The transformer architecture.",
      "link": "https://arxiv.org/abs/1706.03762",
      "importance": "pivotal",
      "category": "architecture"
    }
  ],
  "title": "ML milestones"
}
`

type stubCollector struct {
	report collector.Report
	days   int
}

func (s *stubCollector) Aggregate(_ context.Context, daysBack int) collector.Report {
	s.days = daysBack
	return s.report
}

type stubEvaluator struct {
	result evaluator.BatchResult
	calls  int
}

func (s *stubEvaluator) Batch(context.Context, []models.NewsItem) evaluator.BatchResult {
	s.calls++
	return s.result
}

type countingStore struct {
	*timeline.Store
	loads int
	saves int
	err   error
}

func (s *countingStore) Load() (*timeline.Timeline, error) {
	s.loads++
	return s.Store.Load()
}

func (s *countingStore) Save(t *timeline.Timeline) error {
	s.saves++
	if s.err != nil {
		return &timeline.SaveError{Path: s.Path(), Err: s.err}
	}
	return s.Store.Save(t)
}

type recordingNotifier struct {
	got   [][]models.Milestone
	sent  int
	fails []*notify.NotifyError
}

func (n *recordingNotifier) Notify(_ context.Context, ms []models.Milestone) notify.Delivery {
	n.got = append(n.got, ms)
	return notify.Delivery{Sent: n.sent, Failures: n.fails}
}

type hook struct {
	err   error
	calls int
	count int
	names []string
}

func (h *hook) Commit(_ context.Context, _ string, added int) error {
	h.calls++
	h.count = added
	return h.err
}

func (h *hook) PublishMilestones(_ context.Context, _ string, ms []models.Milestone) error {
	h.calls++
	for _, m := range ms {
		h.names = append(h.names, m.Name)
	}
	return h.err
}

type fixture struct {
	path      string
	collector *stubCollector
	evaluator *stubEvaluator
	store     *countingStore
	notifier  *recordingNotifier
	committer *hook
	publisher *hook
	orch      *Orchestrator
}

func news(titles ...string) []models.NewsItem {
	out := make([]models.NewsItem, 0, len(titles))
	for _, title := range titles {
		out = append(out, models.NewsItem{Title: title, Link: "https://example.com/" + title, Date: "2026-10-14"})
	}
	return out
}

func candidates() []models.Milestone {
	return []models.Milestone{
		{Name: "World models", Link: "https://example.com/world-models", Importance: models.ImportanceMajor},
		{Name: "Transformer revisited", Link: "https://arxiv.org/abs/1706.03762", Importance: models.ImportanceMinor},
		{Name: "Agents that plan", Link: "https://example.com/agents", Importance: models.ImportancePivotal},
	}
}

func newFixture(t *testing.T, doc string) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")
	if doc != "" {
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	}

	f := &fixture{
		path:      path,
		collector: &stubCollector{report: collector.Report{Items: news("a", "b", "c", "d")}},
		evaluator: &stubEvaluator{result: evaluator.BatchResult{Milestones: candidates(), Rejected: 1}},
		store:     &countingStore{Store: timeline.NewStore(path)},
		notifier:  &recordingNotifier{sent: 2},
		committer: &hook{},
		publisher: &hook{},
	}
	orch, err := New(Deps{
		Collector: f.collector,
		Evaluator: f.evaluator,
		Store:     f.store,
		Notifier:  f.notifier,
		Committer: f.committer,
		Publisher: f.publisher,
	})
	require.NoError(t, err)
	orch.newRunID = func() string { return "run-1" }
	f.orch = orch
	return f
}

func TestRunAddsNewMilestonesAndNotifies(t *testing.T) {
	f := newFixture(t, existingDoc)

	sum, err := f.orch.Run(context.Background(), Options{DaysBack: 3})
	require.NoError(t, err)

	require.Equal(t, 3, f.collector.days)
	require.Equal(t, Summary{
		RunID:      "run-1",
		Mode:       ModeLive,
		Scanned:    4,
		Identified: 3,
		Added:      2,
		Notified:   2,
		State:      StateDone,
		States:     []State{StateStart, StateCollecting, StateEvaluating, StatePersisting, StateNotifying, StateDone},
	}, sum)

	tl, err := timeline.NewStore(f.path).Load()
	require.NoError(t, err)
	require.Len(t, tl.Events, 3)
	require.Equal(t, "Agents that plan", tl.Events[0].Name)
	require.Equal(t, "World models", tl.Events[1].Name)
	require.Equal(t, "architecture", tl.Events[2].ExtraString("category"))
	require.Contains(t, tl.Extra, "title")

	require.Len(t, f.notifier.got, 1)
	require.Len(t, f.notifier.got[0], 2)
	require.Equal(t, "Agents that plan", f.notifier.got[0][0].Name)

	require.Equal(t, 2, f.committer.count)
	require.Equal(t, []string{"Agents that plan", "World models"}, f.publisher.names)
}

func TestDryRunLeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t, existingDoc)

	sum, err := f.orch.Run(context.Background(), Options{DaysBack: 1, DryRun: true})
	require.NoError(t, err)

	require.Equal(t, ModeDryRun, sum.Mode)
	require.Equal(t, 3, sum.Added, "dry run reports every candidate, duplicates included")
	require.Equal(t, StateDone, sum.State)

	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	require.Equal(t, existingDoc, string(data))

	require.Zero(t, f.store.loads)
	require.Zero(t, f.store.saves)
	require.Empty(t, f.notifier.got)
	require.Zero(t, f.committer.calls)
	require.Zero(t, f.publisher.calls)
}

func TestLoadFailureIsFatal(t *testing.T) {
	for name, doc := range map[string]string{
		"missing":   "",
		"malformed": `{"events": "nope"}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, doc)

			sum, err := f.orch.Run(context.Background(), Options{DaysBack: 1})

			var loadErr *timeline.LoadError
			require.True(t, errors.As(err, &loadErr))
			require.Equal(t, StateError, sum.State)
			require.Equal(t, []State{StateStart, StateCollecting, StateEvaluating, StatePersisting, StateError}, sum.States)
			require.Zero(t, f.store.saves)
			require.Empty(t, f.notifier.got)

			if doc == "" {
				_, statErr := os.Stat(f.path)
				require.True(t, os.IsNotExist(statErr))
				return
			}
			data, readErr := os.ReadFile(f.path)
			require.NoError(t, readErr)
			require.Equal(t, doc, string(data))
		})
	}
}

func TestSaveFailureIsFatal(t *testing.T) {
	f := newFixture(t, existingDoc)
	f.store.err = errors.New("disk full")

	sum, err := f.orch.Run(context.Background(), Options{DaysBack: 1})

	var saveErr *timeline.SaveError
	require.True(t, errors.As(err, &saveErr))
	require.Equal(t, StateError, sum.State)
	require.Empty(t, f.notifier.got)
	require.Zero(t, f.committer.calls)
}

func TestAllDuplicatesSkipsSaveAndNotify(t *testing.T) {
	f := newFixture(t, existingDoc)
	f.evaluator.result.Milestones = f.evaluator.result.Milestones[1:2]

	sum, err := f.orch.Run(context.Background(), Options{DaysBack: 1})
	require.NoError(t, err)

	require.Zero(t, sum.Added)
	require.Equal(t, StateDone, sum.State)
	require.NotContains(t, sum.States, StateNotifying)
	require.Equal(t, 1, f.store.loads)
	require.Zero(t, f.store.saves)
	require.Empty(t, f.notifier.got)
}

func TestNoItemsShortCircuits(t *testing.T) {
	f := newFixture(t, existingDoc)
	f.collector.report = collector.Report{Results: []collector.SourceResult{
		{Source: "ArXiv", Err: &collector.FetchError{Source: "ArXiv", Err: errors.New("timeout")}},
	}}

	sum, err := f.orch.Run(context.Background(), Options{DaysBack: 1})
	require.NoError(t, err)

	require.Equal(t, []State{StateStart, StateCollecting, StateDone}, sum.States)
	require.Equal(t, 1, sum.SourceFailures)
	require.Zero(t, f.evaluator.calls)
}

func TestNoMilestonesShortCircuits(t *testing.T) {
	f := newFixture(t, existingDoc)
	f.evaluator.result = evaluator.BatchResult{Rejected: 3, Failures: []*evaluator.EvaluationError{{Title: "d", Err: errors.New("bad json")}}}

	sum, err := f.orch.Run(context.Background(), Options{DaysBack: 1})
	require.NoError(t, err)

	require.Equal(t, []State{StateStart, StateCollecting, StateEvaluating, StateDone}, sum.States)
	require.Equal(t, 1, sum.EvaluationFailures)
	require.Zero(t, f.store.loads)
}

func TestHookFailuresAreWarnings(t *testing.T) {
	f := newFixture(t, existingDoc)
	f.committer.err = errors.New("git: command not found")
	f.publisher.err = errors.New("kafka: leader not available")

	sum, err := f.orch.Run(context.Background(), Options{DaysBack: 1})
	require.NoError(t, err)

	require.Equal(t, StateDone, sum.State)
	require.Equal(t, 2, sum.Added)
	require.Len(t, f.notifier.got, 1)
}

func TestResumeStartsAtPersisting(t *testing.T) {
	f := newFixture(t, existingDoc)

	sum, err := f.orch.Resume(context.Background(), candidates(), Options{})
	require.NoError(t, err)

	require.Equal(t, []State{StateStart, StatePersisting, StateNotifying, StateDone}, sum.States)
	require.Equal(t, 3, sum.Identified)
	require.Equal(t, 2, sum.Added)
	require.Zero(t, f.evaluator.calls)
}

func TestResumeSkipsMilestonesWithoutNameOrLink(t *testing.T) {
	f := newFixture(t, existingDoc)
	batch := append([]models.Milestone{
		{Importance: models.ImportanceMajor},
		{Name: "No link", Importance: models.ImportanceMinor},
	}, candidates()[0])

	sum, err := f.orch.Resume(context.Background(), batch, Options{})
	require.NoError(t, err)

	require.Equal(t, 3, sum.Identified)
	require.Equal(t, 2, sum.Skipped)
	require.Equal(t, 1, sum.Added)

	tl, err := timeline.NewStore(f.path).Load()
	require.NoError(t, err)
	require.Len(t, tl.Events, 2)
	for _, e := range tl.Events {
		require.True(t, e.Valid(), "stored %+v", e)
	}
}

func TestResumeWithOnlyInvalidMilestonesLeavesDocument(t *testing.T) {
	f := newFixture(t, existingDoc)

	sum, err := f.orch.Resume(context.Background(), []models.Milestone{{Importance: models.ImportanceMajor}}, Options{})
	require.NoError(t, err)

	require.Equal(t, 1, sum.Skipped)
	require.Zero(t, sum.Added)
	require.Equal(t, []State{StateStart, StatePersisting, StateDone}, sum.States)
	require.Zero(t, f.store.loads)
	require.Empty(t, f.notifier.got)

	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	require.Equal(t, existingDoc, string(data))
}

func TestDryRunCountsOnlyValidMilestones(t *testing.T) {
	f := newFixture(t, existingDoc)
	f.evaluator.result.Milestones = append(candidates(), models.Milestone{Name: "Linkless"})

	sum, err := f.orch.Run(context.Background(), Options{DaysBack: 1, DryRun: true})
	require.NoError(t, err)

	require.Equal(t, 3, sum.Added)
	require.Equal(t, 1, sum.Skipped)
}

func TestSideFilesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	side := NewSideFiles(dir)

	require.NoError(t, side.WriteNews(news("x")))
	require.NoError(t, side.WriteMilestones(candidates()))

	_, err := os.Stat(filepath.Join(dir, NewsFile))
	require.NoError(t, err)

	got, err := ReadMilestones(filepath.Join(dir, MilestonesFile))
	require.NoError(t, err)
	require.Equal(t, candidates(), got)
}

func TestNewRequiresCoreDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}
