// Package pipeline runs one collection pass: collect, evaluate, persist and
// notify, strictly in that order.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/collector"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/evaluator"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/notify"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/timeline"
)

// State is a stage of a run.
type State string

const (
	StateStart      State = "START"
	StateCollecting State = "COLLECTING"
	StateEvaluating State = "EVALUATING"
	StatePersisting State = "PERSISTING"
	StateNotifying  State = "NOTIFYING"
	StateDone       State = "DONE"
	StateError      State = "ERROR"
)

// Mode names how a run treats side effects.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeDryRun Mode = "dry-run"
)

// Collector gathers candidate news items.
type Collector interface {
	Aggregate(ctx context.Context, daysBack int) collector.Report
}

// Evaluator turns news items into milestones.
type Evaluator interface {
	Batch(ctx context.Context, items []models.NewsItem) evaluator.BatchResult
}

// Store loads and saves the timeline document.
type Store interface {
	Path() string
	Load() (*timeline.Timeline, error)
	Save(t *timeline.Timeline) error
}

// Notifier announces added milestones.
type Notifier interface {
	Notify(ctx context.Context, milestones []models.Milestone) notify.Delivery
}

// Committer records the saved timeline in version control.
type Committer interface {
	Commit(ctx context.Context, path string, added int) error
}

// Publisher announces added milestones to downstream consumers.
type Publisher interface {
	PublishMilestones(ctx context.Context, runID string, milestones []models.Milestone) error
}

// Deps wires an Orchestrator. Committer, Publisher and SideFiles are optional.
type Deps struct {
	Collector Collector
	Evaluator Evaluator
	Store     Store
	Notifier  Notifier
	Committer Committer
	Publisher Publisher
	SideFiles *SideFiles
	Logger    *slog.Logger
}

// Options control a single run.
type Options struct {
	DaysBack int
	DryRun   bool
}

func (o Options) mode() Mode {
	if o.DryRun {
		return ModeDryRun
	}
	return ModeLive
}

// Summary is reported for every run, successful or not.
type Summary struct {
	RunID              string
	Mode               Mode
	Scanned            int
	Identified         int
	Added              int
	Notified           int
	Skipped            int
	SourceFailures     int
	EvaluationFailures int
	NotifyFailures     int
	State              State
	States             []State
}

// Orchestrator drives the stages of a run.
type Orchestrator struct {
	deps     Deps
	log      *slog.Logger
	newRunID func() string
}

// New validates deps and returns an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Collector == nil:
		return nil, errors.New("pipeline: collector is required")
	case deps.Evaluator == nil:
		return nil, errors.New("pipeline: evaluator is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Notifier == nil:
		return nil, errors.New("pipeline: notifier is required")
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{deps: deps, log: log, newRunID: uuid.NewString}, nil
}

// Run executes a full pass. Source and evaluation failures are counted, not
// returned. A *timeline.LoadError or *timeline.SaveError ends the run in
// StateError and is returned.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	sum := o.begin(opts)
	log := o.log.With(slog.String("run_id", sum.RunID))
	log.Info("run started", slog.String("mode", string(sum.Mode)), slog.Int("days_back", opts.DaysBack))

	o.transition(log, &sum, StateCollecting)
	report := o.deps.Collector.Aggregate(ctx, opts.DaysBack)
	sum.Scanned = len(report.Items)
	sum.SourceFailures = len(report.Failures())
	log.Info("collected news", slog.Int("items", sum.Scanned), slog.Int("failed_sources", sum.SourceFailures))
	o.writeSide(log, func(s *SideFiles) error { return s.WriteNews(report.Items) })
	if sum.Scanned == 0 {
		log.Warn("no news items collected")
		return o.finish(log, sum), nil
	}

	o.transition(log, &sum, StateEvaluating)
	result := o.deps.Evaluator.Batch(ctx, report.Items)
	sum.Identified = len(result.Milestones)
	sum.EvaluationFailures = len(result.Failures)
	log.Info("evaluated news",
		slog.Int("milestones", sum.Identified),
		slog.Int("rejected", result.Rejected),
		slog.Int("failed", sum.EvaluationFailures),
	)
	if sum.Identified == 0 {
		log.Warn("no milestones identified")
		return o.finish(log, sum), nil
	}
	o.writeSide(log, func(s *SideFiles) error { return s.WriteMilestones(result.Milestones) })

	return o.persist(ctx, log, sum, result.Milestones, opts)
}

// Resume persists and notifies an already evaluated batch.
func (o *Orchestrator) Resume(ctx context.Context, milestones []models.Milestone, opts Options) (Summary, error) {
	sum := o.begin(opts)
	sum.Identified = len(milestones)
	log := o.log.With(slog.String("run_id", sum.RunID))
	log.Info("resume started", slog.String("mode", string(sum.Mode)), slog.Int("milestones", sum.Identified))

	if sum.Identified == 0 {
		return o.finish(log, sum), nil
	}
	return o.persist(ctx, log, sum, milestones, opts)
}

func (o *Orchestrator) persist(ctx context.Context, log *slog.Logger, sum Summary, candidates []models.Milestone, opts Options) (Summary, error) {
	o.transition(log, &sum, StatePersisting)

	candidates = o.validOnly(log, &sum, candidates)
	if len(candidates) == 0 {
		log.Warn("no valid milestones to persist", slog.Int("skipped", sum.Skipped))
		return o.finish(log, sum), nil
	}

	if opts.DryRun {
		for _, m := range candidates {
			log.Info("would add milestone", slog.String("name", m.Name), slog.String("importance", m.Importance))
		}
		sum.Added = len(candidates)
		o.transition(log, &sum, StateNotifying)
		log.Info("would notify", slog.Int("milestones", sum.Added))
		return o.finish(log, sum), nil
	}

	current, err := o.deps.Store.Load()
	if err != nil {
		return o.fail(log, sum, err)
	}

	updated, added := timeline.AddMilestones(current, candidates)
	sum.Added = added
	log.Info("merged milestones",
		slog.Int("added", added),
		slog.Int("duplicates", len(candidates)-added),
		slog.Int("total", len(updated.Events)),
	)
	if added == 0 {
		log.Info("no new milestones to notify about (all duplicates)")
		return o.finish(log, sum), nil
	}

	if err := o.deps.Store.Save(updated); err != nil {
		return o.fail(log, sum, err)
	}
	fresh := updated.Events[:added]
	o.afterSave(ctx, log, sum, fresh)

	o.transition(log, &sum, StateNotifying)
	delivery := o.deps.Notifier.Notify(ctx, fresh)
	sum.Notified = delivery.Sent
	sum.NotifyFailures = len(delivery.Failures)
	log.Info("notified", slog.Int("sent", delivery.Sent), slog.Int("failed", sum.NotifyFailures))

	return o.finish(log, sum), nil
}

// validOnly drops milestones without a name or link. They would otherwise
// be stored and shadow every later candidate missing the same key.
func (o *Orchestrator) validOnly(log *slog.Logger, sum *Summary, candidates []models.Milestone) []models.Milestone {
	valid := make([]models.Milestone, 0, len(candidates))
	for _, m := range candidates {
		if !m.Valid() {
			sum.Skipped++
			log.Warn("skipping milestone without name or link", slog.String("name", m.Name), slog.String("link", m.Link))
			continue
		}
		valid = append(valid, m)
	}
	return valid
}

// afterSave runs the best effort hooks. Their failures are warnings.
func (o *Orchestrator) afterSave(ctx context.Context, log *slog.Logger, sum Summary, added []models.Milestone) {
	if o.deps.Committer != nil {
		if err := o.deps.Committer.Commit(ctx, o.deps.Store.Path(), len(added)); err != nil {
			log.Warn("auto-commit failed", slog.Any("err", err))
		} else {
			log.Info("committed timeline", slog.String("path", o.deps.Store.Path()))
		}
	}
	if o.deps.Publisher != nil {
		if err := o.deps.Publisher.PublishMilestones(ctx, sum.RunID, added); err != nil {
			log.Warn("publish milestones failed", slog.Any("err", err))
		}
	}
}

func (o *Orchestrator) writeSide(log *slog.Logger, write func(*SideFiles) error) {
	if o.deps.SideFiles == nil {
		return
	}
	if err := write(o.deps.SideFiles); err != nil {
		log.Warn("write side file", slog.Any("err", err))
	}
}

func (o *Orchestrator) begin(opts Options) Summary {
	return Summary{
		RunID:  o.newRunID(),
		Mode:   opts.mode(),
		State:  StateStart,
		States: []State{StateStart},
	}
}

func (o *Orchestrator) transition(log *slog.Logger, sum *Summary, next State) {
	log.Info("state transition", slog.String("from", string(sum.State)), slog.String("to", string(next)))
	sum.State = next
	sum.States = append(sum.States, next)
}

func (o *Orchestrator) finish(log *slog.Logger, sum Summary) Summary {
	o.transition(log, &sum, StateDone)
	log.Info("run summary",
		slog.String("mode", string(sum.Mode)),
		slog.Int("scanned", sum.Scanned),
		slog.Int("identified", sum.Identified),
		slog.Int("added", sum.Added),
		slog.Int("notified", sum.Notified),
		slog.Int("skipped", sum.Skipped),
	)
	return sum
}

func (o *Orchestrator) fail(log *slog.Logger, sum Summary, err error) (Summary, error) {
	stage := sum.State
	o.transition(log, &sum, StateError)
	log.Error("run failed", slog.String("stage", string(stage)), slog.Any("err", err))
	return sum, err
}
