package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/config"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/elasticsearch"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/logger"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/processing"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/timeline"
)

type index interface {
	IndexMilestone(ctx context.Context, doc models.MilestoneDocument) error
	DeleteExcept(ctx context.Context, keep []string, batchSize int) (int64, error)
}

type result struct {
	Indexed int
	Skipped int
	Failed  int
	Pruned  int64
}

func main() {
	log := logger.New("reindex")
	cfg, err := config.LoadReindex()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tl, err := timeline.NewStore(cfg.EventsPath).Load()
	if err != nil {
		log.Error("load timeline", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.Connect(ctx, cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log, 10)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	res, err := reindex(ctx, log, esClient, tl, cfg, time.Now())
	if err != nil {
		log.Error("reindex failed", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("reindex completed",
		slog.Int("indexed", res.Indexed),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Int64("pruned", res.Pruned),
	)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

// reindex writes every timeline entry and, when configured, prunes documents
// for entries no longer in the timeline. Pruning is skipped after any
// indexing failure.
func reindex(ctx context.Context, log *slog.Logger, idx index, tl *timeline.Timeline, cfg *config.Reindex, now time.Time) (result, error) {
	var res result
	keep := make([]string, 0, len(tl.Events))

	for _, m := range tl.Events {
		if m.Name == "" || m.Link == "" {
			res.Skipped++
			log.Warn("skip milestone without name or link", slog.String("name", m.Name))
			continue
		}
		doc := processing.BuildMilestoneDocument(m, cfg.KeywordLimit, cfg.KeywordMinLength, now)
		keep = append(keep, doc.ID)

		if err := idx.IndexMilestone(ctx, doc); err != nil {
			if errors.Is(err, context.Canceled) {
				return res, err
			}
			res.Failed++
			log.Warn("index milestone failed", slog.String("name", m.Name), slog.Any("err", err))
			continue
		}
		res.Indexed++
	}

	if !cfg.Prune || res.Failed > 0 {
		return res, nil
	}

	pruned, err := idx.DeleteExcept(ctx, keep, 1000)
	if err != nil {
		return res, err
	}
	res.Pruned = pruned
	return res, nil
}
