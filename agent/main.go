package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/collector"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/config"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/evaluator"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/logger"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/notify"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/pipeline"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/publish"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/subscribers"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/timeline"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/vcs"
)

const llmTimeout = 30 * time.Second

func main() {
	dryRun := flag.Bool("dry-run", false, "Run without making changes")
	days := flag.Int("days", 1, "Number of days back to scan")
	fromFile := flag.String("from-file", "", "Persist and notify milestones from an evaluated milestones file instead of collecting")
	flag.Parse()

	if *days <= 0 {
		fmt.Fprintln(os.Stderr, "--days must be positive")
		os.Exit(2)
	}

	cfg, err := config.LoadAgent()
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, cfgErr.Guide())
			os.Exit(1)
		}
		logger.New("agent").Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	os.Exit(run(cfg, pipeline.Options{DaysBack: *days, DryRun: *dryRun}, *fromFile))
}

func run(cfg *config.Agent, opts pipeline.Options, fromFile string) int {
	log, closer, err := newLogger(cfg)
	if err != nil {
		logger.New("agent").Error("open run log", slog.Any("err", err))
		return 1
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log.Info("llm provider", slog.String("provider", cfg.LLM.Provider), slog.String("model", cfg.LLM.ResolvedModel()))
	if cfg.LLM.Provider == config.ProviderOllama {
		log.Info("using a local Ollama server, make sure it is running", slog.String("base_url", cfg.LLM.ResolvedBaseURL()))
	}

	deps, cleanup, err := wire(ctx, cfg, opts, log)
	if err != nil {
		log.Error("wire pipeline", slog.Any("err", err))
		return 1
	}
	defer cleanup()

	orch, err := pipeline.New(deps)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		return 1
	}

	var sum pipeline.Summary
	if fromFile != "" {
		milestones, readErr := pipeline.ReadMilestones(fromFile)
		if readErr != nil {
			log.Error("read milestones", slog.Any("err", readErr))
			return 1
		}
		sum, err = orch.Resume(ctx, milestones, opts)
	} else {
		sum, err = orch.Run(ctx, opts)
	}

	if err != nil {
		log.Error("agent run failed", slog.String("run_id", sum.RunID), slog.Any("err", err))
		return 1
	}
	log.Info("agent run complete",
		slog.String("run_id", sum.RunID),
		slog.Int("scanned", sum.Scanned),
		slog.Int("identified", sum.Identified),
		slog.Int("added", sum.Added),
	)
	return 0
}

func newLogger(cfg *config.Agent) (*slog.Logger, io.Closer, error) {
	if !cfg.RunLog {
		return logger.New("agent"), io.NopCloser(nil), nil
	}
	return logger.NewRunLog("agent", cfg.LogDir, time.Now())
}

// wire builds the pipeline collaborators. Outbound integrations are only
// connected for live runs.
func wire(ctx context.Context, cfg *config.Agent, opts pipeline.Options, log *slog.Logger) (pipeline.Deps, func(), error) {
	var closers []io.Closer
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Warn("close", slog.Any("err", err))
			}
		}
	}

	client := collector.NewHTTPClient(cfg.HTTPTimeout)
	coll, err := collector.New(log, cfg.SummaryMaxLen, collector.BuildSources(*cfg, client)...)
	if err != nil {
		return pipeline.Deps{}, cleanup, err
	}

	deps := pipeline.Deps{
		Collector: coll,
		Evaluator: evaluator.New(evaluator.NewOpenAIClient(cfg.LLM, llmTimeout), cfg.LLM.RequestDelay, log),
		Store:     timeline.NewStore(cfg.EventsPath),
		Logger:    log,
	}
	if cfg.SideFiles {
		deps.SideFiles = pipeline.NewSideFiles(cfg.SideFileDir)
	}

	var channels []notify.Channel
	if !opts.DryRun {
		if cfg.AutoCommit {
			deps.Committer = vcs.NewGit()
		}

		if len(cfg.KafkaBrokers) > 0 {
			milestoneWriter := publish.NewWriter(cfg.KafkaBrokers, cfg.MilestoneTopic)
			closers = append(closers, milestoneWriter)
			deps.Publisher = publish.NewPublisher(milestoneWriter)
		}

		if cfg.DatabaseDSN != "" && len(cfg.KafkaBrokers) > 0 {
			subs, err := subscribers.Open(ctx, cfg.DatabaseDSN)
			if err != nil {
				log.Warn("email notifications disabled", slog.Any("err", err))
			} else {
				emailWriter := publish.NewWriter(cfg.KafkaBrokers, cfg.EmailTopic)
				closers = append(closers, subs, emailWriter)
				channels = append(channels, notify.NewEmailOutbox(subs, emailWriter))
			}
		}

		if cfg.TelegramToken != "" && cfg.TelegramChannelID != 0 {
			tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChannelID)
			if err != nil {
				log.Warn("telegram notifications disabled", slog.Any("err", err))
			} else {
				channels = append(channels, tg)
			}
		}
	}

	n := notify.New(log, channels...)
	if !opts.DryRun && len(channels) == 0 {
		log.Warn("no notification channels configured")
	}
	deps.Notifier = n
	return deps, cleanup, nil
}
