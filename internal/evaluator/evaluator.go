// Package evaluator asks a language model whether a news item is a milestone
// worth adding to the timeline.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

// ChatClient sends one system and user prompt pair and returns the reply text.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// EvaluationError records an item the model could not judge.
type EvaluationError struct {
	Title string
	Link  string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %q: %v", e.Title, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// BatchResult is the outcome of Batch.
type BatchResult struct {
	Milestones []models.Milestone
	Rejected   int
	Failures   []*EvaluationError
}

// Evaluator judges news items one at a time.
type Evaluator struct {
	client ChatClient
	delay  time.Duration
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds an evaluator. delay is the pause between consecutive calls in
// Batch, zero for none.
func New(client ChatClient, delay time.Duration, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Evaluator{client: client, delay: delay, log: log, sleep: sleepContext}
}

type verdict struct {
	IsMilestone *bool  `json:"is_milestone"`
	Name        string `json:"name"`
	Detail      string `json:"detail"`
	Importance  string `json:"importance"`
	Date        string `json:"date"`
}

var errNoVerdict = errors.New("reply has no verdict object")

// Evaluate returns the milestone built from item, or nil when the model
// judged it not significant.
func (e *Evaluator) Evaluate(ctx context.Context, item models.NewsItem) (*models.Milestone, error) {
	reply, err := e.client.Complete(ctx, systemPrompt, userPrompt(item))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	v, err := parseVerdict(reply)
	if err != nil {
		return nil, err
	}
	if !*v.IsMilestone {
		return nil, nil
	}

	m := &models.Milestone{
		Name:       firstNonEmpty(v.Name, item.Title),
		Date:       firstNonEmpty(v.Date, item.Date),
		Detail:     strings.TrimSpace(v.Detail),
		Link:       item.Link,
		Importance: models.NormalizeImportance(v.Importance),
	}
	if item.Source != "" {
		if err := m.SetExtra("source", item.Source); err != nil {
			return nil, err
		}
	}
	if len(item.Authors) > 0 {
		if err := m.SetExtra("authors", item.Authors); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Batch evaluates items in order. A failing item is recorded and skipped.
// Once ctx is done the remaining items are recorded as failures.
func (e *Evaluator) Batch(ctx context.Context, items []models.NewsItem) BatchResult {
	var result BatchResult
	for i, item := range items {
		if i > 0 && e.delay > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				result.Failures = append(result.Failures, abandoned(items[i:], err)...)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, abandoned(items[i:], err)...)
			break
		}

		m, err := e.Evaluate(ctx, item)
		switch {
		case err != nil:
			evalErr := &EvaluationError{Title: item.Title, Link: item.Link, Err: err}
			e.log.Warn("evaluation failed", slog.String("title", item.Title), slog.Any("err", err))
			result.Failures = append(result.Failures, evalErr)
		case m == nil:
			result.Rejected++
			e.log.Debug("not a milestone", slog.String("title", item.Title))
		default:
			e.log.Info("milestone identified",
				slog.String("name", m.Name),
				slog.String("importance", m.Importance),
			)
			result.Milestones = append(result.Milestones, *m)
		}
	}
	return result
}

func parseVerdict(reply string) (*verdict, error) {
	payload := extractJSON(reply)
	if payload == "" {
		return nil, errNoVerdict
	}
	var v verdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	if v.IsMilestone == nil {
		return nil, fmt.Errorf("decode verdict: missing is_milestone")
	}
	return &v, nil
}

func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func abandoned(items []models.NewsItem, err error) []*EvaluationError {
	out := make([]*EvaluationError, 0, len(items))
	for _, item := range items {
		out = append(out, &EvaluationError{Title: item.Title, Link: item.Link, Err: err})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
