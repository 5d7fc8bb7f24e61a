// Package publish emits timeline changes to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/processing"
)

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns a writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
}

// Publisher writes one MilestoneEvent per added milestone.
type Publisher struct {
	writer MessageWriter
	now    func() time.Time
}

// NewPublisher wraps writer.
func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer, now: time.Now}
}

// PublishMilestones sends milestones in a single batch keyed by document ID,
// so every update of the same link lands on one partition.
func (p *Publisher) PublishMilestones(ctx context.Context, runID string, milestones []models.Milestone) error {
	if len(milestones) == 0 {
		return nil
	}

	addedAt := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(milestones))
	for _, m := range milestones {
		value, err := json.Marshal(models.MilestoneEvent{RunID: runID, Milestone: m, AddedAt: addedAt})
		if err != nil {
			return fmt.Errorf("encode milestone %q: %w", m.Name, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(processing.BuildDocumentID(m.Link)),
			Value: value,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(runID)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write milestones: %w", err)
	}
	return nil
}
