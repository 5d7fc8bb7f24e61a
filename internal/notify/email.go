package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/publish"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/subscribers"
)

// SubscriberLister returns the current mailing list.
type SubscriberLister interface {
	All(ctx context.Context) ([]subscribers.Subscriber, error)
}

// EmailMessage is the outbox payload an external mailer turns into an email.
type EmailMessage struct {
	To         string             `json:"to"`
	Subject    string             `json:"subject"`
	Milestones []models.Milestone `json:"milestones"`
}

// EmailOutbox queues one email per subscriber on a Kafka topic.
type EmailOutbox struct {
	subscribers SubscriberLister
	writer      publish.MessageWriter
}

func NewEmailOutbox(subs SubscriberLister, writer publish.MessageWriter) *EmailOutbox {
	return &EmailOutbox{subscribers: subs, writer: writer}
}

func (o *EmailOutbox) Name() string { return "email" }

func (o *EmailOutbox) Deliver(ctx context.Context, milestones []models.Milestone) (int, error) {
	subs, err := o.subscribers.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}

	subject := Subject(len(milestones))
	sent := 0
	var errs []error
	for _, sub := range subs {
		value, err := json.Marshal(EmailMessage{To: sub.Email, Subject: subject, Milestones: milestones})
		if err != nil {
			errs = append(errs, &NotifyError{Channel: o.Name(), Recipient: sub.Email, Err: err})
			continue
		}
		if err := o.writer.WriteMessages(ctx, kafka.Message{Key: []byte(sub.Email), Value: value}); err != nil {
			errs = append(errs, &NotifyError{Channel: o.Name(), Recipient: sub.Email, Err: err})
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Subject is the email subject line for a batch of n milestones.
func Subject(n int) string {
	if n == 1 {
		return "1 new ML milestone added to the timeline"
	}
	return fmt.Sprintf("%d new ML milestones added to the timeline", n)
}
