// Package notify fans newly added milestones out to the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

// NotifyError is one failed delivery. Recipient is empty when the whole
// channel failed.
type NotifyError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *NotifyError) Error() string {
	if e.Recipient == "" {
		return fmt.Sprintf("notify %s: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("notify %s %s: %v", e.Channel, e.Recipient, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Channel delivers a batch of milestones and reports how many notifications
// went out. A partial failure returns the partial count along with an error.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, milestones []models.Milestone) (int, error)
}

// Delivery is the outcome of Notify.
type Delivery struct {
	Sent     int
	Failures []*NotifyError
}

// Notifier sends to every channel in turn.
type Notifier struct {
	channels []Channel
	log      *slog.Logger
}

func New(log *slog.Logger, channels ...Channel) *Notifier {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{channels: channels, log: log}
}

// Channels returns the configured channel names.
func (n *Notifier) Channels() []string {
	names := make([]string, 0, len(n.channels))
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify never fails: channel errors are logged and returned in Delivery.
func (n *Notifier) Notify(ctx context.Context, milestones []models.Milestone) Delivery {
	var d Delivery
	if len(milestones) == 0 {
		return d
	}

	for _, ch := range n.channels {
		sent, err := ch.Deliver(ctx, milestones)
		d.Sent += sent
		if err != nil {
			failures := flatten(ch.Name(), err)
			for _, f := range failures {
				n.log.Warn("notification failed",
					slog.String("channel", f.Channel),
					slog.String("recipient", f.Recipient),
					slog.Any("err", f.Err),
				)
			}
			d.Failures = append(d.Failures, failures...)
		}
		n.log.Info("channel delivered", slog.String("channel", ch.Name()), slog.Int("sent", sent))
	}
	return d
}

func flatten(channel string, err error) []*NotifyError {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	out := make([]*NotifyError, 0, len(errs))
	for _, e := range errs {
		var ne *NotifyError
		if errors.As(e, &ne) {
			out = append(out, ne)
			continue
		}
		out = append(out, &NotifyError{Channel: channel, Err: e})
	}
	return out
}
