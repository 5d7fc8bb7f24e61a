package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/subscribers"
)

var batch = []models.Milestone{
	{Name: "GPT-5 (preview)", Date: "2026-10-13", Detail: "Scores 90% on ARC-AGI.", Link: "https://example.com/gpt-5", Importance: models.ImportancePivotal},
	{Name: "Sparse MoE", Link: "https://example.com/moe", Importance: models.ImportanceNotable},
}

type stubChannel struct {
	name string
	sent int
	err  error
	got  []models.Milestone
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Deliver(_ context.Context, ms []models.Milestone) (int, error) {
	s.got = ms
	return s.sent, s.err
}

type listerFunc func(ctx context.Context) ([]subscribers.Subscriber, error)

func (f listerFunc) All(ctx context.Context) ([]subscribers.Subscriber, error) { return f(ctx) }

type flakyWriter struct {
	failFor map[string]bool
	msgs    []kafka.Message
}

func (w *flakyWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if w.failFor[string(m.Key)] {
			return errors.New("leader not available")
		}
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type fakeBot struct {
	fail  map[string]bool
	texts []string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if msg.ParseMode != tgbotapi.ModeMarkdownV2 {
		return tgbotapi.Message{}, errors.New("unexpected parse mode")
	}
	for marker := range b.fail {
		if strings.Contains(msg.Text, marker) {
			return tgbotapi.Message{}, errors.New("Bad Request: chat not found")
		}
	}
	b.texts = append(b.texts, msg.Text)
	return tgbotapi.Message{MessageID: len(b.texts)}, nil
}

func TestNotifySumsChannelsAndIsolatesFailures(t *testing.T) {
	ok := &stubChannel{name: "email", sent: 3}
	broken := &stubChannel{name: "telegram", sent: 1, err: errors.Join(
		&NotifyError{Channel: "telegram", Recipient: "Sparse MoE", Err: errors.New("flood wait")},
	)}
	down := &stubChannel{name: "webhook", err: errors.New("no route to host")}

	d := New(nil, ok, broken, down).Notify(context.Background(), batch)

	require.Equal(t, 4, d.Sent)
	require.Len(t, d.Failures, 2)
	require.Equal(t, "Sparse MoE", d.Failures[0].Recipient)
	require.Equal(t, "webhook", d.Failures[1].Channel)
	require.Empty(t, d.Failures[1].Recipient)
	require.Equal(t, batch, ok.got)
}

func TestNotifyEmptyBatchSkipsChannels(t *testing.T) {
	ch := &stubChannel{name: "email", sent: 5}

	d := New(nil, ch).Notify(context.Background(), nil)

	require.Zero(t, d.Sent)
	require.Nil(t, ch.got)
}

func TestEmailOutboxPartialDelivery(t *testing.T) {
	subs := listerFunc(func(context.Context) ([]subscribers.Subscriber, error) {
		return []subscribers.Subscriber{{Email: "ada@example.com"}, {Email: "bounce@example.com"}, {Email: "alan@example.com"}}, nil
	})
	w := &flakyWriter{failFor: map[string]bool{"bounce@example.com": true}}

	sent, err := NewEmailOutbox(subs, w).Deliver(context.Background(), batch)

	require.Equal(t, 2, sent)
	var ne *NotifyError
	require.True(t, errors.As(err, &ne))
	require.Equal(t, "bounce@example.com", ne.Recipient)

	require.Len(t, w.msgs, 2)
	require.Equal(t, "ada@example.com", string(w.msgs[0].Key))
	var payload EmailMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &payload))
	require.Equal(t, "ada@example.com", payload.To)
	require.Equal(t, "2 new ML milestones added to the timeline", payload.Subject)
	require.Len(t, payload.Milestones, 2)
}

func TestEmailOutboxListFailure(t *testing.T) {
	subs := listerFunc(func(context.Context) ([]subscribers.Subscriber, error) {
		return nil, errors.New("database is down")
	})

	sent, err := NewEmailOutbox(subs, &flakyWriter{}).Deliver(context.Background(), batch)
	require.Zero(t, sent)
	require.ErrorContains(t, err, "database is down")
}

func TestTelegramDeliver(t *testing.T) {
	bot := &fakeBot{fail: map[string]bool{"Sparse MoE": true}}

	sent, err := NewTelegramWithSender(bot, -100123).Deliver(context.Background(), batch)

	require.Equal(t, 1, sent)
	require.Error(t, err)
	require.Len(t, bot.texts, 1)
	require.Contains(t, bot.texts[0], `*GPT\-5 \(preview\)*`)
	require.Contains(t, bot.texts[0], `90% on ARC\-AGI\.`)
	require.Contains(t, bot.texts[0], "https://example\\.com/gpt\\-5")
}

func TestSubject(t *testing.T) {
	require.Equal(t, "1 new ML milestone added to the timeline", Subject(1))
	require.Equal(t, "3 new ML milestones added to the timeline", Subject(3))
}
