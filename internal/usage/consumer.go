package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/mailmind/mailmind/internal/logging"
	inats "github.com/mailmind/mailmind/internal/nats"
)

const (
	consumerName = "usage-recorder"
	fetchBatch   = 10
	fetchWait    = 5 * time.Second
)

// Consumer records ledger and billing events from the events stream.
type Consumer struct {
	store Store
	js    jetstream.JetStream
}

func NewConsumer(store Store, js jetstream.JetStream) *Consumer {
	return &Consumer{store: store, js: js}
}

// Start runs the fetch loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, inats.StreamEvents, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: inats.SubjectEvents,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return err
	}

	slog.Info("usage consumer started", slog.String("consumer", consumerName))

	for {
		msgs, err := consumer.Fetch(fetchBatch, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("usage consumer: fetching events", logging.Err(err))
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	entry, err := entryFromEvent(msg.Subject(), msg.Data())
	if err != nil {
		// Redelivery cannot fix a payload we cannot read.
		slog.Error("usage consumer: dropping event", slog.String("subject", msg.Subject()), logging.Err(err))
		_ = msg.Term()
		return
	}

	if err := c.store.Insert(ctx, entry); err != nil {
		slog.Error("usage consumer: persisting event",
			logging.UserID(entry.UserID.String()), slog.String("kind", entry.Kind), logging.Err(err))
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	slog.Debug("usage consumer: recorded event",
		logging.UserID(entry.UserID.String()), slog.String("kind", entry.Kind))
}
