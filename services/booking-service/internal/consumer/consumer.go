// Package consumer reads events produced by other services. Every message is
// deduplicated through the inbox in the same transaction as its handler, so a
// redelivered message has no effect.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/groomly/libs/kafkax"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, tx storage.Tx, msg kafka.Message) error

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader  MessageReader
	store   storage.Store
	logger  *slog.Logger
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(store storage.Store, logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(reader, store, logger, handler)
}

func NewWithReader(reader MessageReader, store storage.Store, logger *slog.Logger, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		store:   store,
		logger:  logger,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		if err := c.Handle(ctx, msg); err != nil {
			c.logger.Error("handler error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// Handle processes one message. Duplicates are skipped without calling the
// handler; a handler error rolls back the inbox record as well.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	duplicate := false
	err := c.store.InTx(ctxSpan, func(ctx context.Context, tx storage.Tx) error {
		ok, err := tx.RecordInbox(ctx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !ok {
			duplicate = true
			return nil
		}
		return c.handler(ctx, tx, msg)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if duplicate {
		c.logger.InfoContext(ctxSpan, "duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
	}
	return nil
}
