package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/groomly/libs/kafkax"
	otelx "github.com/md-rashed-zaman/groomly/libs/otel"
	"github.com/segmentio/kafka-go"
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublishObserver interface {
	ObserveOutboxPublished(n int)
}

type Publisher struct {
	db        TxBeginner
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
	writer    MessageWriter
	observer  PublishObserver
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(db TxBeginner, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		db:        db,
		repo:      repo,
		logger:    logger,
		brokers:   brokers,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// WithWriter replaces the Kafka writer; used by tests.
func (p *Publisher) WithWriter(w MessageWriter) *Publisher {
	p.writer = w
	return p
}

func (p *Publisher) WithObserver(o PublishObserver) *Publisher {
	p.observer = o
	return p
}

func (p *Publisher) Run(ctx context.Context) {
	writer := p.writer
	if writer == nil {
		if len(p.brokers) == 0 {
			p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
			return
		}
		writer = &kafka.Writer{
			Addr:     kafka.TCP(p.brokers...),
			Balancer: &kafka.Hash{},
		}
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 && p.observer != nil {
				p.observer.ObserveOutboxPublished(n)
			}
		}
	}
}

// PublishBatch moves one batch of unpublished rows to Kafka and returns how many were sent.
func (p *Publisher) PublishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.TraceContext{Traceparent: r.Traceparent, Tracestate: r.Tracestate}.Resume(ctx)
		meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType, TenantID: r.TenantID}
		msg := kafka.Message{
			Topic:   r.EventType,
			Key:     []byte(r.AggregateID),
			Value:   r.Payload,
			Headers: meta.Headers(msgCtx),
		}
		if err := writer.WriteMessages(ctx, msg); err != nil {
			return 0, err
		}
		ids = append(ids, r.ID)
	}

	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}
