package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bookpage-app/bookpage/libs/kafkax"
	otelx "github.com/bookpage-app/bookpage/libs/otel"
)

// Publisher drains the outbox into Kafka on a fixed poll interval.
type Publisher struct {
	repo     *Repository
	writer   *kafka.Writer
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewPublisher(repo *Repository, brokers []string, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo: repo,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger:   logger,
		interval: 2 * time.Second,
		batch:    100,
	}
}

// Run polls until ctx is cancelled. Publish failures are logged and
// retried on the next tick; an event is only marked published after the
// write is acknowledged.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.writer.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	events, err := p.repo.FetchUnpublished(ctx, p.batch)
	if err != nil {
		p.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, ev := range events {
		msg := kafka.Message{
			Topic: ev.Topic,
			Key:   []byte(ev.Key),
			Value: ev.Payload,
		}
		// Re-propagate the trace the event was written under.
		msgCtx := otelx.ContextWithTraceContext(ctx, ev.Traceparent, "")
		msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Error("outbox publish failed", "topic", ev.Topic, "event_id", ev.ID, "error", err)
			return
		}
		if err := p.repo.MarkPublished(ctx, ev.ID); err != nil {
			p.logger.Error("outbox mark published failed", "event_id", ev.ID, "error", err)
			return
		}
	}
}
