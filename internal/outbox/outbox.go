package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookpage-app/bookpage/libs/db"
)

// Topics carrying booking lifecycle events.
const (
	TopicBookingCreated     = "booking.created"
	TopicBookingRescheduled = "booking.rescheduled"
	TopicBookingCancelled   = "booking.cancelled"
	TopicBookingPaid        = "booking.paid"
)

// Event is one row of the transactional outbox. Rows are written in the
// same transaction as the state change they describe and published to
// Kafka by the polling Publisher.
type Event struct {
	ID          string
	Topic       string
	Key         string
	Payload     []byte
	Traceparent string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewEvent marshals payload and stamps the current trace context so the
// publisher can link the Kafka message back to the originating request.
func NewEvent(topic, key string, payload any, traceparent string) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return &Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		Key:         key,
		Payload:     body,
		Traceparent: traceparent,
	}, nil
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes the event inside the caller's transaction.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, ev *Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (id, topic, key, payload, traceparent, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		ev.ID, ev.Topic, ev.Key, ev.Payload, ev.Traceparent)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchUnpublished returns the oldest unpublished events. The service
// runs a single publisher loop; duplicate delivery on restart is fine
// because consumers treat booking events as idempotent.
func (r *Repository) FetchUnpublished(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, topic, key, payload, traceparent, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Key, &ev.Payload, &ev.Traceparent, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET published_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return nil
}
