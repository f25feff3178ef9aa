package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookpage-app/bookpage/internal/availability"
	"github.com/bookpage-app/bookpage/internal/booking"
	"github.com/bookpage-app/bookpage/internal/model"
	"github.com/bookpage-app/bookpage/internal/outbox"
	otelx "github.com/bookpage-app/bookpage/libs/otel"
)

const bookingColumns = `id, business_id, service_id, customer_name, customer_phone, customer_email,
	start_time, end_time, status, payment_status, amount_cents, payment_intent_id,
	reschedule_token, cancelled_at, created_at, updated_at`

type bookingEvent struct {
	BookingID     string    `json:"booking_id"`
	BusinessID    string    `json:"business_id"`
	ServiceID     string    `json:"service_id,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	AmountCents   int64     `json:"amount_cents"`
}

func eventFor(b *model.Booking) bookingEvent {
	return bookingEvent{
		BookingID:     b.ID,
		BusinessID:    b.BusinessID,
		ServiceID:     b.ServiceID,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		AmountCents:   b.AmountCents,
	}
}

func (s *Store) emit(ctx context.Context, tx pgx.Tx, topic string, b *model.Booking) error {
	traceparent, _ := otelx.TraceContextStrings(ctx)
	ev, err := outbox.NewEvent(topic, b.BusinessID, eventFor(b), traceparent)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, ev)
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	b := &model.Booking{}
	var serviceID, intentID *string
	err := row.Scan(&b.ID, &b.BusinessID, &serviceID, &b.CustomerName, &b.CustomerPhone, &b.CustomerEmail,
		&b.StartTime, &b.EndTime, &b.Status, &b.PaymentStatus, &b.AmountCents, &intentID,
		&b.RescheduleToken, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	if serviceID != nil {
		b.ServiceID = *serviceID
	}
	if intentID != nil {
		b.PaymentIntentID = *intentID
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateBooking inserts the booking and its outbox event in one
// transaction. An overlapping confirmed booking trips the exclusion
// constraint and comes back as ErrSlotUnavailable.
func (s *Store) CreateBooking(ctx context.Context, b *model.Booking) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, business_id, service_id, customer_name, customer_phone, customer_email,
			start_time, end_time, status, payment_status, amount_cents, reschedule_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		b.ID, b.BusinessID, nullable(b.ServiceID), b.CustomerName, b.CustomerPhone, b.CustomerEmail,
		b.StartTime, b.EndTime, b.Status, b.PaymentStatus, b.AmountCents, b.RescheduleToken).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	if isExclusionConflict(err) {
		return booking.ErrSlotUnavailable
	}
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	if err := s.emit(ctx, tx, outbox.TopicBookingCreated, b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetBookingByToken(ctx context.Context, token string) (*model.Booking, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE reschedule_token = $1`, token)
	return scanBooking(row)
}

// RescheduleBooking moves a confirmed booking. The update re-checks the
// exclusion constraint, which ignores the row's own previous interval, so
// moving into a slot adjacent to itself works and moving onto another
// confirmed booking fails with ErrSlotUnavailable.
func (s *Store) RescheduleBooking(ctx context.Context, bookingID string, start, end time.Time) (*model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET start_time = $2, end_time = $3, updated_at = now()
		WHERE id = $1 AND status = 'confirmed'
		RETURNING `+bookingColumns, bookingID, start, end)
	b, err := scanBooking(row)
	if isExclusionConflict(err) {
		return nil, booking.ErrSlotUnavailable
	}
	if errors.Is(err, booking.ErrNotFound) {
		// Row exists but is cancelled, or is gone entirely.
		var one int
		if lookupErr := s.pool.QueryRow(ctx, `SELECT 1 FROM bookings WHERE id = $1`, bookingID).Scan(&one); lookupErr == nil {
			return nil, booking.ErrBookingCancelled
		}
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, outbox.TopicBookingRescheduled, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// CancelBooking cancels once and is a no-op afterwards. The exclusion
// constraint only covers confirmed rows, so the slot frees up in the same
// transaction that flips the status.
func (s *Store) CancelBooking(ctx context.Context, bookingID string, at time.Time) (*model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'confirmed'
		RETURNING `+bookingColumns, bookingID, at)
	b, err := scanBooking(row)
	if errors.Is(err, booking.ErrNotFound) {
		// Already cancelled or unknown; no event either way.
		row := s.pool.QueryRow(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID)
		return scanBooking(row)
	}
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, outbox.TopicBookingCancelled, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) ListBookedIntervals(ctx context.Context, businessID string, from, to time.Time, excludeBookingID string) ([]availability.Interval, error) {
	exclude := nullable(excludeBookingID)
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE business_id = $1 AND status = 'confirmed'
		  AND start_time < $3 AND end_time > $2
		  AND ($4::uuid IS NULL OR id <> $4::uuid)
		ORDER BY start_time`,
		businessID, from, to, exclude)
	if err != nil {
		return nil, fmt.Errorf("list booked intervals: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// ListByBusiness returns bookings in [from, to) for the owner dashboard,
// newest day first.
func (s *Store) ListByBusiness(ctx context.Context, businessID string, from, to time.Time, includeCancelled bool) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE business_id = $1 AND start_time >= $2 AND start_time < $3`
	if !includeCancelled {
		q += ` AND status = 'confirmed'`
	}
	q += ` ORDER BY start_time`

	rows, err := s.pool.Query(ctx, q, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type Stats struct {
	TodayBookings      int64
	TodayCancellations int64
	UpcomingBookings   int64
	PaidRevenueCents   int64
}

// BookingStats aggregates the owner dashboard counters. dayStart/dayEnd
// bound "today" in the business's timezone; upcoming counts confirmed
// bookings from dayEnd onward.
func (s *Store) BookingStats(ctx context.Context, businessID string, dayStart, dayEnd time.Time) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'confirmed' AND start_time >= $2 AND start_time < $3),
			count(*) FILTER (WHERE status = 'cancelled' AND cancelled_at >= $2 AND cancelled_at < $3),
			count(*) FILTER (WHERE status = 'confirmed' AND start_time >= $3),
			COALESCE(sum(amount_cents) FILTER (WHERE payment_status = 'paid' AND start_time >= $2 AND start_time < $3), 0)
		FROM bookings WHERE business_id = $1`,
		businessID, dayStart, dayEnd).
		Scan(&st.TodayBookings, &st.TodayCancellations, &st.UpcomingBookings, &st.PaidRevenueCents)
	if err != nil {
		return Stats{}, fmt.Errorf("booking stats: %w", err)
	}
	return st, nil
}

// SetPaymentIntent records the intent created for a pending booking after
// the insert transaction committed.
func (s *Store) SetPaymentIntent(ctx context.Context, bookingID, intentID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE bookings SET payment_intent_id = $2, updated_at = now() WHERE id = $1`,
		bookingID, intentID)
	if err != nil {
		return fmt.Errorf("set payment intent: %w", err)
	}
	return nil
}

// MarkBookingPaidByIntent flips a pending booking to paid when the
// processor confirms the intent. Repeat webhook deliveries find no pending
// row and return ErrNotFound.
func (s *Store) MarkBookingPaidByIntent(ctx context.Context, intentID string) (*model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET payment_status = 'paid', updated_at = now()
		WHERE payment_intent_id = $1 AND payment_status = 'pending'
		RETURNING `+bookingColumns, intentID)
	b, err := scanBooking(row)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, outbox.TopicBookingPaid, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// CancelAbandonedPending cancels confirmed bookings whose online payment
// never arrived, releasing their slots. Run by the sweeper job. Each
// cancellation emits its outbox event in the same transaction, like any
// other status transition.
func (s *Store) CancelAbandonedPending(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = now(), updated_at = now()
		WHERE status = 'confirmed' AND payment_status = 'pending' AND created_at < $1
		RETURNING `+bookingColumns, olderThan)
	if err != nil {
		return 0, fmt.Errorf("cancel abandoned bookings: %w", err)
	}
	var cancelled []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		cancelled = append(cancelled, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("cancel abandoned bookings: %w", err)
	}
	rows.Close()

	for _, b := range cancelled {
		if err := s.emit(ctx, tx, outbox.TopicBookingCancelled, b); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int64(len(cancelled)), nil
}
