package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookpage-app/bookpage/internal/booking"
	"github.com/bookpage-app/bookpage/internal/model"
)

func (s *Store) GetBusiness(ctx context.Context, businessID string) (*model.Business, error) {
	b := &model.Business{}
	var stripeAccountID *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, timezone, slot_minutes, stripe_account_id, created_at
		FROM businesses WHERE id = $1`, businessID).
		Scan(&b.ID, &b.Name, &b.Timezone, &b.SlotMinutes, &stripeAccountID, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	if stripeAccountID != nil {
		b.StripeAccountID = *stripeAccountID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT weekday, enabled, open_minute, close_minute
		FROM business_hours WHERE business_id = $1 ORDER BY weekday`, businessID)
	if err != nil {
		return nil, fmt.Errorf("get business hours: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h model.DayHours
		if err := rows.Scan(&h.Weekday, &h.Enabled, &h.OpenMinute, &h.CloseMinute); err != nil {
			return nil, fmt.Errorf("scan business hours: %w", err)
		}
		b.Hours = append(b.Hours, h)
	}
	return b, rows.Err()
}

// UpdateSchedule replaces the weekly hours and grid settings in one
// transaction, so the public availability endpoint never sees a half
// written week.
func (s *Store) UpdateSchedule(ctx context.Context, businessID, timezone string, slotMinutes int, hours []model.DayHours) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE businesses SET timezone = $2, slot_minutes = $3 WHERE id = $1`,
		businessID, timezone, slotMinutes)
	if err != nil {
		return fmt.Errorf("update business: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM business_hours WHERE business_id = $1`, businessID); err != nil {
		return fmt.Errorf("clear business hours: %w", err)
	}
	for _, h := range hours {
		if _, err := tx.Exec(ctx, `
			INSERT INTO business_hours (business_id, weekday, enabled, open_minute, close_minute)
			VALUES ($1, $2, $3, $4, $5)`,
			businessID, h.Weekday, h.Enabled, h.OpenMinute, h.CloseMinute); err != nil {
			return fmt.Errorf("insert business hours: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetService(ctx context.Context, businessID, serviceID string) (*model.Service, error) {
	svc := &model.Service{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, price_cents, is_paid, payment_mode, is_active, sort_order, created_at
		FROM services WHERE id = $1 AND business_id = $2`, serviceID, businessID).
		Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMins, &svc.PriceCents,
			&svc.IsPaid, &svc.PaymentMode, &svc.IsActive, &svc.SortOrder, &svc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

// ListServices returns a business's catalog. activeOnly hides deactivated
// services from the public booking page; the owner dashboard passes false.
func (s *Store) ListServices(ctx context.Context, businessID string, activeOnly bool) ([]model.Service, error) {
	q := `
		SELECT id, business_id, name, duration_minutes, price_cents, is_paid, payment_mode, is_active, sort_order, created_at
		FROM services WHERE business_id = $1`
	if activeOnly {
		q += ` AND is_active`
	}
	q += ` ORDER BY sort_order, name`

	rows, err := s.pool.Query(ctx, q, businessID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMins, &svc.PriceCents,
			&svc.IsPaid, &svc.PaymentMode, &svc.IsActive, &svc.SortOrder, &svc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *Store) CreateService(ctx context.Context, svc *model.Service) error {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO services (id, business_id, name, duration_minutes, price_cents, is_paid, payment_mode, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		svc.ID, svc.BusinessID, svc.Name, svc.DurationMins, svc.PriceCents,
		svc.IsPaid, svc.PaymentMode, svc.IsActive, svc.SortOrder).
		Scan(&svc.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("service %q already exists", svc.Name)
	}
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

func (s *Store) UpdateService(ctx context.Context, svc *model.Service) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE services
		SET name = $3, duration_minutes = $4, price_cents = $5, is_paid = $6,
		    payment_mode = $7, is_active = $8, sort_order = $9
		WHERE id = $1 AND business_id = $2`,
		svc.ID, svc.BusinessID, svc.Name, svc.DurationMins, svc.PriceCents,
		svc.IsPaid, svc.PaymentMode, svc.IsActive, svc.SortOrder)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// DeleteService removes a service. Existing bookings keep their interval;
// the FK sets their service_id to NULL.
func (s *Store) DeleteService(ctx context.Context, businessID, serviceID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM services WHERE id = $1 AND business_id = $2`, serviceID, businessID)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}
