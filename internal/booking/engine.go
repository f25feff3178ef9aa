package booking

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bookpage-app/bookpage/internal/availability"
	"github.com/bookpage-app/bookpage/internal/model"
	"github.com/bookpage-app/bookpage/internal/payments"
)

// Wire formats for the public booking API.
const (
	DateFormat = "2006-01-02"
	SlotFormat = "15:04"
)

// Store is the persistence surface the engine needs. The Postgres
// implementation enforces slot exclusivity with an exclusion constraint;
// CreateBooking and RescheduleBooking return ErrSlotUnavailable when the
// interval is already taken by a confirmed booking.
type Store interface {
	GetBusiness(ctx context.Context, businessID string) (*model.Business, error)
	GetService(ctx context.Context, businessID, serviceID string) (*model.Service, error)

	// ListBookedIntervals returns the confirmed intervals for a business
	// within [from, to). excludeBookingID skips one booking, so a
	// reschedule does not collide with its own current slot.
	ListBookedIntervals(ctx context.Context, businessID string, from, to time.Time, excludeBookingID string) ([]availability.Interval, error)

	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBookingByToken(ctx context.Context, token string) (*model.Booking, error)
	RescheduleBooking(ctx context.Context, bookingID string, start, end time.Time) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, at time.Time) (*model.Booking, error)
}

type Engine struct {
	store    Store
	accounts payments.AccountStatusProvider
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(store Store, accounts payments.AccountStatusProvider, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		accounts: accounts,
		logger:   logger,
		now:      time.Now,
	}
}

type CreateRequest struct {
	BusinessID    string
	ServiceID     string // optional; empty books a default-length slot
	Date          string // DateFormat, business-local
	Slot          string // SlotFormat, business-local start time
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
}

// Result bundles the booking with the context the caller needs afterwards
// (payment intent creation, notifications).
type Result struct {
	Booking  *model.Booking
	Business *model.Business
	Service  *model.Service // nil for free-form bookings
}

// Availability returns the offerable slots for a business on one date.
// serviceID selects the overlap duration; empty uses the business default.
// A deactivated service offers no slots, matching what Create will accept.
func (e *Engine) Availability(ctx context.Context, businessID, serviceID, date string) ([]availability.Slot, error) {
	biz, err := e.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	day, loc, err := e.parseDay(biz, date)
	if err != nil {
		return nil, err
	}
	duration := biz.SlotMinutes
	var svc *model.Service
	if serviceID != "" {
		svc, err = e.store.GetService(ctx, businessID, serviceID)
		if err != nil {
			return nil, err
		}
		if !svc.IsActive {
			return nil, nil
		}
		duration = svc.DurationMins
	}
	busy, err := e.store.ListBookedIntervals(ctx, businessID, day, day.AddDate(0, 0, 1), "")
	if err != nil {
		return nil, err
	}
	hours := biz.HoursFor(day.Weekday())
	return availability.AvailableSlots(day, hours, biz.SlotMinutes, duration, busy, e.now().In(loc)), nil
}

// Create books a slot. The offered grid is recomputed under the request;
// the final word on conflicts belongs to the store, so two concurrent
// creates for the same slot yield exactly one confirmed booking and one
// ErrSlotUnavailable.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	if req.CustomerName == "" {
		return nil, invalid("name", "is required")
	}
	if req.CustomerPhone == "" {
		return nil, invalid("phone", "is required")
	}
	biz, err := e.store.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	var svc *model.Service
	if req.ServiceID != "" {
		svc, err = e.store.GetService(ctx, req.BusinessID, req.ServiceID)
		if err != nil {
			return nil, err
		}
		if !svc.IsActive {
			return nil, invalid("service_id", "service is not bookable")
		}
	}

	start, end, err := e.resolveSlot(ctx, biz, svc, req.Date, req.Slot, "")
	if err != nil {
		return nil, err
	}

	plan, err := e.paymentPlan(ctx, biz, svc)
	if err != nil {
		return nil, err
	}

	now := e.now()
	b := &model.Booking{
		ID:              uuid.NewString(),
		BusinessID:      biz.ID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		StartTime:       start,
		EndTime:         end,
		Status:          model.BookingConfirmed,
		PaymentStatus:   plan.Status,
		AmountCents:     plan.AmountCents,
		RescheduleToken: NewToken(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if svc != nil {
		b.ServiceID = svc.ID
	}
	if err := e.store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	e.logger.Info("booking created",
		"booking_id", b.ID,
		"business_id", b.BusinessID,
		"start", b.StartTime,
		"payment_status", b.PaymentStatus)
	return &Result{Booking: b, Business: biz, Service: svc}, nil
}

// Get looks a booking up by its reschedule token.
func (e *Engine) Get(ctx context.Context, token string) (*Result, error) {
	b, err := e.store.GetBookingByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return e.withContext(ctx, b)
}

// Reschedule moves a booking to a new slot on the same rules as Create.
// The booking's own interval is excluded from the conflict check, so
// moving within or adjacent to the current slot works.
func (e *Engine) Reschedule(ctx context.Context, token, date, slot string) (*Result, error) {
	b, err := e.store.GetBookingByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if b.Status == model.BookingCancelled {
		return nil, ErrBookingCancelled
	}
	biz, err := e.store.GetBusiness(ctx, b.BusinessID)
	if err != nil {
		return nil, err
	}
	var svc *model.Service
	if b.ServiceID != "" {
		svc, err = e.store.GetService(ctx, b.BusinessID, b.ServiceID)
		if err != nil {
			return nil, err
		}
	}
	start, end, err := e.resolveSlot(ctx, biz, svc, date, slot, b.ID)
	if err != nil {
		return nil, err
	}
	updated, err := e.store.RescheduleBooking(ctx, b.ID, start, end)
	if err != nil {
		return nil, err
	}
	e.logger.Info("booking rescheduled", "booking_id", b.ID, "start", start)
	return &Result{Booking: updated, Business: biz, Service: svc}, nil
}

// Cancel cancels a booking. Cancelling an already-cancelled booking is a
// no-op and returns it unchanged.
func (e *Engine) Cancel(ctx context.Context, token string) (*Result, error) {
	b, err := e.store.GetBookingByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingCancelled {
		b, err = e.store.CancelBooking(ctx, b.ID, e.now())
		if err != nil {
			return nil, err
		}
		e.logger.Info("booking cancelled", "booking_id", b.ID)
	}
	return e.withContext(ctx, b)
}

func (e *Engine) withContext(ctx context.Context, b *model.Booking) (*Result, error) {
	biz, err := e.store.GetBusiness(ctx, b.BusinessID)
	if err != nil {
		return nil, err
	}
	var svc *model.Service
	if b.ServiceID != "" {
		if svc, err = e.store.GetService(ctx, b.BusinessID, b.ServiceID); err != nil {
			return nil, err
		}
	}
	return &Result{Booking: b, Business: biz, Service: svc}, nil
}

// resolveSlot validates the requested date and slot against the recomputed
// grid and returns the concrete interval. A slot that is off-grid, in the
// past, or already taken comes back as ErrSlotUnavailable; malformed input
// as a ValidationError.
func (e *Engine) resolveSlot(ctx context.Context, biz *model.Business, svc *model.Service, date, slot, excludeBookingID string) (time.Time, time.Time, error) {
	day, loc, err := e.parseDay(biz, date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	wanted, err := time.Parse(SlotFormat, slot)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("slot", "must be HH:MM")
	}
	wantedMinute := wanted.Hour()*60 + wanted.Minute()

	duration := biz.SlotMinutes
	if svc != nil {
		duration = svc.DurationMins
	}
	busy, err := e.store.ListBookedIntervals(ctx, biz.ID, day, day.AddDate(0, 0, 1), excludeBookingID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	hours := biz.HoursFor(day.Weekday())
	for _, s := range availability.AvailableSlots(day, hours, biz.SlotMinutes, duration, busy, e.now().In(loc)) {
		if s.StartMinute() == wantedMinute {
			return s.Start, s.End, nil
		}
	}
	return time.Time{}, time.Time{}, ErrSlotUnavailable
}

func (e *Engine) parseDay(biz *model.Business, date string) (time.Time, *time.Location, error) {
	loc, err := biz.Location()
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("business timezone: %w", err)
	}
	day, err := time.ParseInLocation(DateFormat, date, loc)
	if err != nil {
		return time.Time{}, nil, invalid("date", "must be YYYY-MM-DD")
	}
	now := e.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if day.Before(today) {
		return time.Time{}, nil, invalid("date", "is in the past")
	}
	return day, loc, nil
}

func (e *Engine) paymentPlan(ctx context.Context, biz *model.Business, svc *model.Service) (payments.Plan, error) {
	var cap payments.Capability
	if svc != nil && svc.IsPaid && svc.PaymentMode == model.PaymentModeOnline {
		var err error
		cap, err = e.accounts.AccountStatus(ctx, biz.StripeAccountID)
		if err != nil {
			return payments.Plan{}, fmt.Errorf("payment account status: %w", err)
		}
	}
	return payments.DecidePlan(svc, cap)
}

// NewToken mints an unguessable reschedule token.
func NewToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
