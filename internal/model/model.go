package model

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentPayInStore  PaymentStatus = "pay_in_store"
)

type PaymentMode string

const (
	PaymentModeOnline  PaymentMode = "online"
	PaymentModeInStore PaymentMode = "in_store"
	PaymentModeFree    PaymentMode = "free"
)

// DayHours is one weekday row of a business's weekly schedule.
// Weekday follows time.Weekday numbering (0 = Sunday).
type DayHours struct {
	Weekday     int
	Enabled     bool
	OpenMinute  int
	CloseMinute int
}

func (d DayHours) Validate() error {
	if d.Weekday < 0 || d.Weekday > 6 {
		return fmt.Errorf("weekday must be between 0 and 6")
	}
	if !d.Enabled {
		return nil
	}
	if d.OpenMinute < 0 || d.OpenMinute >= 24*60 {
		return fmt.Errorf("open_minute out of range")
	}
	if d.CloseMinute <= 0 || d.CloseMinute > 24*60 {
		return fmt.Errorf("close_minute out of range")
	}
	if d.OpenMinute >= d.CloseMinute {
		return fmt.Errorf("open_minute must be before close_minute")
	}
	return nil
}

type Business struct {
	ID              string
	Name            string
	Timezone        string
	SlotMinutes     int // default grid step for the public booking page
	StripeAccountID string
	Hours           []DayHours
	CreatedAt       time.Time
}

// Location resolves the business's configured IANA timezone. All day
// boundaries and "now" comparisons are evaluated in this location.
func (b Business) Location() (*time.Location, error) {
	tz := b.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return time.LoadLocation(tz)
}

// HoursFor returns the schedule row for a weekday; a missing row means closed.
func (b Business) HoursFor(wd time.Weekday) DayHours {
	for _, h := range b.Hours {
		if h.Weekday == int(wd) {
			return h
		}
	}
	return DayHours{Weekday: int(wd), Enabled: false}
}

type Service struct {
	ID           string
	BusinessID   string
	Name         string
	DurationMins int
	PriceCents   int64
	IsPaid       bool
	PaymentMode  PaymentMode
	IsActive     bool
	SortOrder    int
	CreatedAt    time.Time
}

func (s Service) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.DurationMins <= 0 {
		return fmt.Errorf("duration_minutes must be positive")
	}
	if s.PriceCents < 0 {
		return fmt.Errorf("price must not be negative")
	}
	switch s.PaymentMode {
	case PaymentModeOnline, PaymentModeInStore, PaymentModeFree:
	default:
		return fmt.Errorf("unknown payment_mode %q", s.PaymentMode)
	}
	if !s.IsPaid && s.PaymentMode != PaymentModeFree {
		return fmt.Errorf("unpaid services must use payment_mode free")
	}
	if s.IsPaid && s.PaymentMode == PaymentModeFree {
		return fmt.Errorf("paid services need payment_mode online or in_store")
	}
	return nil
}

type Booking struct {
	ID              string
	BusinessID      string
	ServiceID       string // empty for legacy free-form bookings
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	StartTime       time.Time
	EndTime         time.Time
	Status          BookingStatus
	PaymentStatus   PaymentStatus
	AmountCents     int64
	PaymentIntentID string
	RescheduleToken string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
