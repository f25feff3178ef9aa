package booking

import (
	"context"
	"sync"
	"time"

	"github.com/bookpage-app/bookpage/internal/availability"
	"github.com/bookpage-app/bookpage/internal/model"
)

// MemoryStore is a mutex-guarded Store for tests. Conflict checks run
// under the lock, mirroring the exclusion constraint the Postgres store
// relies on.
type MemoryStore struct {
	mu         sync.Mutex
	businesses map[string]*model.Business
	services   map[string]*model.Service
	bookings   map[string]*model.Booking
	byToken    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]*model.Business),
		services:   make(map[string]*model.Service),
		bookings:   make(map[string]*model.Booking),
		byToken:    make(map[string]string),
	}
}

func (s *MemoryStore) PutBusiness(b *model.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

func (s *MemoryStore) PutService(svc *model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *MemoryStore) GetBusiness(_ context.Context, businessID string) (*model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[businessID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) GetService(_ context.Context, businessID, serviceID string) (*model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.BusinessID != businessID {
		return nil, ErrNotFound
	}
	cp := *svc
	return &cp, nil
}

func (s *MemoryStore) ListServices(_ context.Context, businessID string, activeOnly bool) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Service
	for _, svc := range s.services {
		if svc.BusinessID != businessID || (activeOnly && !svc.IsActive) {
			continue
		}
		out = append(out, *svc)
	}
	return out, nil
}

func (s *MemoryStore) ListBookedIntervals(_ context.Context, businessID string, from, to time.Time, excludeBookingID string) ([]availability.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []availability.Interval
	for _, b := range s.bookings {
		if b.BusinessID != businessID || b.Status != model.BookingConfirmed || b.ID == excludeBookingID {
			continue
		}
		if b.StartTime.Before(to) && from.Before(b.EndTime) {
			out = append(out, availability.Interval{Start: b.StartTime, End: b.EndTime})
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateBooking(_ context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictsLocked(b.BusinessID, b.StartTime, b.EndTime, "") {
		return ErrSlotUnavailable
	}
	cp := *b
	s.bookings[b.ID] = &cp
	s.byToken[b.RescheduleToken] = b.ID
	return nil
}

func (s *MemoryStore) GetBookingByToken(_ context.Context, token string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.bookings[id]
	return &cp, nil
}

func (s *MemoryStore) RescheduleBooking(_ context.Context, bookingID string, start, end time.Time) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Status == model.BookingCancelled {
		return nil, ErrBookingCancelled
	}
	if s.conflictsLocked(b.BusinessID, start, end, bookingID) {
		return nil, ErrSlotUnavailable
	}
	b.StartTime = start
	b.EndTime = end
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) CancelBooking(_ context.Context, bookingID string, at time.Time) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Status != model.BookingCancelled {
		b.Status = model.BookingCancelled
		b.CancelledAt = &at
		b.UpdatedAt = at
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) conflictsLocked(businessID string, start, end time.Time, excludeID string) bool {
	for _, other := range s.bookings {
		if other.BusinessID != businessID || other.Status != model.BookingConfirmed || other.ID == excludeID {
			continue
		}
		if start.Before(other.EndTime) && other.StartTime.Before(end) {
			return true
		}
	}
	return false
}
