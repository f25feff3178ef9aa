package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/bookpage-app/bookpage/internal/booking"
	"github.com/bookpage-app/bookpage/internal/identity"
	"github.com/bookpage-app/bookpage/internal/model"
	"github.com/bookpage-app/bookpage/internal/payments"
	"github.com/bookpage-app/bookpage/internal/storage"
)

// OwnerStore is the persistence surface of the dashboard API.
type OwnerStore interface {
	GetBusiness(ctx context.Context, businessID string) (*model.Business, error)
	UpdateSchedule(ctx context.Context, businessID, timezone string, slotMinutes int, hours []model.DayHours) error
	ListServices(ctx context.Context, businessID string, activeOnly bool) ([]model.Service, error)
	CreateService(ctx context.Context, svc *model.Service) error
	UpdateService(ctx context.Context, svc *model.Service) error
	DeleteService(ctx context.Context, businessID, serviceID string) error
	ListByBusiness(ctx context.Context, businessID string, from, to time.Time, includeCancelled bool) ([]model.Booking, error)
	BookingStats(ctx context.Context, businessID string, dayStart, dayEnd time.Time) (storage.Stats, error)
}

// OwnerHandler serves the authenticated dashboard API. The business is
// always the one on the caller's credentials; path ids are never trusted.
type OwnerHandler struct {
	store    OwnerStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewOwnerHandler(store OwnerStore, logger *slog.Logger) *OwnerHandler {
	return &OwnerHandler{store: store, validate: validator.New(), logger: logger}
}

type dayHoursPayload struct {
	Weekday     int  `json:"weekday" validate:"min=0,max=6"`
	Enabled     bool `json:"enabled"`
	OpenMinute  int  `json:"open_minute" validate:"min=0,max=1439"`
	CloseMinute int  `json:"close_minute" validate:"min=0,max=1440"`
}

type schedulePayload struct {
	Timezone    string            `json:"timezone" validate:"required"`
	SlotMinutes int               `json:"slot_minutes" validate:"required,min=5,max=240"`
	Hours       []dayHoursPayload `json:"hours" validate:"required,max=7,dive"`
}

// GetSchedule handles GET /owner/schedule.
func (h *OwnerHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	biz, err := h.store.GetBusiness(r.Context(), user.BusinessID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	hours := make([]dayHoursPayload, 0, len(biz.Hours))
	for _, d := range biz.Hours {
		hours = append(hours, dayHoursPayload{
			Weekday: d.Weekday, Enabled: d.Enabled,
			OpenMinute: d.OpenMinute, CloseMinute: d.CloseMinute,
		})
	}
	writeJSON(w, http.StatusOK, schedulePayload{
		Timezone:    biz.Timezone,
		SlotMinutes: biz.SlotMinutes,
		Hours:       hours,
	})
}

// UpdateSchedule handles PUT /owner/schedule.
func (h *OwnerHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req schedulePayload
	if !decodeJSON(w, r, &req) || !validateStruct(w, h.validate, &req) {
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "unknown timezone")
		return
	}
	hours := make([]model.DayHours, 0, len(req.Hours))
	for _, d := range req.Hours {
		dh := model.DayHours{
			Weekday: d.Weekday, Enabled: d.Enabled,
			OpenMinute: d.OpenMinute, CloseMinute: d.CloseMinute,
		}
		if err := dh.Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
			return
		}
		hours = append(hours, dh)
	}

	user := identity.FromContext(r.Context())
	if err := h.store.UpdateSchedule(r.Context(), user.BusinessID, req.Timezone, req.SlotMinutes, hours); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type servicePayload struct {
	Name         string `json:"name" validate:"required,max=120"`
	DurationMins int    `json:"duration_minutes" validate:"required,min=5,max=480"`
	PriceCents   int64  `json:"price_cents" validate:"min=0"`
	IsPaid       bool   `json:"is_paid"`
	PaymentMode  string `json:"payment_mode" validate:"required,oneof=online in_store free"`
	IsActive     bool   `json:"is_active"`
	SortOrder    int    `json:"sort_order"`
}

func (p servicePayload) toModel(businessID, id string) (*model.Service, error) {
	svc := &model.Service{
		ID:           id,
		BusinessID:   businessID,
		Name:         p.Name,
		DurationMins: p.DurationMins,
		PriceCents:   p.PriceCents,
		IsPaid:       p.IsPaid,
		PaymentMode:  model.PaymentMode(p.PaymentMode),
		IsActive:     p.IsActive,
		SortOrder:    p.SortOrder,
	}
	return svc, svc.Validate()
}

// checkPaymentSetup enforces at write time that an online-paid service is
// only published on a business with a connected payment account; otherwise
// every customer would dead-end at booking time.
func (h *OwnerHandler) checkPaymentSetup(ctx context.Context, svc *model.Service) error {
	if !svc.IsPaid || svc.PaymentMode != model.PaymentModeOnline {
		return nil
	}
	biz, err := h.store.GetBusiness(ctx, svc.BusinessID)
	if err != nil {
		return err
	}
	if biz.StripeAccountID == "" {
		return payments.ErrMisconfigured
	}
	return nil
}

// ListServices handles GET /owner/services, deactivated ones included.
func (h *OwnerHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	services, err := h.store.ListServices(r.Context(), user.BusinessID, false)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// CreateService handles POST /owner/services.
func (h *OwnerHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req servicePayload
	if !decodeJSON(w, r, &req) || !validateStruct(w, h.validate, &req) {
		return
	}
	user := identity.FromContext(r.Context())
	svc, err := req.toModel(user.BusinessID, "")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}
	if err := h.checkPaymentSetup(r.Context(), svc); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if err := h.store.CreateService(r.Context(), svc); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// UpdateService handles PUT /owner/services/{serviceID}.
func (h *OwnerHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req servicePayload
	if !decodeJSON(w, r, &req) || !validateStruct(w, h.validate, &req) {
		return
	}
	user := identity.FromContext(r.Context())
	svc, err := req.toModel(user.BusinessID, mux.Vars(r)["serviceID"])
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}
	if err := h.checkPaymentSetup(r.Context(), svc); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if err := h.store.UpdateService(r.Context(), svc); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// DeleteService handles DELETE /owner/services/{serviceID}.
func (h *OwnerHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	if err := h.store.DeleteService(r.Context(), user.BusinessID, mux.Vars(r)["serviceID"]); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBookings handles GET /owner/bookings?from=&to=&include_cancelled=.
// Defaults to the next seven days.
func (h *OwnerHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	biz, err := h.store.GetBusiness(r.Context(), user.BusinessID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	loc, err := biz.Location()
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 7)
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.ParseInLocation(booking.DateFormat, v, loc); err != nil {
			writeError(w, http.StatusBadRequest, "bad_date", "from must be YYYY-MM-DD")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.ParseInLocation(booking.DateFormat, v, loc); err != nil {
			writeError(w, http.StatusBadRequest, "bad_date", "to must be YYYY-MM-DD")
			return
		}
	}
	includeCancelled := r.URL.Query().Get("include_cancelled") == "true"

	bookings, err := h.store.ListByBusiness(r.Context(), user.BusinessID, from, to, includeCancelled)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// Stats handles GET /owner/stats.
func (h *OwnerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	biz, err := h.store.GetBusiness(r.Context(), user.BusinessID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	loc, err := biz.Location()
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	stats, err := h.store.BookingStats(r.Context(), user.BusinessID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"today_bookings":      stats.TodayBookings,
		"today_cancellations": stats.TodayCancellations,
		"upcoming_bookings":   stats.UpcomingBookings,
		"paid_revenue_cents":  stats.PaidRevenueCents,
	})
}
