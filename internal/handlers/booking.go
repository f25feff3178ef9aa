package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/bookpage-app/bookpage/internal/booking"
	"github.com/bookpage-app/bookpage/internal/metrics"
	"github.com/bookpage-app/bookpage/internal/model"
	"github.com/bookpage-app/bookpage/internal/notify"
)

// IntentCreator opens a payment intent for a pending booking.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amountCents int64, destinationAccount, bookingID string) (clientSecret, intentID string, err error)
}

// IntentRecorder persists the intent id after the booking committed.
type IntentRecorder interface {
	SetPaymentIntent(ctx context.Context, bookingID, intentID string) error
}

// ServiceLister exposes the public service catalog.
type ServiceLister interface {
	ListServices(ctx context.Context, businessID string, activeOnly bool) ([]model.Service, error)
}

// BookingHandler serves the public booking API.
type BookingHandler struct {
	engine   *booking.Engine
	services ServiceLister
	intents  IntentCreator  // nil when online payments are off
	recorder IntentRecorder // nil together with intents
	notifier *notify.Notifier
	validate *validator.Validate
	logger   *slog.Logger
}

func NewBookingHandler(engine *booking.Engine, services ServiceLister, intents IntentCreator, recorder IntentRecorder, notifier *notify.Notifier, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		engine:   engine,
		services: services,
		intents:  intents,
		recorder: recorder,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
	}
}

type slotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Slot  string    `json:"slot"`
	Label string    `json:"label"`
}

type serviceResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DurationMins int    `json:"duration_minutes"`
	PriceCents   int64  `json:"price_cents"`
	IsPaid       bool   `json:"is_paid"`
	PaymentMode  string `json:"payment_mode"`
}

type bookingResponse struct {
	ID            string     `json:"id"`
	BusinessName  string     `json:"business_name"`
	ServiceName   string     `json:"service_name,omitempty"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	AmountCents   int64      `json:"amount_cents"`
	ManageToken   string     `json:"manage_token,omitempty"`
	ClientSecret  string     `json:"client_secret,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toBookingResponse(res *booking.Result, includeToken bool) bookingResponse {
	b := res.Booking
	out := bookingResponse{
		ID:            b.ID,
		BusinessName:  res.Business.Name,
		Start:         b.StartTime,
		End:           b.EndTime,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		AmountCents:   b.AmountCents,
		CancelledAt:   b.CancelledAt,
	}
	if res.Service != nil {
		out.ServiceName = res.Service.Name
	}
	if includeToken {
		out.ManageToken = b.RescheduleToken
	}
	return out
}

// Availability handles GET /businesses/{businessID}/availability.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	businessID := mux.Vars(r)["businessID"]
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
		return
	}
	metrics.AvailabilityRequests.Inc()

	slots, err := h.engine.Availability(r.Context(), businessID, r.URL.Query().Get("service_id"), date)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			Start: s.Start,
			End:   s.End,
			Slot:  s.Start.Format(booking.SlotFormat),
			Label: s.Label,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": out})
}

// Services handles GET /businesses/{businessID}/services.
func (h *BookingHandler) Services(w http.ResponseWriter, r *http.Request) {
	services, err := h.services.ListServices(r.Context(), mux.Vars(r)["businessID"], true)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	out := make([]serviceResponse, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceResponse{
			ID:           svc.ID,
			Name:         svc.Name,
			DurationMins: svc.DurationMins,
			PriceCents:   svc.PriceCents,
			IsPaid:       svc.IsPaid,
			PaymentMode:  string(svc.PaymentMode),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": out})
}

type createBookingRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	ServiceID  string `json:"service_id"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Slot       string `json:"slot" validate:"required"`
	Name       string `json:"name" validate:"required,max=120"`
	Phone      string `json:"phone" validate:"required,max=32"`
	Email      string `json:"email" validate:"omitempty,email"`
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !decodeJSON(w, r, &req) || !validateStruct(w, h.validate, &req) {
		return
	}

	res, err := h.engine.Create(r.Context(), booking.CreateRequest{
		BusinessID:    req.BusinessID,
		ServiceID:     req.ServiceID,
		Date:          req.Date,
		Slot:          req.Slot,
		CustomerName:  req.Name,
		CustomerPhone: req.Phone,
		CustomerEmail: req.Email,
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotUnavailable) {
			metrics.BookingConflicts.Inc()
		}
		writeDomainError(w, h.logger, err)
		return
	}
	metrics.BookingsCreated.Inc()

	out := toBookingResponse(res, true)
	if res.Booking.PaymentStatus == model.PaymentPending {
		out.ClientSecret = h.openIntent(r.Context(), res)
	}
	if h.notifier != nil {
		h.notifier.BookingCreated(res.Booking, res.Business, res.Service)
	}
	writeJSON(w, http.StatusCreated, out)
}

// openIntent runs after the booking committed. Failure leaves the booking
// pending for the sweeper; the customer sees the booking without a payment
// form and can retry from the manage page.
func (h *BookingHandler) openIntent(ctx context.Context, res *booking.Result) string {
	if h.intents == nil {
		return ""
	}
	secret, intentID, err := h.intents.CreateIntent(ctx, res.Booking.AmountCents, res.Business.StripeAccountID, res.Booking.ID)
	if err != nil {
		h.logger.Error("payment intent creation failed", "booking_id", res.Booking.ID, "error", err)
		return ""
	}
	if h.recorder != nil {
		if err := h.recorder.SetPaymentIntent(ctx, res.Booking.ID, intentID); err != nil {
			h.logger.Error("recording payment intent failed", "booking_id", res.Booking.ID, "error", err)
		}
	}
	return secret
}

// Get handles GET /bookings/{token}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Get(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(res, false))
}

type rescheduleRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Slot string `json:"slot" validate:"required"`
}

// Reschedule handles POST /bookings/{token}/reschedule.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) || !validateStruct(w, h.validate, &req) {
		return
	}
	res, err := h.engine.Reschedule(r.Context(), mux.Vars(r)["token"], req.Date, req.Slot)
	if err != nil {
		if errors.Is(err, booking.ErrSlotUnavailable) {
			metrics.BookingConflicts.Inc()
		}
		writeDomainError(w, h.logger, err)
		return
	}
	if h.notifier != nil {
		h.notifier.BookingRescheduled(res.Booking, res.Business, res.Service)
	}
	writeJSON(w, http.StatusOK, toBookingResponse(res, false))
}

// Cancel handles POST /bookings/{token}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Cancel(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	metrics.BookingsCancelled.Inc()
	if h.notifier != nil {
		h.notifier.BookingCancelled(res.Booking, res.Business)
	}
	writeJSON(w, http.StatusOK, toBookingResponse(res, false))
}
