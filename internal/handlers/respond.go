package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/bookpage-app/bookpage/internal/booking"
	"github.com/bookpage-app/bookpage/internal/payments"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeDomainError maps engine and payment errors to API responses.
// Anything unmapped is a 500 with the detail kept out of the body.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", verr.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "that slot is no longer available")
	case errors.Is(err, booking.ErrBookingCancelled):
		writeError(w, http.StatusGone, "booking_cancelled", "this booking has been cancelled")
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, payments.ErrMisconfigured):
		writeError(w, http.StatusConflict, "payment_misconfigured", "this service cannot be booked until the business finishes payment setup")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "request body must be valid JSON")
		return false
	}
	return true
}

func validateStruct(w http.ResponseWriter, validate *validator.Validate, v any) bool {
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed",
				"invalid field: "+fieldErrs[0].Field())
			return false
		}
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid request")
		return false
	}
	return true
}
