package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/bookpage-app/bookpage/internal/booking"
	"github.com/bookpage-app/bookpage/internal/model"
)

const webhookBodyLimit = 64 << 10

// PaymentMarker flips a pending booking to paid by its intent id.
type PaymentMarker interface {
	MarkBookingPaidByIntent(ctx context.Context, intentID string) (*model.Booking, error)
}

// StripeWebhookHandler verifies and applies payment events. Stripe retries
// until it gets a 2xx, so unknown events and repeat deliveries return 200.
type StripeWebhookHandler struct {
	store         PaymentMarker
	signingSecret string
	logger        *slog.Logger
}

func NewStripeWebhookHandler(store PaymentMarker, signingSecret string, logger *slog.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{store: store, signingSecret: signingSecret, logger: logger}
}

func (h *StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "could not read request body")
		return
	}
	event, err := webhook.ConstructEventWithTolerance(body, r.Header.Get("Stripe-Signature"), h.signingSecret, 5*time.Minute)
	if err != nil {
		h.logger.Warn("stripe webhook signature rejected", "error", err)
		writeError(w, http.StatusBadRequest, "bad_signature", "signature verification failed")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			h.logger.Error("stripe event unmarshal failed", "event_id", event.ID, "error", err)
			writeError(w, http.StatusBadRequest, "bad_event", "could not parse event")
			return
		}
		b, err := h.store.MarkBookingPaidByIntent(r.Context(), intent.ID)
		switch {
		case errors.Is(err, booking.ErrNotFound):
			// Already paid, or an intent we never issued.
			h.logger.Info("payment intent with no pending booking", "intent_id", intent.ID)
		case err != nil:
			writeDomainError(w, h.logger, err)
			return
		default:
			h.logger.Info("booking paid", "booking_id", b.ID, "intent_id", intent.ID)
		}
	default:
		h.logger.Debug("ignoring stripe event", "type", event.Type)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
