package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/bookpage-app/bookpage/internal/booking"
	"github.com/bookpage-app/bookpage/internal/model"
)

const testSigningSecret = "whsec_test_secret"

type fakeMarker struct {
	marked []string
}

func (f *fakeMarker) MarkBookingPaidByIntent(_ context.Context, intentID string) (*model.Booking, error) {
	if intentID == "pi_known" {
		f.marked = append(f.marked, intentID)
		return &model.Booking{ID: "bk-1", PaymentStatus: model.PaymentPaid}, nil
	}
	return nil, booking.ErrNotFound
}

func signedRequest(t *testing.T, eventType, intentID string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":     intentID,
				"object": "payment_intent",
				"status": "succeeded",
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSigningSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestWebhook_PaymentSucceeded(t *testing.T) {
	marker := &fakeMarker{}
	h := NewStripeWebhookHandler(marker, testSigningSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, "payment_intent.succeeded", "pi_known"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(marker.marked) != 1 || marker.marked[0] != "pi_known" {
		t.Fatalf("expected pi_known marked paid, got %v", marker.marked)
	}
}

func TestWebhook_RepeatDeliveryStill200(t *testing.T) {
	marker := &fakeMarker{}
	h := NewStripeWebhookHandler(marker, testSigningSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// No pending booking matches this intent; Stripe must not retry.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, "payment_intent.succeeded", "pi_unknown"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(marker.marked) != 0 {
		t.Fatalf("nothing should be marked, got %v", marker.marked)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	h := NewStripeWebhookHandler(&fakeMarker{}, testSigningSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	marker := &fakeMarker{}
	h := NewStripeWebhookHandler(marker, testSigningSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, "charge.refunded", "pi_known"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(marker.marked) != 0 {
		t.Fatal("unrelated event must not mark anything")
	}
}
