package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bookpage-app/bookpage/internal/model"
	"github.com/bookpage-app/bookpage/internal/payments"
)

func testEngine(t *testing.T, chargesEnabled bool) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	store.PutBusiness(&model.Business{
		ID:          "biz-1",
		Name:        "Fade Factory",
		Timezone:    "UTC",
		SlotMinutes: 30,
		Hours: []model.DayHours{
			{Weekday: 3, Enabled: true, OpenMinute: 9 * 60, CloseMinute: 17 * 60},
		},
	})
	store.PutService(&model.Service{
		ID: "svc-cut", BusinessID: "biz-1", Name: "Haircut",
		DurationMins: 30, IsPaid: false, PaymentMode: model.PaymentModeFree, IsActive: true,
	})
	store.PutService(&model.Service{
		ID: "svc-color", BusinessID: "biz-1", Name: "Color",
		DurationMins: 90, PriceCents: 8000, IsPaid: true, PaymentMode: model.PaymentModeOnline, IsActive: true,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := NewEngine(store, payments.StaticProvider{Enabled: chargesEnabled}, logger)
	// 2026-02-04 is a Wednesday.
	eng.now = func() time.Time { return time.Date(2026, 2, 4, 8, 0, 0, 0, time.UTC) }
	return eng, store
}

func mustCreate(t *testing.T, eng *Engine, slot string) *Result {
	t.Helper()
	res, err := eng.Create(context.Background(), CreateRequest{
		BusinessID:    "biz-1",
		ServiceID:     "svc-cut",
		Date:          "2026-02-04",
		Slot:          slot,
		CustomerName:  "Dana",
		CustomerPhone: "+15550100",
	})
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", slot, err)
	}
	return res
}

func TestCreate_BooksSlot(t *testing.T) {
	eng, _ := testEngine(t, false)
	res := mustCreate(t, eng, "10:00")

	b := res.Booking
	if b.Status != model.BookingConfirmed {
		t.Fatalf("expected confirmed, got %s", b.Status)
	}
	if b.PaymentStatus != model.PaymentNotRequired {
		t.Fatalf("free service must not require payment, got %s", b.PaymentStatus)
	}
	if b.RescheduleToken == "" {
		t.Fatal("expected a reschedule token")
	}
	if got := b.StartTime.Format("15:04"); got != "10:00" {
		t.Fatalf("expected start 10:00, got %s", got)
	}
	if b.EndTime.Sub(b.StartTime) != 30*time.Minute {
		t.Fatalf("expected 30m booking, got %s", b.EndTime.Sub(b.StartTime))
	}
}

func TestCreate_TakenSlotRejected(t *testing.T) {
	eng, _ := testEngine(t, false)
	mustCreate(t, eng, "10:00")

	_, err := eng.Create(context.Background(), CreateRequest{
		BusinessID: "biz-1", ServiceID: "svc-cut",
		Date: "2026-02-04", Slot: "10:00", CustomerName: "Eve", CustomerPhone: "+15550100",
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestCreate_ConcurrentSameSlot(t *testing.T) {
	eng, _ := testEngine(t, false)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Create(context.Background(), CreateRequest{
				BusinessID: "biz-1", ServiceID: "svc-cut",
				Date: "2026-02-04", Slot: "11:00", CustomerName: "Racer", CustomerPhone: "+15550100",
			})
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotUnavailable):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != n-1 {
		t.Fatalf("expected exactly 1 confirmed and %d conflicts, got %d/%d", n-1, ok, conflict)
	}
}

func TestCreate_PastDateRejected(t *testing.T) {
	eng, _ := testEngine(t, false)
	_, err := eng.Create(context.Background(), CreateRequest{
		BusinessID: "biz-1", ServiceID: "svc-cut",
		Date: "2026-02-03", Slot: "10:00", CustomerName: "Dana", CustomerPhone: "+15550100",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for past date, got %v", err)
	}
}

func TestCreate_OffGridSlotRejected(t *testing.T) {
	eng, _ := testEngine(t, false)
	_, err := eng.Create(context.Background(), CreateRequest{
		BusinessID: "biz-1", ServiceID: "svc-cut",
		Date: "2026-02-04", Slot: "10:15", CustomerName: "Dana", CustomerPhone: "+15550100",
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for off-grid slot, got %v", err)
	}
}

func TestCreate_OnlinePaymentMisconfigured(t *testing.T) {
	eng, _ := testEngine(t, false)
	_, err := eng.Create(context.Background(), CreateRequest{
		BusinessID: "biz-1", ServiceID: "svc-color",
		Date: "2026-02-04", Slot: "13:00", CustomerName: "Dana", CustomerPhone: "+15550100",
	})
	if !errors.Is(err, payments.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}

func TestCreate_OnlinePaymentPending(t *testing.T) {
	eng, _ := testEngine(t, true)
	res, err := eng.Create(context.Background(), CreateRequest{
		BusinessID: "biz-1", ServiceID: "svc-color",
		Date: "2026-02-04", Slot: "13:00", CustomerName: "Dana", CustomerPhone: "+15550100",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if res.Booking.PaymentStatus != model.PaymentPending {
		t.Fatalf("expected pending payment, got %s", res.Booking.PaymentStatus)
	}
	if res.Booking.AmountCents != 8000 {
		t.Fatalf("expected amount 8000, got %d", res.Booking.AmountCents)
	}
}

func TestReschedule_SelfSlotDoesNotConflict(t *testing.T) {
	eng, _ := testEngine(t, false)
	res := mustCreate(t, eng, "10:00")

	// Moving to an overlapping slot must succeed: the booking's own
	// interval is excluded from the conflict check.
	moved, err := eng.Reschedule(context.Background(), res.Booking.RescheduleToken, "2026-02-04", "10:00")
	if err != nil {
		t.Fatalf("reschedule to same slot failed: %v", err)
	}
	if got := moved.Booking.StartTime.Format("15:04"); got != "10:00" {
		t.Fatalf("expected 10:00, got %s", got)
	}

	moved, err = eng.Reschedule(context.Background(), res.Booking.RescheduleToken, "2026-02-04", "14:00")
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if got := moved.Booking.StartTime.Format("15:04"); got != "14:00" {
		t.Fatalf("expected 14:00, got %s", got)
	}
}

func TestReschedule_FreedSlotBecomesBookable(t *testing.T) {
	eng, _ := testEngine(t, false)
	res := mustCreate(t, eng, "10:00")

	if _, err := eng.Reschedule(context.Background(), res.Booking.RescheduleToken, "2026-02-04", "15:00"); err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	// The old slot is free again.
	mustCreate(t, eng, "10:00")
}

func TestReschedule_IntoTakenSlotRejected(t *testing.T) {
	eng, _ := testEngine(t, false)
	mustCreate(t, eng, "10:00")
	res := mustCreate(t, eng, "11:00")

	_, err := eng.Reschedule(context.Background(), res.Booking.RescheduleToken, "2026-02-04", "10:00")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestReschedule_CancelledBookingRejected(t *testing.T) {
	eng, _ := testEngine(t, false)
	res := mustCreate(t, eng, "10:00")
	if _, err := eng.Cancel(context.Background(), res.Booking.RescheduleToken); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	_, err := eng.Reschedule(context.Background(), res.Booking.RescheduleToken, "2026-02-04", "11:00")
	if !errors.Is(err, ErrBookingCancelled) {
		t.Fatalf("expected ErrBookingCancelled, got %v", err)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	eng, _ := testEngine(t, false)
	res := mustCreate(t, eng, "10:00")

	first, err := eng.Cancel(context.Background(), res.Booking.RescheduleToken)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if first.Booking.Status != model.BookingCancelled || first.Booking.CancelledAt == nil {
		t.Fatalf("expected cancelled booking, got %+v", first.Booking)
	}

	second, err := eng.Cancel(context.Background(), res.Booking.RescheduleToken)
	if err != nil {
		t.Fatalf("repeated cancel failed: %v", err)
	}
	if !second.Booking.CancelledAt.Equal(*first.Booking.CancelledAt) {
		t.Fatal("repeated cancel must not move cancelled_at")
	}
}

func TestCancel_FreesSlot(t *testing.T) {
	eng, _ := testEngine(t, false)
	res := mustCreate(t, eng, "10:00")
	if _, err := eng.Cancel(context.Background(), res.Booking.RescheduleToken); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	mustCreate(t, eng, "10:00")
}

func TestAvailability_ReflectsBookings(t *testing.T) {
	eng, _ := testEngine(t, false)
	mustCreate(t, eng, "10:00")

	slots, err := eng.Availability(context.Background(), "biz-1", "svc-cut", "2026-02-04")
	if err != nil {
		t.Fatalf("Availability failed: %v", err)
	}
	for _, s := range slots {
		if s.Label == "10:00 AM" {
			t.Fatal("booked slot must not be offered")
		}
	}
}

func TestAvailability_InactiveServiceOffersNothing(t *testing.T) {
	eng, store := testEngine(t, false)
	store.PutService(&model.Service{
		ID: "svc-old", BusinessID: "biz-1", Name: "Retired",
		DurationMins: 30, PaymentMode: model.PaymentModeFree, IsActive: false,
	})

	// What availability offers, create must accept; a deactivated service
	// gets no slots rather than a full day the engine would then refuse.
	slots, err := eng.Availability(context.Background(), "biz-1", "svc-old", "2026-02-04")
	if err != nil {
		t.Fatalf("Availability failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("inactive service must offer no slots, got %d", len(slots))
	}

	_, err = eng.Create(context.Background(), CreateRequest{
		BusinessID: "biz-1", ServiceID: "svc-old",
		Date: "2026-02-04", Slot: "10:00", CustomerName: "Dana", CustomerPhone: "+15550100",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for inactive service, got %v", err)
	}
}

func TestGet_UnknownToken(t *testing.T) {
	eng, _ := testEngine(t, false)
	if _, err := eng.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewToken_UniqueAndURLSafe(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok := NewToken()
		if len(tok) != 43 {
			t.Fatalf("expected 43-char token, got %d", len(tok))
		}
		if seen[tok] {
			t.Fatal("duplicate token")
		}
		seen[tok] = true
	}
}
