package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bookpage-app/bookpage/internal/metrics"
)

type stubCanceller struct {
	cutoff time.Time
	calls  int
	n      int64
	err    error
}

func (s *stubCanceller) CancelAbandonedPending(_ context.Context, olderThan time.Time) (int64, error) {
	s.calls++
	s.cutoff = olderThan
	return s.n, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweep_CancelsAndCounts(t *testing.T) {
	store := &stubCanceller{n: 3}
	sw := NewSweeper(store, discardLogger(), 30*time.Minute)

	before := testutil.ToFloat64(metrics.BookingsCancelled)
	sw.sweep(context.Background())

	if store.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", store.calls)
	}
	want := time.Now().Add(-30 * time.Minute)
	if store.cutoff.Before(want.Add(-time.Minute)) || store.cutoff.After(want.Add(time.Minute)) {
		t.Fatalf("cutoff %v not near %v", store.cutoff, want)
	}
	if got := testutil.ToFloat64(metrics.BookingsCancelled) - before; got != 3 {
		t.Fatalf("expected cancelled counter +3, got +%v", got)
	}
}

func TestSweep_ErrorDoesNotCount(t *testing.T) {
	store := &stubCanceller{err: errors.New("db down")}
	sw := NewSweeper(store, discardLogger(), 30*time.Minute)

	before := testutil.ToFloat64(metrics.BookingsCancelled)
	sw.sweep(context.Background())

	if got := testutil.ToFloat64(metrics.BookingsCancelled) - before; got != 0 {
		t.Fatalf("failed sweep must not move the counter, got +%v", got)
	}
}
