package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bookpage-app/bookpage/internal/metrics"
)

// AbandonedCanceller releases slots held by bookings whose online payment
// never completed.
type AbandonedCanceller interface {
	CancelAbandonedPending(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sweeper periodically cancels confirmed bookings stuck in payment_status
// pending longer than abandonAfter.
type Sweeper struct {
	store        AbandonedCanceller
	logger       *slog.Logger
	abandonAfter time.Duration
	cron         *cron.Cron
}

func NewSweeper(store AbandonedCanceller, logger *slog.Logger, abandonAfter time.Duration) *Sweeper {
	return &Sweeper{
		store:        store,
		logger:       logger,
		abandonAfter: abandonAfter,
		cron:         cron.New(),
	}
}

// Start schedules the sweep every five minutes until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("*/5 * * * *", func() { s.sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.abandonAfter)
	n, err := s.store.CancelAbandonedPending(ctx, cutoff)
	if err != nil {
		s.logger.Error("abandoned booking sweep failed", "error", err)
		return
	}
	if n > 0 {
		metrics.BookingsCancelled.Add(float64(n))
		s.logger.Info("abandoned bookings cancelled", "count", n)
	}
}
