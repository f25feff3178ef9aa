package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookpage-app/bookpage/internal/model"
)

// EmailSender delivers one transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, plainBody string) error
}

// SMSSender delivers one transactional SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Notifier sends booking confirmations, reschedule notices and
// cancellation notices. Sends are fire-and-forget: delivery failure never
// fails the booking, it is only logged.
type Notifier struct {
	email  EmailSender
	sms    SMSSender
	logger *slog.Logger
}

func New(email EmailSender, sms SMSSender, logger *slog.Logger) *Notifier {
	return &Notifier{email: email, sms: sms, logger: logger}
}

func (n *Notifier) BookingCreated(b *model.Booking, biz *model.Business, svc *model.Service) {
	subject := fmt.Sprintf("Booking confirmed at %s", biz.Name)
	body := fmt.Sprintf("Hi %s,\n\nYour booking%s at %s is confirmed for %s.\n\nManage your booking: keep this link private.\n",
		b.CustomerName, serviceClause(svc), biz.Name, formatLocal(b.StartTime, biz))
	n.dispatch(b, subject, body,
		fmt.Sprintf("%s: booking confirmed for %s", biz.Name, formatLocal(b.StartTime, biz)))
}

func (n *Notifier) BookingRescheduled(b *model.Booking, biz *model.Business, svc *model.Service) {
	subject := fmt.Sprintf("Booking rescheduled at %s", biz.Name)
	body := fmt.Sprintf("Hi %s,\n\nYour booking%s at %s was moved to %s.\n",
		b.CustomerName, serviceClause(svc), biz.Name, formatLocal(b.StartTime, biz))
	n.dispatch(b, subject, body,
		fmt.Sprintf("%s: booking moved to %s", biz.Name, formatLocal(b.StartTime, biz)))
}

func (n *Notifier) BookingCancelled(b *model.Booking, biz *model.Business) {
	subject := fmt.Sprintf("Booking cancelled at %s", biz.Name)
	body := fmt.Sprintf("Hi %s,\n\nYour booking at %s for %s has been cancelled.\n",
		b.CustomerName, biz.Name, formatLocal(b.StartTime, biz))
	n.dispatch(b, subject, body,
		fmt.Sprintf("%s: booking for %s cancelled", biz.Name, formatLocal(b.StartTime, biz)))
}

func (n *Notifier) dispatch(b *model.Booking, subject, emailBody, smsBody string) {
	if n.email != nil && b.CustomerEmail != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := n.email.SendEmail(ctx, b.CustomerEmail, subject, emailBody); err != nil {
				n.logger.Error("email send failed", "booking_id", b.ID, "error", err)
			}
		}()
	}
	if n.sms != nil && b.CustomerPhone != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := n.sms.SendSMS(ctx, b.CustomerPhone, smsBody); err != nil {
				n.logger.Error("sms send failed", "booking_id", b.ID, "error", err)
			}
		}()
	}
}

func serviceClause(svc *model.Service) string {
	if svc == nil {
		return ""
	}
	return fmt.Sprintf(" for %s", svc.Name)
}

func formatLocal(t time.Time, biz *model.Business) string {
	if loc, err := biz.Location(); err == nil {
		t = t.In(loc)
	}
	return t.Format("Monday, Jan 2 at 3:04 PM")
}
