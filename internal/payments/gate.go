package payments

import (
	"context"
	"errors"

	"github.com/bookpage-app/bookpage/internal/model"
)

// ErrMisconfigured means a service demands online payment but the business
// has no working payment account. Bookings must be refused, never silently
// downgraded to free.
var ErrMisconfigured = errors.New("online payments are not configured for this business")

// Capability is what the payment processor reports about a business account.
type Capability struct {
	ChargesEnabled bool
}

// AccountStatusProvider answers whether a business's connected payment
// account can take charges.
type AccountStatusProvider interface {
	AccountStatus(ctx context.Context, accountID string) (Capability, error)
}

// Plan is the payment outcome attached to a booking at creation time.
type Plan struct {
	Status      model.PaymentStatus
	AmountCents int64
}

// DecidePlan maps a service's payment configuration to the booking's initial
// payment state. A nil service is a legacy free-form booking.
func DecidePlan(svc *model.Service, cap Capability) (Plan, error) {
	if svc == nil || !svc.IsPaid {
		return Plan{Status: model.PaymentNotRequired, AmountCents: 0}, nil
	}
	switch svc.PaymentMode {
	case model.PaymentModeOnline:
		if !cap.ChargesEnabled {
			return Plan{}, ErrMisconfigured
		}
		return Plan{Status: model.PaymentPending, AmountCents: svc.PriceCents}, nil
	case model.PaymentModeInStore:
		return Plan{Status: model.PaymentPayInStore, AmountCents: svc.PriceCents}, nil
	default:
		// isPaid with mode "free" (or unknown) is a broken catalog entry.
		return Plan{}, ErrMisconfigured
	}
}

// StaticProvider reports a fixed capability; used in tests and in
// deployments that only take free or in-store bookings.
type StaticProvider struct {
	Enabled bool
}

func (p StaticProvider) AccountStatus(context.Context, string) (Capability, error) {
	return Capability{ChargesEnabled: p.Enabled}, nil
}
