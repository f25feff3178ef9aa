package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/account"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// StripeProvider checks connected-account capabilities and creates payment
// intents on behalf of the booked business. stripe.Key must be set by the
// caller before use.
type StripeProvider struct {
	Currency string
}

func NewStripeProvider(currency string) *StripeProvider {
	currency = strings.TrimSpace(strings.ToLower(currency))
	if currency == "" {
		currency = "usd"
	}
	return &StripeProvider{Currency: currency}
}

func (p *StripeProvider) AccountStatus(_ context.Context, accountID string) (Capability, error) {
	if strings.TrimSpace(accountID) == "" {
		return Capability{ChargesEnabled: false}, nil
	}
	acct, err := account.GetByID(accountID, nil)
	if err != nil {
		return Capability{}, fmt.Errorf("stripe account lookup: %w", err)
	}
	return Capability{ChargesEnabled: acct.ChargesEnabled}, nil
}

// CreateIntent opens a payment intent routed to the business's connected
// account. Returns the client secret the booking page needs to collect the
// payment.
func (p *StripeProvider) CreateIntent(_ context.Context, amountCents int64, destinationAccount, bookingID string) (clientSecret, intentID string, err error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(p.Currency),
	}
	if strings.TrimSpace(destinationAccount) != "" {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(destinationAccount),
		}
	}
	params.AddMetadata("booking_id", bookingID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe payment intent: %w", err)
	}
	return pi.ClientSecret, pi.ID, nil
}
