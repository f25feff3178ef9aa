package payments

import (
	"errors"
	"testing"

	"github.com/bookpage-app/bookpage/internal/model"
)

func TestDecidePlan_FreeService(t *testing.T) {
	svc := &model.Service{IsPaid: false, PaymentMode: model.PaymentModeFree, PriceCents: 0}
	plan, err := DecidePlan(svc, Capability{})
	if err != nil {
		t.Fatalf("DecidePlan failed: %v", err)
	}
	if plan.Status != model.PaymentNotRequired || plan.AmountCents != 0 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestDecidePlan_NilService(t *testing.T) {
	plan, err := DecidePlan(nil, Capability{})
	if err != nil {
		t.Fatalf("DecidePlan failed: %v", err)
	}
	if plan.Status != model.PaymentNotRequired {
		t.Fatalf("legacy bookings must not require payment, got %+v", plan)
	}
}

func TestDecidePlan_OnlineWithCharges(t *testing.T) {
	svc := &model.Service{IsPaid: true, PaymentMode: model.PaymentModeOnline, PriceCents: 4500}
	plan, err := DecidePlan(svc, Capability{ChargesEnabled: true})
	if err != nil {
		t.Fatalf("DecidePlan failed: %v", err)
	}
	if plan.Status != model.PaymentPending || plan.AmountCents != 4500 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestDecidePlan_OnlineWithoutCharges(t *testing.T) {
	svc := &model.Service{IsPaid: true, PaymentMode: model.PaymentModeOnline, PriceCents: 4500}
	_, err := DecidePlan(svc, Capability{ChargesEnabled: false})
	if !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}

func TestDecidePlan_InStore(t *testing.T) {
	svc := &model.Service{IsPaid: true, PaymentMode: model.PaymentModeInStore, PriceCents: 2000}
	plan, err := DecidePlan(svc, Capability{})
	if err != nil {
		t.Fatalf("DecidePlan failed: %v", err)
	}
	if plan.Status != model.PaymentPayInStore || plan.AmountCents != 2000 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestDecidePlan_PaidButFreeMode(t *testing.T) {
	svc := &model.Service{IsPaid: true, PaymentMode: model.PaymentModeFree, PriceCents: 2000}
	if _, err := DecidePlan(svc, Capability{ChargesEnabled: true}); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured for paid service in free mode, got %v", err)
	}
}
