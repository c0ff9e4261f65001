package models

import (
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

func TestOrderRoleOf(t *testing.T) {
	order := &Order{BuyerID: uuid.New(), SellerID: uuid.New()}

	if got := order.RoleOf(order.BuyerID); got != enums.OrderRoleBuyer {
		t.Fatalf("expected buyer, got %q", got)
	}
	if got := order.RoleOf(order.SellerID); got != enums.OrderRoleSeller {
		t.Fatalf("expected seller, got %q", got)
	}
	if got := order.RoleOf(uuid.New()); got != enums.OrderRoleNone {
		t.Fatalf("expected no role, got %q", got)
	}
	if got := order.RoleOf(uuid.Nil); got != enums.OrderRoleNone {
		t.Fatalf("nil id must not resolve a role, got %q", got)
	}
}

func TestPaymentTransactionFailedAsStale(t *testing.T) {
	stale := enums.FailureReasonStale
	other := "card_declined"

	if !(&PaymentTransaction{Status: enums.PaymentTransactionFailed, FailureReason: &stale}).FailedAsStale() {
		t.Fatalf("expected stale failure")
	}
	if (&PaymentTransaction{Status: enums.PaymentTransactionFailed, FailureReason: &other}).FailedAsStale() {
		t.Fatalf("declined card is not stale")
	}
	id := uuid.New()
	if !(&PaymentTransaction{Status: enums.PaymentTransactionSucceeded, PointLedgerID: &id}).Settled() {
		t.Fatalf("expected settled")
	}
}
