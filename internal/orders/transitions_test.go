package orders

import (
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

func TestAvailableActionsMatchTransitionTable(t *testing.T) {
	buyer, seller := uuid.New(), uuid.New()
	expected := map[enums.OrderStatus]map[enums.OrderRole][]enums.OrderAction{
		enums.OrderStatusPending: {
			enums.OrderRoleBuyer:  {enums.OrderActionModify, enums.OrderActionCancel},
			enums.OrderRoleSeller: {enums.OrderActionAccept, enums.OrderActionReject, enums.OrderActionSuggestDate, enums.OrderActionSuggestQuantity},
		},
		enums.OrderStatusAccepted: {
			enums.OrderRoleSeller: {enums.OrderActionCancel, enums.OrderActionMarkDelivered},
		},
		enums.OrderStatusDelivered: {
			enums.OrderRoleBuyer: {enums.OrderActionConfirmDelivery, enums.OrderActionDispute},
		},
		enums.OrderStatusCompleted: {
			enums.OrderRoleBuyer:  {enums.OrderActionRate},
			enums.OrderRoleSeller: {enums.OrderActionRate},
		},
		enums.OrderStatusDisputed: {
			enums.OrderRoleBuyer:  {enums.OrderActionAcceptOffer, enums.OrderActionResolve, enums.OrderActionEscalate},
			enums.OrderRoleSeller: {enums.OrderActionMakeOffer, enums.OrderActionEscalate},
		},
		enums.OrderStatusEscalated: {
			enums.OrderRoleBuyer:  {enums.OrderActionAcceptOffer, enums.OrderActionResolve},
			enums.OrderRoleSeller: {enums.OrderActionMakeOffer, enums.OrderActionResolve},
		},
	}

	actors := map[enums.OrderRole]uuid.UUID{
		enums.OrderRoleBuyer:  buyer,
		enums.OrderRoleSeller: seller,
	}

	for _, status := range enums.OrderStatuses() {
		for role, actor := range actors {
			order := &models.Order{BuyerID: buyer, SellerID: seller, Status: status}
			got := AvailableActions(order, actor)
			if got == nil {
				t.Fatalf("%s/%s: expected empty slice, got nil", status, role)
			}
			want := expected[status][role]
			if len(got) != len(want) {
				t.Fatalf("%s/%s: expected %v, got %v", status, role, want, got)
			}
			for i, action := range want {
				if got[i].Action != action {
					t.Fatalf("%s/%s[%d]: expected %s, got %s", status, role, i, action, got[i].Action)
				}
				if got[i].Label == "" || got[i].Icon == "" || got[i].Weight == "" {
					t.Fatalf("%s/%s: descriptor for %s incomplete: %+v", status, role, action, got[i])
				}
			}

			allowed := map[enums.OrderAction]bool{}
			for _, action := range want {
				allowed[action] = true
			}
			for _, action := range enums.OrderActions() {
				if CanTransition(order, actor, action) != allowed[action] {
					t.Fatalf("%s/%s: CanTransition(%s) disagrees with table", status, role, action)
				}
			}
		}
	}
}

func TestNonPartyHasNoActions(t *testing.T) {
	order := &models.Order{BuyerID: uuid.New(), SellerID: uuid.New(), Status: enums.OrderStatusPending}
	stranger := uuid.New()

	if got := AvailableActions(order, stranger); got == nil || len(got) != 0 {
		t.Fatalf("expected empty actions for stranger, got %v", got)
	}
	for _, action := range enums.OrderActions() {
		if CanTransition(order, stranger, action) {
			t.Fatalf("stranger should not be able to %s", action)
		}
	}
}

func TestRateHiddenAfterRating(t *testing.T) {
	buyer, seller := uuid.New(), uuid.New()
	rating := 4
	order := &models.Order{BuyerID: buyer, SellerID: seller, Status: enums.OrderStatusCompleted, BuyerRating: &rating}

	if got := AvailableActions(order, buyer); len(got) != 0 {
		t.Fatalf("buyer already rated, got %v", got)
	}
	if got := AvailableActions(order, seller); len(got) != 1 || got[0].Action != enums.OrderActionRate {
		t.Fatalf("seller should still be able to rate, got %v", got)
	}
}

func TestRequiresExpectedVersion(t *testing.T) {
	required := []enums.OrderAction{
		enums.OrderActionAccept, enums.OrderActionReject, enums.OrderActionModify,
		enums.OrderActionDispute, enums.OrderActionEscalate, enums.OrderActionResolve,
	}
	for _, action := range required {
		if !RequiresExpectedVersion(action) {
			t.Fatalf("%s should require expected_version", action)
		}
	}
	for _, action := range []enums.OrderAction{enums.OrderActionCancel, enums.OrderActionMarkDelivered, enums.OrderActionConfirmDelivery} {
		if RequiresExpectedVersion(action) {
			t.Fatalf("%s should not require expected_version", action)
		}
	}
}
