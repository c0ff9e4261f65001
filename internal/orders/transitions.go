package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// ActionDescriptor is the user-facing rendering of an allowed action.
type ActionDescriptor struct {
	Action enums.OrderAction  `json:"action"`
	Label  string             `json:"label"`
	Icon   string             `json:"icon"`
	Weight enums.ActionWeight `json:"weight"`
}

type roleActions struct {
	buyer  []enums.OrderAction
	seller []enums.OrderAction
}

var transitionTable = map[enums.OrderStatus]roleActions{
	enums.OrderStatusPending: {
		buyer:  []enums.OrderAction{enums.OrderActionModify, enums.OrderActionCancel},
		seller: []enums.OrderAction{enums.OrderActionAccept, enums.OrderActionReject, enums.OrderActionSuggestDate, enums.OrderActionSuggestQuantity},
	},
	enums.OrderStatusAccepted: {
		seller: []enums.OrderAction{enums.OrderActionCancel, enums.OrderActionMarkDelivered},
	},
	enums.OrderStatusDelivered: {
		buyer: []enums.OrderAction{enums.OrderActionConfirmDelivery, enums.OrderActionDispute},
	},
	enums.OrderStatusCompleted: {
		buyer:  []enums.OrderAction{enums.OrderActionRate},
		seller: []enums.OrderAction{enums.OrderActionRate},
	},
	enums.OrderStatusDisputed: {
		buyer:  []enums.OrderAction{enums.OrderActionAcceptOffer, enums.OrderActionResolve, enums.OrderActionEscalate},
		seller: []enums.OrderAction{enums.OrderActionMakeOffer, enums.OrderActionEscalate},
	},
	enums.OrderStatusEscalated: {
		buyer:  []enums.OrderAction{enums.OrderActionAcceptOffer, enums.OrderActionResolve},
		seller: []enums.OrderAction{enums.OrderActionMakeOffer, enums.OrderActionResolve},
	},
}

var actionCatalog = map[enums.OrderAction]ActionDescriptor{
	enums.OrderActionAccept:          {Label: "Accept order", Icon: "check", Weight: enums.ActionWeightPrimary},
	enums.OrderActionReject:          {Label: "Decline order", Icon: "x", Weight: enums.ActionWeightDestructive},
	enums.OrderActionModify:          {Label: "Modify order", Icon: "edit", Weight: enums.ActionWeightSecondary},
	enums.OrderActionCancel:          {Label: "Cancel order", Icon: "x-circle", Weight: enums.ActionWeightDestructive},
	enums.OrderActionSuggestDate:     {Label: "Suggest another date", Icon: "calendar", Weight: enums.ActionWeightSecondary},
	enums.OrderActionSuggestQuantity: {Label: "Suggest another quantity", Icon: "hash", Weight: enums.ActionWeightSecondary},
	enums.OrderActionMarkDelivered:   {Label: "Mark as delivered", Icon: "truck", Weight: enums.ActionWeightPrimary},
	enums.OrderActionConfirmDelivery: {Label: "Confirm delivery", Icon: "package-check", Weight: enums.ActionWeightPrimary},
	enums.OrderActionRate:            {Label: "Leave a rating", Icon: "star", Weight: enums.ActionWeightPrimary},
	enums.OrderActionDispute:         {Label: "Report a problem", Icon: "alert-triangle", Weight: enums.ActionWeightDestructive},
	enums.OrderActionMakeOffer:       {Label: "Offer a refund", Icon: "coins", Weight: enums.ActionWeightPrimary},
	enums.OrderActionAcceptOffer:     {Label: "Accept refund offer", Icon: "check-circle", Weight: enums.ActionWeightPrimary},
	enums.OrderActionEscalate:        {Label: "Escalate to support", Icon: "flag", Weight: enums.ActionWeightSecondary},
	enums.OrderActionResolve:         {Label: "Close dispute", Icon: "gavel", Weight: enums.ActionWeightSecondary},
}

// targetStatus is where a successful action leaves the order. resolve is
// absent because the caller chooses its disposition.
var targetStatus = map[enums.OrderAction]enums.OrderStatus{
	enums.OrderActionAccept:          enums.OrderStatusAccepted,
	enums.OrderActionReject:          enums.OrderStatusRejected,
	enums.OrderActionModify:          enums.OrderStatusPending,
	enums.OrderActionCancel:          enums.OrderStatusCancelled,
	enums.OrderActionSuggestDate:     enums.OrderStatusPending,
	enums.OrderActionSuggestQuantity: enums.OrderStatusPending,
	enums.OrderActionMarkDelivered:   enums.OrderStatusDelivered,
	enums.OrderActionConfirmDelivery: enums.OrderStatusCompleted,
	enums.OrderActionDispute:         enums.OrderStatusDisputed,
	enums.OrderActionAcceptOffer:     enums.OrderStatusCompleted,
	enums.OrderActionEscalate:        enums.OrderStatusEscalated,
}

// versionRequired lists actions whose callers must send expected_version.
var versionRequired = map[enums.OrderAction]bool{
	enums.OrderActionAccept:   true,
	enums.OrderActionReject:   true,
	enums.OrderActionModify:   true,
	enums.OrderActionDispute:  true,
	enums.OrderActionEscalate: true,
	enums.OrderActionResolve:  true,
}

func actionsFor(status enums.OrderStatus, role enums.OrderRole) []enums.OrderAction {
	entry, ok := transitionTable[status]
	if !ok {
		return nil
	}
	switch role {
	case enums.OrderRoleBuyer:
		return entry.buyer
	case enums.OrderRoleSeller:
		return entry.seller
	default:
		return nil
	}
}

// CanTransition reports whether actorID may perform action on the order in its current status.
func CanTransition(order *models.Order, actorID uuid.UUID, action enums.OrderAction) bool {
	for _, allowed := range actionsFor(order.Status, order.RoleOf(actorID)) {
		if allowed == action {
			return true
		}
	}
	return false
}

// AvailableActions projects the transition table for the caller. The slice is
// never nil; rate is dropped once the caller has rated.
func AvailableActions(order *models.Order, actorID uuid.UUID) []ActionDescriptor {
	role := order.RoleOf(actorID)
	allowed := actionsFor(order.Status, role)
	out := make([]ActionDescriptor, 0, len(allowed))
	for _, action := range allowed {
		if action == enums.OrderActionRate && order.HasRated(role) {
			continue
		}
		descriptor := actionCatalog[action]
		descriptor.Action = action
		out = append(out, descriptor)
	}
	return out
}

// RequiresExpectedVersion reports whether the action must carry expected_version.
func RequiresExpectedVersion(action enums.OrderAction) bool {
	return versionRequired[action]
}
