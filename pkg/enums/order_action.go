package enums

import "fmt"

// OrderRole is the caller's relationship to an order.
type OrderRole string

const (
	OrderRoleNone   OrderRole = ""
	OrderRoleBuyer  OrderRole = "buyer"
	OrderRoleSeller OrderRole = "seller"
)

// OrderAction names a user-initiated operation on an order.
type OrderAction string

const (
	OrderActionAccept          OrderAction = "accept"
	OrderActionReject          OrderAction = "reject"
	OrderActionModify          OrderAction = "modify"
	OrderActionCancel          OrderAction = "cancel"
	OrderActionSuggestDate     OrderAction = "suggest_date"
	OrderActionSuggestQuantity OrderAction = "suggest_qty"
	OrderActionMarkDelivered   OrderAction = "mark_delivered"
	OrderActionConfirmDelivery OrderAction = "confirm_delivery"
	OrderActionRate            OrderAction = "rate"
	OrderActionDispute         OrderAction = "dispute"
	OrderActionMakeOffer       OrderAction = "make_offer"
	OrderActionAcceptOffer     OrderAction = "accept_offer"
	OrderActionEscalate        OrderAction = "escalate"
	OrderActionResolve         OrderAction = "resolve"
)

var validOrderActions = []OrderAction{
	OrderActionAccept,
	OrderActionReject,
	OrderActionModify,
	OrderActionCancel,
	OrderActionSuggestDate,
	OrderActionSuggestQuantity,
	OrderActionMarkDelivered,
	OrderActionConfirmDelivery,
	OrderActionRate,
	OrderActionDispute,
	OrderActionMakeOffer,
	OrderActionAcceptOffer,
	OrderActionEscalate,
	OrderActionResolve,
}

// OrderActions returns every known action.
func OrderActions() []OrderAction {
	out := make([]OrderAction, len(validOrderActions))
	copy(out, validOrderActions)
	return out
}

func (a OrderAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known OrderAction.
func (a OrderAction) IsValid() bool {
	for _, candidate := range validOrderActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOrderAction converts raw input into an OrderAction.
func ParseOrderAction(value string) (OrderAction, error) {
	for _, candidate := range validOrderActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order action %q", value)
}

// ActionWeight is the presentation hint attached to an available action.
type ActionWeight string

const (
	ActionWeightPrimary     ActionWeight = "primary"
	ActionWeightSecondary   ActionWeight = "secondary"
	ActionWeightDestructive ActionWeight = "destructive"
)
