package orders

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// CreateOrderInput opens a pending order for a buyer accepting a seller's offer.
type CreateOrderInput struct {
	BuyerID              uuid.UUID
	SellerID             uuid.UUID
	ConversationID       *uuid.UUID
	Category             string
	Product              string
	Quantity             int64
	PointsPerUnit        int64
	DeliveryDate         *time.Time
	DeliveryAddress      string
	DeliveryInstructions string
}

// ActionInput identifies the caller of a plain status transition.
type ActionInput struct {
	OrderID         uuid.UUID
	ActorID         uuid.UUID
	ExpectedVersion *int64
}

// ModifyOrderInput is a partial update; nil fields are left unchanged.
type ModifyOrderInput struct {
	ActionInput
	Quantity             *int64
	PointsPerUnit        *int64
	DeliveryDate         *time.Time
	DeliveryAddress      *string
	DeliveryInstructions *string
}

func (m ModifyOrderInput) empty() bool {
	return m.Quantity == nil && m.PointsPerUnit == nil && m.DeliveryDate == nil &&
		m.DeliveryAddress == nil && m.DeliveryInstructions == nil
}

// SuggestDateInput is a seller's counter-proposal for the delivery date.
type SuggestDateInput struct {
	ActionInput
	DeliveryDate time.Time
}

// SuggestQuantityInput is a seller's counter-proposal for the quantity.
type SuggestQuantityInput struct {
	ActionInput
	Quantity int64
}

// MarkDeliveredInput carries the seller's proof of delivery.
type MarkDeliveredInput struct {
	ActionInput
	ProofMediaID uuid.UUID
}

// RateOrderInput records one party's rating of a completed order.
type RateOrderInput struct {
	OrderID  uuid.UUID
	ActorID  uuid.UUID
	Rating   int
	Feedback *string
}

// Transition is one versioned order mutation. Apply returns extra column
// updates and may reject the change; it runs inside the transaction.
type Transition struct {
	OrderID         uuid.UUID
	ActorID         uuid.UUID
	Action          enums.OrderAction
	ExpectedVersion *int64
	// TargetStatus overrides the action's default destination (resolve).
	TargetStatus enums.OrderStatus
	Apply        func(tx *gorm.DB, order *models.Order) (map[string]any, error)
}

// TransitionResult describes a committed transition.
type TransitionResult struct {
	Order      *models.Order
	FromStatus enums.OrderStatus
	Role       enums.OrderRole
}

// MutationResult is returned to API callers after a versioned mutation.
type MutationResult struct {
	OrderID    uuid.UUID         `json:"orderId"`
	Status     enums.OrderStatus `json:"status"`
	NewVersion int64             `json:"newVersion"`
	NewTotal   int64             `json:"newTotal"`
}

// OrderView is an order as seen by one of its parties.
type OrderView struct {
	Order            *models.Order      `json:"order"`
	Role             enums.OrderRole    `json:"role"`
	AvailableActions []ActionDescriptor `json:"availableActions"`
}

// ResultFrom summarizes an order after a committed mutation.
func ResultFrom(order *models.Order) *MutationResult {
	return &MutationResult{
		OrderID:    order.ID,
		Status:     order.Status,
		NewVersion: order.Version,
		NewTotal:   order.TotalPrice,
	}
}
