package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a buyer opens a pending order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	SellerID   uuid.UUID         `json:"seller_id"`
	TotalPrice int64             `json:"total_price"`
	Status     enums.OrderStatus `json:"status"`
}

// OrderStatusChangedEvent is emitted for every versioned order mutation.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	SellerID   uuid.UUID         `json:"seller_id"`
	ActorID    uuid.UUID         `json:"actor_id"`
	Action     enums.OrderAction `json:"action"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Version    int64             `json:"version"`
}

// DisputeOpenedEvent is emitted when a buyer disputes a delivery.
type DisputeOpenedEvent struct {
	EscalationID uuid.UUID `json:"escalation_id"`
	OrderID      uuid.UUID `json:"order_id"`
	InitiatorID  uuid.UUID `json:"initiator_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	Reason       string    `json:"reason"`
}

// RefundOfferCreatedEvent is emitted when a seller proposes a refund.
type RefundOfferCreatedEvent struct {
	OfferID      uuid.UUID `json:"offer_id"`
	EscalationID uuid.UUID `json:"escalation_id"`
	OrderID      uuid.UUID `json:"order_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	Amount       int64     `json:"amount"`
}

// RefundOfferRejectedEvent is emitted when the buyer declines an offer.
type RefundOfferRejectedEvent struct {
	OfferID      uuid.UUID `json:"offer_id"`
	EscalationID uuid.UUID `json:"escalation_id"`
	OrderID      uuid.UUID `json:"order_id"`
	SellerID     uuid.UUID `json:"seller_id"`
}

// DisputeResolvedEvent closes an escalation, by refund or manually.
type DisputeResolvedEvent struct {
	EscalationID    uuid.UUID                  `json:"escalation_id"`
	OrderID         uuid.UUID                  `json:"order_id"`
	Resolution      enums.EscalationResolution `json:"resolution"`
	OrderStatus     enums.OrderStatus          `json:"order_status"`
	AcceptedOfferID *uuid.UUID                 `json:"accepted_offer_id,omitempty"`
	RefundAmount    int64                      `json:"refund_amount,omitempty"`
}

// PointsPurchasedEvent is emitted once a purchase is credited to the ledger.
type PointsPurchasedEvent struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	UserID        uuid.UUID             `json:"user_id"`
	Provider      enums.PaymentProvider `json:"provider"`
	PointsAmount  int64                 `json:"points_amount"`
	AmountCents   int64                 `json:"amount_cents"`
	NewBalance    int64                 `json:"new_balance"`
	LedgerEntryID uuid.UUID             `json:"ledger_entry_id"`
}

// PaymentFailedEvent is emitted when a purchase is terminated without credit.
type PaymentFailedEvent struct {
	TransactionID  uuid.UUID             `json:"transaction_id"`
	UserID         uuid.UUID             `json:"user_id"`
	Provider       enums.PaymentProvider `json:"provider"`
	Reason         string                `json:"reason"`
	ProviderStatus string                `json:"provider_status,omitempty"`
}
