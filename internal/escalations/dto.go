package escalations

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// DisputeInput opens a dispute on a delivered order.
type DisputeInput struct {
	OrderID         uuid.UUID
	ActorID         uuid.UUID
	ExpectedVersion *int64
	Reason          string
	ProofMediaID    *uuid.UUID
}

// DisputeResult identifies the escalation created by Dispute.
type DisputeResult struct {
	EscalationID uuid.UUID `json:"escalationId"`
	NewVersion   int64     `json:"newVersion"`
}

// RefundOfferInput is a seller's refund proposal.
type RefundOfferInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Amount  int64
	Message string
}

// AcceptOfferInput settles a dispute with one of the seller's offers.
type AcceptOfferInput struct {
	OrderID         uuid.UUID
	ActorID         uuid.UUID
	OfferID         uuid.UUID
	ExpectedVersion *int64
}

// AcceptOfferResult reports the refund credited to the buyer.
type AcceptOfferResult struct {
	OrderID       uuid.UUID `json:"orderId"`
	NewVersion    int64     `json:"newVersion"`
	RefundAmount  int64     `json:"refundAmount"`
	NewBalance    int64     `json:"newBalance"`
	LedgerEntryID uuid.UUID `json:"ledgerEntryId"`
}

// RejectOfferInput declines a pending offer.
type RejectOfferInput struct {
	OfferID uuid.UUID
	ActorID uuid.UUID
}

// EscalateInput hands a dispute to staff arbitration.
type EscalateInput struct {
	OrderID         uuid.UUID
	ActorID         uuid.UUID
	ExpectedVersion *int64
}

// ResolveInput closes a dispute manually with the caller's disposition.
type ResolveInput struct {
	OrderID         uuid.UUID
	ActorID         uuid.UUID
	ExpectedVersion *int64
	Disposition     enums.DisputeDisposition
}

// DisputeView is the latest escalation of an order with its offers.
type DisputeView struct {
	Escalation *models.Escalation   `json:"escalation"`
	Offers     []models.RefundOffer `json:"offers"`
}
