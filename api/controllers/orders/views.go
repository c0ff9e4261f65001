package orders

import (
	"time"

	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/community-market-backend/internal/orders"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

type orderResponse struct {
	ID                   uuid.UUID         `json:"id"`
	BuyerID              uuid.UUID         `json:"buyerId"`
	SellerID             uuid.UUID         `json:"sellerId"`
	ConversationID       *uuid.UUID        `json:"conversationId,omitempty"`
	Category             string            `json:"category"`
	Product              string            `json:"product"`
	Quantity             int64             `json:"quantity"`
	PointsPerUnit        int64             `json:"pointsPerUnit"`
	TotalPrice           int64             `json:"totalPrice"`
	DeliveryDate         *time.Time        `json:"deliveryDate,omitempty"`
	DeliveryAddress      string            `json:"deliveryAddress"`
	DeliveryInstructions string            `json:"deliveryInstructions"`
	DeliveryProofMediaID *uuid.UUID        `json:"deliveryProofMediaId,omitempty"`
	Status               enums.OrderStatus `json:"status"`
	BuyerRating          *int              `json:"buyerRating,omitempty"`
	SellerRating         *int              `json:"sellerRating,omitempty"`
	Version              int64             `json:"version"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

func newOrderResponse(o *models.Order) orderResponse {
	return orderResponse{
		ID:                   o.ID,
		BuyerID:              o.BuyerID,
		SellerID:             o.SellerID,
		ConversationID:       o.ConversationID,
		Category:             o.Category,
		Product:              o.Product,
		Quantity:             o.Quantity,
		PointsPerUnit:        o.PointsPerUnit,
		TotalPrice:           o.TotalPrice,
		DeliveryDate:         o.DeliveryDate,
		DeliveryAddress:      o.DeliveryAddress,
		DeliveryInstructions: o.DeliveryInstructions,
		DeliveryProofMediaID: o.DeliveryProofMediaID,
		Status:               o.Status,
		BuyerRating:          o.BuyerRating,
		SellerRating:         o.SellerRating,
		Version:              o.Version,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

type orderViewResponse struct {
	Order            orderResponse                     `json:"order"`
	Role             enums.OrderRole                   `json:"role"`
	AvailableActions []internalorders.ActionDescriptor `json:"availableActions"`
}

type escalationResponse struct {
	ID                    uuid.UUID                   `json:"id"`
	OrderID               uuid.UUID                   `json:"orderId"`
	InitiatorID           uuid.UUID                   `json:"initiatorId"`
	Reason                string                      `json:"reason"`
	Status                enums.EscalationStatus      `json:"status"`
	ResolutionType        *enums.EscalationResolution `json:"resolutionType,omitempty"`
	AcceptedRefundOfferID *uuid.UUID                  `json:"acceptedRefundOfferId,omitempty"`
	EscalatedAt           *time.Time                  `json:"escalatedAt,omitempty"`
	ResolvedAt            *time.Time                  `json:"resolvedAt,omitempty"`
	CreatedAt             time.Time                   `json:"createdAt"`
}

type refundOfferResponse struct {
	ID           uuid.UUID               `json:"id"`
	EscalationID uuid.UUID               `json:"escalationId"`
	SellerID     uuid.UUID               `json:"sellerId"`
	Amount       int64                   `json:"amount"`
	Message      string                  `json:"message"`
	Status       enums.RefundOfferStatus `json:"status"`
	CreatedAt    time.Time               `json:"createdAt"`
}

func newRefundOfferResponse(o models.RefundOffer) refundOfferResponse {
	return refundOfferResponse{
		ID:           o.ID,
		EscalationID: o.EscalationID,
		SellerID:     o.SellerID,
		Amount:       o.Amount,
		Message:      o.Message,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
	}
}

type disputeViewResponse struct {
	Escalation escalationResponse    `json:"escalation"`
	Offers     []refundOfferResponse `json:"offers"`
}

func newDisputeViewResponse(e *models.Escalation, offers []models.RefundOffer) disputeViewResponse {
	out := disputeViewResponse{
		Escalation: escalationResponse{
			ID:                    e.ID,
			OrderID:               e.OrderID,
			InitiatorID:           e.InitiatorID,
			Reason:                e.Reason,
			Status:                e.Status,
			ResolutionType:        e.ResolutionType,
			AcceptedRefundOfferID: e.AcceptedRefundOfferID,
			EscalatedAt:           e.EscalatedAt,
			ResolvedAt:            e.ResolvedAt,
			CreatedAt:             e.CreatedAt,
		},
		Offers: make([]refundOfferResponse, 0, len(offers)),
	}
	for _, o := range offers {
		out.Offers = append(out.Offers, newRefundOfferResponse(o))
	}
	return out
}
