package orders

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/api/middleware"
	"github.com/angelmondragon/community-market-backend/api/responses"
	"github.com/angelmondragon/community-market-backend/api/validators"
	internalorders "github.com/angelmondragon/community-market-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
)

const maxTextLen = 2000

type createOrderRequest struct {
	SellerID             string     `json:"sellerId" validate:"required,uuid"`
	ConversationID       *string    `json:"conversationId"`
	Category             string     `json:"category" validate:"required,max=120"`
	Product              string     `json:"product" validate:"required,max=200"`
	Quantity             int64      `json:"quantity" validate:"gt=0"`
	PointsPerUnit        int64      `json:"pointsPerUnit" validate:"gt=0"`
	DeliveryDate         *time.Time `json:"deliveryDate"`
	DeliveryAddress      string     `json:"deliveryAddress" validate:"max=500"`
	DeliveryInstructions string     `json:"deliveryInstructions" validate:"max=2000"`
}

type versionRequest struct {
	ExpectedVersion *int64 `json:"expectedVersion" validate:"omitempty,gt=0"`
}

type modifyOrderRequest struct {
	ExpectedVersion      *int64     `json:"expectedVersion" validate:"required,gt=0"`
	Quantity             *int64     `json:"quantity" validate:"omitempty,gt=0"`
	PointsPerUnit        *int64     `json:"pointsPerUnit" validate:"omitempty,gt=0"`
	DeliveryDate         *time.Time `json:"deliveryDate"`
	DeliveryAddress      *string    `json:"deliveryAddress" validate:"omitempty,max=500"`
	DeliveryInstructions *string    `json:"deliveryInstructions" validate:"omitempty,max=2000"`
}

type suggestDateRequest struct {
	ExpectedVersion *int64    `json:"expectedVersion" validate:"omitempty,gt=0"`
	DeliveryDate    time.Time `json:"deliveryDate" validate:"required"`
}

type suggestQuantityRequest struct {
	ExpectedVersion *int64 `json:"expectedVersion" validate:"omitempty,gt=0"`
	Quantity        int64  `json:"quantity" validate:"gt=0"`
}

type markDeliveredRequest struct {
	ExpectedVersion *int64 `json:"expectedVersion" validate:"omitempty,gt=0"`
	ProofMediaID    string `json:"proofMediaId" validate:"required,uuid"`
}

type rateOrderRequest struct {
	Rating   int     `json:"rating" validate:"gte=1,max=5"`
	Feedback *string `json:"feedback" validate:"omitempty,max=2000"`
}

// CreateOrder opens a pending order with the caller as buyer.
func CreateOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		buyerID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerID, err := uuid.Parse(body.SellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sellerId"))
			return
		}
		conversationID, err := validators.OptionalUUID(body.ConversationID, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			BuyerID:              buyerID,
			SellerID:             sellerID,
			ConversationID:       conversationID,
			Category:             validators.SanitizeString(body.Category, 120),
			Product:              validators.SanitizeString(body.Product, 200),
			Quantity:             body.Quantity,
			PointsPerUnit:        body.PointsPerUnit,
			DeliveryDate:         body.DeliveryDate,
			DeliveryAddress:      validators.SanitizeString(body.DeliveryAddress, 500),
			DeliveryInstructions: validators.SanitizeString(body.DeliveryInstructions, maxTextLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// Detail returns the order with the caller's role and available actions.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actions := view.AvailableActions
		if actions == nil {
			actions = []internalorders.ActionDescriptor{}
		}
		responses.WriteSuccess(w, orderViewResponse{
			Order:            newOrderResponse(view.Order),
			Role:             view.Role,
			AvailableActions: actions,
		})
	}
}

type simpleTransition func(context.Context, internalorders.ActionInput) (*internalorders.MutationResult, error)

// transitionHandler serves the actions whose body is at most an expected version.
func transitionHandler(svc internalorders.Service, logg *logger.Logger, pick func(internalorders.Service) simpleTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body versionRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := pick(svc)(r.Context(), internalorders.ActionInput{
			OrderID:         orderID,
			ActorID:         actor,
			ExpectedVersion: body.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Accept(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc, logg, func(s internalorders.Service) simpleTransition { return s.Accept })
}

func Reject(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc, logg, func(s internalorders.Service) simpleTransition { return s.Reject })
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc, logg, func(s internalorders.Service) simpleTransition { return s.Cancel })
}

func ConfirmDelivery(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc, logg, func(s internalorders.Service) simpleTransition { return s.ConfirmDelivery })
}

// Modify applies the buyer's partial update and returns the new version and total.
func Modify(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body modifyOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Modify(r.Context(), internalorders.ModifyOrderInput{
			ActionInput: internalorders.ActionInput{
				OrderID:         orderID,
				ActorID:         actor,
				ExpectedVersion: body.ExpectedVersion,
			},
			Quantity:             body.Quantity,
			PointsPerUnit:        body.PointsPerUnit,
			DeliveryDate:         body.DeliveryDate,
			DeliveryAddress:      sanitizePtr(body.DeliveryAddress, 500),
			DeliveryInstructions: sanitizePtr(body.DeliveryInstructions, maxTextLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func SuggestDate(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body suggestDateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SuggestDate(r.Context(), internalorders.SuggestDateInput{
			ActionInput:  internalorders.ActionInput{OrderID: orderID, ActorID: actor, ExpectedVersion: body.ExpectedVersion},
			DeliveryDate: body.DeliveryDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func SuggestQuantity(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body suggestQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SuggestQuantity(r.Context(), internalorders.SuggestQuantityInput{
			ActionInput: internalorders.ActionInput{OrderID: orderID, ActorID: actor, ExpectedVersion: body.ExpectedVersion},
			Quantity:    body.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func MarkDelivered(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body markDeliveredRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proofID, err := uuid.Parse(body.ProofMediaID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid proofMediaId"))
			return
		}
		result, err := svc.MarkDelivered(r.Context(), internalorders.MarkDeliveredInput{
			ActionInput:  internalorders.ActionInput{OrderID: orderID, ActorID: actor, ExpectedVersion: body.ExpectedVersion},
			ProofMediaID: proofID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Rate records the caller's rating of a completed order.
func Rate(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body rateOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Rate(r.Context(), internalorders.RateOrderInput{
			OrderID:  orderID,
			ActorID:  actor,
			Rating:   body.Rating,
			Feedback: sanitizePtr(body.Feedback, maxTextLen),
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orderId": orderID})
	}
}

func actorAndOrder(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	actor, err := middleware.ActorID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return actor, orderID, nil
}

func sanitizePtr(v *string, maxLen int) *string {
	if v == nil {
		return nil
	}
	out := validators.SanitizeString(*v, maxLen)
	return &out
}
