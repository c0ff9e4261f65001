package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/api/middleware"
	"github.com/angelmondragon/community-market-backend/api/responses"
	"github.com/angelmondragon/community-market-backend/api/validators"
	"github.com/angelmondragon/community-market-backend/internal/escalations"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
)

type disputeRequest struct {
	ExpectedVersion *int64  `json:"expectedVersion" validate:"omitempty,gt=0"`
	Reason          string  `json:"reason" validate:"required,max=2000"`
	ProofMediaID    *string `json:"proofMediaId"`
}

type refundOfferRequest struct {
	Amount  int64  `json:"amount" validate:"gt=0"`
	Message string `json:"message" validate:"max=1000"`
}

type resolveRequest struct {
	ExpectedVersion *int64 `json:"expectedVersion" validate:"omitempty,gt=0"`
	Disposition     string `json:"disposition" validate:"required,oneof=completed cancelled"`
}

type refundOfferCreated struct {
	OfferID uuid.UUID           `json:"offerId"`
	Offer   refundOfferResponse `json:"offer"`
}

func escalationsUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "escalations service unavailable")
}

// Dispute opens an escalation on a delivered order.
func Dispute(svc escalations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, escalationsUnavailable())
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body disputeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proofID, err := validators.OptionalUUID(body.ProofMediaID, "proofMediaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Dispute(r.Context(), escalations.DisputeInput{
			OrderID:         orderID,
			ActorID:         actor,
			ExpectedVersion: body.ExpectedVersion,
			Reason:          validators.SanitizeString(body.Reason, maxTextLen),
			ProofMediaID:    proofID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// MakeRefundOffer records the seller's refund proposal on an open dispute.
func MakeRefundOffer(svc escalations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, escalationsUnavailable())
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body refundOfferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offer, err := svc.MakeRefundOffer(r.Context(), escalations.RefundOfferInput{
			OrderID: orderID,
			ActorID: actor,
			Amount:  body.Amount,
			Message: validators.SanitizeString(body.Message, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, refundOfferCreated{
			OfferID: offer.ID,
			Offer:   newRefundOfferResponse(*offer),
		})
	}
}

// AcceptRefundOffer settles the dispute and credits the buyer.
func AcceptRefundOffer(svc escalations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, escalationsUnavailable())
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := validators.ParseUUIDParam(r, "offerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body versionRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AcceptRefundOffer(r.Context(), escalations.AcceptOfferInput{
			OrderID:         orderID,
			ActorID:         actor,
			OfferID:         offerID,
			ExpectedVersion: body.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RejectRefundOffer declines a pending offer. The dispute stays open.
func RejectRefundOffer(svc escalations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, escalationsUnavailable())
			return
		}
		actor, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := validators.ParseUUIDParam(r, "offerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RejectRefundOffer(r.Context(), escalations.RejectOfferInput{OfferID: offerID, ActorID: actor}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"offerId": offerID,
			"status":  enums.RefundOfferStatusRejected,
		})
	}
}

// Escalate hands the dispute to staff arbitration.
func Escalate(svc escalations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, escalationsUnavailable())
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
		result, err := svc.Escalate(r.Context(), escalations.EscalateInput{
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

func Resolve(svc escalations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, escalationsUnavailable())
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body resolveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		disposition, err := enums.ParseDisputeDisposition(body.Disposition)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid disposition"))
			return
		}
		result, err := svc.Resolve(r.Context(), escalations.ResolveInput{
			OrderID:         orderID,
			ActorID:         actor,
			ExpectedVersion: body.ExpectedVersion,
			Disposition:     disposition,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// DisputeDetail returns the latest escalation of the order with its offers.
func DisputeDetail(svc escalations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, escalationsUnavailable())
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
		responses.WriteSuccess(w, newDisputeViewResponse(view.Escalation, view.Offers))
	}
}
