package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/api/middleware"
	"github.com/angelmondragon/community-market-backend/api/responses"
	"github.com/angelmondragon/community-market-backend/api/validators"
	"github.com/angelmondragon/community-market-backend/internal/ledger"
	internalpayments "github.com/angelmondragon/community-market-backend/internal/payments"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	"github.com/angelmondragon/community-market-backend/pkg/pagination"
)

// IntentCreator starts provider intents for point purchases.
type IntentCreator interface {
	CreateIntent(ctx context.Context, input internalpayments.CreateIntentInput) (*internalpayments.IntentResult, error)
}

type PaymentConfirmer interface {
	ConfirmForUser(ctx context.Context, userID, transactionID uuid.UUID) (*internalpayments.ConfirmResult, error)
}

type PendingResolver interface {
	ResolveForUser(ctx context.Context, userID uuid.UUID) (*internalpayments.ResolveResult, error)
}

// LedgerReader is the read side of the points ledger.
type LedgerReader interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ledger.HistoryPage, error)
}

type createIntentRequest struct {
	AmountCents     int64  `json:"amountCents" validate:"gt=0"`
	PointsAmount    int64  `json:"pointsAmount" validate:"gt=0"`
	ServiceFeeCents int64  `json:"serviceFeeCents" validate:"gte=0"`
	Provider        string `json:"provider" validate:"omitempty,max=32"`
}

type confirmRequest struct {
	TransactionID string `json:"transactionId" validate:"required,uuid"`
}

type balanceResponse struct {
	UserID  uuid.UUID `json:"userId"`
	Balance int64     `json:"balance"`
}

type ledgerEntryResponse struct {
	ID           uuid.UUID             `json:"id"`
	Type         enums.PointLedgerType `json:"type"`
	Amount       int64                 `json:"amount"`
	BalanceAfter int64                 `json:"balanceAfter"`
	ReferenceID  *uuid.UUID            `json:"referenceId,omitempty"`
	Metadata     json.RawMessage       `json:"metadata,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
}

type ledgerHistoryResponse struct {
	Entries    []ledgerEntryResponse `json:"entries"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

// CreatePaymentIntent starts a points purchase with the chosen provider.
func CreatePaymentIntent(svc IntentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createIntentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.CreateIntent(r.Context(), internalpayments.CreateIntentInput{
			UserID:          userID,
			AmountCents:     body.AmountCents,
			PointsAmount:    body.PointsAmount,
			ServiceFeeCents: body.ServiceFeeCents,
			Provider:        body.Provider,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ConfirmPayment settles one of the caller's pending transactions.
func ConfirmPayment(svc PaymentConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body confirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txnID, err := uuid.Parse(body.TransactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transactionId"))
			return
		}
		result, err := svc.ConfirmForUser(r.Context(), userID, txnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ResolvePendingPayments reconciles every pending transaction of the caller.
func ResolvePendingPayments(svc PendingResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ResolveForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Resolved == nil {
			result.Resolved = []internalpayments.ResolvedPayment{}
		}
		if result.Pending == nil {
			result.Pending = []internalpayments.PendingPayment{}
		}
		responses.WriteSuccess(w, result)
	}
}

func PointsBalance(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		userID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{UserID: userID, Balance: balance})
	}
}

// PointsLedger pages through the caller's ledger entries, newest first.
func PointsLedger(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		userID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.History(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := ledgerHistoryResponse{
			Entries:    make([]ledgerEntryResponse, 0, len(page.Entries)),
			NextCursor: page.NextCursor,
		}
		for _, e := range page.Entries {
			out.Entries = append(out.Entries, ledgerEntryResponse{
				ID:           e.ID,
				Type:         e.Type,
				Amount:       e.Amount,
				BalanceAfter: e.BalanceAfter,
				ReferenceID:  e.ReferenceID,
				Metadata:     e.Metadata,
				CreatedAt:    e.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
