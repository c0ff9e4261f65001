package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/community-market-backend/api/responses"
	stripewebhook "github.com/angelmondragon/community-market-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/community-market-backend/pkg/stripe"
)

const maxWebhookBodyBytes = 1 << 16

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Result, error)
}

type StripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type eventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
	VerifiesSignatures() bool
}

// StripeWebhook applies payment_intent events to pending point purchases.
// Duplicate deliveries are acknowledged without reprocessing.
func StripeWebhook(svc StripeWebhookService, verifier eventVerifier, guard StripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe verifier unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodePayloadTooLarge, err, "stripe webhook body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := verifier.ConstructEvent(payload, r.Header.Get("Stripe-Signature"))
		switch {
		case errors.Is(err, pkgstripe.ErrMissingSignature):
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe signature missing"))
			return
		case err != nil && verifier.VerifiesSignatures():
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid stripe signature"))
			return
		case err != nil:
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe event"))
			return
		}
		if event.ID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe event id missing"))
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})
		if !verifier.VerifiesSignatures() {
			logg.Warn(ctx, "stripe webhook accepted without signature verification")
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			logg.Info(ctx, "stripe event already processed")
			responses.WriteSuccess(w, stripewebhook.Result{Received: true})
			return
		}

		result, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if delErr := guard.Delete(ctx, event.ID); delErr != nil {
				logg.Error(ctx, "release stripe event claim", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if result.Warning != "" {
			logg.Warn(logg.WithFields(ctx, map[string]any{"warning": result.Warning}), "stripe event acknowledged with warning")
		} else {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, result)
	}
}
