package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/community-market-backend/internal/payments"
	"github.com/angelmondragon/community-market-backend/pkg/db"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	"github.com/angelmondragon/community-market-backend/pkg/metrics"
)

const (
	warningUnknownIntent   = "no payment transaction for this payment intent"
	warningAlreadyFailed   = "payment transaction already failed"
	warningAlreadySettled  = "payment transaction already succeeded"
	defaultFailureReason   = "payment_failed"
	outcomeProcessed       = "processed"
	outcomeIgnored         = "ignored"
	outcomeUnknownIntent   = "unknown_intent"
	outcomeAlreadySettled  = "already_settled"
	outcomeProcessingError = "error"
)

type transactionFinder interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
}

type ServiceParams struct {
	Transactions transactionFinder
	Settler      payments.Settler
	Metrics      *metrics.PaymentMetrics
	Logger       *logger.Logger
}

// Service applies Stripe payment intent events to payment transactions.
type Service struct {
	transactions transactionFinder
	settler      payments.Settler
	metrics      *metrics.PaymentMetrics
	logg         *logger.Logger
}

// Result is acknowledged to Stripe. Warning is set when the event was
// accepted but could not be applied.
type Result struct {
	Received bool   `json:"received"`
	Warning  string `json:"warning,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment transaction lookup required")
	}
	if params.Settler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment settler required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		transactions: params.Transactions,
		settler:      params.Settler,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Result, error) {
	if event == nil || event.Data == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": eventType})

	var (
		result  Result
		outcome string
		err     error
	)
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		result, outcome, err = s.handleSucceeded(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		result, outcome, err = s.handleFailed(ctx, event)
	default:
		result, outcome = Result{Received: true}, outcomeIgnored
	}
	if err != nil {
		outcome = outcomeProcessingError
	}
	s.metrics.IncWebhookEvent(eventType, outcome)
	return result, err
}

func (s *Service) handleSucceeded(ctx context.Context, event *stripe.Event) (Result, string, error) {
	txn, intent, err := s.lookup(ctx, event)
	if err != nil {
		return Result{}, "", err
	}
	if txn == nil {
		s.logg.Warn(ctx, "payment_intent.succeeded for unknown payment intent")
		return Result{Received: true, Warning: warningUnknownIntent}, outcomeUnknownIntent, nil
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())

	switch txn.Status {
	case enums.PaymentTransactionSucceeded:
		return Result{Received: true}, outcomeAlreadySettled, nil
	case enums.PaymentTransactionFailed:
		// Stripe captured funds for a transaction we already terminated.
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"external_intent_id": intent.ID,
			"failure_reason":     derefString(txn.FailureReason),
		}), "payment captured for failed transaction", fmt.Errorf("transaction %s is failed", txn.ID))
		return Result{Received: true, Warning: warningAlreadyFailed}, outcomeAlreadySettled, nil
	}

	if _, err := s.settler.Confirm(ctx, txn.ID); err != nil {
		return Result{}, "", err
	}
	s.logg.Info(ctx, "payment confirmed from webhook")
	return Result{Received: true}, outcomeProcessed, nil
}

func (s *Service) handleFailed(ctx context.Context, event *stripe.Event) (Result, string, error) {
	txn, intent, err := s.lookup(ctx, event)
	if err != nil {
		return Result{}, "", err
	}
	if txn == nil {
		s.logg.Warn(ctx, "payment_intent.payment_failed for unknown payment intent")
		return Result{Received: true, Warning: warningUnknownIntent}, outcomeUnknownIntent, nil
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
	if txn.Status == enums.PaymentTransactionSucceeded {
		s.logg.Warn(ctx, "payment_failed received for succeeded transaction")
		return Result{Received: true, Warning: warningAlreadySettled}, outcomeAlreadySettled, nil
	}

	reason := defaultFailureReason
	if intent.LastPaymentError != nil && strings.TrimSpace(intent.LastPaymentError.Msg) != "" {
		reason = strings.TrimSpace(intent.LastPaymentError.Msg)
	}
	if err := s.settler.MarkFailed(ctx, payments.FailInput{
		TransactionID:  txn.ID,
		Reason:         reason,
		ProviderStatus: string(intent.Status),
	}); err != nil {
		return Result{}, "", err
	}
	return Result{Received: true}, outcomeProcessed, nil
}

func (s *Service) lookup(ctx context.Context, event *stripe.Event) (*models.PaymentTransaction, *stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if intent.ID == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	txn, err := s.transactions.FindByExternalID(ctx, intent.ID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, &intent, nil
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
	}
	return txn, &intent, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
